package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"SCANNER_ADDR", "SCAN_INTERVAL", "OCR_ENGINE", "CAMERA_DEVICE", "REGISTRY_URL"} {
		t.Setenv(k, "")
	}

	cfg, warnings := ScannerFromEnv()
	assert.Empty(t, warnings)
	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, 4*time.Second, cfg.ScanInterval)
	assert.Equal(t, EngineGRPC, cfg.OCREngine)
	assert.Equal(t, 0, cfg.CameraDevice)
}

func TestScannerFromEnvOverrides(t *testing.T) {
	t.Setenv("SCAN_INTERVAL", "2s")
	t.Setenv("OCR_ENGINE", "Rekognition")
	t.Setenv("CAMERA_DEVICE", "2")
	t.Setenv("REGISTRY_URL", "http://registry:10000/")

	cfg, warnings := ScannerFromEnv()
	assert.Empty(t, warnings)
	assert.Equal(t, 2*time.Second, cfg.ScanInterval)
	assert.Equal(t, EngineRekognition, cfg.OCREngine)
	assert.Equal(t, 2, cfg.CameraDevice)
	assert.Equal(t, "http://registry:10000", cfg.RegistryURL)
}

func TestScannerFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SCAN_INTERVAL", "soon")
	t.Setenv("CAMERA_DEVICE", "-1")
	t.Setenv("OCR_ENGINE", "tesseract")

	cfg, warnings := ScannerFromEnv()
	assert.Len(t, warnings, 3)
	assert.Equal(t, 4*time.Second, cfg.ScanInterval)
	assert.Equal(t, 0, cfg.CameraDevice)
	assert.Equal(t, EngineGRPC, cfg.OCREngine)
}

func TestLoadDotEnvSkipsMissingFiles(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REGISTRY_ADDR=:9999\nJWT_AUDIENCE=ops\n"), 0o600))

	t.Setenv("REGISTRY_ADDR", ":7000")
	t.Setenv("JWT_AUDIENCE", "")
	os.Unsetenv("JWT_AUDIENCE")

	require.NoError(t, LoadDotEnv(path))
	cfg := RegistryFromEnv()
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "ops", cfg.JWTAudience)
}
