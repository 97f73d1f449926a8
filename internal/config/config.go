// Package config builds the scanner and registry settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Recognition engine identifiers accepted by OCR_ENGINE.
const (
	EngineGRPC        = "grpc"
	EngineRekognition = "rekognition"
)

// Scanner holds settings for the plate scanning service.
type Scanner struct {
	Addr           string
	LogLevel       string
	RegistryURL    string
	RegistryToken  string
	OCREngine      string
	OCRAddr        string
	AWSRegion      string
	CameraDevice   int
	ScanInterval   time.Duration
	AttemptTimeout time.Duration
	RedisAddr      string
	CacheTTL       time.Duration
}

// Registry holds settings for the vehicle registry service.
type Registry struct {
	Addr        string
	LogLevel    string
	DatabaseDSN string
	JWTSecret   string
	JWTAudience string
}

// LoadDotEnv reads .env files into the process environment when present.
// Variables already set are left untouched.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ScannerFromEnv builds Scanner settings. Malformed values fall back to their
// defaults; the returned warnings describe every fallback taken.
func ScannerFromEnv() (Scanner, []string) {
	var warnings []string
	cfg := Scanner{
		Addr:          getEnv("SCANNER_ADDR", ":8081"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RegistryURL:   strings.TrimRight(getEnv("REGISTRY_URL", "http://localhost:10000"), "/"),
		RegistryToken: os.Getenv("REGISTRY_TOKEN"),
		OCREngine:     strings.ToLower(getEnv("OCR_ENGINE", EngineGRPC)),
		OCRAddr:       getEnv("OCR_ADDR", "ocr-service:50051"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}

	cfg.CameraDevice, warnings = intEnv("CAMERA_DEVICE", 0, warnings)
	cfg.ScanInterval, warnings = durationEnv("SCAN_INTERVAL", 4*time.Second, warnings)
	cfg.AttemptTimeout, warnings = durationEnv("ATTEMPT_TIMEOUT", 30*time.Second, warnings)
	cfg.CacheTTL, warnings = durationEnv("CACHE_TTL", 5*time.Minute, warnings)

	if cfg.OCREngine != EngineGRPC && cfg.OCREngine != EngineRekognition {
		warnings = append(warnings, fmt.Sprintf("OCR_ENGINE %q unknown, using %s", cfg.OCREngine, EngineGRPC))
		cfg.OCREngine = EngineGRPC
	}
	return cfg, warnings
}

// RegistryFromEnv builds Registry settings.
func RegistryFromEnv() Registry {
	return Registry{
		Addr:        getEnv("REGISTRY_ADDR", ":10000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseDSN: getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=vehicles port=5432 sslmode=disable"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, warnings []string) (time.Duration, []string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, warnings
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback, append(warnings, fmt.Sprintf("%s=%q invalid, using %s", key, raw, fallback))
	}
	return d, warnings
}

func intEnv(key string, fallback int, warnings []string) (int, []string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, warnings
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback, append(warnings, fmt.Sprintf("%s=%q invalid, using %d", key, raw, fallback))
	}
	return v, warnings
}
