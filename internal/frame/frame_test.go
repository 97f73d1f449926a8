package frame

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return &Frame{Image: img}
}

func noise(w, h int, seed int64) *Frame {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r.Read(img.Pix)
	return &Frame{Image: img}
}

func TestPreprocessChannelsAreBinary(t *testing.T) {
	out := Preprocess(noise(37, 23, 7))
	for i := 0; i < len(out.Image.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := out.Image.Pix[i+c]
			if v != 0 && v != 255 {
				t.Fatalf("pixel %d channel %d = %d", i/4, c, v)
			}
		}
		assert.Equal(t, out.Image.Pix[i], out.Image.Pix[i+1])
		assert.Equal(t, out.Image.Pix[i], out.Image.Pix[i+2])
	}
}

func TestPreprocessPreservesAlphaAndSize(t *testing.T) {
	in := noise(10, 4, 3)
	out := Preprocess(in)
	assert.Equal(t, in.Width(), out.Width())
	assert.Equal(t, in.Height(), out.Height())
	for i := 3; i < len(in.Image.Pix); i += 4 {
		require.Equal(t, in.Image.Pix[i], out.Image.Pix[i])
	}
}

func TestPreprocessIsIdempotent(t *testing.T) {
	once := Preprocess(noise(16, 16, 11))
	twice := Preprocess(&Frame{Image: once.Image})
	assert.Equal(t, once.Image.Pix, twice.Image.Pix)
}

func TestPreprocessThresholdBoundary(t *testing.T) {
	cases := []struct {
		name string
		in   color.RGBA
		want uint8
	}{
		{"exactly threshold is black", color.RGBA{128, 128, 128, 255}, 0},
		{"just above threshold is white", color.RGBA{129, 128, 128, 255}, 255},
		{"mean above from one bright channel", color.RGBA{255, 130, 0, 255}, 255},
		{"dark", color.RGBA{10, 20, 30, 255}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Preprocess(solid(1, 1, tc.in))
			assert.Equal(t, tc.want, out.Image.Pix[0])
		})
	}
}

func TestPreprocessHandlesOffsetRect(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 8, 7))
	img.SetRGBA(6, 6, color.RGBA{200, 200, 200, 255})
	out := Preprocess(&Frame{Image: img})
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.Image.RGBAAt(6, 6))
	assert.Equal(t, color.RGBA{0, 0, 0, 0}, out.Image.RGBAAt(5, 5))
}

func TestDecodeAndStillSource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(4, 3, color.RGBA{1, 2, 3, 255}).Image))

	f, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width())
	assert.Equal(t, 3, f.Height())

	src := NewStill(f)
	a, err := src.Capture(context.Background())
	require.NoError(t, err)
	a.Image.Pix[0] = 99

	b, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b.Image.Pix[0], "captures must not share pixels")

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestBinaryPNGRoundTrip(t *testing.T) {
	in := noise(5, 5, 1)
	for i := 3; i < len(in.Image.Pix); i += 4 {
		in.Image.Pix[i] = 255
	}
	bin := Preprocess(in)
	data, err := bin.PNG()
	require.NoError(t, err)
	f, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, bin.Image.Pix, f.Image.Pix)
}
