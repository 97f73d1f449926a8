// Package frame holds the pixel grids that flow through the scan pipeline and
// the sources that produce them.
package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"sync"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrSourceClosed is returned by Capture after the source was released.
var ErrSourceClosed = errors.New("frame source closed")

// Frame is a captured RGBA pixel grid. It belongs to the attempt that captured it.
type Frame struct {
	Image *image.RGBA
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Rect.Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Rect.Dy() }

// Binary is a preprocessed frame whose RGB channels are all 0 or 255.
type Binary struct {
	Image *image.RGBA
}

// Width returns the frame width in pixels.
func (b *Binary) Width() int { return b.Image.Rect.Dx() }

// Height returns the frame height in pixels.
func (b *Binary) Height() int { return b.Image.Rect.Dy() }

// PNG encodes the binary frame for engines that accept encoded images.
func (b *Binary) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Image); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Source produces the current pixel grid on demand.
type Source interface {
	Capture(ctx context.Context) (*Frame, error)
	Close() error
}

// Opener acquires a Source, e.g. by opening a camera device.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Source, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Source, error) { return f(ctx) }

// FromImage copies any image into a new RGBA frame anchored at the origin.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return &Frame{Image: dst}
}

// Decode reads an uploaded still image (JPEG, PNG, GIF, BMP, TIFF or WebP).
func Decode(r io.Reader) (*Frame, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}
	return FromImage(img), nil
}

// Still is a Source backed by a single loaded image. Every Capture returns a
// fresh copy so each attempt owns its frame.
type Still struct {
	mu     sync.Mutex
	img    *image.RGBA
	closed bool
}

// NewStill wraps a decoded frame as a Source.
func NewStill(f *Frame) *Still {
	return &Still{img: f.Image}
}

// Capture returns a copy of the still image.
func (s *Still) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	cp := image.NewRGBA(s.img.Rect)
	copy(cp.Pix, s.img.Pix)
	return &Frame{Image: cp}, nil
}

// Close releases the image. Closing twice is harmless.
func (s *Still) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.img = nil
	return nil
}
