// Package camera reads live frames from a local capture device through OpenCV.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/plate-scan/internal/frame"
)

// Camera is a frame.Source backed by an OpenCV VideoCapture device.
type Camera struct {
	mu      sync.Mutex
	device  int
	capture *gocv.VideoCapture
	mat     gocv.Mat
	closed  bool
	logger  *zap.Logger
}

// Open acquires the capture device. The device stays held until Close.
func Open(device int, logger *zap.Logger) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", device)
	}
	logger.Info("camera opened", zap.Int("device", device))
	return &Camera{
		device:  device,
		capture: vc,
		mat:     gocv.NewMat(),
		logger:  logger,
	}, nil
}

// Opener returns a frame.Opener that opens the given device on demand.
func Opener(device int, logger *zap.Logger) frame.Opener {
	return frame.OpenerFunc(func(ctx context.Context) (frame.Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Open(device, logger.Named("camera"))
	})
}

// Capture grabs the current video frame.
func (c *Camera) Capture(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, frame.ErrSourceClosed
	}
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, errors.New("camera returned no frame")
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert camera frame: %w", err)
	}
	return frame.FromImage(img), nil
}

// Close stops capture and frees the device. Safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	err := c.capture.Close()
	c.logger.Info("camera released", zap.Int("device", c.device))
	return err
}
