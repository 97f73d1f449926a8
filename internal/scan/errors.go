package scan

import "errors"

var (
	// ErrCaptureUnavailable reports that no frame source could be opened.
	ErrCaptureUnavailable = errors.New("capture device unavailable")
	// ErrAlreadyScanning is returned when auto-scan is started twice.
	ErrAlreadyScanning = errors.New("auto-scan already running")
	// ErrBusy is returned when a single-shot attempt overlaps another attempt.
	ErrBusy = errors.New("another scan attempt is in flight")
)

// CaptureUnavailableError carries the device failure behind ErrCaptureUnavailable.
type CaptureUnavailableError struct {
	Err error
}

func (e *CaptureUnavailableError) Error() string {
	if e.Err == nil {
		return ErrCaptureUnavailable.Error()
	}
	return ErrCaptureUnavailable.Error() + ": " + e.Err.Error()
}

func (e *CaptureUnavailableError) Unwrap() error { return e.Err }

// Is matches ErrCaptureUnavailable.
func (e *CaptureUnavailableError) Is(target error) bool { return target == ErrCaptureUnavailable }
