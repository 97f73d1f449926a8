package scan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/example/plate-scan/internal/clock"
	"github.com/example/plate-scan/internal/frame"
)

// Session is one auto-scan run: the frame source it owns, its repeating
// trigger and the last plate it confirmed. It is created by StartAutoScan and
// torn down by StopAutoScan; a torn-down session never becomes active again.
type Session struct {
	id     string
	base   context.Context
	ticker clock.Ticker
	active atomic.Bool
	done   chan struct{}

	mu            sync.Mutex
	source        frame.Source
	lastConfirmed string
}

func newSession(id string, base context.Context, source frame.Source, ticker clock.Ticker) *Session {
	s := &Session{
		id:     id,
		base:   base,
		ticker: ticker,
		done:   make(chan struct{}),
		source: source,
	}
	s.active.Store(true)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Active reports whether the session has not been stopped.
func (s *Session) Active() bool { return s.active.Load() }

// LastConfirmed returns the plate most recently matched in this session.
func (s *Session) LastConfirmed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConfirmed
}

// Done is closed when the session stops.
func (s *Session) Done() <-chan struct{} { return s.done }

// capture grabs a frame unless the session was stopped. ok is false for a
// stopped session; the caller drops the attempt without reporting.
func (s *Session) capture(ctx context.Context) (f *frame.Frame, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() || s.source == nil {
		return nil, false, nil
	}
	f, err = s.source.Capture(ctx)
	return f, true, err
}

// confirm records plate as last confirmed if the session is still active.
func (s *Session) confirm(plate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() {
		return false
	}
	s.lastConfirmed = plate
	return true
}

// deactivate marks the session stopped. Only the first call reports true.
func (s *Session) deactivate() bool {
	return s.active.CompareAndSwap(true, false)
}

// release cancels the trigger and frees the source once no capture is running.
// It must follow a successful deactivate.
func (s *Session) release() error {
	s.ticker.Stop()
	close(s.done)

	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.source
	s.source = nil
	if src == nil {
		return nil
	}
	return src.Close()
}
