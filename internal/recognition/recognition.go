// Package recognition wraps an external text-recognition engine behind a
// uniform call that reports progress and classifies failures.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/frame"
)

// Whitelist is the only character set engines are asked to recognize.
const Whitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Language is the language hint handed to engines.
const Language = "eng"

// ErrRecognitionFailed matches every *Failure via errors.Is.
var ErrRecognitionFailed = errors.New("recognition failed")

// Request is what an Engine receives for one attempt.
type Request struct {
	Image     *frame.Binary
	Whitelist string
	Language  string
}

// Output is the raw engine answer.
type Output struct {
	Text       string
	Confidence float64
}

// Engine is an opaque text-recognition capability. Implementations call report
// with progress values as recognition advances; report never blocks.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request, report func(progress float64)) (Output, error)
}

// Result is the recognized text of one attempt.
type Result struct {
	Text       string
	Engine     string
	Confidence float64
	Duration   time.Duration
}

// Failure reports an engine error. No text accompanies a failure.
type Failure struct {
	Engine string
	Err    error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("recognition with %s failed: %v", f.Engine, f.Err)
}

// Unwrap returns the engine error.
func (f *Failure) Unwrap() error { return f.Err }

// Is makes errors.Is(err, ErrRecognitionFailed) hold for any Failure.
func (f *Failure) Is(target error) bool { return target == ErrRecognitionFailed }

// Recognizer is the call the scan pipeline depends on. Sends on progress must
// not block, and the caller stops reading once Recognize returns.
type Recognizer interface {
	Recognize(ctx context.Context, img *frame.Binary, progress chan<- float64) (*Result, error)
}

// Adapter configures an Engine for plate text and normalizes its output.
type Adapter struct {
	engine Engine
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter wraps engine.
func NewAdapter(engine Engine, logger *zap.Logger) *Adapter {
	return &Adapter{engine: engine, logger: logger.Named("recognition"), now: time.Now}
}

// Recognize runs the engine on img. Progress values in [0,1] are sent to
// progress without blocking; values that do not advance are dropped. A nil
// channel disables progress reporting.
func (a *Adapter) Recognize(ctx context.Context, img *frame.Binary, progress chan<- float64) (*Result, error) {
	start := a.now()
	var (
		mu   sync.Mutex
		last = -1.0
	)
	report := func(p float64) {
		if math.IsNaN(p) {
			return
		}
		p = math.Min(1, math.Max(0, p))
		mu.Lock()
		if p <= last {
			mu.Unlock()
			return
		}
		last = p
		mu.Unlock()
		if progress == nil {
			return
		}
		select {
		case progress <- p:
		default:
		}
	}

	out, err := a.engine.Recognize(ctx, Request{Image: img, Whitelist: Whitelist, Language: Language}, report)
	if err != nil {
		a.logger.Warn("engine failed", zap.String("engine", a.engine.Name()), zap.Error(err))
		return nil, &Failure{Engine: a.engine.Name(), Err: err}
	}
	report(1)

	text := Sanitize(out.Text)
	elapsed := a.now().Sub(start)
	a.logger.Debug("text recognized",
		zap.String("engine", a.engine.Name()),
		zap.Int("chars", len(text)),
		zap.Duration("duration", elapsed))
	return &Result{
		Text:       text,
		Engine:     a.engine.Name(),
		Confidence: out.Confidence,
		Duration:   elapsed,
	}, nil
}

// Sanitize drops every character outside Whitelist, keeping whitespace so
// token boundaries survive.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r), r == '\uFEFF':
			return r
		}
		return -1
	}, strings.TrimSpace(text))
}
