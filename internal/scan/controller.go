// Package scan drives plate acquisition attempts: capture, preprocess,
// recognize, extract, look up and report. It owns the auto-scan session
// lifecycle and the single-slot guard that keeps attempts serialized.
package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/clock"
	"github.com/example/plate-scan/internal/frame"
	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/lookup"
	"github.com/example/plate-scan/internal/metrics"
	"github.com/example/plate-scan/internal/plate"
	"github.com/example/plate-scan/internal/recognition"
)

const (
	DefaultInterval       = 4 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// ErrInvalidPlate is returned by LookupPlate for input with no plate characters.
var ErrInvalidPlate = errors.New("plate is empty after normalization")

// Config wires the controller to its collaborators.
type Config struct {
	// Opener opens the camera for auto-scan. Nil disables auto-scan.
	Opener         frame.Opener
	Recognizer     recognition.Recognizer
	Gateway        lookup.Gateway
	Clock          clock.Clock
	Interval       time.Duration
	AttemptTimeout time.Duration
	Metrics        *metrics.Scanner
}

// Status is a snapshot of the controller.
type Status struct {
	Mode          Mode     `json:"mode"`
	State         State    `json:"state"`
	Active        bool     `json:"active"`
	SessionID     string   `json:"sessionId,omitempty"`
	LastConfirmed string   `json:"lastConfirmed,omitempty"`
	LastOutcome   *Outcome `json:"lastOutcome,omitempty"`
}

// Controller runs scan attempts. At most one attempt is in flight at any
// time, across single-shot calls and auto-scan sessions alike.
type Controller struct {
	opener         frame.Opener
	recognizer     recognition.Recognizer
	gateway        lookup.Gateway
	clock          clock.Clock
	interval       time.Duration
	attemptTimeout time.Duration
	metrics        *metrics.Scanner
	logger         *zap.Logger

	busy     atomic.Bool
	attempts sync.WaitGroup
	events   broker

	mu          sync.Mutex
	mode        Mode
	state       State
	session     *Session
	lastOutcome *Outcome
}

// NewController builds a controller in camera mode and Idle state.
func NewController(cfg Config, logger *zap.Logger) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Controller{
		opener:         cfg.Opener,
		recognizer:     cfg.Recognizer,
		gateway:        cfg.Gateway,
		clock:          cfg.Clock,
		interval:       cfg.Interval,
		attemptTimeout: cfg.AttemptTimeout,
		metrics:        cfg.Metrics,
		logger:         logger.Named("scan"),
		mode:           ModeCamera,
		state:          Idle,
	}
}

// StartAutoScan opens the camera and arms the repeating trigger. The first
// attempt runs one interval after the call. ctx bounds opening the device;
// attempts keep its values but not its cancellation.
func (c *Controller) StartAutoScan(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.Active() {
		return nil, ErrAlreadyScanning
	}
	if c.opener == nil {
		return nil, &CaptureUnavailableError{Err: errors.New("no camera configured")}
	}

	src, err := c.opener.Open(ctx)
	if err != nil {
		c.logger.Warn("failed to open capture device", zap.Error(err))
		return nil, &CaptureUnavailableError{Err: err}
	}

	s := newSession(uuid.NewString(), context.WithoutCancel(ctx), src, c.clock.NewTicker(c.interval))
	c.session = s
	c.mode = ModeCamera
	go c.loop(s)

	c.logger.Info("auto-scan started", zap.String("session_id", s.ID()), zap.Duration("interval", c.interval))
	c.publish(Event{Type: EventSession, Active: true, SessionID: s.ID(), Mode: ModeCamera})
	return s, nil
}

// StopAutoScan cancels the trigger and releases the camera. It is safe to call
// when nothing is running. An attempt already in flight finishes and reports
// but no longer touches the session.
func (c *Controller) StopAutoScan() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	stopped := s != nil && s.deactivate()
	c.mu.Unlock()

	if !stopped {
		return
	}
	if err := s.release(); err != nil {
		c.logger.Warn("failed to release capture device", zap.String("session_id", s.ID()), zap.Error(err))
	}
	c.logger.Info("auto-scan stopped", zap.String("session_id", s.ID()))
	c.publish(Event{Type: EventSession, Active: false, SessionID: s.ID()})
}

// SetMode switches the capture mode, stopping auto-scan first.
func (c *Controller) SetMode(m Mode) {
	c.StopAutoScan()

	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
	c.publish(Event{Type: EventMode, Mode: m})
}

// Close stops auto-scan and waits for in-flight auto-scan attempts.
func (c *Controller) Close() {
	c.StopAutoScan()
	c.attempts.Wait()
}

// Subscribe returns a stream of controller events and a function that ends
// the subscription. Events are dropped for subscribers that fall behind.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Mode: c.mode, State: c.state}
	if c.session != nil {
		st.Active = c.session.Active()
		st.SessionID = c.session.ID()
		st.LastConfirmed = c.session.LastConfirmed()
	}
	if c.lastOutcome != nil {
		o := *c.lastOutcome
		st.LastOutcome = &o
	}
	return st
}

// ScanImage runs one attempt on src with no last-confirmed suppression. A
// miss lists every candidate that was looked up without a record. Failures
// are returned alongside the error outcome. The caller keeps ownership of src.
func (c *Controller) ScanImage(ctx context.Context, src frame.Source) (Outcome, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer c.busy.Store(false)

	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	out, _ := c.run(ctx, attempt{id: uuid.NewString(), mode: ModeUpload, source: src})
	if out.Type == OutcomeError {
		return out, out.err
	}
	return out, nil
}

// LookupPlate queries the registry for a typed plate. The input is normalized
// first; any normalized value is queried, candidate rules do not apply.
func (c *Controller) LookupPlate(ctx context.Context, p string) (Outcome, error) {
	norm := plate.Normalize(p)
	if norm == "" {
		return Outcome{}, ErrInvalidPlate
	}

	id := uuid.NewString()
	start := c.clock.Now()
	opLogger := logging.WithOperation(c.logger, "scan.manual", id)
	out := Outcome{Mode: ModeManual, AttemptID: id, Candidates: []string{norm}}

	v, err := c.gateway.Lookup(ctx, norm)
	kind := lookup.Classify(err)
	c.metrics.ObserveLookup(kind.String())
	switch kind {
	case lookup.Match:
		out.Type = OutcomeSuccess
		out.Plate = norm
		out.Record = v
	case lookup.Miss:
		out.Type = OutcomeMiss
		out.Unmatched = []string{norm}
	default:
		out.Type = OutcomeError
		out.err = logging.NewOperationError("scan.manual", id, err)
		out.Cause = out.err.Error()
	}
	out.Duration = c.clock.Now().Sub(start)
	c.record(opLogger, out)
	return out, out.err
}

func (c *Controller) loop(s *Session) {
	for {
		select {
		case <-s.Done():
			return
		case <-s.ticker.C():
			started, live := c.claim(s)
			if !live {
				return
			}
			if !started {
				c.metrics.IncSkippedTick()
				c.logger.Debug("tick skipped, attempt in flight", zap.String("session_id", s.ID()))
				continue
			}
			go func() {
				defer c.attempts.Done()
				defer c.busy.Store(false)
				c.tick(s)
			}()
		}
	}
}

// claim takes the attempt slot for a tick of s. live is false once s has
// stopped. Holding c.mu orders the WaitGroup Add before Close can Wait.
func (c *Controller) claim(s *Session) (started, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.Active() {
		return false, false
	}
	if !c.busy.CompareAndSwap(false, true) {
		return false, true
	}
	c.attempts.Add(1)
	return true, true
}

func (c *Controller) tick(s *Session) {
	ctx, cancel := context.WithTimeout(s.base, c.attemptTimeout)
	defer cancel()

	if _, reported := c.run(ctx, attempt{id: uuid.NewString(), mode: ModeCamera, session: s}); !reported {
		c.logger.Debug("attempt dropped, session no longer active", zap.String("session_id", s.ID()))
	}
}

// attempt describes one pass through the pipeline. Auto-scan attempts carry
// their session; single-shot attempts carry a source.
type attempt struct {
	id      string
	mode    Mode
	session *Session
	source  frame.Source
}

func (a attempt) auto() bool { return a.session != nil }

// run executes the pipeline in order. reported is false when the attempt was
// dropped before capture because its session had stopped.
func (c *Controller) run(ctx context.Context, a attempt) (out Outcome, reported bool) {
	operation := "scan.upload"
	if a.auto() {
		operation = "scan.auto"
	}
	opLogger := logging.WithOperation(c.logger, operation, a.id)
	start := c.clock.Now()

	out = Outcome{Mode: a.mode, AttemptID: a.id, Transient: a.auto()}
	if a.auto() {
		out.SessionID = a.session.ID()
		opLogger = opLogger.With(zap.String("session_id", a.session.ID()))
	}
	defer c.setState(Idle, a)

	c.setState(CapturingFrame, a)
	var (
		f   *frame.Frame
		err error
	)
	if a.auto() {
		var ok bool
		f, ok, err = a.session.capture(ctx)
		if !ok {
			return Outcome{}, false
		}
	} else {
		f, err = a.source.Capture(ctx)
	}
	if err != nil {
		return c.fail(opLogger, out, start, "capture", a.id, &CaptureUnavailableError{Err: err}), true
	}

	c.setState(Preprocessing, a)
	bin := frame.Preprocess(f)

	c.setState(Recognizing, a)
	res, err := c.recognize(ctx, a, bin)
	if err != nil {
		return c.fail(opLogger, out, start, "recognize", a.id, err), true
	}
	c.metrics.ObserveRecognition(res.Duration)
	out.Text = res.Text

	c.setState(Extracting, a)
	out.Candidates = plate.Extract(res.Text)

	c.setState(LookingUp, a)
	var suppress string
	if a.auto() {
		suppress = a.session.LastConfirmed()
	}
	for _, candidate := range out.Candidates {
		if suppress != "" && candidate == suppress {
			out.Suppressed = append(out.Suppressed, candidate)
			continue
		}

		v, err := c.gateway.Lookup(ctx, candidate)
		kind := lookup.Classify(err)
		c.metrics.ObserveLookup(kind.String())
		switch kind {
		case lookup.Match:
			if a.auto() && !a.session.confirm(candidate) {
				opLogger.Info("session stopped during attempt, plate not confirmed", zap.String("plate", candidate))
			}
			out.Type = OutcomeSuccess
			out.Plate = candidate
			out.Record = v
			out.Transient = false
			return c.report(opLogger, out, start, a), true
		case lookup.Miss:
			out.Unmatched = append(out.Unmatched, candidate)
		default:
			return c.fail(opLogger, out, start, "lookup", a.id, err), true
		}
	}

	out.Type = OutcomeMiss
	if a.auto() {
		out.Unmatched = nil
	}
	return c.report(opLogger, out, start, a), true
}

func (c *Controller) recognize(ctx context.Context, a attempt, bin *frame.Binary) (*recognition.Result, error) {
	progress := make(chan float64, 8)
	returned := make(chan struct{})
	forwarded := make(chan struct{})
	forward := func(p float64) {
		c.publish(Event{Type: EventProgress, Progress: p, AttemptID: a.id, SessionID: sessionID(a)})
	}
	go func() {
		defer close(forwarded)
		for {
			select {
			case p := <-progress:
				forward(p)
			case <-returned:
				for {
					select {
					case p := <-progress:
						forward(p)
					default:
						return
					}
				}
			}
		}
	}()

	// progress stays open: a late send lands in the buffer, never on a closed channel.
	res, err := c.recognizer.Recognize(ctx, bin, progress)
	close(returned)
	<-forwarded
	return res, err
}

func (c *Controller) fail(logger *zap.Logger, out Outcome, start time.Time, operation, attemptID string, err error) Outcome {
	out.Type = OutcomeError
	out.Candidates = nil
	out.Unmatched = nil
	out.err = logging.NewOperationError(operation, attemptID, err)
	out.Cause = out.err.Error()
	out.Duration = c.clock.Now().Sub(start)
	c.record(logger, out)
	return out
}

func (c *Controller) report(logger *zap.Logger, out Outcome, start time.Time, a attempt) Outcome {
	c.setState(Reporting, a)
	out.Duration = c.clock.Now().Sub(start)
	c.record(logger, out)
	return out
}

func (c *Controller) record(logger *zap.Logger, out Outcome) {
	o := out
	c.mu.Lock()
	c.lastOutcome = &o
	c.mu.Unlock()

	c.metrics.ObserveAttempt(string(out.Mode), string(out.Type))
	c.publish(Event{Type: EventOutcome, Outcome: &o, AttemptID: out.AttemptID, SessionID: out.SessionID, Mode: out.Mode})

	fields := []zap.Field{
		zap.String("outcome", string(out.Type)),
		zap.Strings("candidates", out.Candidates),
		zap.Duration("duration", out.Duration),
	}
	switch out.Type {
	case OutcomeSuccess:
		logger.Info("plate matched", append(fields, zap.String("plate", out.Plate))...)
	case OutcomeError:
		if out.Transient {
			logger.Warn("attempt failed", append(fields, zap.Error(out.err))...)
		} else {
			logger.Error("attempt failed", append(fields, zap.Error(out.err))...)
		}
	default:
		logger.Info("no registered plate", append(fields, zap.Strings("unmatched", out.Unmatched))...)
	}
}

func (c *Controller) setState(s State, a attempt) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.publish(Event{Type: EventState, State: s.String(), AttemptID: a.id, SessionID: sessionID(a)})
}

func (c *Controller) publish(ev Event) {
	ev.Time = c.clock.Now()
	c.events.publish(ev)
}

func sessionID(a attempt) string {
	if a.session == nil {
		return ""
	}
	return a.session.ID()
}
