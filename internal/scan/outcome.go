package scan

import (
	"time"

	"github.com/example/plate-scan/internal/registry"
)

// OutcomeType discriminates Outcome.
type OutcomeType string

const (
	OutcomeSuccess OutcomeType = "success"
	OutcomeMiss    OutcomeType = "miss"
	OutcomeError   OutcomeType = "error"
)

// Outcome is the report of one attempt.
//
// Success carries Plate and Record. Miss carries the extracted Candidates and,
// for single-shot attempts, the Unmatched ones that were looked up without a
// record. Error carries Cause. Transient marks auto-scan misses and errors
// that a later tick supersedes.
type Outcome struct {
	Type       OutcomeType       `json:"type"`
	Plate      string            `json:"plate,omitempty"`
	Record     *registry.Vehicle `json:"record,omitempty"`
	Candidates []string          `json:"candidates,omitempty"`
	Unmatched  []string          `json:"unmatched,omitempty"`
	Suppressed []string          `json:"suppressed,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Transient  bool              `json:"transient"`
	Mode       Mode              `json:"mode"`
	AttemptID  string            `json:"attemptId"`
	SessionID  string            `json:"sessionId,omitempty"`
	Text       string            `json:"text,omitempty"`
	Duration   time.Duration     `json:"durationNs"`

	err error
}

// Err returns the error behind an error outcome.
func (o Outcome) Err() error { return o.err }
