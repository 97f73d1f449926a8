// Package lookup resolves plate candidates to registry records and
// classifies the answer as a match, a clean miss or a failure.
package lookup

import (
	"context"
	"errors"

	"github.com/example/plate-scan/internal/registry"
)

// ErrNotFound is the clean-miss answer of a Gateway.
var ErrNotFound = registry.ErrNotFound

// Gateway finds the record registered under a plate.
type Gateway interface {
	Lookup(ctx context.Context, plate string) (*registry.Vehicle, error)
}

// Kind classifies a lookup answer.
type Kind int

const (
	// Match means a record was returned.
	Match Kind = iota
	// Miss means the plate is not registered.
	Miss
	// Failure means the registry could not be asked; it says nothing about the plate.
	Failure
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case Match:
		return "match"
	case Miss:
		return "miss"
	default:
		return "error"
	}
}

// Classify maps a Gateway error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Match
	case errors.Is(err, ErrNotFound):
		return Miss
	default:
		return Failure
	}
}
