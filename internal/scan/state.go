package scan

import (
	"fmt"
	"strings"
)

// State is the phase of the attempt currently in flight.
type State int

const (
	Idle State = iota
	CapturingFrame
	Preprocessing
	Recognizing
	Extracting
	LookingUp
	Reporting
)

var stateNames = [...]string{
	Idle:           "idle",
	CapturingFrame: "capturing_frame",
	Preprocessing:  "preprocessing",
	Recognizing:    "recognizing",
	Extracting:     "extracting",
	LookingUp:      "looking_up",
	Reporting:      "reporting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode is the capture mode selected by the operator.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeUpload Mode = "upload"
	ModeManual Mode = "manual"
)

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCamera, ModeUpload, ModeManual:
		return m, nil
	default:
		return "", fmt.Errorf("unknown capture mode %q", s)
	}
}
