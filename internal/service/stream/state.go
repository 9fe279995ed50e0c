// Package stream drives one provider's connection and capture session.
package stream

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a stream controller.
type State int

const (
	// StateIdle - No connection, no capture.
	StateIdle State = iota
	// StateConnecting - Connection requested, not yet open.
	StateConnecting
	// StateCaptureInit - Connected, acquiring the capture device.
	StateCaptureInit
	// StateActive - Connected and sending audio.
	StateActive
	// StateListening - Connected without capture.
	StateListening
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateCaptureInit:
		return "CAPTURE_INIT"
	case StateActive:
		return "ACTIVE"
	case StateListening:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsConnected reports whether the state holds an open connection.
func (s State) IsConnected() bool {
	return s == StateCaptureInit || s == StateActive || s == StateListening
}

// ErrInvalidTransition reports a state change the machine does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// State transitions:
//
//	IDLE → CONNECTING → CAPTURE_INIT → ACTIVE → IDLE
//	            │
//	            └──────→ LISTENING → IDLE
//
// Every non-idle state may fall back to IDLE through teardown.
var transitions = map[State][]State{
	StateIdle:        {StateConnecting},
	StateConnecting:  {StateCaptureInit, StateListening, StateIdle},
	StateCaptureInit: {StateActive, StateIdle},
	StateActive:      {StateIdle},
	StateListening:   {StateIdle},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Mode is the kind of session a controller runs.
type Mode int

const (
	ModeCapture Mode = iota
	ModeListen
)

func (m Mode) String() string {
	if m == ModeListen {
		return "listen"
	}
	return "capture"
}
