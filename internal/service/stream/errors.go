package stream

import (
	"errors"
	"fmt"
)

// ErrNoSessionURL is reported when a session is started without a room.
var ErrNoSessionURL = errors.New("no session: room and role are required")

// Kind classifies a session failure.
type Kind int

const (
	KindDeviceDenied Kind = iota + 1
	KindConnectFailed
	KindTransport
	KindUnexpectedClose
	KindNoSession
)

func (k Kind) String() string {
	switch k {
	case KindDeviceDenied:
		return "device_denied"
	case KindConnectFailed:
		return "connect_failed"
	case KindTransport:
		return "transport_error"
	case KindUnexpectedClose:
		return "unexpected_close"
	case KindNoSession:
		return "no_session"
	default:
		return "unknown"
	}
}

// Error is the single user-visible failure of a controller.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindDeviceDenied:
		msg = "microphone unavailable or access denied"
	case KindConnectFailed:
		msg = "could not connect to the transcription server"
	case KindTransport:
		msg = "connection error"
	case KindUnexpectedClose:
		msg = "connection closed unexpectedly"
	case KindNoSession:
		msg = "no active session"
	default:
		msg = "stream error"
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
