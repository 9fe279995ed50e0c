// Package transport defines the duplex connection the stream controller
// drives. Implementations deliver connection events through a callback and
// never block the caller on network I/O.
package transport

import (
	"context"
	"errors"
)

// ErrNotReady is returned by a send when the connection cannot take the
// frame right now. The frame is dropped.
var ErrNotReady = errors.New("connection not ready to send")

// EventKind classifies a connection event.
type EventKind int

const (
	// EventMessage carries one inbound frame.
	EventMessage EventKind = iota
	// EventError reports a transport error. An EventClose follows.
	EventError
	// EventClose reports that the connection is gone. It is always the
	// last event of a connection.
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one connection event.
type Event struct {
	Kind   EventKind
	Data   []byte
	Binary bool
	Err    error
	Code   int
}

// Conn is an open duplex connection.
type Conn interface {
	// SendBinary queues one binary frame or returns ErrNotReady.
	SendBinary(frame []byte) error
	// SendJSON queues one text frame holding v as JSON or returns ErrNotReady.
	SendJSON(v any) error
	// Ready reports whether the connection currently accepts frames.
	Ready() bool
	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens connections. Dial blocks until the connection is open or
// has failed; events for an open connection go to onEvent, from a goroutine
// owned by the connection.
type Dialer interface {
	Dial(ctx context.Context, url string, onEvent func(Event)) (Conn, error)
}
