// Package device provides live mono audio capture sources.
package device

import (
	"context"
	"errors"
)

var (
	// ErrDeviceDenied reports that the capture device could not be
	// acquired: no device, or permission refused.
	ErrDeviceDenied = errors.New("capture device denied")
	// ErrDeviceBusy reports that the device is held by another capture.
	ErrDeviceBusy = errors.New("capture device busy")
	// ErrStreamClosed is returned by Read after Close.
	ErrStreamClosed = errors.New("capture stream closed")
)

// Constraints are the processing options requested from the device.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	Channels         int
}

// DefaultConstraints requests voice processing on a mono channel.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		Channels:         1,
	}
}

// Source acquires capture streams.
type Source interface {
	// Open acquires the device. It may block, for example on a permission
	// prompt, and fails with ErrDeviceDenied or ErrDeviceBusy.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired device delivering mono float32 samples in [-1, 1]
// at the device's native rate.
type Stream interface {
	SampleRate() int
	// Read blocks until buf is filled or the stream ends. It returns the
	// number of samples written.
	Read(buf []float32) (int, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}
