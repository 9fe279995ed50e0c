// Package capture defines the audio capture adapters that turn a device
// into outbound binary frames for a transcription provider.
package capture

import "context"

// FrameSink receives encoded audio frames. It is called from the adapter's
// own goroutine and must not block.
type FrameSink func(frame []byte)

// Adapter acquires an audio source and emits provider-specific frames.
type Adapter interface {
	// Name identifies the adapter in logs and metrics.
	Name() string

	// Start acquires the source and begins emitting frames to sink. It may
	// block while the device is acquired; cancelling ctx aborts it.
	Start(ctx context.Context, sink FrameSink) error

	// Stop releases the source. It is idempotent and returns once no more
	// frames will be emitted.
	Stop() error
}

// Factory creates a fresh adapter for one capture session.
type Factory func() Adapter
