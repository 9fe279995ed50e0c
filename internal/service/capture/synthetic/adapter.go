// Package synthetic provides a capture adapter that needs no device. It
// emits random frames at a fixed cadence so a mock provider can be driven
// without a microphone.
package synthetic

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"caption-stream-client/internal/service/capture"
)

const (
	// DefaultFrameSize is the number of random bytes per frame.
	DefaultFrameSize = 4096
	// DefaultInterval is the time between frames.
	DefaultInterval = 250 * time.Millisecond
)

var _ capture.Adapter = (*Adapter)(nil)

// Adapter implements capture.Adapter with random payloads.
type Adapter struct {
	FrameSize int
	Interval  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// New creates a synthetic adapter with the default frame size and cadence.
func New() *Adapter {
	return &Adapter{FrameSize: DefaultFrameSize, Interval: DefaultInterval}
}

// Name implements capture.Adapter.
func (a *Adapter) Name() string { return "synthetic" }

// Start implements capture.Adapter. It never blocks.
func (a *Adapter) Start(ctx context.Context, sink capture.FrameSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || a.cancel != nil {
		return context.Canceled
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(runCtx, sink, a.done)
	return nil
}

func (a *Adapter) run(ctx context.Context, sink capture.FrameSink, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := make([]byte, a.FrameSize)
			for i := range frame {
				frame[i] = byte(rand.IntN(256))
			}
			sink(frame)
		}
	}
}

// Stop implements capture.Adapter.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
