// Package pcm implements the raw-PCM capture adapter: fixed blocks of device
// samples, downsampled and sent as 16-bit little-endian mono.
package pcm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/service/capture"
	"caption-stream-client/internal/service/capture/device"
)

const (
	// DefaultBlockSize is the number of device samples per frame.
	DefaultBlockSize = 4096
	// DefaultTargetRate is the sample rate of outbound frames.
	DefaultTargetRate = 16000
)

var _ capture.Adapter = (*Adapter)(nil)

// Adapter emits one frame per block of device samples.
type Adapter struct {
	source      device.Source
	constraints device.Constraints
	blockSize   int
	targetRate  int
	log         zerolog.Logger

	mu      sync.Mutex
	stream  device.Stream
	stopped bool
	done    chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBlockSize overrides the samples per block.
func WithBlockSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.blockSize = n
		}
	}
}

// WithTargetRate overrides the outbound sample rate.
func WithTargetRate(hz int) Option {
	return func(a *Adapter) {
		if hz > 0 {
			a.targetRate = hz
		}
	}
}

// WithConstraints overrides the device processing constraints.
func WithConstraints(c device.Constraints) Option {
	return func(a *Adapter) { a.constraints = c }
}

// New creates a raw-PCM adapter reading from src.
func New(src device.Source, log zerolog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		source:      src,
		constraints: device.DefaultConstraints(),
		blockSize:   DefaultBlockSize,
		targetRate:  DefaultTargetRate,
		log:         log.With().Str("adapter", "pcm").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements capture.Adapter.
func (a *Adapter) Name() string { return "pcm" }

// Start implements capture.Adapter.
func (a *Adapter) Start(ctx context.Context, sink capture.FrameSink) error {
	st, err := a.source.Open(ctx, a.constraints)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.stopped || a.stream != nil {
		a.mu.Unlock()
		st.Close()
		return fmt.Errorf("pcm adapter: %w", context.Canceled)
	}
	a.stream = st
	a.done = make(chan struct{})
	a.mu.Unlock()

	a.log.Info().
		Int("deviceRate", st.SampleRate()).
		Int("targetRate", a.targetRate).
		Int("blockSize", a.blockSize).
		Msg("PCM capture started")

	go a.pump(st, sink, a.done)
	return nil
}

func (a *Adapter) pump(st device.Stream, sink capture.FrameSink, done chan struct{}) {
	defer close(done)

	block := make([]float32, a.blockSize)
	for {
		n, err := st.Read(block)
		if n > 0 {
			down := Downsample(block[:n], st.SampleRate(), a.targetRate)
			if frame := FloatToInt16LE(down); len(frame) > 0 {
				sink(frame)
			}
		}
		if err != nil {
			if !errors.Is(err, device.ErrStreamClosed) && !errors.Is(err, io.EOF) {
				a.log.Warn().Err(err).Msg("Capture read failed")
			}
			return
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
	st, done := a.stream, a.done
	a.mu.Unlock()

	if st == nil {
		return nil
	}
	err := st.Close()
	<-done
	a.log.Info().Msg("PCM capture stopped")
	return err
}
