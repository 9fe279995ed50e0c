// Package container implements the compressed-container capture adapter.
// Encoded bytes are collected and flushed as one frame per chunk interval.
package container

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/service/capture"
	"caption-stream-client/internal/service/capture/device"
)

// DefaultChunkInterval is the flush period for encoded chunks.
const DefaultChunkInterval = 250 * time.Millisecond

var _ capture.Adapter = (*Adapter)(nil)

// Adapter emits encoded container chunks at a fixed interval.
type Adapter struct {
	source      device.Source
	encoder     Encoder
	constraints device.Constraints
	interval    time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	buf     []byte
	stream  device.Stream
	output  io.ReadCloser
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithChunkInterval overrides the flush period.
func WithChunkInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithConstraints overrides the device processing constraints.
func WithConstraints(c device.Constraints) Option {
	return func(a *Adapter) { a.constraints = c }
}

// New creates a container adapter encoding src with enc.
func New(src device.Source, enc Encoder, log zerolog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		source:      src,
		encoder:     enc,
		constraints: device.DefaultConstraints(),
		interval:    DefaultChunkInterval,
		log:         log.With().Str("adapter", "container").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements capture.Adapter.
func (a *Adapter) Name() string { return "container" }

// Start implements capture.Adapter.
func (a *Adapter) Start(ctx context.Context, sink capture.FrameSink) error {
	st, err := a.source.Open(ctx, a.constraints)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	out, err := a.encoder.Start(runCtx, st)
	if err != nil {
		cancel()
		st.Close()
		return err
	}

	a.mu.Lock()
	if a.stopped || a.stream != nil {
		a.mu.Unlock()
		cancel()
		out.Close()
		st.Close()
		return context.Canceled
	}
	a.stream, a.output, a.cancel = st, out, cancel
	a.mu.Unlock()

	a.log.Info().
		Int("deviceRate", st.SampleRate()).
		Dur("chunkInterval", a.interval).
		Msg("Container capture started")

	a.wg.Add(2)
	go a.collect(out)
	go a.flushLoop(runCtx, sink)
	return nil
}

func (a *Adapter) collect(r io.Reader) {
	defer a.wg.Done()

	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			a.mu.Lock()
			a.buf = append(a.buf, chunk[:n]...)
			a.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				a.log.Debug().Err(err).Msg("Encoder output ended")
			}
			return
		}
	}
}

func (a *Adapter) flushLoop(ctx context.Context, sink capture.FrameSink) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			chunk := a.buf
			a.buf = nil
			a.mu.Unlock()
			if len(chunk) > 0 {
				sink(chunk)
			}
		}
	}
}

// Stop implements capture.Adapter. Bytes still buffered are discarded.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	st, out, cancel := a.stream, a.output, a.cancel
	a.mu.Unlock()

	if st == nil {
		return nil
	}
	cancel()
	st.Close()
	out.Close()
	a.wg.Wait()

	a.mu.Lock()
	a.buf = nil
	a.mu.Unlock()
	a.log.Info().Msg("Container capture stopped")
	return nil
}
