package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// MalgoSource captures from the system's default input through miniaudio.
// Only one stream may be open at a time.
type MalgoSource struct {
	SampleRate int
	Log        zerolog.Logger

	mu   sync.Mutex
	busy bool
}

// NewMalgoSource returns a source capturing at sampleRate (0 means 48 kHz).
func NewMalgoSource(sampleRate int, log zerolog.Logger) *MalgoSource {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &MalgoSource{SampleRate: sampleRate, Log: log}
}

// Open implements Source.
func (s *MalgoSource) Open(ctx context.Context, c Constraints) (Stream, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	s.busy = true
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}

	// miniaudio exposes raw capture only; the platform's voice processing
	// applies if the OS enables it for the default input.
	if c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl {
		s.Log.Debug().
			Bool("echoCancellation", c.EchoCancellation).
			Bool("noiseSuppression", c.NoiseSuppression).
			Bool("autoGainControl", c.AutoGainControl).
			Msg("voice processing constraints left to the OS input pipeline")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceDenied, err)
	}

	st := &malgoStream{
		ctx:     mctx,
		rate:    s.SampleRate,
		samples: make(chan []float32, 64),
		done:    make(chan struct{}),
		release: release,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(s.SampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			block := make([]float32, frames)
			for i := range block {
				block[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
			}
			select {
			case st.samples <- block:
			default:
				// Reader is behind; drop rather than stall the audio thread.
			}
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		release()
		return nil, fmt.Errorf("%w: init capture device: %v", ErrDeviceDenied, err)
	}
	st.dev = dev

	if err := ctx.Err(); err != nil {
		st.Close()
		return nil, err
	}
	if err := dev.Start(); err != nil {
		st.Close()
		return nil, fmt.Errorf("%w: start capture device: %v", ErrDeviceBusy, err)
	}
	return st, nil
}

type malgoStream struct {
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device
	rate    int
	samples chan []float32
	pending []float32
	done    chan struct{}
	release func()

	closeOnce sync.Once
}

func (s *malgoStream) SampleRate() int { return s.rate }

func (s *malgoStream) Read(buf []float32) (int, error) {
	n := 0
	for n < len(buf) {
		if len(s.pending) == 0 {
			select {
			case block := <-s.samples:
				s.pending = block
			case <-s.done:
				return n, ErrStreamClosed
			}
		}
		c := copy(buf[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

func (s *malgoStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.dev != nil {
			s.dev.Uninit()
		}
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.release()
	})
	return nil
}
