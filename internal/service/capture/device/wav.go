package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// ErrBadWAV is returned for files that are not 16-bit PCM WAV.
var ErrBadWAV = errors.New("not a 16-bit PCM WAV file")

// WAVFormat describes the PCM data of a WAV file.
type WAVFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// ReadWAVHeader parses a canonical 44-byte PCM WAV header.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVFormat{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVFormat{}, ErrBadWAV
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	f := WAVFormat{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	if audioFormat != 1 || f.BitsPerSample != 16 || f.Channels < 1 || f.SampleRate <= 0 {
		return WAVFormat{}, ErrBadWAV
	}
	return f, nil
}

// WAVSource plays a WAV file as if it were a live microphone. Samples are
// released at real-time pace and multi-channel input is mixed down to mono.
type WAVSource struct {
	Path string
	// Pace controls real-time pacing; false delivers as fast as Read is called.
	Pace bool
}

// NewWAVSource returns a paced source for path.
func NewWAVSource(path string) *WAVSource {
	return &WAVSource{Path: path, Pace: true}
}

// Open implements Source. A missing or unreadable file is reported as
// ErrDeviceDenied.
func (s *WAVSource) Open(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}
	format, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}
	return newPCMStream(f, format, s.Pace), nil
}

type pcmStream struct {
	r      io.ReadCloser
	format WAVFormat
	pace   bool
	start  time.Time
	served int64

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newPCMStream(r io.ReadCloser, format WAVFormat, pace bool) *pcmStream {
	return &pcmStream{r: r, format: format, pace: pace, done: make(chan struct{})}
}

func (s *pcmStream) SampleRate() int { return s.format.SampleRate }

func (s *pcmStream) Read(buf []float32) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrStreamClosed
	}
	s.mu.Unlock()

	frameBytes := 2 * s.format.Channels
	raw := make([]byte, len(buf)*frameBytes)
	n, err := io.ReadFull(s.r, raw)
	frames := n / frameBytes
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < s.format.Channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(raw[i*frameBytes+ch*2:]))
			sum += float32(v) / 32768
		}
		buf[i] = sum / float32(s.format.Channels)
	}

	if s.pace && frames > 0 {
		if s.start.IsZero() {
			s.start = time.Now()
		}
		s.served += int64(frames)
		due := s.start.Add(time.Duration(s.served) * time.Second / time.Duration(s.format.SampleRate))
		select {
		case <-time.After(time.Until(due)):
		case <-s.done:
			return frames, ErrStreamClosed
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return frames, err
}

func (s *pcmStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return s.r.Close()
}
