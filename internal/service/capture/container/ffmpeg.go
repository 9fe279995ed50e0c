package container

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/service/capture/device"
)

// Encoder turns a live sample stream into a compressed container stream.
type Encoder interface {
	// Start begins encoding st. Reading the returned stream yields container
	// bytes; closing it stops the encoder.
	Start(ctx context.Context, st device.Stream) (io.ReadCloser, error)
}

// FFmpegEncoder pipes f32le PCM into ffmpeg and reads WebM/Opus from stdout.
type FFmpegEncoder struct {
	Path    string
	Bitrate string
	Log     zerolog.Logger
}

// NewFFmpegEncoder returns an encoder using the ffmpeg binary at path
// ("ffmpeg" from PATH when empty).
func NewFFmpegEncoder(path string, log zerolog.Logger) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEncoder{Path: path, Bitrate: "32k", Log: log}
}

// Start implements Encoder.
func (e *FFmpegEncoder) Start(ctx context.Context, st device.Stream) (io.ReadCloser, error) {
	// ffmpeg -f f32le -ar <rate> -ac 1 -i pipe:0 -c:a libopus -f webm pipe:1
	cmd := exec.CommandContext(ctx, e.Path,
		"-hide_banner", "-loglevel", "error",
		"-f", "f32le", "-ar", strconv.Itoa(st.SampleRate()), "-ac", "1",
		"-i", "pipe:0",
		"-c:a", "libopus", "-b:a", e.Bitrate,
		"-f", "webm", "pipe:1",
	)
	cmd.Stderr = e.Log

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	go feed(stdin, st)

	return &ffmpegOutput{ReadCloser: stdout, cmd: cmd, stdin: stdin}, nil
}

// feed copies samples from st into w until either side fails.
func feed(w io.WriteCloser, st device.Stream) {
	defer w.Close()

	block := make([]float32, 1024)
	raw := make([]byte, len(block)*4)
	for {
		n, err := st.Read(block)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(block[i]))
		}
		if n > 0 {
			if _, werr := w.Write(raw[:n*4]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

type ffmpegOutput struct {
	io.ReadCloser
	cmd   *exec.Cmd
	stdin io.Closer

	once sync.Once
}

func (o *ffmpegOutput) Close() error {
	o.once.Do(func() {
		_ = o.stdin.Close()
		if o.cmd.Process != nil {
			_ = o.cmd.Process.Kill()
		}
		// Wait closes stdout.
		_ = o.cmd.Wait()
	})
	return nil
}
