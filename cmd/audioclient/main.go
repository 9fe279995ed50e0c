package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"caption-stream-client/internal/app"
	"caption-stream-client/internal/config"
	"caption-stream-client/internal/service/capture/device"
)

// Extra time to wait for final transcripts after the file has played.
const drainTime = 3 * time.Second

func main() {
	audioFile := flag.String("audio", "", "Path to WAV file (16-bit PCM)")
	serverURL := flag.String("server", "", "Session service base URL")
	room := flag.String("room", "audio-"+time.Now().Format("150405"), "Room to join")
	provider := flag.String("provider", "azure", "Transcription provider")
	token := flag.String("token", "", "Session token")
	flag.Parse()

	if *audioFile == "" {
		log.Fatal().Msg("-audio is required")
	}
	duration, err := playTime(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to read audio file")
	}

	cfg, err := config.Load(config.Overrides{
		ServerURL: *serverURL,
		Room:      *room,
		Role:      "host",
		Provider:  *provider,
		Token:     *token,
		WAVFile:   *audioFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Control.Enabled = false
	cfg.Observability.MetricsAddr = ""

	a := app.New(cfg, app.WithSink(app.NewPrinter(os.Stdout, false)))
	if err := a.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start caption client")
	}
	if err := a.Facade.StartCapture(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start capture")
	}

	a.Logger.Info().
		Str("file", *audioFile).
		Str("room", *room).
		Dur("duration", duration).
		Msg("Streaming audio")
	time.Sleep(duration + drainTime)

	snap, err := a.Facade.Snapshot()
	if err == nil {
		a.Logger.Info().
			Int("segments", len(snap.Segments)).
			Str("state", snap.State).
			Str("error", snap.Error).
			Msg("Finished streaming")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}

// playTime returns how long the file takes to play in real time.
func playTime(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	format, err := device.ReadWAVHeader(f)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	bytesPerSecond := int64(format.SampleRate * format.Channels * format.BitsPerSample / 8)
	data := info.Size() - 44
	return time.Duration(data * int64(time.Second) / bytesPerSecond), nil
}
