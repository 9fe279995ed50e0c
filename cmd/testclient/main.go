package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"caption-stream-client/internal/app"
	"caption-stream-client/internal/config"
)

// A smoke test against a running session service using the simulated
// provider: it hosts a room, streams noise and prints what comes back.
func main() {
	serverURL := flag.String("server", "", "Session service base URL")
	room := flag.String("room", "smoke-"+time.Now().Format("150405"), "Room to join")
	duration := flag.Duration("duration", 10*time.Second, "How long to stream")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		ServerURL: *serverURL,
		Room:      *room,
		Role:      "host",
		Provider:  "mock",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Control.Enabled = false
	cfg.Observability.MetricsAddr = ""

	a := app.New(cfg, app.WithSink(app.NewPrinter(os.Stdout, true)))
	if err := a.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start caption client")
	}
	if err := a.Facade.StartCapture(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start capture")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(*duration)
	seen := 0

loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-ticker.C:
			speakers, err := a.Facade.Speakers(true)
			if err != nil {
				break loop
			}
			if len(speakers) != seen {
				seen = len(speakers)
				for _, s := range speakers {
					log.Info().
						Str("id", s.ID).
						Str("name", s.Name).
						Float64("position", s.Position).
						Bool("hidden", s.Hidden).
						Msg("Speaker")
				}
			}
		}
	}

	if err := a.Facade.StopCapture(); err != nil {
		log.Error().Err(err).Msg("Failed to stop capture")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}
