package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"caption-stream-client/internal/app"
	"caption-stream-client/internal/config"
)

func main() {
	var o config.Overrides
	flag.StringVar(&o.EnvFile, "env", "", "Path to .env file (default .env)")
	flag.StringVar(&o.ServerURL, "server", "", "Session service base URL")
	flag.StringVar(&o.Room, "room", "", "Room to join")
	flag.StringVar(&o.Role, "role", "", "Participant role: host or viewer")
	flag.StringVar(&o.Provider, "provider", "", "Transcription provider: azure, deepgram or mock")
	flag.StringVar(&o.Token, "token", "", "Session token")
	flag.StringVar(&o.LogLevel, "log-level", "", "Log level")
	flag.StringVar(&o.WAVFile, "wav", "", "Capture from a WAV file instead of the microphone")
	noCapture := flag.Bool("no-capture", false, "Join as host without starting capture")
	partials := flag.Bool("partials", false, "Print partial transcripts")
	flag.Parse()

	cfg, err := config.Load(o)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	a := app.New(cfg, app.WithSink(app.NewPrinter(os.Stdout, *partials)))
	if err := a.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start caption client")
	}

	if cfg.Session.Role == "host" && !*noCapture {
		if err := a.Facade.StartCapture(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to start capture")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}
