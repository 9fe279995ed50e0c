// Package app assembles the captioning client from its configuration.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/config"
	"caption-stream-client/internal/events"
	controlapi "caption-stream-client/internal/http"
	"caption-stream-client/internal/indicator"
	"caption-stream-client/internal/observability"
	"caption-stream-client/internal/observability/logging"
	"caption-stream-client/internal/observability/metrics"
	"caption-stream-client/internal/service/capture"
	"caption-stream-client/internal/service/capture/container"
	"caption-stream-client/internal/service/capture/device"
	"caption-stream-client/internal/service/capture/pcm"
	"caption-stream-client/internal/service/capture/synthetic"
	"caption-stream-client/internal/service/eventloop"
	"caption-stream-client/internal/service/transcript"
	"caption-stream-client/internal/service/transcription"
	"caption-stream-client/internal/transport"
	"caption-stream-client/internal/transport/ws"
)

// Application holds process-wide state for the client.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Facade      *transcription.Facade

	loop      *eventloop.Loop
	source    device.Source
	dialer    transport.Dialer
	metrics   *metrics.Metrics
	publisher *events.Publisher
	mqtt      *indicator.Client
	indicator *indicator.Indicator
	exporters []*events.Exporter
	room      string // current room, loop-confined after Start
	extra     []transcript.Sink

	metricsServer *observability.Server
	controlServer *http.Server
	cancel        context.CancelFunc
}

// Option customizes an Application.
type Option func(*Application)

// WithSource replaces the capture device.
func WithSource(s device.Source) Option {
	return func(a *Application) { a.source = s }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(a *Application) { a.dialer = d }
}

// WithSink adds a transcript listener to every provider.
func WithSink(s transcript.Sink) Option {
	return func(a *Application) { a.extra = append(a.extra, s) }
}

// WithMetrics replaces the default metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Application) { a.metrics = m }
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration, opts ...Option) *Application {
	a := &Application{
		Cfg:     cfg,
		room:    cfg.Session.Room,
		metrics: metrics.DefaultMetrics,
		loop:    eventloop.New(1024),
	}
	a.setupLogger()
	for _, opt := range opts {
		opt(a)
	}

	if a.source == nil {
		if cfg.Capture.WAVFile != "" {
			a.source = device.NewWAVSource(cfg.Capture.WAVFile)
		} else {
			a.source = device.NewMalgoSource(cfg.Capture.DeviceSampleRate, logging.WithComponent("device"))
		}
	}
	if a.dialer == nil {
		a.dialer = ws.NewDialer(logging.WithComponent("transport"))
	}

	a.publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	}, a.metrics)

	a.Facade = transcription.New(transcription.Config{
		Loop:      a.loop,
		Dialer:    a.dialer,
		Adapters:  a.adapterFactory,
		Sinks:     a.sinksFor,
		OnSession: a.onSession,
		Provider:  transcription.ParseProvider(cfg.Session.Provider),
		Metrics:   a.metrics,
		Log:       logging.WithSession(cfg.Session.Room, cfg.Session.Role, cfg.Session.Provider),
	})

	if cfg.Indicator.Enabled {
		a.connectIndicator()
	}

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Caption client application created")
	return a
}

// setupLogger configures zerolog for the client.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})
	a.Logger = logging.WithComponent("application").With().
		Str("client", a.Cfg.Session.ClientName).
		Logger()

	a.Logger.Debug().
		Str("logLevel", a.Cfg.Observability.LogLevel).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

func (a *Application) connectIndicator() {
	c := a.Cfg.Indicator
	client, err := indicator.Connect(indicator.Options{
		BrokerURL: c.BrokerURL,
		ClientID:  c.ClientID,
		Username:  c.Username,
		Password:  c.Password,
		Log:       logging.WithComponent("indicator"),
	})
	if err != nil {
		a.Logger.Warn().Err(err).Str("broker", c.BrokerURL).Msg("Direction indicator disabled: broker unreachable")
		return
	}
	a.mqtt = client
	a.indicator = indicator.New(client, a.Facade.Registry(), c.Topic, logging.WithComponent("indicator"))
}

// adapterFactory maps a provider to its capture adapter.
func (a *Application) adapterFactory(p transcription.Provider) capture.Factory {
	c := a.Cfg.Capture
	constraints := device.Constraints{
		EchoCancellation: c.EchoCancellation,
		NoiseSuppression: c.NoiseSuppression,
		AutoGainControl:  c.AutoGainControl,
		Channels:         1,
	}
	log := logging.WithComponent("capture")

	switch p.Info().Adapter {
	case "container":
		return func() capture.Adapter {
			return container.New(a.source, container.NewFFmpegEncoder(c.FFmpegPath, log), log,
				container.WithChunkInterval(c.ChunkInterval),
				container.WithConstraints(constraints))
		}
	case "synthetic":
		return func() capture.Adapter {
			s := synthetic.New()
			s.FrameSize = c.SyntheticSize
			s.Interval = c.SyntheticInterval
			return s
		}
	default:
		return func() capture.Adapter {
			return pcm.New(a.source, log,
				pcm.WithBlockSize(c.BlockSize),
				pcm.WithTargetRate(c.TargetSampleRate),
				pcm.WithConstraints(constraints))
		}
	}
}

// sinksFor returns the transcript listeners of one provider. It runs on
// the event loop when the provider is first used.
func (a *Application) sinksFor(p transcription.Provider) []transcript.Sink {
	exp := events.NewExporter(a.publisher, string(p), a.room)
	a.exporters = append(a.exporters, exp)

	sinks := []transcript.Sink{exp}
	if a.indicator != nil {
		sinks = append(sinks, a.indicator)
	}
	return append(sinks, a.extra...)
}

func (a *Application) onSession(s transcription.Session) {
	a.room = s.Room
	for _, exp := range a.exporters {
		exp.SetRoom(s.Room)
	}
	if a.indicator != nil {
		a.indicator.Reset()
	}
}

// Start runs the event loop and servers and joins the configured session.
// Viewers start listening immediately.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.loop.Run(ctx)

	if addr := a.Cfg.Observability.MetricsAddr; addr != "" {
		a.metricsServer = observability.NewServer(addr, nil)
		a.metricsServer.Start()
	}
	if a.Cfg.Control.Enabled {
		a.controlServer = &http.Server{
			Addr:              a.Cfg.Control.Addr,
			Handler:           controlapi.NewRouter(a.Facade),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			startLogger.Info().Str("addr", a.Cfg.Control.Addr).Msg("Starting control API")
			if err := a.controlServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				startLogger.Error().Err(err).Msg("Control API server error")
			}
		}()
	}

	role, err := transcription.ParseRole(a.Cfg.Session.Role)
	if err != nil {
		return err
	}
	if err := a.Facade.SetSession(transcription.Session{
		BaseURL: a.Cfg.Session.ServerURL,
		Room:    a.Cfg.Session.Room,
		Role:    role,
		Token:   a.Cfg.Session.Token,
	}); err != nil {
		return err
	}

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("room", a.Cfg.Session.Room).
		Str("role", a.Cfg.Session.Role).
		Str("provider", a.Cfg.Session.Provider).
		Msg("Caption client started")
	return nil
}

// Shutdown stops every session and releases external connections.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Caption client shutting down")

	// Sessions only exist once the loop runs.
	if a.cancel != nil {
		if err := a.Facade.Close(); err != nil && !errors.Is(err, transcription.ErrClosed) {
			shutdownLogger.Warn().Err(err).Msg("Failed to stop sessions")
		}
		a.cancel()
	}
	a.loop.Close()

	if a.controlServer != nil {
		if err := a.controlServer.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Control API shutdown failed")
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if err := a.publisher.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Publisher close failed")
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
}
