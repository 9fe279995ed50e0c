package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/models"
	"caption-stream-client/internal/observability"
	"caption-stream-client/internal/observability/metrics"
	"caption-stream-client/internal/service/capture"
	"caption-stream-client/internal/service/eventloop"
	"caption-stream-client/internal/service/registry"
	"caption-stream-client/internal/service/transcript"
	"caption-stream-client/internal/transport"
)

// Config wires a controller to its collaborators.
type Config struct {
	Provider string
	// URL is the session endpoint; empty means there is no session.
	URL string
	// NewAdapter creates the capture adapter for each capture session.
	NewAdapter capture.Factory

	Loop       *eventloop.Loop
	Dialer     transport.Dialer
	Reconciler *transcript.Reconciler
	Registry   *registry.Registry
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

// Controller owns at most one connection and one capture adapter.
//
// Every method, and every callback it schedules, runs on the event loop.
// Work that can block (dialing, device acquisition) runs on its own
// goroutine and reports back through the loop tagged with the session
// generation; a result whose generation is no longer current belongs to a
// session that was stopped meanwhile and is released instead of adopted.
type Controller struct {
	provider   string
	url        string
	newAdapter capture.Factory

	loop       *eventloop.Loop
	dialer     transport.Dialer
	reconciler *transcript.Reconciler
	registry   *registry.Registry
	metrics    *metrics.Metrics
	tracker    *observability.SessionTracker
	log        zerolog.Logger

	state   State
	mode    Mode
	err     *Error
	gen     uint64
	conn    transport.Conn
	adapter capture.Adapter
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an idle controller.
func New(cfg Config) *Controller {
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	log := cfg.Log.With().Str("provider", cfg.Provider).Logger()
	return &Controller{
		provider:   cfg.Provider,
		url:        cfg.URL,
		newAdapter: cfg.NewAdapter,
		loop:       cfg.Loop,
		dialer:     cfg.Dialer,
		reconciler: cfg.Reconciler,
		registry:   cfg.Registry,
		metrics:    m,
		tracker:    observability.NewSessionTracker(m, log, cfg.Provider),
		log:        log,
	}
}

// Provider returns the provider this controller streams to.
func (c *Controller) Provider() string { return c.provider }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Mode returns the mode of the current or last session.
func (c *Controller) Mode() Mode { return c.mode }

// Err returns the latest failure, or nil.
func (c *Controller) Err() *Error { return c.err }

// Recording reports whether a session is live, capturing or listening.
func (c *Controller) Recording() bool {
	return c.state == StateActive || c.state == StateListening
}

// Reconciler returns the transcript this controller feeds.
func (c *Controller) Reconciler() *transcript.Reconciler { return c.reconciler }

// SetURL changes the session endpoint for the next start.
func (c *Controller) SetURL(url string) { c.url = url }

// StartCapture connects and, once connected, starts capture. A running
// session is stopped first.
func (c *Controller) StartCapture() {
	if c.state != StateIdle {
		c.StopCapture()
	}
	if c.newAdapter == nil {
		c.err = &Error{Kind: KindDeviceDenied, Err: errors.New("provider has no capture adapter")}
		return
	}
	c.connect(ModeCapture)
}

// ConnectListenOnly connects without capture. It does nothing unless the
// controller is idle.
func (c *Controller) ConnectListenOnly() {
	if c.state != StateIdle {
		return
	}
	c.connect(ModeListen)
}

// StopCapture ends the session and clears the error slot. It is safe to
// call in any state, any number of times.
func (c *Controller) StopCapture() {
	c.err = nil
	if c.state == StateIdle {
		c.reconciler.ClearPartial()
		return
	}
	c.log.Info().Str("state", c.state.String()).Msg("Stopping session")
	c.teardown("")
}

// SendControl sends a control message on the open connection.
func (c *Controller) SendControl(v any) error {
	if c.conn == nil {
		return transport.ErrNotReady
	}
	return c.conn.SendJSON(v)
}

func (c *Controller) connect(mode Mode) {
	if c.url == "" {
		c.err = &Error{Kind: KindNoSession, Err: ErrNoSessionURL}
		c.log.Warn().Msg("Start ignored: no session")
		return
	}

	c.err = nil
	c.mode = mode
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.reconciler.ResetSession()
	c.transition(StateConnecting)

	c.log.Info().Str("mode", mode.String()).Msg("Connecting")

	url := c.url
	go func() {
		conn, err := c.dialer.Dial(ctx, url, func(ev transport.Event) {
			c.loop.Post(func() { c.onEvent(gen, ev) })
		})
		if !c.loop.Post(func() { c.onDialed(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (c *Controller) onDialed(gen uint64, conn transport.Conn, err error) {
	if gen != c.gen || c.state != StateConnecting {
		if conn != nil {
			c.log.Debug().Msg("Releasing connection of a stopped session")
			conn.Close()
		}
		return
	}
	if err != nil {
		c.fail(KindConnectFailed, err)
		return
	}

	c.conn = conn
	c.tracker.Start(c.mode.String())
	c.registry.OnConnected(c)

	if c.mode == ModeListen {
		c.transition(StateListening)
		c.log.Info().Msg("Listening")
		return
	}

	c.transition(StateCaptureInit)
	adapter := c.newAdapter()
	c.adapter = adapter
	ctx := c.ctx
	sink := func(frame []byte) {
		if !c.loop.TryPost(func() { c.sendFrame(gen, frame) }) {
			c.metrics.RecordFrame(c.provider, len(frame), false)
		}
	}
	go func() {
		err := adapter.Start(ctx, sink)
		if !c.loop.Post(func() { c.onCaptureStarted(gen, adapter, err) }) {
			adapter.Stop()
		}
	}()
}

func (c *Controller) onCaptureStarted(gen uint64, adapter capture.Adapter, err error) {
	if gen != c.gen || c.state != StateCaptureInit {
		adapter.Stop()
		return
	}
	if err != nil {
		c.fail(KindDeviceDenied, err)
		return
	}
	c.transition(StateActive)
	c.log.Info().Str("adapter", adapter.Name()).Msg("Capture active")
}

func (c *Controller) sendFrame(gen uint64, frame []byte) {
	if gen != c.gen || c.conn == nil || !c.conn.Ready() {
		c.metrics.RecordFrame(c.provider, len(frame), false)
		return
	}
	err := c.conn.SendBinary(frame)
	c.metrics.RecordFrame(c.provider, len(frame), err == nil)
}

func (c *Controller) onEvent(gen uint64, ev transport.Event) {
	if gen != c.gen || c.state == StateIdle {
		return
	}

	switch ev.Kind {
	case transport.EventMessage:
		if !ev.Binary {
			c.handleMessage(ev.Data)
		}
	case transport.EventError:
		if c.state == StateConnecting {
			c.fail(KindConnectFailed, ev.Err)
			return
		}
		c.fail(KindTransport, ev.Err)
	case transport.EventClose:
		err := fmt.Errorf("closed with code %d", ev.Code)
		if c.state == StateConnecting {
			c.fail(KindConnectFailed, err)
			return
		}
		c.fail(KindUnexpectedClose, err)
	}
}

func (c *Controller) handleMessage(data []byte) {
	in, err := models.DecodeInbound(data)
	if err != nil {
		c.metrics.RecordMalformedEvent()
		c.log.Warn().Err(err).Int("bytes", len(data)).Msg("Dropped malformed message")
		return
	}

	switch in.Kind {
	case models.InboundSpeakers:
		c.registry.Merge(in.Speakers)
	case models.InboundTranscript:
		if in.Transcript.Speaker != "" {
			c.registry.Observe(in.Transcript.Speaker)
		}
		c.reconciler.Apply(in.Transcript)
	}
}

func (c *Controller) fail(kind Kind, err error) {
	c.err = &Error{Kind: kind, Err: err}
	c.log.Error().Err(err).Str("kind", kind.String()).Str("state", c.state.String()).Msg("Session failed")
	c.teardown(kind.String())
}

// teardown releases everything the session holds and returns to idle.
// Bumping the generation marks the stop as intended, so the close event
// it causes is ignored.
func (c *Controller) teardown(failureKind string) {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.ctx, c.cancel = nil, nil
	}
	if c.adapter != nil {
		if err := c.adapter.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("Capture stop failed")
		}
		c.adapter = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.reconciler.ClearPartial()
	c.reconciler.ResetSession()
	c.registry.OnDisconnected()
	c.tracker.End(failureKind)
	c.transition(StateIdle)
}

func (c *Controller) transition(to State) {
	from := c.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		c.log.Error().Err(ErrInvalidTransition).Str("from", from.String()).Str("to", to.String()).Msg("Refused state change")
		return
	}
	c.state = to
	c.tracker.Transition(from.String(), to.String())
}
