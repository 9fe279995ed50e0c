package transcription

import (
	"errors"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/observability/metrics"
	"caption-stream-client/internal/service/capture"
	"caption-stream-client/internal/service/eventloop"
	"caption-stream-client/internal/service/registry"
	"caption-stream-client/internal/service/stream"
	"caption-stream-client/internal/service/transcript"
	"caption-stream-client/internal/transport"
)

var (
	// ErrNotHost is returned for capture calls by a non-host participant.
	ErrNotHost = errors.New("only the host can capture")
	// ErrClosed is returned once the event loop has stopped.
	ErrClosed = errors.New("transcription closed")
)

// Config wires a Facade.
type Config struct {
	Loop   *eventloop.Loop
	Dialer transport.Dialer
	// Adapters returns the capture adapter factory of a provider.
	Adapters func(Provider) capture.Factory
	// Sinks returns the transcript listeners of a provider's reconciler.
	Sinks func(Provider) []transcript.Sink
	// OnSession is called on the loop after the session changes.
	OnSession func(Session)

	Provider Provider
	Session  Session

	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Snapshot is a consistent view of the active selection.
type Snapshot struct {
	Provider  ProviderInfo         `json:"provider"`
	Room      string               `json:"room"`
	Role      Role                 `json:"role"`
	State     string               `json:"state"`
	Recording bool                 `json:"recording"`
	Error     string               `json:"error,omitempty"`
	Segments  []transcript.Segment `json:"segments"`
	Partial   *transcript.Partial  `json:"partial,omitempty"`
	Speakers  []registry.Speaker   `json:"speakers"`
	Offset    float64              `json:"calibrationOffset"`
}

// Facade owns one controller per provider, created on first use, and one
// registry shared by all of them. Its methods are safe for concurrent use;
// each runs on the event loop.
type Facade struct {
	loop      *eventloop.Loop
	dialer    transport.Dialer
	adapters  func(Provider) capture.Factory
	sinks     func(Provider) []transcript.Sink
	onSession func(Session)
	metrics   *metrics.Metrics
	log       zerolog.Logger

	registry    *registry.Registry
	controllers map[Provider]*stream.Controller
	provider    Provider
	session     Session
}

// New creates a facade. The loop must be running.
func New(cfg Config) *Facade {
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAzure
	}
	return &Facade{
		loop:        cfg.Loop,
		dialer:      cfg.Dialer,
		adapters:    cfg.Adapters,
		sinks:       cfg.Sinks,
		onSession:   cfg.OnSession,
		metrics:     m,
		log:         cfg.Log,
		registry:    registry.New(m, cfg.Log.With().Str("component", "registry").Logger()),
		controllers: make(map[Provider]*stream.Controller),
		provider:    provider,
		session:     cfg.Session,
	}
}

func (f *Facade) do(fn func()) error {
	if !f.loop.Do(fn) {
		return ErrClosed
	}
	return nil
}

// controller returns the controller for p, creating it on first use.
func (f *Facade) controller(p Provider) *stream.Controller {
	if c, ok := f.controllers[p]; ok {
		return c
	}

	log := f.log.With().Str("component", "stream").Logger()
	var opts []transcript.Option
	if f.sinks != nil {
		for _, s := range f.sinks(p) {
			opts = append(opts, transcript.WithSink(s))
		}
	}
	var factory capture.Factory
	if f.adapters != nil {
		factory = f.adapters(p)
	}

	c := stream.New(stream.Config{
		Provider:   string(p),
		URL:        f.session.URL(p),
		NewAdapter: factory,
		Loop:       f.loop,
		Dialer:     f.dialer,
		Reconciler: transcript.New(f.metrics, log, opts...),
		Registry:   f.registry,
		Metrics:    f.metrics,
		Log:        log,
	})
	f.controllers[p] = c
	return c
}

func (f *Facade) active() *stream.Controller {
	return f.controller(f.provider)
}

// SetProvider switches the active provider. The previous provider's
// session is stopped and its transcript discarded.
func (f *Facade) SetProvider(p Provider) error {
	return f.do(func() {
		if p == f.provider {
			return
		}
		f.log.Info().Str("from", string(f.provider)).Str("to", string(p)).Msg("Switching provider")
		f.discard()
		f.provider = p
		f.active().Reconciler().Reset()
		f.autoConnect()
	})
}

// SetSession joins another room or role. The current session is stopped
// and its transcript discarded.
func (f *Facade) SetSession(s Session) error {
	return f.do(func() {
		f.discard()
		f.session = s
		for p, c := range f.controllers {
			c.SetURL(s.URL(p))
		}
		f.active().Reconciler().Reset()
		if f.onSession != nil {
			f.onSession(s)
		}
		f.log.Info().Str("room", s.Room).Str("role", string(s.Role)).Msg("Session changed")
		f.autoConnect()
	})
}

func (f *Facade) discard() {
	if c, ok := f.controllers[f.provider]; ok {
		c.StopCapture()
		c.Reconciler().Reset()
	}
}

// autoConnect starts listening for viewers.
func (f *Facade) autoConnect() {
	if f.session.Role != RoleViewer || f.session.URL(f.provider) == "" {
		return
	}
	f.active().ConnectListenOnly()
}

// Session returns the joined session.
func (f *Facade) Session() (Session, error) {
	var s Session
	err := f.do(func() { s = f.session })
	return s, err
}

// StartCapture starts capturing on the active provider.
func (f *Facade) StartCapture() error {
	var err error
	if e := f.do(func() {
		if f.session.Role != RoleHost {
			err = ErrNotHost
			return
		}
		f.active().StartCapture()
	}); e != nil {
		return e
	}
	return err
}

// StopCapture stops capturing on the active provider.
func (f *Facade) StopCapture() error {
	var err error
	if e := f.do(func() {
		if f.session.Role != RoleHost {
			err = ErrNotHost
			return
		}
		f.active().StopCapture()
	}); e != nil {
		return e
	}
	return err
}

// ConnectListenOnly receives the session's events without capturing.
func (f *Facade) ConnectListenOnly() error {
	return f.do(func() { f.active().ConnectListenOnly() })
}

// Disconnect ends the active session in any mode.
func (f *Facade) Disconnect() error {
	return f.do(func() { f.active().StopCapture() })
}

// Snapshot returns the state of the active selection.
func (f *Facade) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := f.do(func() {
		c := f.active()
		s = Snapshot{
			Provider:  f.provider.Info(),
			Room:      f.session.Room,
			Role:      f.session.Role,
			State:     c.State().String(),
			Recording: c.Recording(),
			Segments:  c.Reconciler().Segments(),
			Speakers:  f.registry.Visible(),
			Offset:    f.registry.Offset(),
		}
		if e := c.Err(); e != nil {
			s.Error = e.Error()
		}
		if p, ok := c.Reconciler().Partial(); ok {
			s.Partial = &p
		}
	})
	return s, err
}

// UpdateSpeaker names and places a speaker.
func (f *Facade) UpdateSpeaker(id, name string, position float64) error {
	var err error
	if e := f.do(func() { err = f.registry.UpdateSpeaker(id, name, position) }); e != nil {
		return e
	}
	return err
}

// SetHidden hides or shows a speaker.
func (f *Facade) SetHidden(id string, hidden bool) error {
	var err error
	if e := f.do(func() { err = f.registry.SetHidden(id, hidden) }); e != nil {
		return e
	}
	return err
}

// ClaimHost places id at the host seat.
func (f *Facade) ClaimHost(id, name string) error {
	var err error
	if e := f.do(func() { err = f.registry.ClaimHost(id, name) }); e != nil {
		return e
	}
	return err
}

// CalibrateView records where the viewer perceives the host.
func (f *Facade) CalibrateView(observedHostAngle float64) error {
	var err error
	if e := f.do(func() { err = f.registry.CalibrateView(observedHostAngle) }); e != nil {
		return e
	}
	return err
}

// Direction returns the calibrated direction of a speaker.
func (f *Facade) Direction(id string) (float64, bool, error) {
	var (
		dir float64
		ok  bool
	)
	err := f.do(func() { dir, ok = f.registry.Direction(id) })
	return dir, ok, err
}

// Speakers lists the registry, optionally including hidden speakers.
func (f *Facade) Speakers(includeHidden bool) ([]registry.Speaker, error) {
	var out []registry.Speaker
	err := f.do(func() {
		if includeHidden {
			out = f.registry.All()
		} else {
			out = f.registry.Visible()
		}
	})
	return out, err
}

// Registry exposes the shared registry to loop-confined collaborators such
// as sinks. It must only be used on the loop.
func (f *Facade) Registry() *registry.Registry {
	return f.registry
}

// Close stops every session. The loop itself is left to its owner.
func (f *Facade) Close() error {
	return f.do(func() {
		for _, c := range f.controllers {
			c.StopCapture()
		}
	})
}
