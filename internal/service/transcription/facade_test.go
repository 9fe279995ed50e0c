package transcription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"caption-stream-client/internal/observability/metrics"
	"caption-stream-client/internal/service/capture"
	"caption-stream-client/internal/service/eventloop"
	"caption-stream-client/internal/service/transcript"
	"caption-stream-client/internal/transport"
)

type fakeConn struct {
	mu      sync.Mutex
	url     string
	closed  bool
	json    []any
	onEvent func(transport.Event)
}

func (c *fakeConn) SendBinary([]byte) error { return nil }

func (c *fakeConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.json = append(c.json, v)
	return nil
}

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, url string, onEvent func(transport.Event)) (transport.Conn, error) {
	c := &fakeConn{url: url, onEvent: onEvent}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type nopAdapter struct{}

func (nopAdapter) Name() string                                  { return "nop" }
func (nopAdapter) Start(context.Context, capture.FrameSink) error { return nil }
func (nopAdapter) Stop() error                                   { return nil }

type segmentCounter struct {
	mu sync.Mutex
	n  map[Provider]int
}

func newTestFacade(t *testing.T, session Session) (*Facade, *fakeDialer, *segmentCounter) {
	t.Helper()
	loop := eventloop.New(64)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	d := &fakeDialer{}
	counter := &segmentCounter{n: map[Provider]int{}}
	f := New(Config{
		Loop:     loop,
		Dialer:   d,
		Adapters: func(Provider) capture.Factory { return func() capture.Adapter { return nopAdapter{} } },
		Sinks: func(p Provider) []transcript.Sink {
			return []transcript.Sink{sinkFunc(func() {
				counter.mu.Lock()
				counter.n[p]++
				counter.mu.Unlock()
			})}
		},
		Provider: ProviderMock,
		Session:  session,
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		Log:      zerolog.Nop(),
	})
	return f, d, counter
}

type sinkFunc func()

func (s sinkFunc) OnPartial(transcript.Partial) {}
func (s sinkFunc) OnSegment(transcript.Segment) { s() }

func waitFor(t *testing.T, f *Facade, state string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := f.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if s.State == state {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected state %s, got %s", state, s.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hostSession() Session {
	return Session{BaseURL: "ws://test", Room: "r1", Role: RoleHost, Token: "t"}
}

func TestFacade_ViewerCannotCapture(t *testing.T) {
	f, _, _ := newTestFacade(t, Session{BaseURL: "ws://test", Room: "r1", Role: RoleViewer})

	if err := f.StartCapture(); !errors.Is(err, ErrNotHost) {
		t.Errorf("expected ErrNotHost, got %v", err)
	}
	if err := f.StopCapture(); !errors.Is(err, ErrNotHost) {
		t.Errorf("expected ErrNotHost, got %v", err)
	}
}

func TestFacade_HostCaptureAndTranscript(t *testing.T) {
	f, d, counter := newTestFacade(t, hostSession())

	if err := f.StartCapture(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f, "ACTIVE")

	conn := d.last()
	if conn.url != "ws://test/ws/connect?room=r1&role=host&provider=mock&token=t" {
		t.Errorf("unexpected url %q", conn.url)
	}

	conn.onEvent(transport.Event{Kind: transport.EventMessage, Data: []byte(`{"text":"Hallo","is_partial":false,"speaker":"Guest-1"}`)})

	deadline := time.Now().Add(2 * time.Second)
	var s Snapshot
	for time.Now().Before(deadline) {
		s, _ = f.Snapshot()
		if len(s.Segments) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(s.Segments) != 1 || s.Segments[0].Text != "Hallo" {
		t.Fatalf("expected one segment, got %+v", s.Segments)
	}
	if !s.Recording || s.Provider.Label != "Simulated Stream" {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	counter.mu.Lock()
	if counter.n[ProviderMock] != 1 {
		t.Errorf("expected sink notified once, got %d", counter.n[ProviderMock])
	}
	counter.mu.Unlock()

	if err := f.StopCapture(); err != nil {
		t.Fatal(err)
	}
	s = waitFor(t, f, "IDLE")
	if len(s.Segments) != 1 {
		t.Error("expected transcript kept after stop")
	}
}

func TestFacade_ProviderSwitchDiscardsTranscript(t *testing.T) {
	f, d, _ := newTestFacade(t, hostSession())

	_ = f.StartCapture()
	waitFor(t, f, "ACTIVE")
	first := d.last()
	first.onEvent(transport.Event{Kind: transport.EventMessage, Data: []byte(`{"text":"eins"}`)})

	if err := f.SetProvider(ProviderAzure); err != nil {
		t.Fatal(err)
	}
	if !first.isClosed() {
		t.Error("expected previous connection closed")
	}
	s, _ := f.Snapshot()
	if s.Provider.ID != ProviderAzure || s.State != "IDLE" {
		t.Errorf("unexpected snapshot after switch: %+v", s)
	}

	if err := f.SetProvider(ProviderMock); err != nil {
		t.Fatal(err)
	}
	s, _ = f.Snapshot()
	if len(s.Segments) != 0 {
		t.Errorf("expected transcript discarded, got %+v", s.Segments)
	}
}

func TestFacade_ViewerAutoConnects(t *testing.T) {
	f, d, _ := newTestFacade(t, Session{})

	if err := f.SetSession(Session{BaseURL: "ws://test", Room: "r2", Role: RoleViewer}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f, "LISTENING")
	if got := d.last().url; got != "ws://test/ws/connect?room=r2&role=viewer&provider=mock&token=" {
		t.Errorf("unexpected url %q", got)
	}

	if err := f.SetProvider(ProviderDeepgram); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f, "LISTENING")
	if got := d.last().url; got != "ws://test/ws/connect?room=r2&role=viewer&provider=deepgram&token=" {
		t.Errorf("unexpected url after switch %q", got)
	}

	if err := f.Disconnect(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f, "IDLE")
}

func TestFacade_SpeakerOperations(t *testing.T) {
	f, _, _ := newTestFacade(t, hostSession())

	if err := f.ClaimHost("Guest-1", "Anna"); err != nil {
		t.Fatal(err)
	}
	if err := f.UpdateSpeaker("Guest-2", "Ben", 90); err != nil {
		t.Fatal(err)
	}
	if err := f.CalibrateView(90); err != nil {
		t.Fatal(err)
	}

	dir, ok, err := f.Direction("Guest-1")
	if err != nil || !ok || dir != 90 {
		t.Errorf("expected calibrated host direction 90, got %v ok=%v err=%v", dir, ok, err)
	}

	if err := f.SetHidden("Guest-2", true); err != nil {
		t.Fatal(err)
	}
	visible, _ := f.Speakers(false)
	all, _ := f.Speakers(true)
	if len(visible) != 1 || len(all) != 2 {
		t.Errorf("expected 1 visible of 2, got %d of %d", len(visible), len(all))
	}
}

func TestFacade_ClosedLoop(t *testing.T) {
	loop := eventloop.New(1)
	loop.Close()
	f := New(Config{Loop: loop, Dialer: &fakeDialer{}, Log: zerolog.Nop(), Metrics: metrics.NewMetrics(prometheus.NewRegistry())})

	if _, err := f.Snapshot(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
