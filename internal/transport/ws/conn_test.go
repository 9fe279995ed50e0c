package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"caption-stream-client/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// recorder collects connection events.
type recorder struct {
	mu     sync.Mutex
	events []transport.Event
	closed chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan struct{})}
}

func (r *recorder) onEvent(ev transport.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Kind == transport.EventClose {
		r.once.Do(func() { close(r.closed) })
	}
}

func (r *recorder) snapshot() []transport.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.Event(nil), r.events...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConn_ExchangesFrames(t *testing.T) {
	received := make(chan []byte, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"text":"Hallo","is_partial":true}`))
		for i := 0; i < 2; i++ {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
		// Hold the connection until the client goes away.
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	rec := newRecorder()
	conn, err := NewDialer(zerolog.Nop()).Dial(context.Background(), wsURL(srv), rec.onEvent)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if !conn.Ready() {
		t.Fatal("expected connection to be ready")
	}
	if err := conn.SendBinary([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendBinary failed: %v", err)
	}
	if err := conn.SendJSON(map[string]string{"type": "get_speakers"}); err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}

	for i, want := range []string{"\x01\x02\x03", `{"type":"get_speakers"}`} {
		select {
		case got := <-received:
			if string(got) != want {
				t.Errorf("frame %d: expected %q, got %q", i, want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not received", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := rec.snapshot(); len(evs) > 0 {
			if evs[0].Kind != transport.EventMessage || string(evs[0].Data) != `{"text":"Hallo","is_partial":true}` {
				t.Errorf("unexpected first event: %+v", evs[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no inbound message event")
}

func TestConn_ServerCloseEmitsClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"))
		_ = c.Close()
	}))
	defer srv.Close()

	rec := newRecorder()
	conn, err := NewDialer(zerolog.Nop()).Dial(context.Background(), wsURL(srv), rec.onEvent)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected close event")
	}

	evs := rec.snapshot()
	last := evs[len(evs)-1]
	if last.Code != websocket.CloseGoingAway {
		t.Errorf("expected close code %d, got %d", websocket.CloseGoingAway, last.Code)
	}
	if conn.Ready() {
		t.Error("expected connection not ready after close")
	}
	if err := conn.SendBinary([]byte{1}); !errors.Is(err, transport.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestConn_LocalCloseIsQuiet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	conn, err := NewDialer(zerolog.Nop()).Dial(context.Background(), wsURL(srv), rec.onEvent)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	_ = conn.Close()
	_ = conn.Close()

	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected close event")
	}
	for _, ev := range rec.snapshot() {
		if ev.Kind == transport.EventError {
			t.Errorf("unexpected error event after local close: %v", ev.Err)
		}
	}
}

func TestDialer_FailsOnBadEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewDialer(zerolog.Nop()).Dial(context.Background(), wsURL(srv), func(transport.Event) {})
	if err == nil {
		t.Fatal("expected dial error against a non-websocket endpoint")
	}
}

func TestDialer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDialer(zerolog.Nop()).Dial(ctx, "ws://127.0.0.1:1/ws", func(transport.Event) {})
	if err == nil {
		t.Fatal("expected dial to fail with a cancelled context")
	}
}
