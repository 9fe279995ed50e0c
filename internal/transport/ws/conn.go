// Package ws implements the transport over gorilla/websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"caption-stream-client/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendQueue      = 16
)

type outbound struct {
	msgType int
	data    []byte
}

// Dialer opens websocket connections.
type Dialer struct {
	Header http.Header
	Log    zerolog.Logger

	dialer *websocket.Dialer
}

// NewDialer returns a dialer without a handshake timeout: a stalled connect
// stays pending until its context is cancelled.
func NewDialer(log zerolog.Logger) *Dialer {
	return &Dialer{
		Log: log,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 0,
			ReadBufferSize:   4096,
			WriteBufferSize:  16 * 1024,
		},
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string, onEvent func(transport.Event)) (transport.Conn, error) {
	dialer := d.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn := &Conn{
		conn:    c,
		send:    make(chan outbound, sendQueue),
		closed:  make(chan struct{}),
		onEvent: onEvent,
		log:     d.Log,
	}
	conn.open.Store(true)
	go conn.writePump()
	go conn.readPump()
	return conn, nil
}

// Conn is one websocket connection. A read pump delivers events and a write
// pump owns all writes, so callers never block on the network.
type Conn struct {
	conn    *websocket.Conn
	send    chan outbound
	closed  chan struct{}
	onEvent func(transport.Event)
	log     zerolog.Logger

	open      atomic.Bool
	closeOnce sync.Once
}

// Ready reports whether the connection is open.
func (c *Conn) Ready() bool {
	return c.open.Load()
}

// SendBinary implements transport.Conn.
func (c *Conn) SendBinary(frame []byte) error {
	return c.enqueue(outbound{msgType: websocket.BinaryMessage, data: frame})
}

// SendJSON implements transport.Conn.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}
	return c.enqueue(outbound{msgType: websocket.TextMessage, data: data})
}

func (c *Conn) enqueue(msg outbound) error {
	if !c.open.Load() {
		return transport.ErrNotReady
	}
	select {
	case <-c.closed:
		return transport.ErrNotReady
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return transport.ErrNotReady
	}
}

// Close sends a normal close frame and tears the connection down.
func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.closed)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}

func (c *Conn) emit(ev transport.Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Conn) readPump() {
	code := websocket.CloseAbnormalClosure
	defer func() {
		c.shutdown()
		c.emit(transport.Event{Kind: transport.EventClose, Code: code})
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			select {
			case <-c.closed:
				// Closed locally; the read error is our own doing.
				return
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("websocket read error")
				c.emit(transport.Event{Kind: transport.EventError, Err: err})
			}
			return
		}
		c.emit(transport.Event{
			Kind:   transport.EventMessage,
			Data:   payload,
			Binary: msgType == websocket.BinaryMessage,
		})
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msg.msgType, msg.data); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.closed:
			return
		}
	}
}
