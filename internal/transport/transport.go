package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by reads on a connection that was closed locally.
var ErrClosed = errors.New("transport: connection closed")

// Conn is an open message-oriented connection. ReadMessage is called from a
// single reader goroutine; writes come from a single writer.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type Config struct {
	HandshakeTimeout time.Duration
	// PongWait bounds how long the connection may stay silent. Zero disables
	// read deadlines.
	PongWait  time.Duration
	WriteWait time.Duration
	ReadLimit int64

	ReadBufferSize  int
	WriteBufferSize int
	Header          http.Header
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        10 * time.Second,
		ReadLimit:        1 << 20, // 1MB
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
	}
}

// WithKeepalive sizes PongWait for a client that pings every ping: the peer
// may miss two pings, plus the time one ping may take to write. Without
// pings nothing guarantees traffic, so the read deadline is disabled.
func (c Config) WithKeepalive(ping time.Duration) Config {
	if ping <= 0 {
		c.PongWait = 0
		return c
	}
	c.PongWait = 2*ping + c.WriteWait
	return c
}

// WebsocketDialer opens gorilla/websocket client connections.
type WebsocketDialer struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewDialer(cfg Config) *WebsocketDialer {
	return &WebsocketDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}
	c := &wsConn{conn: conn, pongWait: d.cfg.PongWait, writeWait: d.cfg.WriteWait}
	c.extendDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	return c, nil
}

type wsConn struct {
	conn      *websocket.Conn
	pongWait  time.Duration
	writeWait time.Duration

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (c *wsConn) extendDeadline() {
	if c.pongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if c.isClosed() {
			return nil, ErrClosed
		}
		return nil, err
	}
	// Any traffic proves the peer is alive.
	c.extendDeadline()
	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.writeWait > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	var deadline time.Time
	if c.writeWait > 0 {
		deadline = time.Now().Add(c.writeWait)
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// closeWait bounds the close handshake write.
const closeWait = time.Second

// Close marks the connection closed and returns without waiting on the peer.
// The close frame is written and the socket released in the background, so
// a stalled peer cannot hold up the caller.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		go func() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
			_ = c.conn.Close()
		}()
	})
	return nil
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsNormalClosure reports whether err ends a connection without a transport
// fault: a local close or an orderly close handshake from the peer.
func IsNormalClosure(err error) bool {
	if err == nil || errors.Is(err, ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
