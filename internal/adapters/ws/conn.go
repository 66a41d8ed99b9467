// Package ws wraps a gorilla websocket as a core.Connection with a bounded
// outbound buffer drained by a single writer.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSendBuffer = 32
	DefaultWriteWait  = 5 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultReadLimit  = 1 << 20
)

type Options struct {
	SendBuffer int
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	ReadLimit  int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	return o
}

type Conn struct {
	ws   *websocket.Conn
	send chan core.Frame
	opts Options
	log  zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewConn configures the read side (limit, deadline, pong handler) of ws.
func NewConn(ws *websocket.Conn, opts Options, module string) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		ws:   ws,
		send: make(chan core.Frame, opts.SendBuffer),
		opts: opts,
		log:  log.With().Str("module", module).Str("remote", ws.RemoteAddr().String()).Logger(),
	}
	ws.SetReadLimit(opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	return c
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}

func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// WritePump drains the send buffer in order and pings the peer every
// PingPeriod. It returns when the buffer is closed, a write fails, or ctx ends.
func (c *Conn) WritePump(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.log.Warn().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// CloseWith sends a close frame with code and reason, then closes.
// Used to reject a channel before any frame was queued.
func CloseWith(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(DefaultWriteWait))
	_ = ws.Close()
}

// Upgrader accepts any origin; the UI is served from the same host but
// dev setups proxy it.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
