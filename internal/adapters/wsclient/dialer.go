// Package wsclient is the gorilla/websocket implementation of core.Dialer used
// by the connection manager.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
	ErrUnauthorized = errors.New("unauthorized")
)

type Config struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	// PongWait bounds the silence tolerated from the server; it must exceed
	// the server ping period.
	PongWait   time.Duration
	SendBuffer int
	ReadLimit  int64
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	return c
}

type Dialer struct {
	cfg Config
	ws  *websocket.Dialer
}

func NewDialer(cfg Config) *Dialer {
	cfg = cfg.withDefaults()
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial opens a websocket to url with token as bearer credential.
func (d *Dialer) Dial(ctx context.Context, url, token string) (core.Transport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := d.ws.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", url, ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(d.cfg.ReadLimit)

	c := &Conn{
		ws:   ws,
		cfg:  d.cfg,
		send: make(chan core.Frame, d.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	ws.SetPingHandler(c.onPing)
	go c.writePump()

	log.Info().Str("module", "wsclient").Str("url", url).Msg("connected")
	return c, nil
}

// Conn is one client websocket. Frames are queued by TrySend and written by a
// single goroutine; Read must only be called from one goroutine.
type Conn struct {
	ws   *websocket.Conn
	cfg  Config
	send chan core.Frame
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. Frames already queued are still written,
// then a normal close is sent.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

// Done is closed once the socket is fully shut.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Read() (core.Frame, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.Close()
		return nil, err
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.Close()
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (c *Conn) onPing(appData string) error {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		return err
	}
	err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.cfg.WriteWait))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (c *Conn) writePump() {
	defer func() {
		_ = c.ws.Close()
		close(c.done)
	}()

	for f := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
			log.Error().Err(err).Str("module", "wsclient").Msg("writePump set deadline")
			c.Close()
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, f); err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("writePump write error")
			c.Close()
			return
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait)); err != nil {
		log.Debug().Err(err).Str("module", "wsclient").Msg("close frame not sent")
	}
}
