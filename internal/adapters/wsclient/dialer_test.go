package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
)

// echoServer accepts "Bearer good" only. It records every text frame, echoes
// pings, and drops the connection on "bye".
type echoServer struct {
	*httptest.Server
	received chan string
	closed   chan int
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{
		received: make(chan string, 16),
		closed:   make(chan int, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					s.closed <- ce.Code
				}
				return
			}
			s.received <- string(data)
			switch {
			case string(data) == "bye":
				return
			case strings.Contains(string(data), `"ping"`):
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func dial(t *testing.T, s *echoServer) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr, err := NewDialer(Config{}).Dial(ctx, s.wsURL(), "good")
	require.NoError(t, err)
	c := tr.(*Conn)
	t.Cleanup(c.Close)
	return c
}

func TestDialRejectsBadToken(t *testing.T) {
	s := newEchoServer(t)

	_, err := NewDialer(Config{}).Dial(context.Background(), s.wsURL(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSendAndRead(t *testing.T) {
	s := newEchoServer(t)
	c := dial(t, s)

	require.NoError(t, c.TrySend(core.Frame(`{"type":"ping"}`)))

	got, err := c.Read()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(got))
}

func TestCloseFlushesQueuedFrames(t *testing.T) {
	s := newEchoServer(t)
	c := dial(t, s)

	require.NoError(t, c.TrySend(core.Frame(`{"type":"user_offline","payload":{"userId":"u1"}}`)))
	c.Close()

	select {
	case msg := <-s.received:
		assert.Contains(t, msg, "user_offline")
	case <-time.After(2 * time.Second):
		t.Fatal("queued frame was not flushed")
	}
	select {
	case code := <-s.closed:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("no close frame")
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop")
	}
	assert.ErrorIs(t, c.TrySend(core.Frame(`{}`)), ErrClosed)
	assert.NotPanics(t, c.Close)
}

func TestReadFailsWhenServerGoesAway(t *testing.T) {
	s := newEchoServer(t)
	c := dial(t, s)

	require.NoError(t, c.TrySend(core.Frame("bye")))

	_, err := c.Read()
	assert.Error(t, err)
	assert.ErrorIs(t, c.TrySend(core.Frame(`{}`)), ErrClosed)
}
