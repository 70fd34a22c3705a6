// Package realtime owns the client's connection to the chat server: the
// connect/reconnect state machine, outbound emits, the liveness probe, and the
// inbound read loop that feeds the event bus.
package realtime

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Session is the manager-owned view of who is connected and how.
type Session struct {
	UserID           domain.UserID
	Token            string
	State            State
	ReconnectAttempt int
}

// Config tunes the manager. Zero fields take the defaults below.
type Config struct {
	URL         string
	BaseDelay   time.Duration
	MaxAttempts int
	PingTimeout time.Duration
	DialTimeout time.Duration
}

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxAttempts = 5
	DefaultPingTimeout = 5 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// MaxBackoff caps every reconnect delay.
const MaxBackoff = 10 * time.Minute

// Backoff is the delay before reconnect attempt n (1-based): base * 2^(n-1),
// capped at MaxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
