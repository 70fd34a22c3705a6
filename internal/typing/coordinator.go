// Package typing implements the typing indicator protocol: the local debounce
// that turns keystrokes into start/stop signals, and the remote view of who
// else is typing.
package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultExpiry   = 5 * time.Second
)

// Identity names the local user.
type Identity interface {
	UserID() domain.UserID
}

// Sender is the outbound side the coordinator needs.
type Sender interface {
	Identity
	Emit(t events.Type, payload any) bool
}

type activeTyping struct {
	timer core.Timer
}

// Coordinator debounces local keystrokes per channel. At most one stop timer
// is armed per channel; arming a new one cancels the old.
type Coordinator struct {
	out      Sender
	clock    core.Clock
	debounce time.Duration

	mu     sync.Mutex
	active map[domain.ChannelID]*activeTyping
}

func NewCoordinator(out Sender, clock core.Clock, debounce time.Duration) *Coordinator {
	if clock == nil {
		clock = core.RealClock()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		out:      out,
		clock:    clock,
		debounce: debounce,
		active:   make(map[domain.ChannelID]*activeTyping),
	}
}

// Keystroke records local input in channel. The first keystroke of a window
// emits typing start; later ones only push the stop timer back. It reports
// false when the start signal could not be sent, in which case nothing is
// armed and the next keystroke tries again.
func (c *Coordinator) Keystroke(channel domain.ChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.active[channel]; ok {
		a.timer.Stop()
		c.armLocked(channel)
		return true
	}
	if !c.send(channel, true) {
		return false
	}
	c.armLocked(channel)
	log.Debug().Str("module", "typing").Str("channel", string(channel)).Msg("typing started")
	return true
}

// Stop ends typing in channel right away, e.g. on send or channel switch. It
// reports whether a stop signal went out.
func (c *Coordinator) Stop(channel domain.ChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.active[channel]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(c.active, channel)
	return c.send(channel, false)
}

// StopAll ends typing everywhere.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	channels := make([]domain.ChannelID, 0, len(c.active))
	for ch := range c.active {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		c.Stop(ch)
	}
}

func (c *Coordinator) Active(channel domain.ChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[channel]
	return ok
}

func (c *Coordinator) armLocked(channel domain.ChannelID) {
	a := &activeTyping{}
	a.timer = c.clock.AfterFunc(c.debounce, func() { c.expire(channel, a) })
	c.active[channel] = a
}

func (c *Coordinator) expire(channel domain.ChannelID, a *activeTyping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a stale timer that lost the race with a re-arm or Stop
	if c.active[channel] != a {
		return
	}
	delete(c.active, channel)
	c.send(channel, false)
	log.Debug().Str("module", "typing").Str("channel", string(channel)).Msg("typing stopped by timeout")
}

func (c *Coordinator) send(channel domain.ChannelID, typing bool) bool {
	return c.out.Emit(events.TypeTyping, events.Typing{
		ChannelID: channel,
		UserID:    c.out.UserID(),
		IsTyping:  typing,
	})
}
