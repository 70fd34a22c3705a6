package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core/coretest"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

type signal struct {
	At      time.Duration
	Channel domain.ChannelID
	Typing  bool
}

type fakeSender struct {
	clock *coretest.FakeClock

	mu      sync.Mutex
	offline bool
	signals []signal
}

func (s *fakeSender) UserID() domain.UserID { return "me" }

func (s *fakeSender) Emit(t events.Type, payload any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline || t != events.TypeTyping {
		return false
	}
	p := payload.(events.Typing)
	if p.UserID != "me" {
		return false
	}
	s.signals = append(s.signals, signal{At: s.clock.Elapsed(), Channel: p.ChannelID, Typing: p.IsTyping})
	return true
}

func (s *fakeSender) sent() []signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signal(nil), s.signals...)
}

func newCoordinator() (*Coordinator, *fakeSender, *coretest.FakeClock) {
	clock := coretest.NewFakeClock()
	out := &fakeSender{clock: clock}
	return NewCoordinator(out, clock, 0), out, clock
}

func TestKeystrokeDebounce(t *testing.T) {
	c, out, clock := newCoordinator()

	require.True(t, c.Keystroke("c1"))
	clock.Advance(500 * time.Millisecond)
	require.True(t, c.Keystroke("c1"))
	clock.Advance(500 * time.Millisecond)
	require.True(t, c.Keystroke("c1"))

	clock.Advance(DefaultDebounce - time.Millisecond)
	assert.Equal(t, []signal{{0, "c1", true}}, out.sent())
	assert.True(t, c.Active("c1"))
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []signal{
		{0, "c1", true},
		{3000 * time.Millisecond, "c1", false},
	}, out.sent())
	assert.False(t, c.Active("c1"))
	assert.Zero(t, clock.Pending())
}

func TestKeystrokeAfterWindowStartsAgain(t *testing.T) {
	c, out, clock := newCoordinator()

	c.Keystroke("c1")
	clock.Advance(DefaultDebounce)
	c.Keystroke("c1")

	assert.Equal(t, []signal{
		{0, "c1", true},
		{2 * time.Second, "c1", false},
		{2 * time.Second, "c1", true},
	}, out.sent())
}

func TestStopCancelsTimer(t *testing.T) {
	c, out, clock := newCoordinator()

	c.Keystroke("c1")
	clock.Advance(time.Second)
	require.True(t, c.Stop("c1"))
	assert.Zero(t, clock.Pending())

	clock.Advance(time.Minute)
	assert.Equal(t, []signal{
		{0, "c1", true},
		{time.Second, "c1", false},
	}, out.sent())

	assert.False(t, c.Stop("c1"))
	assert.Len(t, out.sent(), 2)
}

func TestChannelsAreIndependent(t *testing.T) {
	c, out, clock := newCoordinator()

	c.Keystroke("c1")
	clock.Advance(time.Second)
	c.Keystroke("c2")
	assert.Equal(t, 2, clock.Pending())

	clock.Advance(time.Second)
	assert.False(t, c.Active("c1"))
	assert.True(t, c.Active("c2"))

	clock.Advance(time.Second)
	assert.Equal(t, []signal{
		{0, "c1", true},
		{time.Second, "c2", true},
		{2 * time.Second, "c1", false},
		{3 * time.Second, "c2", false},
	}, out.sent())
}

func TestStopAll(t *testing.T) {
	c, out, clock := newCoordinator()
	c.Keystroke("c1")
	c.Keystroke("c2")

	c.StopAll()

	assert.Zero(t, clock.Pending())
	assert.False(t, c.Active("c1"))
	assert.False(t, c.Active("c2"))
	stops := 0
	for _, s := range out.sent() {
		if !s.Typing {
			stops++
		}
	}
	assert.Equal(t, 2, stops)
}

func TestKeystrokeNotArmedWhenStartFails(t *testing.T) {
	c, out, clock := newCoordinator()
	out.offline = true

	assert.False(t, c.Keystroke("c1"))
	assert.False(t, c.Active("c1"))
	assert.Zero(t, clock.Pending())

	out.offline = false
	assert.True(t, c.Keystroke("c1"))
	assert.Equal(t, []signal{{0, "c1", true}}, out.sent())
}
