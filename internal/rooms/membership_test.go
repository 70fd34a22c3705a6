package rooms

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

type emitted struct {
	Type events.Type
	ID   string
}

type fakeEmitter struct {
	mu      sync.Mutex
	online  bool
	emitted []emitted
}

func (e *fakeEmitter) Emit(t events.Type, payload any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.online {
		return false
	}
	e.emitted = append(e.emitted, emitted{Type: t, ID: payload.(events.RoomRef).ID})
	return true
}

func (e *fakeEmitter) take() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.emitted
	e.emitted = nil
	return out
}

func TestJoinAlwaysEmits(t *testing.T) {
	em := &fakeEmitter{online: true}
	r := NewMembership(em)

	assert.True(t, r.JoinChannelRoom("c1"))
	assert.True(t, r.JoinChannelRoom("c1"))
	assert.True(t, r.JoinServerRoom("s1"))

	assert.Equal(t, []emitted{
		{events.TypeJoinChannel, "c1"},
		{events.TypeJoinChannel, "c1"},
		{events.TypeJoinServer, "s1"},
	}, em.take())
	assert.Equal(t, RoomSet{Servers: []domain.ServerID{"s1"}, Channels: []domain.ChannelID{"c1"}}, r.Snapshot())
}

func TestJoinWhileOfflineIsRecorded(t *testing.T) {
	em := &fakeEmitter{}
	r := NewMembership(em)

	assert.False(t, r.JoinChannelRoom("c1"))
	assert.True(t, r.HasChannel("c1"))
	assert.Empty(t, em.take())
}

func TestLeave(t *testing.T) {
	em := &fakeEmitter{online: true}
	r := NewMembership(em)
	r.JoinServerRoom("s1")
	r.JoinChannelRoom("c1")
	em.take()

	assert.True(t, r.LeaveChannelRoom("c1"))
	assert.True(t, r.LeaveServerRoom("s1"))
	assert.False(t, r.HasChannel("c1"))
	assert.False(t, r.HasServer("s1"))
	assert.Equal(t, []emitted{
		{events.TypeLeaveChannel, "c1"},
		{events.TypeLeaveServer, "s1"},
	}, em.take())

	assert.False(t, r.LeaveChannelRoom("c1"))
	assert.False(t, r.LeaveServerRoom("nope"))
	assert.Empty(t, em.take())
}

func TestReplayMembershipOneJoinPerRoom(t *testing.T) {
	em := &fakeEmitter{}
	r := NewMembership(em)
	r.JoinServerRoom("s2")
	r.JoinServerRoom("s1")
	r.JoinChannelRoom("c9")
	r.JoinChannelRoom("c9")
	r.JoinChannelRoom("c3")
	r.JoinChannelRoom("gone")
	r.LeaveChannelRoom("gone")

	em.online = true
	require.Equal(t, 4, r.ReplayMembership())
	assert.Equal(t, []emitted{
		{events.TypeJoinServer, "s1"},
		{events.TypeJoinServer, "s2"},
		{events.TypeJoinChannel, "c3"},
		{events.TypeJoinChannel, "c9"},
	}, em.take())

	require.Equal(t, 4, r.ReplayMembership())
	assert.Len(t, em.take(), 4)
}

func TestReplayWhileOfflineSendsNothing(t *testing.T) {
	r := NewMembership(&fakeEmitter{})
	r.JoinChannelRoom("c1")

	assert.Zero(t, r.ReplayMembership())
	assert.True(t, r.HasChannel("c1"))
}

func TestClear(t *testing.T) {
	em := &fakeEmitter{online: true}
	r := NewMembership(em)
	r.JoinServerRoom("s1")
	r.JoinChannelRoom("c1")
	em.take()

	r.Clear()

	assert.Equal(t, RoomSet{Servers: []domain.ServerID{}, Channels: []domain.ChannelID{}}, r.Snapshot())
	assert.Empty(t, em.take())
	assert.Zero(t, r.ReplayMembership())
}
