package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func session(id domain.UserID) core.MemberSession {
	return core.NewMemberSession(domain.NewMember(&domain.User{ID: id, Username: string(id)}))
}

func TestRegistryRoomsPerSession(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("a1", session("ann"), nil)
	r.BindSignal("a2", session("ann"), nil)

	assert.True(t, r.AddRoom("a1", "channel:c1"))
	assert.False(t, r.AddRoom("a1", "channel:c1"))
	assert.True(t, r.AddRoom("a1", "server:s1"))
	assert.True(t, r.AddRoom("a2", "channel:c2"))
	assert.False(t, r.AddRoom("ghost", "channel:c1"))

	assert.Equal(t, []domain.RoomID{"channel:c1", "server:s1"}, r.RoomsOf("a1"))
	assert.Equal(t, []domain.RoomID{"channel:c1", "channel:c2", "server:s1"}, r.RoomsOfUser("ann"))
	assert.True(t, r.InRoom("a2", "channel:c2"))
	assert.Len(t, r.MembersOfRoom("channel:c1"), 1)

	assert.True(t, r.RemoveRoom("a1", "channel:c1"))
	assert.False(t, r.RemoveRoom("a1", "channel:c1"))
	assert.Empty(t, r.MembersOfRoom("channel:c1"))
}

func TestRegistryStatusAndUnbind(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("a1", session("ann"), nil)
	r.BindSignal("a2", session("ann"), nil)

	u, ok := r.UserOf("a1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusOffline, u.Status)

	assert.True(t, r.SetStatus("ann", domain.StatusOnline))
	assert.False(t, r.SetStatus("ann", domain.StatusOnline))
	assert.Equal(t, domain.StatusOnline, r.Status("ann"))
	assert.Equal(t, domain.StatusOffline, r.Status("nobody"))

	assert.Equal(t, 1, r.Unbind("a1"))
	assert.Equal(t, 0, r.Unbind("a2"))
	assert.Equal(t, 0, r.Unbind("a2"))
	_, ok = r.GetSession("a1")
	assert.False(t, ok)
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.BindSignal("a1", session("ann"), cancel)

	assert.True(t, r.Cancel("a1"))
	assert.Error(t, ctx.Err())
	assert.False(t, r.Cancel("ghost"))
}

func TestHistoryKeepsNewest(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []domain.MessageID{"m1", "m2", "m3", "m4"} {
		h.Append(domain.Message{ID: id, ChannelID: "c1"})
	}
	h.Append(domain.Message{ID: "x1", ChannelID: "c2"})

	ids := func(ms []domain.Message) []domain.MessageID {
		out := make([]domain.MessageID, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}
	assert.Equal(t, []domain.MessageID{"m2", "m3", "m4"}, ids(h.Recent("c1", 0)))
	assert.Equal(t, []domain.MessageID{"m3", "m4"}, ids(h.Recent("c1", 2)))
	assert.Equal(t, []domain.MessageID{"x1"}, ids(h.Recent("c2", 10)))
	assert.Empty(t, h.Recent("c3", 10))
}

func TestTokenTable(t *testing.T) {
	tt := NewTokenTable(map[string]domain.User{"tok": {ID: "ann", Username: "ann"}})

	u, err := tt.Authenticate("tok")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("ann"), u.ID)

	_, err = tt.Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthorized)

	tt.Issue("tok2", domain.User{ID: "bob"})
	tt.Revoke("tok")
	_, err = tt.Authenticate("tok")
	assert.ErrorIs(t, err, ErrUnauthorized)
	u, err = tt.Authenticate("tok2")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("bob"), u.ID)
}

func TestRoomManagerKinds(t *testing.T) {
	m := NewRoomManager()
	m.GetOrCreate(domain.ServerRoom("s1"))
	m.GetOrCreate(domain.ChannelRoom("c1"))
	assert.Same(t, m.GetOrCreate(domain.ChannelRoom("c1")), m.GetOrCreate(domain.ChannelRoom("c1")))

	assert.Equal(t, []core.RoomInfo{
		{ID: "channel:c1", Kind: domain.RoomChannel},
		{ID: "server:s1", Kind: domain.RoomServer},
	}, m.List())

	m.StopRoom("channel:c1")
	_, ok := m.GetRoom("channel:c1")
	assert.False(t, ok)
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, SimplePolicy{}, p)

	p, err = PolicyByName("Drop")
	require.NoError(t, err)
	assert.Equal(t, DropFrame, p.OnBackPressure(nil, nil))

	_, err = PolicyByName("ignore")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
