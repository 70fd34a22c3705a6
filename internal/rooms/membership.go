// Package rooms tracks which server and channel rooms the application asked to
// be in, and keeps the server's view equal to that after every reconnect.
package rooms

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// Emitter sends one outbound event and reports whether it left the client.
type Emitter interface {
	Emit(t events.Type, payload any) bool
}

// RoomSet is a copy of the requested membership.
type RoomSet struct {
	Servers  []domain.ServerID
	Channels []domain.ChannelID
}

// Membership owns the RoomSet. Joins are recorded even while offline so the
// next replay picks them up.
type Membership struct {
	emitter Emitter

	mu       sync.Mutex
	servers  map[domain.ServerID]struct{}
	channels map[domain.ChannelID]struct{}
}

func NewMembership(e Emitter) *Membership {
	return &Membership{
		emitter:  e,
		servers:  make(map[domain.ServerID]struct{}),
		channels: make(map[domain.ChannelID]struct{}),
	}
}

// JoinServerRoom records id and asks the server to join. The emit goes out
// even for a room already held; the server treats it as idempotent.
func (r *Membership) JoinServerRoom(id domain.ServerID) bool {
	r.mu.Lock()
	r.servers[id] = struct{}{}
	r.mu.Unlock()
	return r.emit(events.TypeJoinServer, string(id))
}

func (r *Membership) JoinChannelRoom(id domain.ChannelID) bool {
	r.mu.Lock()
	r.channels[id] = struct{}{}
	r.mu.Unlock()
	return r.emit(events.TypeJoinChannel, string(id))
}

// LeaveServerRoom drops id and tells the server. Leaving a room we are not in
// does nothing at all.
func (r *Membership) LeaveServerRoom(id domain.ServerID) bool {
	r.mu.Lock()
	_, ok := r.servers[id]
	delete(r.servers, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.emit(events.TypeLeaveServer, string(id))
}

func (r *Membership) LeaveChannelRoom(id domain.ChannelID) bool {
	r.mu.Lock()
	_, ok := r.channels[id]
	delete(r.channels, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.emit(events.TypeLeaveChannel, string(id))
}

// ReplayMembership re-issues one join per room currently held and returns how
// many joins were sent. Order is irrelevant: joins are idempotent per room.
func (r *Membership) ReplayMembership() int {
	set := r.Snapshot()
	sent := 0
	for _, id := range set.Servers {
		if r.emit(events.TypeJoinServer, string(id)) {
			sent++
		}
	}
	for _, id := range set.Channels {
		if r.emit(events.TypeJoinChannel, string(id)) {
			sent++
		}
	}
	log.Info().
		Str("module", "rooms").
		Int("servers", len(set.Servers)).
		Int("channels", len(set.Channels)).
		Int("sent", sent).
		Msg("replayed membership")
	return sent
}

func (r *Membership) HasServer(id domain.ServerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.servers[id]
	return ok
}

func (r *Membership) HasChannel(id domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[id]
	return ok
}

// Snapshot returns the RoomSet sorted by id.
func (r *Membership) Snapshot() RoomSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := RoomSet{
		Servers:  make([]domain.ServerID, 0, len(r.servers)),
		Channels: make([]domain.ChannelID, 0, len(r.channels)),
	}
	for id := range r.servers {
		set.Servers = append(set.Servers, id)
	}
	for id := range r.channels {
		set.Channels = append(set.Channels, id)
	}
	sort.Slice(set.Servers, func(i, j int) bool { return set.Servers[i] < set.Servers[j] })
	sort.Slice(set.Channels, func(i, j int) bool { return set.Channels[i] < set.Channels[j] })
	return set
}

// Clear forgets every room locally without telling the server; used on logout.
func (r *Membership) Clear() {
	r.mu.Lock()
	r.servers = make(map[domain.ServerID]struct{})
	r.channels = make(map[domain.ChannelID]struct{})
	r.mu.Unlock()
}

func (r *Membership) emit(t events.Type, id string) bool {
	ok := r.emitter.Emit(t, events.RoomRef{ID: id})
	if !ok {
		log.Debug().Str("module", "rooms").Str("type", string(t)).Str("id", id).Msg("room request not sent")
	}
	return ok
}
