package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Join puts sid into room. It reports false if sid was already a member or is
// not bound; joining twice is harmless.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID) bool {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	if !o.Registry.AddRoom(sid, roomID) {
		return false
	}
	o.Rooms.GetOrCreate(roomID).AddMember(sid, session)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
	return true
}

// Leave removes sid from room. Rooms outlive their last member.
func (o *Orchestrator) Leave(sid core.SessionID, roomID domain.RoomID) bool {
	if !o.Registry.RemoveRoom(sid, roomID) {
		return false
	}
	if room, ok := o.Rooms.GetRoom(roomID); ok {
		room.RemoveMember(sid)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("removed from room")
	return true
}

// KickBySID drops every membership of sid and cancels its connection.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.cleanupMembership(sid)
	o.Registry.Cancel(sid)
}

// OnDisconnect forgets sid entirely. It returns the rooms sid was in and how
// many other connections its user still holds.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) (rooms []domain.RoomID, remaining int) {
	rooms = o.cleanupMembership(sid)
	remaining = o.Registry.Unbind(sid)
	return rooms, remaining
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID) []domain.RoomID {
	rooms := o.Registry.RoomsOf(sid)
	for _, id := range rooms {
		o.Leave(sid, id)
	}
	return rooms
}
