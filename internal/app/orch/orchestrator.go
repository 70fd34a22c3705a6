// Package orch ties the registry, rooms and backpressure policy together on
// the server side.
package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	History  *app.History
}

// Publish fans data out to room. An empty from reaches every member; otherwise
// the sender is skipped. Members that cannot keep up are handled by Policy.
func (o *Orchestrator) Publish(from core.SessionID, roomID domain.RoomID, data core.Frame) core.PublishResult {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return core.PublishResult{}
	}

	res := room.Broadcast(from, data)
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		sess, ok := o.Registry.GetSession(slow)
		if !ok {
			continue
		}
		switch o.Policy.OnBackPressure(room, sess) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("room", string(roomID)).Msg("kicking slow member")
			o.KickBySID(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res
}

// PublishRooms is Publish over several rooms; a session in more than one of
// them receives data once.
func (o *Orchestrator) PublishRooms(from core.SessionID, rooms []domain.RoomID, data core.Frame) {
	seen := make(map[core.SessionID]struct{})
	for _, id := range rooms {
		for _, snap := range o.Registry.MembersOfRoom(id) {
			if snap.SID == from {
				continue
			}
			if _, dup := seen[snap.SID]; dup {
				continue
			}
			seen[snap.SID] = struct{}{}
			sig := snap.Session.Signal()
			if sig == nil {
				continue
			}
			if err := sig.TrySend(data); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("sid", string(snap.SID)).Msg("fan-out dropped")
			}
		}
	}
}
