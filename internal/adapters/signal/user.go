package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// handleStatus serves user_online and user_offline. A client may only speak
// for itself.
func (ctl *SignalWSController) handleStatus(
	sid core.SessionID,
	uid domain.UserID,
	conn *WsSignalConn,
	t events.Type,
	p events.UserRef,
) {
	if p.UserID != uid {
		ctl.sendError(conn, "forbidden", "user id does not match token")
		return
	}
	status := domain.StatusOnline
	if t == events.TypeUserOffline {
		status = domain.StatusOffline
	}
	if !ctl.Orch.Registry.SetStatus(uid, status) {
		return
	}
	ctl.broadcastStatus(sid, uid, status, ctl.Orch.Registry.RoomsOfUser(uid))
}

// handleClose runs once per connection. The user goes offline when their
// last connection closes.
func (ctl *SignalWSController) handleClose(sid core.SessionID, uid domain.UserID) {
	rooms, remaining := ctl.Orch.OnDisconnect(sid)
	if remaining > 0 {
		return
	}
	if ctl.Orch.Registry.SetStatus(uid, domain.StatusOffline) {
		ctl.broadcastStatus(sid, uid, domain.StatusOffline, rooms)
	}
}

// broadcastStatus reaches every server room in rooms.
func (ctl *SignalWSController) broadcastStatus(sid core.SessionID, uid domain.UserID, status domain.Status, rooms []domain.RoomID) {
	servers := make([]domain.RoomID, 0, len(rooms))
	for _, id := range rooms {
		if room, ok := ctl.Orch.Rooms.GetRoom(id); ok && room.Room().Kind == domain.RoomServer {
			servers = append(servers, id)
		}
	}
	if len(servers) == 0 {
		return
	}
	f, err := events.Encode(events.TypeUserStatusChange, events.StatusChange{UserID: uid, Status: status})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode status")
		return
	}
	log.Info().Str("module", "signal").Str("user", string(uid)).Str("status", string(status)).Int("rooms", len(servers)).Msg("status broadcast")
	ctl.Orch.PublishRooms(sid, servers, f)
}
