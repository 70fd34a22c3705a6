package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// handleRoom serves join_* and leave_*. Joining a server room announces the
// member to the rest of it; channel rooms are joined silently.
func (ctl *SignalWSController) handleRoom(
	sid core.SessionID,
	uid domain.UserID,
	conn *WsSignalConn,
	t events.Type,
	p events.RoomRef,
) {
	var roomID domain.RoomID
	switch t {
	case events.TypeJoinServer, events.TypeLeaveServer:
		roomID = domain.ServerRoom(domain.ServerID(p.ID))
	case events.TypeJoinChannel, events.TypeLeaveChannel:
		roomID = domain.ChannelRoom(domain.ChannelID(p.ID))
	default:
		ctl.sendError(conn, "unsupported", string(t))
		return
	}

	switch t {
	case events.TypeJoinServer, events.TypeJoinChannel:
		if !ctl.Orch.Join(sid, roomID) {
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("already joined")
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("join")
		if t == events.TypeJoinServer {
			ctl.announceMember(sid, uid, roomID, events.TypeServerMemberJoined, domain.ServerID(p.ID))
			ctl.announceStatus(sid, uid, roomID)
		}
	default:
		if !ctl.Orch.Leave(sid, roomID) {
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("leave")
		if t == events.TypeLeaveServer {
			ctl.announceMember(sid, uid, roomID, events.TypeServerMemberLeft, domain.ServerID(p.ID))
		}
	}
}

func (ctl *SignalWSController) announceMember(sid core.SessionID, uid domain.UserID, roomID domain.RoomID, t events.Type, server domain.ServerID) {
	user, ok := ctl.Orch.Registry.UserOf(sid)
	if !ok {
		return
	}
	f, err := events.Encode(t, events.ServerMember{ServerID: server, UserID: uid, Username: user.Username})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode member event")
		return
	}
	ctl.Orch.Publish(sid, roomID, f)
}

// announceStatus tells a server room the joiner's current status. Clients go
// online before they rejoin their rooms, so the status broadcast itself
// reaches none of them.
func (ctl *SignalWSController) announceStatus(sid core.SessionID, uid domain.UserID, roomID domain.RoomID) {
	status := ctl.Orch.Registry.Status(uid)
	if status == domain.StatusOffline {
		return
	}
	f, err := events.Encode(events.TypeUserStatusChange, events.StatusChange{UserID: uid, Status: status})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode status")
		return
	}
	ctl.Orch.Publish(sid, roomID, f)
}
