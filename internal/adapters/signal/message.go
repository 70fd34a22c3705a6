package signal

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// handleSendMessage stamps the message with an id, author and time, stores
// it, and delivers new_message to the whole channel room, sender included.
func (ctl *SignalWSController) handleSendMessage(
	sid core.SessionID,
	uid domain.UserID,
	conn *WsSignalConn,
	p events.SendMessage,
) {
	if p.UserID != uid {
		ctl.sendError(conn, "forbidden", "user id does not match token")
		return
	}
	roomID := domain.ChannelRoom(p.ChannelID)
	if !ctl.Orch.Registry.InRoom(sid, roomID) {
		ctl.sendError(conn, "not_in_room", string(p.ChannelID))
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(uid) {
		log.Warn().Str("module", "signal").Str("user", string(uid)).Msg("rate limited")
		ctl.sendError(conn, "rate_limited", "slow down")
		return
	}

	user, _ := ctl.Orch.Registry.UserOf(sid)
	msg := domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		ChannelID:   p.ChannelID,
		Author:      domain.Author{ID: uid, DisplayName: user.DisplayName, Username: user.Username},
		Content:     p.Content,
		Attachments: p.Attachments,
		CreatedAt:   ctl.Clock.Now().UTC(),
	}
	f, err := events.Encode(events.TypeNewMessage, msg)
	if err != nil {
		ctl.sendError(conn, "bad_payload", err.Error())
		return
	}
	if ctl.Orch.History != nil {
		ctl.Orch.History.Append(msg)
	}
	res := ctl.Orch.Publish("", roomID, f)
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("message", string(msg.ID)).Int("sent_to", res.SendTo).Msg("message delivered")
}

// handleTyping relays the sender's typing state to the rest of the channel.
func (ctl *SignalWSController) handleTyping(
	sid core.SessionID,
	uid domain.UserID,
	conn *WsSignalConn,
	p events.Typing,
) {
	roomID := domain.ChannelRoom(p.ChannelID)
	if !ctl.Orch.Registry.InRoom(sid, roomID) {
		ctl.sendError(conn, "not_in_room", string(p.ChannelID))
		return
	}
	p.UserID = uid
	f, err := events.Encode(events.TypeUserTyping, p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode typing")
		return
	}
	ctl.Orch.Publish(sid, roomID, f)
}
