package signal

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(ctl.cfg.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logCloseError(err, "writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				logCloseError(err, "writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, uid domain.UserID, c *WsSignalConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.handleClose(sid, uid)
		cancel()
		c.Close()
	}()

	pongWait := ctl.cfg.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			logCloseError(err, "readPump read error")
			return
		}
		ctl.handleSignal(sid, uid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, uid domain.UserID, c *WsSignalConn, data []byte) {
	env, err := events.Decode(data, ctl.Clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		ctl.sendError(c, "bad_payload", err.Error())
		return
	}

	switch p := env.Payload.(type) {
	case events.UserRef:
		ctl.handleStatus(sid, uid, c, env.Type, p)
	case events.RoomRef:
		ctl.handleRoom(sid, uid, c, env.Type, p)
	case events.SendMessage:
		ctl.handleSendMessage(sid, uid, c, p)
	case events.Typing:
		if env.Type != events.TypeTyping {
			ctl.sendError(c, "unsupported", string(env.Type))
			return
		}
		ctl.handleTyping(sid, uid, c, p)
	case events.Ping:
		if env.Type != events.TypePing {
			ctl.sendError(c, "unsupported", string(env.Type))
			return
		}
		ctl.handlePing(c, p)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(c, "unsupported", string(env.Type))
	}
}

func (ctl *SignalWSController) sendEvent(c core.SignalConnection, t events.Type, payload any) {
	f, err := events.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", string(t)).Msg("sendEvent encode")
		return
	}
	if err := c.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(t)).Msg("sendEvent")
	}
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, code, msg string) {
	ctl.sendEvent(c, events.TypeError, events.ServerError{Code: code, Message: msg})
}

func logCloseError(err error, msg string) {
	if isExpectedCloseError(err) {
		log.Debug().Err(err).Str("module", "signal").Msg(msg)
		return
	}
	log.Warn().Err(err).Str("module", "signal").Msg(msg)
}

func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return true
		}
	}
	return false
}
