package signal

import "github.com/dkeye/Parley/internal/events"

// handlePing answers the client liveness probe with the same id.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn, p events.Ping) {
	ctl.sendEvent(conn, events.TypePingAck, p)
}
