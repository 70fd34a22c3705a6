package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/events"
)

type pingResult struct {
	rtt time.Duration
	err error
}

type pendingPing struct {
	sentAt time.Time
	timer  core.Timer
	done   chan pingResult
}

// resolve is called at most once per ping, after removal from the pending map.
func (p *pendingPing) resolve(r pingResult) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- r
}

// Ping is the liveness probe: it sends a ping and waits for the matching ack
// or PingTimeout, whichever comes first. A timeout is only reported; it never
// triggers a reconnect.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	id := uuid.NewString()
	p := &pendingPing{done: make(chan pingResult, 1)}

	m.mu.Lock()
	if m.session.State != Connected {
		m.mu.Unlock()
		return 0, ErrNotConnected
	}
	p.sentAt = m.clock.Now()
	m.pings[id] = p
	p.timer = m.clock.AfterFunc(m.cfg.PingTimeout, func() {
		m.finishPing(id, pingResult{err: ErrPingTimeout})
	})
	m.mu.Unlock()

	if !m.Emit(events.TypePing, events.Ping{ID: id, Timestamp: p.sentAt.UnixMilli()}) {
		m.finishPing(id, pingResult{err: ErrNotConnected})
	}

	select {
	case r := <-p.done:
		if r.err != nil {
			log.Warn().Err(r.err).Str("module", "realtime").Str("ping", id).Msg("ping failed")
		}
		return r.rtt, r.err
	case <-ctx.Done():
		m.finishPing(id, pingResult{err: ctx.Err()})
		return 0, ctx.Err()
	}
}

func (m *Manager) ackPing(id string) {
	m.mu.Lock()
	p, ok := m.pings[id]
	now := m.clock.Now()
	m.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "realtime").Str("ping", id).Msg("ack for unknown ping")
		return
	}
	m.finishPing(id, pingResult{rtt: now.Sub(p.sentAt)})
}

func (m *Manager) finishPing(id string, r pingResult) {
	m.mu.Lock()
	p, ok := m.pings[id]
	if ok {
		delete(m.pings, id)
	}
	m.mu.Unlock()
	if ok {
		p.resolve(r)
	}
}

func (m *Manager) takePingsLocked() []*pendingPing {
	out := make([]*pendingPing, 0, len(m.pings))
	for id, p := range m.pings {
		out = append(out, p)
		delete(m.pings, id)
	}
	return out
}
