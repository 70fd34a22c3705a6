package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

var (
	ErrNoUser         = errors.New("realtime: user id required")
	ErrNoToken        = errors.New("realtime: no auth token")
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrClosed         = errors.New("realtime: connection closed")
	ErrConnectionLost = errors.New("realtime: connection lost")
	ErrPingTimeout    = errors.New("realtime: ping timed out")
)

// Replayer re-issues room joins once a connection is (re)established.
type Replayer interface {
	ReplayMembership() int
}

type Option func(*Manager)

func WithClock(c core.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithTokenProvider is consulted when Connect gets no token and before each
// reconnect attempt, so rotated tokens are picked up.
func WithTokenProvider(p core.TokenProvider) Option { return func(m *Manager) { m.tokens = p } }

// Manager runs the connection state machine. Session state is only ever
// mutated here; everything else asks through methods.
type Manager struct {
	cfg    Config
	dialer core.Dialer
	tokens core.TokenProvider
	bus    *events.Bus
	clock  core.Clock

	mu        sync.Mutex
	session   Session
	transport core.Transport

	// epoch changes on every explicit Connect/Disconnect; callbacks from an
	// older epoch are ignored.
	epoch    uint64
	retry    core.Timer
	replayer Replayer
	pings    map[string]*pendingPing
}

func NewManager(cfg Config, dialer core.Dialer, bus *events.Bus, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		bus:    bus,
		clock:  core.RealClock(),
		pings:  make(map[string]*pendingPing),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) SetReplayer(r Replayer) {
	m.mu.Lock()
	m.replayer = r
	m.mu.Unlock()
}

// Session returns a copy of the current session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

func (m *Manager) UserID() domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.UserID
}

// Connect dials the server as userID. It is a no-op while connected or
// connecting as the same user; a different user is disconnected first. An
// empty token falls back to the token provider. When the first dial fails
// the manager moves to Reconnecting and the dial error is returned.
func (m *Manager) Connect(ctx context.Context, userID domain.UserID, token string) error {
	if userID == "" {
		return ErrNoUser
	}

	m.mu.Lock()
	switch m.session.State {
	case Connected, Connecting:
		if m.session.UserID == userID {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		log.Info().Str("module", "realtime").Str("from", string(m.UserID())).Str("to", string(userID)).Msg("switching user")
		m.Disconnect()
		m.mu.Lock()
	}

	if token == "" && m.tokens != nil {
		token, _ = m.tokens.Token()
	}
	if token == "" {
		m.mu.Unlock()
		return ErrNoToken
	}

	m.stopRetryLocked()
	m.epoch++
	epoch := m.epoch
	m.session = Session{UserID: userID, Token: token, State: Connecting}
	m.mu.Unlock()

	log.Info().Str("module", "realtime").Str("user", string(userID)).Str("url", m.cfg.URL).Msg("connecting")

	t, err := m.dialer.Dial(ctx, m.cfg.URL, token)
	if err != nil {
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return ErrClosed
		}
		m.session.State = Reconnecting
		next := m.scheduleRetryLocked(epoch, 1)
		m.mu.Unlock()

		log.Warn().Err(err).Str("module", "realtime").Str("user", string(userID)).Msg("initial connect failed")
		m.bus.Publish(events.TypeConnectionReconnecting, next)
		return fmt.Errorf("connect: %w", err)
	}
	return m.establish(epoch, t)
}

func (m *Manager) establish(epoch uint64, t core.Transport) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		t.Close()
		return ErrClosed
	}
	m.transport = t
	m.session.State = Connected
	m.session.ReconnectAttempt = 0
	user := m.session.UserID
	replayer := m.replayer
	m.mu.Unlock()

	log.Info().Str("module", "realtime").Str("user", string(user)).Msg("connected")
	m.Emit(events.TypeUserOnline, events.UserRef{UserID: user})

	m.mu.Lock()
	live := m.epoch == epoch && m.session.State == Connected
	m.mu.Unlock()
	if !live {
		return ErrClosed
	}
	m.bus.Publish(events.TypeConnectionEstablished, events.ConnectionEstablished{UserID: user})
	if replayer != nil {
		n := replayer.ReplayMembership()
		log.Debug().Str("module", "realtime").Int("rooms", n).Msg("membership replayed")
	}

	// Reading starts last: a transport that is already dead must report its
	// loss after connection.established, never before.
	go m.readLoop(epoch, t)
	return nil
}

// Emit sends one event. It reports false, without panicking, when there is no
// live connection or the frame could not be queued. Nothing is acknowledged.
func (m *Manager) Emit(t events.Type, payload any) bool {
	m.mu.Lock()
	tr := m.transport
	connected := m.session.State == Connected
	m.mu.Unlock()

	if !connected || tr == nil {
		log.Debug().Str("module", "realtime").Str("type", string(t)).Msg("emit while not connected")
		return false
	}
	f, err := events.Encode(t, payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "realtime").Str("type", string(t)).Msg("emit encode")
		return false
	}
	if err := tr.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "realtime").Str("type", string(t)).Msg("emit send")
		return false
	}
	return true
}

// Disconnect tells the server we are going offline, tears the transport down,
// cancels every pending timer and clears all bus handlers. Calling it again
// is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.session.UserID == "" && m.transport == nil && m.retry == nil {
		m.mu.Unlock()
		return
	}
	tr := m.transport
	user := m.session.UserID
	wasConnected := m.session.State == Connected
	m.epoch++
	m.stopRetryLocked()
	pending := m.takePingsLocked()
	m.transport = nil
	m.session = Session{State: Disconnected}
	m.mu.Unlock()

	if tr != nil {
		if wasConnected {
			if f, err := events.Encode(events.TypeUserOffline, events.UserRef{UserID: user}); err == nil {
				if err := tr.TrySend(f); err != nil {
					log.Warn().Err(err).Str("module", "realtime").Msg("offline signal not sent")
				}
			}
		}
		tr.Close()
	}
	for _, p := range pending {
		p.resolve(pingResult{err: ErrClosed})
	}

	log.Info().Str("module", "realtime").Str("user", string(user)).Msg("disconnected")
	m.bus.Publish(events.TypeConnectionClosed, events.ConnectionClosed{UserID: user})
	m.bus.Reset()
}

func (m *Manager) readLoop(epoch uint64, t core.Transport) {
	for {
		data, err := t.Read()
		if err != nil {
			m.handleDrop(epoch, err)
			return
		}
		m.handleFrame(epoch, data)
	}
}

func (m *Manager) handleFrame(epoch uint64, data core.Frame) {
	env, err := events.Decode(data, m.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("module", "realtime").Int("bytes", len(data)).Msg("dropping inbound frame")
		return
	}
	env.Type = events.Normalize(env.Type)

	if env.Type == events.TypePingAck {
		if ack, ok := env.Payload.(events.Ping); ok {
			m.ackPing(ack.ID)
		}
		return
	}

	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if stale {
		return
	}
	m.bus.Dispatch(env)
}

func (m *Manager) handleDrop(epoch uint64, cause error) {
	m.mu.Lock()
	if m.epoch != epoch || m.session.State != Connected {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.session.State = Reconnecting
	pending := m.takePingsLocked()
	next := m.scheduleRetryLocked(epoch, 1)
	user := m.session.UserID
	m.mu.Unlock()

	for _, p := range pending {
		p.resolve(pingResult{err: ErrConnectionLost})
	}

	log.Warn().Err(cause).Str("module", "realtime").Str("user", string(user)).Msg("connection lost")
	m.bus.Publish(events.TypeConnectionLost, events.ConnectionLost{Err: cause})
	m.bus.Publish(events.TypeConnectionReconnecting, next)
}

func (m *Manager) scheduleRetryLocked(epoch uint64, attempt int) events.ConnectionReconnecting {
	delay := Backoff(m.cfg.BaseDelay, attempt)
	m.session.ReconnectAttempt = attempt
	m.retry = m.clock.AfterFunc(delay, func() { m.retryConnect(epoch, attempt) })
	log.Info().Str("module", "realtime").Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
	return events.ConnectionReconnecting{Attempt: attempt, Delay: delay}
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *Manager) retryConnect(epoch uint64, attempt int) {
	m.mu.Lock()
	if m.epoch != epoch || m.session.State != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	token := m.session.Token
	if m.tokens != nil {
		if fresh, ok := m.tokens.Token(); ok && fresh != "" {
			token = fresh
			m.session.Token = fresh
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	t, err := m.dialer.Dial(ctx, m.cfg.URL, token)
	cancel()
	if err == nil {
		if err := m.establish(epoch, t); err != nil {
			log.Debug().Err(err).Str("module", "realtime").Msg("reconnect superseded")
		}
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.session.State != Reconnecting {
		m.mu.Unlock()
		return
	}
	if attempt >= m.cfg.MaxAttempts {
		m.session.State = Disconnected
		m.mu.Unlock()

		log.Error().Err(err).Str("module", "realtime").Int("attempts", attempt).Msg("giving up reconnecting")
		m.bus.Publish(events.TypeConnectionFailed, events.ConnectionFailed{Attempts: attempt, Err: err})
		return
	}
	next := m.scheduleRetryLocked(epoch, attempt+1)
	m.mu.Unlock()

	log.Warn().Err(err).Str("module", "realtime").Int("attempt", attempt).Msg("reconnect attempt failed")
	m.bus.Publish(events.TypeConnectionReconnecting, next)
}
