package notify

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// Identity names the local user.
type Identity interface {
	UserID() domain.UserID
}

// Sink receives every notification that passes the policy.
type Sink interface {
	Notify(Notification)
}

type SinkFunc func(Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

type Option func(*Policy)

func WithSink(s Sink) Option { return func(p *Policy) { p.sink = s } }

func WithPreviewLen(n int) Option { return func(p *Policy) { p.previewLen = n } }

// Policy applies Decide to bus traffic. It owns the focused channel; settings
// and status are read fresh for every event.
type Policy struct {
	bus        *events.Bus
	self       Identity
	settings   core.SettingsProvider
	sink       Sink
	previewLen int

	mu      sync.Mutex
	focused domain.ChannelID
}

func NewPolicy(bus *events.Bus, self Identity, settings core.SettingsProvider, opts ...Option) *Policy {
	p := &Policy{
		bus:        bus,
		self:       self,
		settings:   settings,
		previewLen: DefaultPreviewLen,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach subscribes to the notifiable inbound events.
func (p *Policy) Attach() []events.Subscription {
	return []events.Subscription{
		p.bus.On(events.TypeNewMessage, p.consider),
		p.bus.On(events.TypeFriendRequestReceived, p.consider),
		p.bus.On(events.TypeFriendRequestAccepted, p.consider),
	}
}

func (p *Policy) SetFocusedChannel(id domain.ChannelID) {
	p.mu.Lock()
	p.focused = id
	p.mu.Unlock()
}

func (p *Policy) Focused() domain.ChannelID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focused
}

// Evaluate decides on env and, when it passes, publishes notification.show
// and hands it to the sink.
func (p *Policy) Evaluate(env events.Envelope) Decision {
	ctx := Context{
		Focused:    p.Focused(),
		Status:     domain.StatusOnline,
		PreviewLen: p.previewLen,
	}
	if p.self != nil {
		ctx.Self = p.self.UserID()
	}
	if p.settings != nil {
		ctx.Settings = p.settings.Settings()
		ctx.Status = p.settings.Status()
	}

	d := Decide(env, ctx)
	if !d.Show() {
		log.Debug().Str("module", "notify").Str("type", string(env.Type)).Str("reason", string(d.Reason)).Msg("notification suppressed")
		return d
	}
	p.bus.Publish(events.TypeNotification, d.Notification)
	if p.sink != nil {
		p.sink.Notify(d.Notification)
	}
	return d
}

func (p *Policy) consider(env events.Envelope) { p.Evaluate(env) }
