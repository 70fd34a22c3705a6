// Package client assembles the real-time sync layer for one signed-in user:
// connection, room membership, typing, presence and notifications.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
	"github.com/dkeye/Parley/internal/notify"
	"github.com/dkeye/Parley/internal/presence"
	"github.com/dkeye/Parley/internal/realtime"
	"github.com/dkeye/Parley/internal/rooms"
	"github.com/dkeye/Parley/internal/typing"
)

// History is the HTTP collaborator consulted when a room is opened.
type History interface {
	ChannelMessages(ctx context.Context, id domain.ChannelID, limit int) ([]domain.Message, error)
	ServerMembers(ctx context.Context, id domain.ServerID) ([]core.MemberDTO, error)
}

type Config struct {
	Realtime     realtime.Config
	Debounce     time.Duration
	RemoteExpiry time.Duration
	PreviewLen   int
	BacklogLimit int
}

type Option func(*options)

type options struct {
	clock    core.Clock
	tokens   core.TokenProvider
	settings core.SettingsProvider
	history  History
	sink     notify.Sink
}

func WithClock(c core.Clock) Option { return func(o *options) { o.clock = c } }
func WithTokenProvider(p core.TokenProvider) Option { return func(o *options) { o.tokens = p } }
func WithSettings(p core.SettingsProvider) Option { return func(o *options) { o.settings = p } }
func WithHistory(h History) Option { return func(o *options) { o.history = h } }
func WithNotificationSink(s notify.Sink) Option { return func(o *options) { o.sink = s } }

type subscription struct {
	t events.Type
	h events.Handler
}

type Client struct {
	cfg      Config
	bus      *events.Bus
	manager  *realtime.Manager
	rooms    *rooms.Membership
	typing   *typing.Coordinator
	remote   *typing.Remote
	policy   *notify.Policy
	presence *presence.Notifier
	history  History

	mu       sync.Mutex
	attached bool
	subs     []subscription
	server   domain.ServerID
	channel  domain.ChannelID
}

func New(cfg Config, dialer core.Dialer, opts ...Option) *Client {
	o := options{clock: core.RealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.NewBus(o.clock)
	mopts := []realtime.Option{realtime.WithClock(o.clock)}
	if o.tokens != nil {
		mopts = append(mopts, realtime.WithTokenProvider(o.tokens))
	}
	m := realtime.NewManager(cfg.Realtime, dialer, bus, mopts...)
	membership := rooms.NewMembership(m)
	m.SetReplayer(membership)

	popts := []notify.Option{notify.WithPreviewLen(cfg.PreviewLen)}
	if o.sink != nil {
		popts = append(popts, notify.WithSink(o.sink))
	}

	return &Client{
		cfg:      cfg,
		bus:      bus,
		manager:  m,
		rooms:    membership,
		typing:   typing.NewCoordinator(m, o.clock, cfg.Debounce),
		remote:   typing.NewRemote(bus, m, o.clock, cfg.RemoteExpiry),
		policy:   notify.NewPolicy(bus, m, o.settings, popts...),
		presence: presence.NewNotifier(bus, m),
		history:  o.history,
	}
}

// On registers h for t for the lifetime of the client. Unlike Bus().On, the
// handler survives Disconnect. h is called from the connection read loop and
// from timer goroutines, possibly at the same time as other handlers, so it
// must guard any state it shares.
func (c *Client) On(t events.Type, h events.Handler) {
	c.mu.Lock()
	c.subs = append(c.subs, subscription{t: t, h: h})
	attached := c.attached
	c.mu.Unlock()
	if attached {
		c.bus.On(t, h)
	}
}

// Connect signs userID in. Switching to another user tears the previous
// session down completely first.
func (c *Client) Connect(ctx context.Context, userID domain.UserID, token string) error {
	if current := c.manager.UserID(); current != "" && current != userID {
		c.Disconnect()
	}
	c.attach()
	return c.manager.Connect(ctx, userID, token)
}

// Disconnect is the logout path: typing stops are sent while the connection
// is still up, then everything local is cleared.
func (c *Client) Disconnect() {
	c.typing.StopAll()
	c.manager.Disconnect()
	// the manager skips its reset when it never had a session
	c.bus.Reset()
	c.remote.Reset()
	c.presence.Reset()
	c.rooms.Clear()
	c.policy.SetFocusedChannel("")

	c.mu.Lock()
	c.attached = false
	c.server = ""
	c.channel = ""
	c.mu.Unlock()
}

func (c *Client) attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return
	}
	c.remote.Attach()
	c.presence.Attach()
	c.policy.Attach()
	for _, s := range c.subs {
		c.bus.On(s.t, s.h)
	}
	c.attached = true
	log.Debug().Str("module", "client").Int("extra", len(c.subs)).Msg("subscribers attached")
}

// OpenServer joins the server room and returns its member list.
func (c *Client) OpenServer(ctx context.Context, id domain.ServerID) ([]core.MemberDTO, error) {
	c.mu.Lock()
	c.server = id
	c.mu.Unlock()

	c.rooms.JoinServerRoom(id)
	if c.history == nil {
		return nil, nil
	}
	return c.history.ServerMembers(ctx, id)
}

// OpenChannel focuses id: typing in the previous channel stops, popups for id
// are replaced by inline rendering, the channel room is joined and the
// backlog fetched. The previous channel room stays joined so its messages
// still notify.
func (c *Client) OpenChannel(ctx context.Context, id domain.ChannelID) ([]domain.Message, error) {
	c.mu.Lock()
	prev := c.channel
	c.channel = id
	c.mu.Unlock()

	if prev != "" && prev != id {
		c.typing.Stop(prev)
	}
	c.policy.SetFocusedChannel(id)
	c.rooms.JoinChannelRoom(id)

	if c.history == nil {
		return nil, nil
	}
	return c.history.ChannelMessages(ctx, id, c.cfg.BacklogLimit)
}

// Keystroke reports local input in the focused channel.
func (c *Client) Keystroke() bool {
	ch := c.Channel()
	if ch == "" {
		return false
	}
	return c.typing.Keystroke(ch)
}

// SendMessage posts to the focused channel. On false the caller should keep
// the draft: nothing was sent and nothing will be retried.
func (c *Client) SendMessage(content string, attachments ...domain.Attachment) bool {
	ch := c.Channel()
	if ch == "" {
		return false
	}
	c.typing.Stop(ch)
	return c.manager.Emit(events.TypeSendMessage, events.SendMessage{
		ChannelID:   ch,
		UserID:      c.manager.UserID(),
		Content:     content,
		Attachments: attachments,
	})
}

func (c *Client) Ping(ctx context.Context) (time.Duration, error) { return c.manager.Ping(ctx) }

func (c *Client) Channel() domain.ChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) Server() domain.ServerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

func (c *Client) Session() realtime.Session { return c.manager.Session() }
func (c *Client) Rooms() rooms.RoomSet { return c.rooms.Snapshot() }
func (c *Client) Typers(id domain.ChannelID) []domain.UserID { return c.remote.Typers(id) }
func (c *Client) Presence() *presence.Notifier { return c.presence }
func (c *Client) Bus() *events.Bus { return c.bus }
