package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// Changed is published as typing.changed whenever the set of peers typing in
// a channel changes.
type Changed struct {
	ChannelID domain.ChannelID
	Users     []domain.UserID
}

type remoteEntry struct {
	timer core.Timer
}

// Remote tracks which peers are typing. A stop signal may never arrive, so
// every start carries its own expiry; a renewed start pushes it back.
type Remote struct {
	bus    *events.Bus
	self   Identity
	clock  core.Clock
	expiry time.Duration

	mu     sync.Mutex
	typers map[domain.ChannelID]map[domain.UserID]*remoteEntry
}

func NewRemote(bus *events.Bus, self Identity, clock core.Clock, expiry time.Duration) *Remote {
	if clock == nil {
		clock = core.RealClock()
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Remote{
		bus:    bus,
		self:   self,
		clock:  clock,
		expiry: expiry,
		typers: make(map[domain.ChannelID]map[domain.UserID]*remoteEntry),
	}
}

// Attach subscribes to inbound typing events. Call it again after a bus reset.
func (r *Remote) Attach() events.Subscription {
	return events.Handle(r.bus, events.TypeUserTyping, func(p events.Typing, _ events.Envelope) {
		r.Observe(p)
	})
}

// Observe applies one inbound typing signal.
func (r *Remote) Observe(p events.Typing) {
	if r.self != nil && p.UserID == r.self.UserID() {
		return
	}

	r.mu.Lock()
	users := r.typers[p.ChannelID]
	prev, known := users[p.UserID]
	if known {
		prev.timer.Stop()
	}

	changed := false
	if p.IsTyping {
		if users == nil {
			users = make(map[domain.UserID]*remoteEntry)
			r.typers[p.ChannelID] = users
		}
		e := &remoteEntry{}
		e.timer = r.clock.AfterFunc(r.expiry, func() { r.expire(p.ChannelID, p.UserID, e) })
		users[p.UserID] = e
		changed = !known
	} else if known {
		r.removeLocked(p.ChannelID, p.UserID)
		changed = true
	}
	var now []domain.UserID
	if changed {
		now = r.typersLocked(p.ChannelID)
	}
	r.mu.Unlock()

	if changed {
		r.bus.Publish(events.TypeTypingChanged, Changed{ChannelID: p.ChannelID, Users: now})
	}
}

// Typers lists the peers currently typing in channel, sorted.
func (r *Remote) Typers(channel domain.ChannelID) []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typersLocked(channel)
}

// Reset forgets everyone and cancels every expiry.
func (r *Remote) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, users := range r.typers {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	r.typers = make(map[domain.ChannelID]map[domain.UserID]*remoteEntry)
}

func (r *Remote) expire(channel domain.ChannelID, user domain.UserID, e *remoteEntry) {
	r.mu.Lock()
	if r.typers[channel][user] != e {
		r.mu.Unlock()
		return
	}
	r.removeLocked(channel, user)
	now := r.typersLocked(channel)
	r.mu.Unlock()

	r.bus.Publish(events.TypeTypingChanged, Changed{ChannelID: channel, Users: now})
}

func (r *Remote) removeLocked(channel domain.ChannelID, user domain.UserID) {
	users := r.typers[channel]
	delete(users, user)
	if len(users) == 0 {
		delete(r.typers, channel)
	}
}

func (r *Remote) typersLocked(channel domain.ChannelID) []domain.UserID {
	out := make([]domain.UserID, 0, len(r.typers[channel]))
	for u := range r.typers[channel] {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
