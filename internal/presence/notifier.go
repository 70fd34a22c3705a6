// Package presence keeps the roster of peer statuses reported by the server.
package presence

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

// Identity names the local user.
type Identity interface {
	UserID() domain.UserID
}

// Notice is published as presence.notice when a user's status actually changes.
// Previous is empty the first time a user is seen.
type Notice struct {
	UserID   domain.UserID
	Status   domain.Status
	Previous domain.Status
	Self     bool
}

type Notifier struct {
	bus  *events.Bus
	self Identity

	mu     sync.RWMutex
	roster map[domain.UserID]domain.Status
}

func NewNotifier(bus *events.Bus, self Identity) *Notifier {
	return &Notifier{
		bus:    bus,
		self:   self,
		roster: make(map[domain.UserID]domain.Status),
	}
}

// Attach subscribes to status changes. Call it again after a bus reset.
func (n *Notifier) Attach() events.Subscription {
	return events.Handle(n.bus, events.TypeUserStatusChange, func(p events.StatusChange, _ events.Envelope) {
		n.Observe(p)
	})
}

// Observe records a status report and publishes a Notice if it differs from
// what the roster already holds.
func (n *Notifier) Observe(p events.StatusChange) (Notice, bool) {
	n.mu.Lock()
	prev := n.roster[p.UserID]
	if prev == p.Status {
		n.mu.Unlock()
		return Notice{}, false
	}
	n.roster[p.UserID] = p.Status
	n.mu.Unlock()

	notice := Notice{UserID: p.UserID, Status: p.Status, Previous: prev}
	if n.self != nil {
		notice.Self = p.UserID == n.self.UserID()
	}
	log.Debug().
		Str("module", "presence").
		Str("user", string(p.UserID)).
		Str("status", string(p.Status)).
		Str("previous", string(prev)).
		Msg("status changed")
	n.bus.Publish(events.TypePresenceNotice, notice)
	return notice, true
}

func (n *Notifier) Status(id domain.UserID) (domain.Status, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.roster[id]
	return s, ok
}

// Roster returns a copy of every known status.
func (n *Notifier) Roster() map[domain.UserID]domain.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[domain.UserID]domain.Status, len(n.roster))
	for id, s := range n.roster {
		out[id] = s
	}
	return out
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	n.roster = make(map[domain.UserID]domain.Status)
	n.mu.Unlock()
}
