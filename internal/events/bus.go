package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
)

// Handler reacts to one envelope.
type Handler func(Envelope)

// Subscription identifies a registered handler for Off.
type Subscription struct {
	Type Type
	id   uint64
}

type entry struct {
	id uint64
	fn Handler
}

// Bus is a publish/subscribe registry keyed by event type. Handlers for a type
// run in registration order; a panicking handler is recovered and logged so
// the rest still run and the publisher never sees it.
//
// Dispatch runs on the publisher's goroutine. The read loop, reconnect timers
// and typing expiry timers all publish, so handlers for different events may
// run concurrently and must be safe for that. Handlers may publish in turn.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]entry
	nextID   uint64
	clock    core.Clock
}

func NewBus(clock core.Clock) *Bus {
	if clock == nil {
		clock = core.RealClock()
	}
	return &Bus{
		handlers: make(map[Type][]entry),
		clock:    clock,
	}
}

func (b *Bus) On(t Type, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[t] = append(b.handlers[t], entry{id: b.nextID, fn: h})
	return Subscription{Type: t, id: b.nextID}
}

// Off removes the handler behind s. It reports false if it was already gone.
func (b *Bus) Off(s Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[s.Type]
	for i, e := range list {
		if e.id != s.id {
			continue
		}
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, s.Type)
		} else {
			b.handlers[s.Type] = next
		}
		return true
	}
	return false
}

// Publish stamps payload with the bus clock and dispatches it.
func (b *Bus) Publish(t Type, payload any) {
	b.Dispatch(NewEnvelope(t, payload, b.clock.Now()))
}

func (b *Bus) Dispatch(env Envelope) {
	b.mu.RLock()
	snapshot := append([]entry(nil), b.handlers[env.Type]...)
	b.mu.RUnlock()

	for _, e := range snapshot {
		b.invoke(e, env)
	}
}

func (b *Bus) invoke(e entry, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "events.bus").
				Str("type", string(env.Type)).
				Uint64("handler", e.id).
				Err(fmt.Errorf("%v", r)).
				Msg("handler panicked")
		}
	}()
	e.fn(env)
}

// Reset drops every handler of every type.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.handlers = make(map[Type][]entry)
	b.mu.Unlock()
	log.Debug().Str("module", "events.bus").Msg("all handlers cleared")
}

// Count is the number of handlers registered for t.
func (b *Bus) Count(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// Handle subscribes fn to t, handing it the payload already typed as P.
// Envelopes whose payload is not a P are logged and skipped.
func Handle[P any](b *Bus, t Type, fn func(P, Envelope)) Subscription {
	return b.On(t, func(env Envelope) {
		p, ok := env.Payload.(P)
		if !ok {
			log.Warn().
				Str("module", "events.bus").
				Str("type", string(t)).
				Str("payload", fmt.Sprintf("%T", env.Payload)).
				Msg("unexpected payload type")
			return
		}
		fn(p, env)
	})
}
