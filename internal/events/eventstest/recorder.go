// Package eventstest records bus traffic for assertions.
package eventstest

import (
	"sync"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/core/coretest"
	"github.com/dkeye/Parley/internal/events"
)

// Recorder keeps every envelope it has seen, in arrival order. Safe to read
// while another goroutine dispatches.
type Recorder struct {
	mu   sync.Mutex
	envs []events.Envelope
}

// Attach subscribes a new Recorder to each of types on bus.
func Attach(bus *events.Bus, types ...events.Type) *Recorder {
	r := &Recorder{}
	for _, t := range types {
		bus.On(t, r.record)
	}
	return r
}

func (r *Recorder) record(env events.Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

// All returns a copy of everything recorded.
func (r *Recorder) All() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Envelope(nil), r.envs...)
}

// Of returns the envelopes of type t.
func (r *Recorder) Of(t events.Type) []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Envelope
	for _, e := range r.envs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Count(t events.Type) int { return len(r.Of(t)) }

// Types lists the recorded tags in order.
func (r *Recorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.envs))
	for _, e := range r.envs {
		out = append(out, e.Type)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.envs = nil
	r.mu.Unlock()
}

// Sent decodes every frame in frames, skipping any that fail to parse.
func Sent(frames []core.Frame) []events.Envelope {
	out := make([]events.Envelope, 0, len(frames))
	for _, f := range frames {
		env, err := events.Decode(f, coretest.Epoch)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// SentOf is Sent filtered to type t.
func SentOf(frames []core.Frame, t events.Type) []events.Envelope {
	var out []events.Envelope
	for _, env := range Sent(frames) {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}
