package events

import "time"

// Envelope wraps one event with its tag and arrival time. Treat it as a value:
// subscribers get a copy and must not mutate the payload.
type Envelope struct {
	Type       Type
	Payload    any
	ReceivedAt time.Time
}

func NewEnvelope(t Type, payload any, at time.Time) Envelope {
	return Envelope{Type: t, Payload: payload, ReceivedAt: at}
}
