package core

import "context"

// Frame is a raw text payload carrying one JSON envelope.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Transport is the client end of a signal connection. Read blocks until the
// next frame arrives or the connection is gone.
type Transport interface {
	SignalConnection
	Read() (Frame, error)
}

// Dialer opens a Transport to url, presenting token as a bearer credential.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url, token string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url, token string) (Transport, error) {
	return f(ctx, url, token)
}
