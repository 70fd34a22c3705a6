package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Parley/internal/core"
)

var (
	ErrTransportClosed = errors.New("coretest: transport closed")
	ErrDialRefused     = errors.New("coretest: dial refused")
)

// FakeTransport records outbound frames and serves inbound ones pushed by the test.
type FakeTransport struct {
	mu      sync.Mutex
	sent    []core.Frame
	inbound chan core.Frame
	closed  chan struct{}
	once    sync.Once
	dropped bool
	// SendErr, when set, is returned by TrySend instead of recording the frame.
	SendErr error
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		inbound: make(chan core.Frame, 64),
		closed:  make(chan struct{}),
	}
}

func (t *FakeTransport) TrySend(f core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, append(core.Frame(nil), f...))
	return nil
}

func (t *FakeTransport) Close() {
	t.once.Do(func() { close(t.closed) })
}

func (t *FakeTransport) Read() (core.Frame, error) {
	select {
	case f := <-t.inbound:
		return f, nil
	case <-t.closed:
		return nil, ErrTransportClosed
	}
}

// Push queues an inbound frame.
func (t *FakeTransport) Push(f []byte) {
	t.inbound <- core.Frame(f)
}

// Drop simulates the remote side vanishing.
func (t *FakeTransport) Drop() {
	t.mu.Lock()
	t.dropped = true
	t.mu.Unlock()
	t.Close()
}

func (t *FakeTransport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Sent returns a copy of every frame accepted so far.
func (t *FakeTransport) Sent() []core.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Frame(nil), t.sent...)
}

// DialCall records one Dial invocation.
type DialCall struct {
	URL   string
	Token string
}

// FakeDialer hands out a fresh FakeTransport per successful dial.
type FakeDialer struct {
	mu         sync.Mutex
	failNext   int
	calls      []DialCall
	transports []*FakeTransport
}

func NewFakeDialer() *FakeDialer { return &FakeDialer{} }

// FailNext makes the next n dials fail with ErrDialRefused.
func (d *FakeDialer) FailNext(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

func (d *FakeDialer) Dial(ctx context.Context, url, token string) (core.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DialCall{URL: url, Token: token})
	if d.failNext > 0 {
		d.failNext--
		return nil, ErrDialRefused
	}
	t := NewFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *FakeDialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DialCall(nil), d.calls...)
}

// Last is the most recently opened transport, nil if none.
func (d *FakeDialer) Last() *FakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *FakeDialer) Transports() []*FakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeTransport(nil), d.transports...)
}

// Dropped reports whether Drop was used rather than Close.
func (t *FakeTransport) Dropped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
