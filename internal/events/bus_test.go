package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/core/coretest"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		bus.On(TypeNewMessage, func(Envelope) { order = append(order, i) })
	}
	bus.On(TypeMessageDeleted, func(Envelope) { order = append(order, 99) })

	bus.Publish(TypeNewMessage, nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBusIsolatesPanickingHandler(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	var got []any
	bus.On(TypeUserStatusChange, func(Envelope) { panic("boom") })
	bus.On(TypeUserStatusChange, func(env Envelope) { got = append(got, env.Payload) })

	payload := StatusChange{UserID: "u2", Status: "dnd"}
	require.NotPanics(t, func() { bus.Publish(TypeUserStatusChange, payload) })

	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}

func TestBusOffRemovesOnlyThatHandler(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	calls := map[string]int{}
	a := bus.On(TypeTyping, func(Envelope) { calls["a"]++ })
	bus.On(TypeTyping, func(Envelope) { calls["b"]++ })

	assert.True(t, bus.Off(a))
	assert.False(t, bus.Off(a), "second Off is a no-op")
	bus.Publish(TypeTyping, nil)

	assert.Equal(t, 0, calls["a"])
	assert.Equal(t, 1, calls["b"])
	assert.Equal(t, 1, bus.Count(TypeTyping))
}

func TestBusResetClearsEverything(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	called := false
	bus.On(TypeNewMessage, func(Envelope) { called = true })
	bus.On(TypeConnectionLost, func(Envelope) { called = true })

	bus.Reset()
	bus.Publish(TypeNewMessage, nil)
	bus.Publish(TypeConnectionLost, nil)

	assert.False(t, called)
	assert.Zero(t, bus.Count(TypeNewMessage))
}

func TestBusStampsEnvelopeWithClock(t *testing.T) {
	clock := coretest.NewFakeClock()
	bus := NewBus(clock)
	var env Envelope
	bus.On(TypePingAck, func(e Envelope) { env = e })

	bus.Publish(TypePingAck, Ping{ID: "x"})

	assert.Equal(t, TypePingAck, env.Type)
	assert.Equal(t, coretest.Epoch, env.ReceivedAt)
}

func TestHandleTypesThePayload(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	var got []FriendRequest
	Handle(bus, TypeFriendRequestReceived, func(p FriendRequest, _ Envelope) { got = append(got, p) })

	bus.Publish(TypeFriendRequestReceived, FriendRequest{From: "u9", FromName: "Nine"})
	bus.Publish(TypeFriendRequestReceived, "not a friend request")

	require.Len(t, got, 1)
	assert.Equal(t, "Nine", got[0].FromName)
}

func TestHandlerMayUnsubscribeDuringDispatch(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	var sub Subscription
	n := 0
	sub = bus.On(TypeNewMessage, func(Envelope) {
		n++
		bus.Off(sub)
	})

	bus.Publish(TypeNewMessage, nil)
	bus.Publish(TypeNewMessage, nil)

	assert.Equal(t, 1, n)
}

func TestHandlerMayPublish(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	var got []Type
	bus.On(TypeUserTyping, func(Envelope) {
		got = append(got, TypeUserTyping)
		bus.Publish(TypeTypingChanged, nil)
	})
	bus.On(TypeTypingChanged, func(Envelope) { got = append(got, TypeTypingChanged) })

	bus.Publish(TypeUserTyping, nil)

	assert.Equal(t, []Type{TypeUserTyping, TypeTypingChanged}, got)
}

func TestConcurrentPublishersReachEveryHandler(t *testing.T) {
	bus := NewBus(coretest.NewFakeClock())
	var (
		mu sync.Mutex
		n  int
	)
	for _, typ := range []Type{TypeNewMessage, TypeConnectionReconnecting, TypeTypingChanged} {
		bus.On(typ, func(Envelope) {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for _, typ := range []Type{TypeNewMessage, TypeConnectionReconnecting, TypeTypingChanged} {
		wg.Add(1)
		go func(typ Type) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(typ, nil)
			}
		}(typ)
	}
	wg.Wait()

	assert.Equal(t, 150, n)
}
