package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/core/coretest"
	"github.com/dkeye/Parley/internal/core/mocks"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
	"github.com/dkeye/Parley/internal/events/eventstest"
	"github.com/dkeye/Parley/internal/rooms"
)

const (
	wsURL = "ws://chat.test/api/ws"
	wait  = time.Second
	tick  = time.Millisecond
)

type fixture struct {
	clock  *coretest.FakeClock
	dialer *coretest.FakeDialer
	bus    *events.Bus
	rec    *eventstest.Recorder
	m      *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := coretest.NewFakeClock()
	dialer := coretest.NewFakeDialer()
	bus := events.NewBus(clock)
	rec := eventstest.Attach(bus,
		events.TypeConnectionEstablished,
		events.TypeConnectionLost,
		events.TypeConnectionReconnecting,
		events.TypeConnectionFailed,
		events.TypeConnectionClosed,
		events.TypeNewMessage,
		events.TypeUserTyping,
	)
	opts = append([]Option{WithClock(clock)}, opts...)
	m := NewManager(Config{URL: wsURL}, dialer, bus, opts...)
	t.Cleanup(m.Disconnect)
	return &fixture{clock: clock, dialer: dialer, bus: bus, rec: rec, m: m}
}

func TestConnectEstablishes(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))

	s := f.m.Session()
	assert.Equal(t, Connected, s.State)
	assert.Equal(t, domain.UserID("u1"), s.UserID)
	assert.Zero(t, s.ReconnectAttempt)

	calls := f.dialer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, coretest.DialCall{URL: wsURL, Token: "tok"}, calls[0])

	online := eventstest.SentOf(f.dialer.Last().Sent(), events.TypeUserOnline)
	require.Len(t, online, 1)
	assert.Equal(t, events.UserRef{UserID: "u1"}, online[0].Payload)

	established := f.rec.Of(events.TypeConnectionEstablished)
	require.Len(t, established, 1)
	assert.Equal(t, events.ConnectionEstablished{UserID: "u1"}, established[0].Payload)
}

func TestConnectIsNoopForSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Connect(ctx, "u1", "tok"))
	require.NoError(t, f.m.Connect(ctx, "u1", "tok"))

	assert.Len(t, f.dialer.Calls(), 1)
	assert.Equal(t, 1, f.rec.Count(events.TypeConnectionEstablished))
}

func TestConnectAsOtherUserDisconnectsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Connect(ctx, "u1", "tok1"))
	first := f.dialer.Last()
	require.NoError(t, f.m.Connect(ctx, "u2", "tok2"))

	assert.True(t, first.Closed())
	offline := eventstest.SentOf(first.Sent(), events.TypeUserOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, events.UserRef{UserID: "u1"}, offline[0].Payload)

	assert.Equal(t, domain.UserID("u2"), f.m.UserID())
	assert.Equal(t, Connected, f.m.State())
	assert.Len(t, f.dialer.Calls(), 2)
}

func TestConnectValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.m.Connect(ctx, "", "tok"), ErrNoUser)
	assert.ErrorIs(t, f.m.Connect(ctx, "u1", ""), ErrNoToken)
	assert.Equal(t, Disconnected, f.m.State())
	assert.Empty(t, f.dialer.Calls())
}

func TestConnectFallsBackToTokenProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenProvider(ctrl)
	tokens.EXPECT().Token().Return("from-provider", true)

	f := newFixture(t, WithTokenProvider(tokens))
	require.NoError(t, f.m.Connect(context.Background(), "u1", ""))

	calls := f.dialer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "from-provider", calls[0].Token)
}

func TestEmitWhileDisconnected(t *testing.T) {
	f := newFixture(t)

	assert.NotPanics(t, func() {
		assert.False(t, f.m.Emit(events.TypeJoinChannel, events.RoomRef{ID: "c1"}))
	})
}

func TestEmitRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))

	assert.False(t, f.m.Emit(events.TypeSendMessage, events.SendMessage{ChannelID: "c1"}))
	assert.True(t, f.m.Emit(events.TypeSendMessage, events.SendMessage{ChannelID: "c1", UserID: "u1", Content: "hi"}))
	assert.Len(t, eventstest.SentOf(f.dialer.Last().Sent(), events.TypeSendMessage), 1)
}

func TestReconnectBackoffSchedule(t *testing.T) {
	f := newFixture(t)
	f.dialer.FailNext(100)

	err := f.m.Connect(context.Background(), "u1", "tok")
	require.ErrorIs(t, err, coretest.ErrDialRefused)

	for k := 1; k < DefaultMaxAttempts; k++ {
		s := f.m.Session()
		require.Equal(t, Reconnecting, s.State, "before attempt %d", k)
		require.Equal(t, k, s.ReconnectAttempt)

		delay := time.Second << (k - 1)
		f.clock.Advance(delay - time.Millisecond)
		require.Len(t, f.dialer.Calls(), k, "attempt %d fired early", k)
		f.clock.Advance(time.Millisecond)
		require.Len(t, f.dialer.Calls(), k+1, "attempt %d did not fire after %s", k, delay)
	}
	assert.Equal(t, Reconnecting, f.m.State())

	var delays []time.Duration
	for _, env := range f.rec.Of(events.TypeConnectionReconnecting) {
		delays = append(delays, env.Payload.(events.ConnectionReconnecting).Delay)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, delays)
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.dialer.FailNext(1 + DefaultMaxAttempts)

	_ = f.m.Connect(context.Background(), "u1", "tok")
	f.clock.Advance(time.Minute)

	assert.Equal(t, Disconnected, f.m.State())
	assert.Len(t, f.dialer.Calls(), 1+DefaultMaxAttempts)
	assert.Zero(t, f.clock.Pending())

	failed := f.rec.Of(events.TypeConnectionFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, DefaultMaxAttempts, failed[0].Payload.(events.ConnectionFailed).Attempts)

	f.clock.Advance(time.Hour)
	assert.Len(t, f.dialer.Calls(), 1+DefaultMaxAttempts)

	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))
	assert.Equal(t, Connected, f.m.State())
}

func TestDropReconnectsAndReplaysMembership(t *testing.T) {
	f := newFixture(t)
	members := rooms.NewMembership(f.m)
	f.m.SetReplayer(members)

	members.JoinServerRoom("s1")
	members.JoinChannelRoom("c1")
	members.JoinChannelRoom("c2")

	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))
	first := f.dialer.Last()
	assert.Len(t, eventstest.SentOf(first.Sent(), events.TypeJoinChannel), 2)

	first.Drop()
	require.Eventually(t, func() bool { return f.m.State() == Reconnecting }, wait, tick)
	require.Eventually(t, func() bool { return f.rec.Count(events.TypeConnectionLost) == 1 }, wait, tick)

	f.clock.Advance(time.Second)
	require.Equal(t, Connected, f.m.State())

	second := f.dialer.Last()
	require.NotSame(t, first, second)

	var types []events.Type
	var ids []string
	for _, env := range eventstest.Sent(second.Sent()) {
		types = append(types, env.Type)
		if ref, ok := env.Payload.(events.RoomRef); ok {
			ids = append(ids, ref.ID)
		}
	}
	assert.Equal(t, []events.Type{
		events.TypeUserOnline,
		events.TypeJoinServer,
		events.TypeJoinChannel,
		events.TypeJoinChannel,
	}, types)
	assert.Equal(t, []string{"s1", "c1", "c2"}, ids)
	assert.Equal(t, 2, f.rec.Count(events.TypeConnectionEstablished))
}

func TestReconnectPicksUpRotatedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenProvider(ctrl)
	tokens.EXPECT().Token().Return("rotated", true).AnyTimes()

	f := newFixture(t, WithTokenProvider(tokens))
	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))

	f.dialer.Last().Drop()
	require.Eventually(t, func() bool { return f.m.State() == Reconnecting }, wait, tick)
	f.clock.Advance(time.Second)

	calls := f.dialer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "tok", calls[0].Token)
	assert.Equal(t, "rotated", calls[1].Token)
}

func TestDisconnectCancelsBackoff(t *testing.T) {
	f := newFixture(t)
	f.dialer.FailNext(1)

	_ = f.m.Connect(context.Background(), "u1", "tok")
	require.Equal(t, 1, f.clock.Pending())

	f.m.Disconnect()
	assert.Zero(t, f.clock.Pending())
	assert.Equal(t, Disconnected, f.m.State())

	f.clock.Advance(time.Minute)
	assert.Len(t, f.dialer.Calls(), 1)
	assert.Zero(t, f.bus.Count(events.TypeConnectionReconnecting))
}

func TestDisconnectSendsOfflineAndClears(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))
	tr := f.dialer.Last()

	f.m.Disconnect()

	assert.True(t, tr.Closed())
	sent := eventstest.Sent(tr.Sent())
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	assert.Equal(t, events.TypeUserOffline, last.Type)
	assert.Equal(t, events.UserRef{UserID: "u1"}, last.Payload)

	assert.Equal(t, Session{State: Disconnected}, f.m.Session())
	assert.Equal(t, 1, f.rec.Count(events.TypeConnectionClosed))
	assert.Zero(t, f.bus.Count(events.TypeConnectionClosed))

	assert.NotPanics(t, f.m.Disconnect)
	assert.Equal(t, 1, f.rec.Count(events.TypeConnectionClosed))
	assert.False(t, f.m.Emit(events.TypeJoinChannel, events.RoomRef{ID: "c1"}))
}

func TestInboundMalformedFrameIsDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))
	tr := f.dialer.Last()

	tr.Push([]byte(`{"type":`))
	tr.Push([]byte(`{"type":"new_message","payload":{"channelId":"c1"}}`))
	tr.Push([]byte(`{"type":"new_message","payload":{"id":"m1","channelId":"c1","author":{"id":"u2"},"content":"hi"}}`))

	require.Eventually(t, func() bool { return f.rec.Count(events.TypeNewMessage) == 1 }, wait, tick)
	msg := f.rec.Of(events.TypeNewMessage)[0].Payload.(domain.Message)
	assert.Equal(t, domain.MessageID("m1"), msg.ID)
	assert.Equal(t, coretest.Epoch, f.rec.Of(events.TypeNewMessage)[0].ReceivedAt)
	assert.Equal(t, Connected, f.m.State())
}

func TestInboundTypingAliasIsNormalized(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Connect(context.Background(), "u1", "tok"))

	f.dialer.Last().Push([]byte(`{"type":"typing","payload":{"channelId":"c1","userId":"u2","isTyping":true}}`))

	require.Eventually(t, func() bool { return f.rec.Count(events.TypeUserTyping) == 1 }, wait, tick)
	got := f.rec.Of(events.TypeUserTyping)[0].Payload.(events.Typing)
	assert.Equal(t, events.Typing{ChannelID: "c1", UserID: "u2", IsTyping: true}, got)
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Backoff(time.Second, tc.attempt), "attempt %d", tc.attempt)
	}
	assert.Equal(t, MaxBackoff, Backoff(time.Millisecond, 1000))
	assert.Equal(t, MaxBackoff, Backoff(9*time.Second, 40))
	assert.Equal(t, MaxBackoff, Backoff(time.Hour, 1))
	for attempt := 1; attempt <= 200; attempt++ {
		assert.Positive(t, Backoff(30*time.Second, attempt), "attempt %d", attempt)
	}
}

func TestLifecycleOrderWhenTransportDiesAtOnce(t *testing.T) {
	clock := coretest.NewFakeClock()
	bus := events.NewBus(clock)
	rec := eventstest.Attach(bus,
		events.TypeConnectionEstablished,
		events.TypeConnectionLost,
		events.TypeConnectionReconnecting,
	)
	dead := coretest.NewFakeTransport()
	dead.Drop()
	dialer := core.DialerFunc(func(context.Context, string, string) (core.Transport, error) {
		return dead, nil
	})
	m := NewManager(Config{URL: wsURL}, dialer, bus, WithClock(clock))
	t.Cleanup(m.Disconnect)

	require.NoError(t, m.Connect(context.Background(), "u1", "tok"))

	require.Eventually(t, func() bool { return rec.Count(events.TypeConnectionReconnecting) == 1 }, wait, tick)
	assert.Equal(t, []events.Type{
		events.TypeConnectionEstablished,
		events.TypeConnectionLost,
		events.TypeConnectionReconnecting,
	}, rec.Types())
	assert.Equal(t, Reconnecting, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "reconnecting", Reconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
