package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/testutil"
)

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	opts = append([]Option{WithoutSweeper()}, opts...)
	b, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestPublish_DeliversToMatchingSubscribers(t *testing.T) {
	b := newTestBus(t)

	var got []*envelope.Message
	unsub, err := b.Subscribe([]string{"users.*"}, func(m *envelope.Message) error {
		got = append(got, m)
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, b.Publish(&envelope.Message{Topic: "users.list.state", Data: map[string]any{"v": 1}}))
	require.NoError(t, b.Publish(&envelope.Message{Topic: "posts.list.state"}))

	require.Len(t, got, 1)
	assert.Equal(t, "users.list.state", got[0].Topic)
	assert.NotEmpty(t, got[0].ID, "id should be filled during normalization")
	assert.NotZero(t, got[0].TS)

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(1), stats.Delivered)
}

func TestPublish_InsertionOrderDelivery(t *testing.T) {
	b := newTestBus(t)

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := b.Subscribe([]string{"a.b"}, func(*envelope.Message) error {
			order = append(order, name)
			return nil
		}, SubscribeOptions{})
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b"}))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPublish_HandlerFailureIsIsolated(t *testing.T) {
	b := newTestBus(t)

	var after bool
	_, err := b.Subscribe([]string{"a.b"}, func(*envelope.Message) error {
		return errors.New("boom")
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = b.Subscribe([]string{"a.b"}, func(*envelope.Message) error {
		panic("kaboom")
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = b.Subscribe([]string{"a.b"}, func(*envelope.Message) error {
		after = true
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b"}))

	assert.True(t, after, "failing handlers must not block later ones")
	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Errors)
	assert.Equal(t, uint64(1), stats.Delivered)
}

func TestPublish_InvalidMessagesDroppedNotReturned(t *testing.T) {
	b := newTestBus(t)

	require.NoError(t, b.Publish(&envelope.Message{Topic: ""}))
	require.NoError(t, b.Publish(&envelope.Message{Topic: "users.*"}))
	require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b", Data: func() {}}))

	stats := b.Stats()
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, uint64(0), stats.Published)

	// All three drops surface on the error channel.
	for i := 0; i < 3; i++ {
		select {
		case e := <-b.Errors():
			assert.Equal(t, CodeMessageInvalid, e.Code)
		default:
			t.Fatalf("expected 3 error notifications, got %d", i)
		}
	}
}

func TestPublish_RateLimit(t *testing.T) {
	clk := testutil.NewClock()
	b := newTestBus(t,
		WithRateLimit(5, time.Second),
		WithNow(clk.Now),
	)

	for i := 0; i < 6; i++ {
		require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b", Source: "prod-1"}))
	}

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, uint64(5), stats.Published)

	e := <-b.Errors()
	assert.Equal(t, CodeRateLimitExceeded, e.Code)
	assert.Equal(t, "prod-1", e.Source)
	assert.True(t, IsRateLimitError(&e))

	// A different producer has its own window.
	require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b", Source: "prod-2"}))
	assert.Equal(t, uint64(6), b.Stats().Published)

	// The window expiring admits the original producer again.
	clk.Advance(time.Second)
	require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b", Source: "prod-1"}))
	assert.Equal(t, uint64(7), b.Stats().Published)
}

func TestRetained_LRUCapInvariant(t *testing.T) {
	b := newTestBus(t, WithMaxRetained(2))

	for _, topic := range []string{"t1", "t2", "t3"} {
		require.NoError(t, b.Publish(&envelope.Message{Topic: topic, Data: topic, Retain: true}))
	}

	assert.Equal(t, 2, b.RetainedCount())
	assert.Equal(t, uint64(1), b.Stats().RetainedEvicted)

	// t1 was least recently used and must be gone; t2, t3 remain.
	var replayed []string
	_, err := b.Subscribe([]string{"*"}, func(m *envelope.Message) error {
		replayed = append(replayed, m.Topic)
		return nil
	}, SubscribeOptions{Retained: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t3"}, replayed)
}

func TestRetained_TouchProtectsFromEviction(t *testing.T) {
	b := newTestBus(t, WithMaxRetained(2))

	require.NoError(t, b.Publish(&envelope.Message{Topic: "t1", Retain: true}))
	require.NoError(t, b.Publish(&envelope.Message{Topic: "t2", Retain: true}))
	// Re-publishing t1 touches it; t2 becomes the eviction candidate.
	require.NoError(t, b.Publish(&envelope.Message{Topic: "t1", Retain: true}))
	require.NoError(t, b.Publish(&envelope.Message{Topic: "t3", Retain: true}))

	var replayed []string
	_, err := b.Subscribe([]string{"*"}, func(m *envelope.Message) error {
		replayed = append(replayed, m.Topic)
		return nil
	}, SubscribeOptions{Retained: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t3"}, replayed)
}

func TestSubscribe_RetainedReplayIsSynchronous(t *testing.T) {
	b := newTestBus(t)

	require.NoError(t, b.Publish(&envelope.Message{
		Topic:  "app.state",
		Data:   map[string]any{"v": 1},
		Retain: true,
	}))

	var replayed *envelope.Message
	_, err := b.Subscribe([]string{"app.state"}, func(m *envelope.Message) error {
		if replayed == nil {
			replayed = m
		}
		return nil
	}, SubscribeOptions{Retained: true})
	require.NoError(t, err)

	// Replay happened during Subscribe, before any later publish.
	require.NotNil(t, replayed)
	assert.Equal(t, map[string]any{"v": float64(1)}, replayed.Data)
}

func TestSubscribe_RejectsBadPatterns(t *testing.T) {
	b := newTestBus(t, WithGlobalWildcard(false))

	handler := func(*envelope.Message) error { return nil }

	_, err := b.Subscribe([]string{"*"}, handler, SubscribeOptions{})
	require.Error(t, err)
	assert.True(t, IsSubscriptionInvalidError(err))

	_, err = b.Subscribe([]string{"users.*.state"}, handler, SubscribeOptions{})
	require.Error(t, err)
	assert.True(t, IsSubscriptionInvalidError(err))

	assert.Equal(t, 0, b.SubscriptionCount(), "no partial registration on rejection")
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := newTestBus(t)

	unsub, err := b.Subscribe([]string{"a.b"}, func(*envelope.Message) error { return nil }, SubscribeOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, b.SubscriptionCount())

	unsub()
	assert.Equal(t, 0, b.SubscriptionCount())
	unsub() // second call is a no-op
	assert.Equal(t, 0, b.SubscriptionCount())
}

func TestSweep_EvictsDeadSubscriptions(t *testing.T) {
	b := newTestBus(t)

	alive := true
	_, err := b.Subscribe([]string{"a.b"}, func(*envelope.Message) error { return nil },
		SubscribeOptions{OwnerAlive: func() bool { return alive }})
	require.NoError(t, err)
	_, err = b.Subscribe([]string{"a.c"}, func(*envelope.Message) error { return nil }, SubscribeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, b.SweepNow(), "live subscriptions survive sweeps")

	alive = false
	assert.Equal(t, 1, b.SweepNow())
	assert.Equal(t, 1, b.SubscriptionCount())
	assert.Equal(t, uint64(1), b.Stats().SubsCleanedUp)
}

func TestPublish_ReentrantFromHandler(t *testing.T) {
	b := newTestBus(t)

	var final []string
	_, err := b.Subscribe([]string{"step.one"}, func(*envelope.Message) error {
		return b.Publish(&envelope.Message{Topic: "step.two"})
	}, SubscribeOptions{})
	require.NoError(t, err)
	_, err = b.Subscribe([]string{"step.two"}, func(m *envelope.Message) error {
		final = append(final, m.Topic)
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, b.Publish(&envelope.Message{Topic: "step.one"}))
	assert.Equal(t, []string{"step.two"}, final)
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	b, err := New(WithoutSweeper())
	require.NoError(t, err)
	b.Close()
	b.Close() // idempotent

	assert.ErrorIs(t, b.Publish(&envelope.Message{Topic: "a.b"}), ErrClosed)
	_, err = b.Subscribe([]string{"a.b"}, func(*envelope.Message) error { return nil }, SubscribeOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResetStats(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Publish(&envelope.Message{Topic: "a.b"}))
	require.NotZero(t, b.Stats().Published)
	b.ResetStats()
	assert.Zero(t, b.Stats().Published)
}
