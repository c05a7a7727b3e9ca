package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-bus/strato/internal/bus"
	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/testutil"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(bus.WithoutSweeper())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestReady_Idempotent(t *testing.T) {
	b := newTestBus(t)
	c := New(b)

	require.NoError(t, c.Ready(context.Background()))
	require.NoError(t, c.Ready(context.Background()))
	assert.Equal(t, 0, b.SubscriptionCount(), "ready must not subscribe anything")
}

func TestPublish_StampsSource(t *testing.T) {
	b := newTestBus(t)
	c := New(b, WithSource("svc-a"))

	var got *envelope.Message
	_, err := b.Subscribe([]string{"a.b"}, func(m *envelope.Message) error {
		got = m
		return nil
	}, bus.SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, c.Publish(&envelope.Message{Topic: "a.b"}))
	require.NotNil(t, got)
	assert.Equal(t, "svc-a", got.Source)

	// An explicit source wins over the client default.
	require.NoError(t, c.Publish(&envelope.Message{Topic: "a.b", Source: "other"}))
	assert.Equal(t, "other", got.Source)
}

func TestRequest_RoundTrip(t *testing.T) {
	b := newTestBus(t)
	requester := New(b, WithSource("requester"))
	responder := New(b, WithSource("responder"))

	_, err := responder.Subscribe([]string{"svc.op"}, func(req *envelope.Message) error {
		x := req.Data.(map[string]any)["x"].(float64)
		return responder.Respond(req, map[string]any{"doubled": x * 2})
	}, SubscribeOptions{})
	require.NoError(t, err)

	reply, err := requester.Request(context.Background(), "svc.op",
		map[string]any{"x": float64(21)}, RequestOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, float64(42), reply.Data.(map[string]any)["doubled"])

	// The transient reply subscription is gone; only the responder remains.
	assert.Equal(t, 1, b.SubscriptionCount())
}

func TestRequest_UsesPrivateReplyTopic(t *testing.T) {
	b := newTestBus(t)
	requester := New(b, WithIDGenerator(testutil.NewSequentialIDGenerator("req")))
	responder := New(b)

	var seen *envelope.Message
	_, err := responder.Subscribe([]string{"svc.op"}, func(req *envelope.Message) error {
		seen = req
		return responder.Respond(req, "done")
	}, SubscribeOptions{})
	require.NoError(t, err)

	// The client id is the generator's first value; the correlation id is
	// the second.
	_, err = requester.Request(context.Background(), "svc.op", nil, RequestOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "req-2", seen.CorrelationID)
	assert.Equal(t, "_reply.req-1.req-2", seen.ReplyTo)
}

func TestRequest_TimeoutWithNoResponder(t *testing.T) {
	b := newTestBus(t)
	c := New(b)
	baseline := b.SubscriptionCount()

	start := time.Now()
	_, err := c.Request(context.Background(), "svc.op", map[string]any{"x": 1},
		RequestOptions{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, baseline, b.SubscriptionCount(), "no dangling reply subscription")
}

func TestRequest_ContextCancellation(t *testing.T) {
	b := newTestBus(t)
	c := New(b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Request(ctx, "svc.op", nil, RequestOptions{Timeout: time.Second})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.SubscriptionCount())
}

func TestRequest_ConcurrentRequestsDoNotCrossReplies(t *testing.T) {
	b := newTestBus(t)
	requester := New(b)
	responder := New(b)

	_, err := responder.Subscribe([]string{"svc.echo"}, func(req *envelope.Message) error {
		return responder.Respond(req, req.Data)
	}, SubscribeOptions{})
	require.NoError(t, err)

	done := make(chan string, 2)
	for _, payload := range []string{"one", "two"} {
		payload := payload
		go func() {
			reply, err := requester.Request(context.Background(), "svc.echo", payload,
				RequestOptions{Timeout: time.Second})
			if err != nil {
				done <- "error: " + err.Error()
				return
			}
			if reply.Data.(string) != payload {
				done <- "mismatch"
				return
			}
			done <- payload
		}()
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-done:
			got[v] = true
		case <-time.After(2 * time.Second):
			t.Fatal("request did not complete")
		}
	}
	assert.True(t, got["one"] && got["two"], "each request saw its own reply: %v", got)
}

func TestSubscribe_SignalCancelsExactlyOnce(t *testing.T) {
	b := newTestBus(t)
	c := New(b)

	ctx, cancel := context.WithCancel(context.Background())
	unsub, err := c.Subscribe([]string{"a.b"}, func(*envelope.Message) error { return nil },
		SubscribeOptions{Signal: ctx})
	require.NoError(t, err)
	require.Equal(t, 1, b.SubscriptionCount())

	cancel()
	require.Eventually(t, func() bool {
		return b.SubscriptionCount() == 0
	}, time.Second, 5*time.Millisecond)

	// Manual unsubscribe after signal teardown is a safe no-op.
	unsub()
	assert.Equal(t, 0, b.SubscriptionCount())
}

func TestMatches_StaticHelper(t *testing.T) {
	assert.True(t, Matches("users.list.state", "users.*"))
	assert.False(t, Matches("users.list.state", "posts.*"))
}
