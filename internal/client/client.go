package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strato-bus/strato/internal/bus"
	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/topic"
)

// DefaultRequestTimeout bounds a Request call with no explicit timeout.
const DefaultRequestTimeout = 5 * time.Second

// ErrTimeout is returned when no reply arrives within the request timeout.
var ErrTimeout = errors.New("request timed out")

// Client wraps a bus instance for one logical consumer. Construct with New;
// the zero value is not usable.
type Client struct {
	bus    *bus.Bus
	id     string
	source string
	ids    envelope.IDGenerator
}

// Option configures a Client.
type Option func(*Client)

// WithSource stamps outgoing messages with a producer identity.
// Rate limiting is per source, so distinct clients should set distinct
// sources.
func WithSource(source string) Option {
	return func(c *Client) { c.source = source }
}

// WithIDGenerator replaces the correlation-id generator. Tests use this for
// deterministic reply topics.
func WithIDGenerator(gen envelope.IDGenerator) Option {
	return func(c *Client) { c.ids = gen }
}

// New creates a client over the given bus.
func New(b *bus.Bus, opts ...Option) *Client {
	c := &Client{bus: b, ids: envelope.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(c)
	}
	c.id = c.ids.NewID()
	return c
}

// Ready resolves once the underlying bus is usable. Idempotent: calling it
// repeatedly performs no additional work and never resubscribes anything.
func (c *Client) Ready(ctx context.Context) error {
	if c.bus == nil {
		return errors.New("client has no bus")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Publish stamps the client's source onto the message (unless the caller
// set one) and delegates to the bus.
func (c *Client) Publish(msg *envelope.Message) error {
	if msg.Source == "" {
		msg.Source = c.source
	}
	return c.bus.Publish(msg)
}

// SubscribeOptions configures a facade subscription.
type SubscribeOptions struct {
	// Retained replays retained matching messages during Subscribe.
	Retained bool

	// Signal cancels the subscription when done. Aborting yields exactly
	// one unsubscribe; combining Signal with a manual unsubscribe call is
	// safe because teardown is idempotent.
	Signal context.Context
}

// Subscribe registers the handler for the given topic patterns and returns
// an idempotent unsubscribe function.
func (c *Client) Subscribe(topics []string, handler bus.Handler, opts SubscribeOptions) (func(), error) {
	unsub, err := c.bus.Subscribe(topics, handler, bus.SubscribeOptions{Retained: opts.Retained})
	if err != nil {
		return nil, err
	}
	if opts.Signal != nil {
		go func() {
			<-opts.Signal.Done()
			unsub()
		}()
	}
	return unsub, nil
}

// RequestOptions configures one Request call.
type RequestOptions struct {
	// Timeout bounds the wait for a reply. Zero means DefaultRequestTimeout.
	Timeout time.Duration
}

// Request publishes a request message and waits for the first reply whose
// correlation id matches.
//
// The reply arrives on a private per-request topic, so concurrent requests
// from the same client never see each other's replies. On timeout the call
// returns ErrTimeout; on context cancellation, ctx.Err(). In every case the
// transient reply subscription is removed before Request returns.
func (c *Client) Request(ctx context.Context, reqTopic string, data any, opts RequestOptions) (*envelope.Message, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	correlationID := c.ids.NewID()
	replyTopic := fmt.Sprintf("_reply.%s.%s", c.id, correlationID)

	replyCh := make(chan *envelope.Message, 1)
	unsub, err := c.bus.Subscribe([]string{replyTopic}, func(m *envelope.Message) error {
		if m.CorrelationID != correlationID {
			// A reply for someone else would indicate a topic collision;
			// ignore it rather than resolve the wrong request.
			return nil
		}
		select {
		case replyCh <- m:
		default:
		}
		return nil
	}, bus.SubscribeOptions{})
	if err != nil {
		return nil, err
	}
	defer unsub()

	req := &envelope.Message{
		Topic:         reqTopic,
		Data:          data,
		Source:        c.source,
		ReplyTo:       replyTopic,
		CorrelationID: correlationID,
	}
	if err := c.Publish(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v on %q", ErrTimeout, timeout, reqTopic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Respond publishes a reply to a request message, carrying its correlation
// id back on its ReplyTo topic. Responders call this from their handler.
func (c *Client) Respond(req *envelope.Message, data any) error {
	if req.ReplyTo == "" {
		return errors.New("request has no replyTo topic")
	}
	return c.Publish(&envelope.Message{
		Topic:         req.ReplyTo,
		Data:          data,
		CorrelationID: req.CorrelationID,
	})
}

// Matches exposes topic pattern matching for callers that pre-filter
// without subscribing.
func Matches(t, pattern string) bool {
	return topic.Match(t, pattern)
}
