package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/topic"
)

// IDGenerator produces message and subscription identifiers.
type IDGenerator = envelope.IDGenerator

// errorChannelDepth bounds the out-of-band error channel. When full, the
// oldest notification is dropped in favor of the newest; stats still count
// every drop even when its notification is lost.
const errorChannelDepth = 128

// Bus is an explicit per-process bus instance. Construct one with New and
// hand it to collaborators by reference; there is no package-level singleton.
type Bus struct {
	mu sync.Mutex

	config   Config
	retained *retainedStore
	limiter  *rateLimiter
	registry *registry
	counters *Counters
	clock    *Clock

	ids IDGenerator
	now func() time.Time

	errCh  chan BusError
	closed bool

	sweeperOff bool
	sweepStop  chan struct{}
	sweepDone  chan struct{}
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Retained replays currently retained matching messages synchronously
	// during Subscribe, before it returns.
	Retained bool

	// OwnerAlive is polled by the periodic sweep; returning false evicts
	// the subscription. Nil means the owner is always alive.
	OwnerAlive func() bool
}

// New constructs a bus with defaults plus options and starts the
// dead-subscription sweeper.
func New(opts ...Option) (*Bus, error) {
	b := &Bus{
		config: DefaultConfig(),
		ids:    envelope.UUIDv7Generator{},
		now:    time.Now,
		errCh:  make(chan BusError, errorChannelDepth),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("bus config: %w", err)
	}

	b.retained = newRetainedStore(b.config.MaxRetained)
	b.limiter = newRateLimiter(b.config.RateLimit, b.config.RateLimitWindow)
	b.registry = newRegistry()
	b.counters = &Counters{}
	b.clock = NewClock()

	if !b.sweeperOff {
		b.sweepStop = make(chan struct{})
		b.sweepDone = make(chan struct{})
		go b.sweepLoop()
	}
	return b, nil
}

// Publish runs the full pipeline: normalize, validate, rate-limit, retain,
// match, deliver, count.
//
// Validation and rate-limit failures do not surface here; the message is
// dropped, counted, and reported on Errors. The only error returned is
// ErrClosed.
func (b *Bus) Publish(msg *envelope.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	msg.Normalize(b.ids, b.now)

	if err := msg.Validate(envelope.Limits{
		MaxMessageSize: b.config.MaxMessageSize,
		MaxPayloadSize: b.config.MaxPayloadSize,
	}); err != nil {
		b.counters.Dropped.Add(1)
		b.mu.Unlock()
		b.notify(BusError{
			Code:    CodeMessageInvalid,
			Message: err.Error(),
			Topic:   msg.Topic,
			Err:     err,
		})
		return nil
	}

	if !b.limiter.allow(msg.Source, b.now()) {
		b.counters.Dropped.Add(1)
		b.mu.Unlock()
		b.notify(BusError{
			Code:    CodeRateLimitExceeded,
			Message: fmt.Sprintf("producer %q exceeded %d msgs per %v", msg.Source, b.config.RateLimit, b.config.RateLimitWindow),
			Topic:   msg.Topic,
			Source:  msg.Source,
		})
		return nil
	}

	if msg.Retain {
		if evicted, ok := b.retained.set(msg.Topic, msg, b.clock.Next()); ok {
			b.counters.RetainedEvicted.Add(1)
			if b.config.Debug {
				slog.Debug("retained entry evicted", "topic", evicted)
			}
		}
	}

	matched := b.registry.match(msg.Topic)
	b.counters.Published.Add(1)
	b.mu.Unlock()

	// Handlers run outside the mutex so they can publish re-entrantly
	// (routing actions do) without deadlocking.
	for _, sub := range matched {
		b.invoke(sub, msg)
	}
	return nil
}

// invoke runs one handler with panic isolation. A failing handler is
// counted and reported; delivery to subsequent handlers continues.
func (b *Bus) invoke(sub *subscription, msg *envelope.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.counters.Errors.Add(1)
			slog.Error("subscriber handler panicked",
				"topic", msg.Topic, "pattern", sub.pattern, "panic", r)
			b.notify(BusError{
				Code:    CodeHandlerError,
				Message: fmt.Sprintf("handler for %q panicked: %v", sub.pattern, r),
				Topic:   msg.Topic,
			})
		}
	}()

	if err := sub.handler(msg); err != nil {
		b.counters.Errors.Add(1)
		slog.Error("subscriber handler failed",
			"topic", msg.Topic, "pattern", sub.pattern, "error", err)
		b.notify(BusError{
			Code:    CodeHandlerError,
			Message: fmt.Sprintf("handler for %q failed", sub.pattern),
			Topic:   msg.Topic,
			Err:     err,
		})
		return
	}
	b.counters.Delivered.Add(1)
}

// Subscribe validates each pattern, registers one subscription per pattern,
// and returns an idempotent unsubscribe function covering all of them.
//
// With opts.Retained set, every currently retained message matching any
// pattern is replayed synchronously before Subscribe returns, so a caller
// that publishes immediately afterwards observes replay first.
func (b *Bus) Subscribe(patterns []string, handler Handler, opts SubscribeOptions) (func(), error) {
	if handler == nil {
		return nil, &BusError{Code: CodeSubscriptionInvalid, Message: "nil handler"}
	}
	if len(patterns) == 0 {
		return nil, &BusError{Code: CodeSubscriptionInvalid, Message: "no patterns"}
	}

	policy := topic.Policy{AllowGlobalWildcard: b.config.AllowGlobalWildcard}
	for _, p := range patterns {
		if err := topic.ValidatePattern(p, policy); err != nil {
			return nil, &BusError{
				Code:    CodeSubscriptionInvalid,
				Message: err.Error(),
				Topic:   p,
				Err:     err,
			}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(patterns))
	for _, p := range patterns {
		sub := &subscription{
			id:         b.ids.NewID(),
			pattern:    p,
			handler:    handler,
			ownerAlive: opts.OwnerAlive,
		}
		b.registry.add(sub)
		ids = append(ids, sub.id)
	}

	var replay []*envelope.Message
	if opts.Retained {
		replay = b.retained.matching(func(t string) bool {
			for _, p := range patterns {
				if topic.Match(t, p) {
					return true
				}
			}
			return false
		})
	}
	b.mu.Unlock()

	for _, msg := range replay {
		b.invoke(&subscription{pattern: patterns[0], handler: handler}, msg)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, id := range ids {
				b.registry.remove(id)
			}
		})
	}, nil
}

// Errors is the out-of-band notification channel for dropped messages and
// handler failures. The channel is bounded; when observers fall behind, the
// oldest notification is discarded.
func (b *Bus) Errors() <-chan BusError {
	return b.errCh
}

// NotifyError reports a collaborator failure (a routing action error, a
// rejected control message) on the shared error channel so observers see
// the same stream as bus-internal drops.
func (b *Bus) NotifyError(e BusError) {
	b.notify(e)
}

func (b *Bus) notify(e BusError) {
	for {
		select {
		case b.errCh <- e:
			return
		default:
		}
		// Full: discard the oldest and retry.
		select {
		case <-b.errCh:
		default:
		}
	}
}

// Stats returns the read-only counter snapshot plus the effective config.
func (b *Bus) Stats() StatsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.counters.Snapshot()
	snap.Retained = b.retained.len()
	snap.Subscriptions = b.registry.len()
	snap.Config = b.config
	return snap
}

// ResetStats zeroes all counters. The only sanctioned reset path.
func (b *Bus) ResetStats() {
	b.counters.Reset()
}

// Counters exposes the shared counter set for collaborators (the routing
// engine, metric collectors) that account into the same snapshot.
func (b *Bus) Counters() *Counters {
	return b.counters
}

// Config returns the effective configuration.
func (b *Bus) Config() Config {
	return b.config
}

// SubscriptionCount returns the live registration count. Request/reply
// tests use this to prove transient subscriptions are torn down.
func (b *Bus) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.len()
}

// RetainedCount returns the retained-entry count.
func (b *Bus) RetainedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retained.len()
}

// SweepNow runs one dead-subscription sweep and rate-limiter prune,
// returning the number of subscriptions evicted. The background sweeper
// calls this on every tick; tests call it directly.
func (b *Bus) SweepNow() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	evicted := b.registry.sweep()
	if evicted > 0 {
		b.counters.SubsCleanedUp.Add(uint64(evicted))
		if b.config.Debug {
			slog.Debug("dead subscriptions swept", "evicted", evicted)
		}
	}
	b.limiter.prune(b.now())
	return evicted
}

func (b *Bus) sweepLoop() {
	defer close(b.sweepDone)
	ticker := time.NewTicker(b.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.SweepNow()
		case <-b.sweepStop:
			return
		}
	}
}

// Close stops the sweeper and marks the bus closed. Publish and Subscribe
// return ErrClosed afterwards. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	if b.sweepStop != nil {
		close(b.sweepStop)
		<-b.sweepDone
	}
}
