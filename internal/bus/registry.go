package bus

import (
	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/topic"
)

// Handler consumes a delivered message. Returning an error (or panicking)
// is counted and logged but never interrupts delivery to other handlers.
//
// Handlers must treat the message as read-only: the same pointer is shared
// across every subscriber matched by one publish.
type Handler func(*envelope.Message) error

// subscription is one (pattern, handler, liveness) registration.
type subscription struct {
	id      string
	pattern string
	handler Handler

	// ownerAlive reports whether the subscribing party still exists.
	// Nil means always alive. The sweep evicts subscriptions whose owner
	// has disappeared without an explicit unsubscribe.
	ownerAlive func() bool
}

func (s *subscription) alive() bool {
	return s.ownerAlive == nil || s.ownerAlive()
}

// registry holds subscriptions in insertion order with an id index.
// Delivery order among subscriptions matching one topic is insertion order.
//
// Not thread-safe; callers hold the bus mutex.
type registry struct {
	ordered []*subscription
	byID    map[string]*subscription
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*subscription)}
}

func (r *registry) add(sub *subscription) {
	r.ordered = append(r.ordered, sub)
	r.byID[sub.id] = sub
}

// remove drops a subscription by id. Idempotent: removing an unknown id is
// a no-op, which makes unsubscribe functions safely re-callable.
func (r *registry) remove(id string) bool {
	sub, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	for i, s := range r.ordered {
		if s == sub {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return true
}

// match returns live subscriptions whose pattern matches the topic, in
// insertion order. The returned slice is a fresh copy so the caller can
// invoke handlers outside the bus mutex.
func (r *registry) match(t string) []*subscription {
	var out []*subscription
	for _, sub := range r.ordered {
		if sub.alive() && topic.Match(t, sub.pattern) {
			out = append(out, sub)
		}
	}
	return out
}

// sweep evicts subscriptions whose owner is gone. Returns the eviction count.
func (r *registry) sweep() int {
	kept := r.ordered[:0]
	evicted := 0
	for _, sub := range r.ordered {
		if sub.alive() {
			kept = append(kept, sub)
			continue
		}
		delete(r.byID, sub.id)
		evicted++
	}
	// Nil out the tail so evicted subscriptions can be collected.
	for i := len(kept); i < len(r.ordered); i++ {
		r.ordered[i] = nil
	}
	r.ordered = kept
	return evicted
}

func (r *registry) len() int {
	return len(r.ordered)
}
