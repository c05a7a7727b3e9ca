// Package bus implements the topic-addressed publish/subscribe core.
//
// A Bus orchestrates publish as validate → rate-limit → retain → match →
// deliver → count. Handlers run synchronously, in subscription insertion
// order, within the publishing call; a failing handler is isolated and never
// interrupts delivery to the rest.
//
// # Delivery model
//
// The bus is built for a cooperative, effectively single-threaded caller: one
// publish performs the whole pipeline in a single logical turn. Shared state
// (retained store, subscription registry, counters) is guarded by one
// coarse mutex per bus instance; operations under it are short and CPU-bound,
// so fine-grained locking buys nothing. Handler invocation happens outside
// the mutex against a snapshot of the matching subscriptions, which keeps
// re-entrant publishes from handlers (routing actions do this) deadlock-free.
//
// Ordering: a single producer publishing on one topic is delivered to a given
// subscriber in publish order. No ordering is guaranteed across producers.
//
// # Bounded memory
//
// Three mechanisms bound memory under unbounded traffic:
//   - retained messages live in an LRU store capped at MaxRetained entries
//   - per-producer fixed-window rate limiting drops excess publishes
//   - a periodic sweep evicts subscriptions whose owner is gone
//
// Validation and rate-limit failures never surface as errors to the
// publishing caller. They are dropped, counted, and reported out-of-band on
// the Errors channel.
package bus
