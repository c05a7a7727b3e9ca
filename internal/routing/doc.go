// Package routing evaluates an ordered, runtime-configurable rule set
// against every message on a bus.
//
// The Engine subscribes to all traffic, matches each message against its
// enabled routes in order, applies an optional transform to a working copy,
// and executes the route's actions. Failures are isolated per route and per
// action: one misbehaving route never blocks the rest of the set.
//
// Reconfiguration happens either through direct method calls (Add, Update,
// Remove, Enable, Disable, Clear) or through control messages on the
// administrative control topic. The control path is gated by a guard
// predicate; without a guard every control message is rejected.
package routing
