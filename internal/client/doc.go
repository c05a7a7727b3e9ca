// Package client provides the ergonomic facade over the bus core:
// publish/subscribe with cancellation signals, readiness, and exactly-once
// correlated request/reply.
//
// Request generates a unique correlation id and a private reply topic per
// call, subscribes to it, publishes the request, and resolves with the first
// matching reply. The transient reply subscription is torn down on every
// exit path (reply, timeout, or caller cancellation) so no request leaks a
// subscription.
package client
