package bus

import (
	"fmt"
	"sync/atomic"
)

// Counters is the shared monotonic counter set for one bus instance.
//
// The bus core increments the delivery-side counters; the routing engine
// shares the same instance for its evaluation counters so that a stats
// snapshot covers the whole pipeline. Counters only move forward; ResetStats
// is the single sanctioned reset path.
type Counters struct {
	Published       atomic.Uint64
	Delivered       atomic.Uint64
	Dropped         atomic.Uint64
	RetainedEvicted atomic.Uint64
	SubsCleanedUp   atomic.Uint64
	RoutesEvaluated atomic.Uint64
	RoutesMatched   atomic.Uint64
	ActionsExecuted atomic.Uint64
	Errors          atomic.Uint64
}

// StatsSnapshot is the read-only stats query result: the full counter set
// plus the effective configuration.
type StatsSnapshot struct {
	Published       uint64 `json:"published"`
	Delivered       uint64 `json:"delivered"`
	Dropped         uint64 `json:"dropped"`
	RetainedEvicted uint64 `json:"retainedEvicted"`
	SubsCleanedUp   uint64 `json:"subsCleanedUp"`
	RoutesEvaluated uint64 `json:"routesEvaluated"`
	RoutesMatched   uint64 `json:"routesMatched"`
	ActionsExecuted uint64 `json:"actionsExecuted"`
	Errors          uint64 `json:"errors"`

	Retained      int    `json:"retained"`
	Subscriptions int    `json:"subscriptions"`
	Config        Config `json:"config"`
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Published:       c.Published.Load(),
		Delivered:       c.Delivered.Load(),
		Dropped:         c.Dropped.Load(),
		RetainedEvicted: c.RetainedEvicted.Load(),
		SubsCleanedUp:   c.SubsCleanedUp.Load(),
		RoutesEvaluated: c.RoutesEvaluated.Load(),
		RoutesMatched:   c.RoutesMatched.Load(),
		ActionsExecuted: c.ActionsExecuted.Load(),
		Errors:          c.Errors.Load(),
	}
}

// String renders the snapshot as a compact single-line summary.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"published=%d delivered=%d dropped=%d retainedEvicted=%d subsCleanedUp=%d routesEvaluated=%d routesMatched=%d actionsExecuted=%d errors=%d retained=%d subscriptions=%d",
		s.Published, s.Delivered, s.Dropped, s.RetainedEvicted, s.SubsCleanedUp,
		s.RoutesEvaluated, s.RoutesMatched, s.ActionsExecuted, s.Errors,
		s.Retained, s.Subscriptions)
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.Published.Store(0)
	c.Delivered.Store(0)
	c.Dropped.Store(0)
	c.RetainedEvicted.Store(0)
	c.SubsCleanedUp.Store(0)
	c.RoutesEvaluated.Store(0)
	c.RoutesMatched.Store(0)
	c.ActionsExecuted.Store(0)
	c.Errors.Store(0)
}
