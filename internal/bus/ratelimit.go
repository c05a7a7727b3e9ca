package bus

import "time"

// rateLimiter enforces a per-producer fixed-window publish quota.
//
// Each producer gets a counter keyed by the window its first message fell
// into; once the wall clock leaves that window the counter restarts. Fixed
// windows admit up to 2x the limit across a window boundary in the worst
// case, which is an accepted trade for O(1) state per producer.
//
// Not thread-safe; callers hold the bus mutex.
type rateLimiter struct {
	limit  int
	window time.Duration

	counters map[string]*windowCounter
}

type windowCounter struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string]*windowCounter),
	}
}

// allow records one publish attempt for the producer and reports whether it
// fits the current window.
func (r *rateLimiter) allow(producer string, now time.Time) bool {
	c, ok := r.counters[producer]
	if !ok || now.Sub(c.windowStart) >= r.window {
		r.counters[producer] = &windowCounter{windowStart: now, count: 1}
		return true
	}
	c.count++
	return c.count <= r.limit
}

// prune drops counters whose window ended before the cutoff. Called from the
// periodic sweep so idle producers do not accumulate state forever.
func (r *rateLimiter) prune(now time.Time) int {
	pruned := 0
	for producer, c := range r.counters {
		if now.Sub(c.windowStart) >= r.window {
			delete(r.counters, producer)
			pruned++
		}
	}
	return pruned
}
