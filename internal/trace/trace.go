// Package trace records routing evaluations in a fixed-capacity ring
// buffer for introspection and offline analysis.
//
// The Recorder implements routing.Observer. Enabling or disabling it never
// affects routing correctness, only observability overhead; past capacity
// the oldest entries are silently overwritten.
package trace

import (
	"math/rand"
	"sync"
	"time"

	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/routing"
	"github.com/strato-bus/strato/internal/topic"
)

// DefaultCapacity is the ring size when none is configured.
const DefaultCapacity = 500

// Entry is one recorded evaluation: the message and the outcome of every
// route that matched it.
type Entry struct {
	Message *envelope.Message `json:"message"`
	Matched []routing.Outcome `json:"matched"`
	TS      int64             `json:"ts"`
	Seq     uint64            `json:"seq"`
}

// HasError reports whether any matched route failed.
func (e Entry) HasError() bool {
	for _, o := range e.Matched {
		if o.Error != "" {
			return true
		}
	}
	return false
}

// Recorder is the ring buffer. The sequence number only grows; the slot for
// entry n is n modulo capacity, so steady state allocates nothing.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64
	enabled bool

	sample float64
	rng    func() float64
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCapacity sets the ring size. Values below 1 fall back to the default.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.entries = make([]Entry, n)
		}
	}
}

// WithSampleRate down-samples recording to the given probability in [0,1].
func WithSampleRate(rate float64) Option {
	return func(r *Recorder) {
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		r.sample = rate
	}
}

// WithRand replaces the sampling source. Tests inject a deterministic one.
func WithRand(rng func() float64) Option {
	return func(r *Recorder) { r.rng = rng }
}

// WithNow replaces the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates an enabled recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		entries: make([]Entry, DefaultCapacity),
		enabled: true,
		sample:  1,
		rng:     rand.Float64,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetEnabled flips recording on or off. Disabling keeps existing entries.
func (r *Recorder) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

// Enabled reports the recording state.
func (r *Recorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Observe appends one evaluation result, subject to sampling.
func (r *Recorder) Observe(m *envelope.Message, matched []routing.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	if r.sample < 1 && r.rng() >= r.sample {
		return
	}
	copied := make([]routing.Outcome, len(matched))
	copy(copied, matched)
	r.entries[r.seq%uint64(len(r.entries))] = Entry{
		Message: m,
		Matched: copied,
		TS:      r.now().UnixMilli(),
		Seq:     r.seq,
	}
	r.seq++
}

// Len reports the number of live entries, at most the capacity.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Recorder) lenLocked() int {
	if r.seq < uint64(len(r.entries)) {
		return int(r.seq)
	}
	return len(r.entries)
}

// Entries returns the live entries oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entriesLocked()
}

func (r *Recorder) entriesLocked() []Entry {
	n := r.lenLocked()
	out := make([]Entry, 0, n)
	capacity := uint64(len(r.entries))
	start := uint64(0)
	if r.seq > capacity {
		start = r.seq - capacity
	}
	for s := start; s < r.seq; s++ {
		out = append(out, r.entries[s%capacity])
	}
	return out
}

// Query filters recorded entries. Zero-valued fields do not filter.
type Query struct {
	// Topic is a subscription-style pattern matched against each entry's
	// message topic.
	Topic string

	// Source requires exact producer equality.
	Source string

	// Since and Until bound the entry timestamp in milliseconds,
	// inclusive. Zero means unbounded.
	Since int64
	Until int64

	// HasError, when set, selects entries with (or without) a failed
	// route.
	HasError *bool
}

// Find returns matching entries oldest first.
func (r *Recorder) Find(q Query) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if q.Topic != "" && !topic.Match(e.Message.Topic, q.Topic) {
			continue
		}
		if q.Source != "" && e.Message.Source != q.Source {
			continue
		}
		if q.Since != 0 && e.TS < q.Since {
			continue
		}
		if q.Until != 0 && e.TS > q.Until {
			continue
		}
		if q.HasError != nil && e.HasError() != *q.HasError {
			continue
		}
		out = append(out, e)
	}
	return out
}
