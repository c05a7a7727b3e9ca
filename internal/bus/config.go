package bus

import (
	"fmt"
	"time"
)

// Config holds the recognized bus options.
type Config struct {
	// MaxRetained caps retained-entry count; LRU eviction beyond.
	MaxRetained int `json:"maxRetained"`

	// MaxMessageSize rejects envelopes larger than this many bytes.
	MaxMessageSize int `json:"maxMessageSize"`

	// MaxPayloadSize rejects payloads larger than this many bytes.
	MaxPayloadSize int `json:"maxPayloadSize"`

	// CleanupInterval is the dead-subscription sweep period.
	CleanupInterval time.Duration `json:"cleanupInterval"`

	// RateLimit is the max messages per producer per window.
	RateLimit int `json:"rateLimit"`

	// RateLimitWindow is the rate-limit window length.
	RateLimitWindow time.Duration `json:"rateLimitWindow"`

	// AllowGlobalWildcard permits "*" pattern subscriptions.
	AllowGlobalWildcard bool `json:"allowGlobalWildcard"`

	// Debug enables verbose diagnostic logging.
	Debug bool `json:"debug"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetained:         1000,
		MaxMessageSize:      1 << 20,  // 1 MB
		MaxPayloadSize:      512 << 10, // 512 KB
		CleanupInterval:     30 * time.Second,
		RateLimit:           1000,
		RateLimitWindow:     time.Second,
		AllowGlobalWildcard: true,
	}
}

// Validate rejects non-positive limits that would make the bus drop
// everything or retain nothing by accident.
func (c Config) Validate() error {
	if c.MaxRetained < 0 {
		return fmt.Errorf("maxRetained must be >= 0, got %d", c.MaxRetained)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("maxMessageSize must be > 0, got %d", c.MaxMessageSize)
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("maxPayloadSize must be > 0, got %d", c.MaxPayloadSize)
	}
	if c.MaxPayloadSize > c.MaxMessageSize {
		return fmt.Errorf("maxPayloadSize (%d) exceeds maxMessageSize (%d)", c.MaxPayloadSize, c.MaxMessageSize)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanupInterval must be > 0, got %v", c.CleanupInterval)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rateLimit must be > 0, got %d", c.RateLimit)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rateLimitWindow must be > 0, got %v", c.RateLimitWindow)
	}
	return nil
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(b *Bus) { b.config = cfg }
}

// WithMaxRetained caps the retained store.
func WithMaxRetained(n int) Option {
	return func(b *Bus) { b.config.MaxRetained = n }
}

// WithRateLimit sets the per-producer limit and window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(b *Bus) {
		b.config.RateLimit = limit
		b.config.RateLimitWindow = window
	}
}

// WithCleanupInterval sets the dead-subscription sweep period.
func WithCleanupInterval(d time.Duration) Option {
	return func(b *Bus) { b.config.CleanupInterval = d }
}

// WithGlobalWildcard toggles the "*" subscription policy.
func WithGlobalWildcard(allow bool) Option {
	return func(b *Bus) { b.config.AllowGlobalWildcard = allow }
}

// WithIDGenerator replaces the message id generator.
// Tests use this with a fixed generator for deterministic traces.
func WithIDGenerator(gen IDGenerator) Option {
	return func(b *Bus) { b.ids = gen }
}

// WithNow replaces the wall-clock source. Tests use this to pin timestamps
// and to drive the rate-limit window deterministically.
func WithNow(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithoutSweeper disables the background sweep goroutine. The sweep can
// still be driven manually via SweepNow. Tests use this to control timing.
func WithoutSweeper() Option {
	return func(b *Bus) { b.sweeperOff = true }
}
