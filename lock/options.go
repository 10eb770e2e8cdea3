package lock

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultDelay is the sleep between acquisition attempts when none is configured.
const DefaultDelay = 250 * time.Millisecond

// RetryConfig controls the Acquire retry loop. Attempts and Timeout are
// independent stopping conditions; whichever triggers first wins.
type RetryConfig struct {
	// Attempts is the maximum number of save attempts. Zero or less means
	// unbounded.
	Attempts int
	// Delay is the fixed sleep between attempts. Zero or less falls back to
	// DefaultDelay. No jitter is added.
	Delay time.Duration
	// Timeout bounds the total wall-clock time spent acquiring. Zero or less
	// means no time bound. It is checked after a failed attempt, never
	// preemptively.
	Timeout time.Duration
}

// Option configures a Lock at construction.
type Option func(*Lock)

// WithOwner sets the owner token instead of generating a random one.
// Supplying it lets a process recover a lease it created earlier; uniqueness
// among concurrently live locks is the caller's responsibility.
func WithOwner(owner string) Option {
	return func(l *Lock) {
		l.owner = owner
	}
}

// WithTTL sets the lease duration used by every acquisition. Zero or less
// means the lease never expires on its own.
func WithTTL(ttl time.Duration) Option {
	return func(l *Lock) {
		l.ttl = ttl
	}
}

// WithRetry sets the default retry policy for Acquire.
func WithRetry(cfg RetryConfig) Option {
	return func(l *Lock) {
		l.retry = cfg
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Lock) {
		l.logger = logger
	}
}

// WithTracing enables OpenTelemetry spans around Acquire, Release and Extend.
func WithTracing() Option {
	return func(l *Lock) {
		l.traceEnabled = true
	}
}

// AcquireOption overrides part of the retry policy for a single Acquire call.
// Unset fields keep the lock's configured defaults.
type AcquireOption func(*RetryConfig)

// WithAttempts overrides the attempt bound for one call. Zero or less means
// unbounded.
func WithAttempts(n int) AcquireOption {
	return func(cfg *RetryConfig) {
		cfg.Attempts = n
	}
}

// WithDelay overrides the sleep between attempts for one call.
func WithDelay(d time.Duration) AcquireOption {
	return func(cfg *RetryConfig) {
		cfg.Delay = d
	}
}

// WithTimeout overrides the wall-clock bound for one call. Zero or less means
// no time bound.
func WithTimeout(d time.Duration) AcquireOption {
	return func(cfg *RetryConfig) {
		cfg.Timeout = d
	}
}
