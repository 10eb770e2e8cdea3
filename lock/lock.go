package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
	"github.com/florian-lefebvre/verrou/metrics"
)

var tracer = otel.Tracer("github.com/florian-lefebvre/verrou/lock")

// Lock is a mutual-exclusion primitive identified by a key and backed by a
// Store. A Lock may be reused for repeated acquire/release cycles, but its
// methods must not be invoked concurrently from multiple goroutines: callers
// racing for the same key use separate Lock instances, and exclusivity is
// enforced at the store boundary, not here.
type Lock struct {
	store        Store
	logger       zerolog.Logger
	key          string
	owner        string
	ttl          time.Duration
	retry        RetryConfig
	traceEnabled bool

	mu        sync.RWMutex
	expiresAt time.Time // zero when unexpired or unbounded; advisory only
}

// New returns a Lock bound to store and key. The owner token is generated
// randomly unless WithOwner is supplied.
func New(store Store, key string, opts ...Option) *Lock {
	l := &Lock{
		store:  store,
		logger: zerolog.Nop(),
		key:    key,
		owner:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the key identifying the protected resource.
func (l *Lock) Key() string { return l.key }

// Owner returns the token identifying this holder.
func (l *Lock) Owner() string { return l.owner }

// TTL returns the configured lease duration. Zero means the lease never
// expires on its own.
func (l *Lock) TTL() time.Duration { return l.ttl }

// Acquire obtains the lock, retrying failed attempts until one of the
// configured bounds is hit. Options override the lock's retry defaults for
// this call only. It fails with ErrLockTimeout when attempts are exhausted or
// the timeout elapses, and with the context error when ctx is cancelled
// during the inter-attempt sleep. A store failure counts as a failed attempt
// and is retried, never propagated.
func (l *Lock) Acquire(ctx context.Context, opts ...AcquireOption) error {
	cfg := l.retry
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}

	if l.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "Lock.Acquire")
		defer span.End()
		span.SetAttributes(attribute.String("verrou.key", l.key))
	}

	l.setExpiresAt(time.Time{})
	start := time.Now()
	for attempt := 1; ; attempt++ {
		ok, err := l.store.Save(ctx, l.key, l.owner, l.ttl)
		if err != nil {
			// A backend hiccup is indistinguishable from "lock held" here;
			// the loop simply retries.
			l.logger.Debug().Err(err).Str("key", l.key).Int("attempt", attempt).
				Msg("lock save attempt errored")
			ok = false
		}
		if ok {
			if l.ttl > 0 {
				l.setExpiresAt(time.Now().Add(l.ttl))
			}
			metrics.Acquisitions.Inc()
			metrics.AcquireWait.Observe(time.Since(start).Seconds())
			l.logger.Debug().Str("key", l.key).Str("owner", l.owner).Int("attempt", attempt).
				Msg("lock acquired")
			return nil
		}
		metrics.AcquireRetries.Inc()
		if cfg.Attempts > 0 && attempt >= cfg.Attempts {
			metrics.AcquireFailures.Inc()
			return fmt.Errorf("%w: key %q after %d attempts", verrouerrors.ErrLockTimeout, l.key, attempt)
		}
		if cfg.Timeout > 0 && time.Since(start) > cfg.Timeout {
			metrics.AcquireFailures.Inc()
			return fmt.Errorf("%w: key %q after %s", verrouerrors.ErrLockTimeout, l.key,
				time.Since(start).Round(time.Millisecond))
		}
		timer := time.NewTimer(cfg.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			metrics.AcquireFailures.Inc()
			return ctx.Err()
		}
	}
}

// TryAcquire makes a single acquisition attempt, with no retry or timeout
// loop. It fails with ErrLockAlreadyAcquired when the key is held.
func (l *Lock) TryAcquire(ctx context.Context) error {
	l.setExpiresAt(time.Time{})
	ok, err := l.store.Save(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		l.logger.Debug().Err(err).Str("key", l.key).Msg("lock save attempt errored")
		ok = false
	}
	if !ok {
		metrics.AcquireFailures.Inc()
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockAlreadyAcquired, l.key)
	}
	if l.ttl > 0 {
		l.setExpiresAt(time.Now().Add(l.ttl))
	}
	metrics.Acquisitions.Inc()
	l.logger.Debug().Str("key", l.key).Str("owner", l.owner).Msg("lock acquired")
	return nil
}

// Run acquires the lock, invokes fn and releases afterward. The release runs
// on every exit path, panics included. fn's error takes precedence over a
// release error; a release failure on its own surfaces normally.
func (l *Lock) Run(ctx context.Context, fn func(ctx context.Context) error, opts ...AcquireOption) (err error) {
	if err := l.Acquire(ctx, opts...); err != nil {
		return err
	}
	defer func() {
		relErr := l.Release(ctx)
		if err == nil {
			err = relErr
		}
	}()
	return fn(ctx)
}

// RunImmediately is Run with a single acquisition attempt instead of the
// retry loop.
func (l *Lock) RunImmediately(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := l.TryAcquire(ctx); err != nil {
		return err
	}
	defer func() {
		relErr := l.Release(ctx)
		if err == nil {
			err = relErr
		}
	}()
	return fn(ctx)
}

// Extend moves the lease expiry to now+ttl. A ttl of zero or less falls back
// to the lock's configured TTL; when the lock has none either, it fails with
// ErrInvalidDuration. The local expiry estimate advances only when the store
// call succeeds.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.ttl
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: lock %q has no TTL and none was provided", verrouerrors.ErrInvalidDuration, l.key)
	}
	if l.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "Lock.Extend")
		defer span.End()
	}
	if err := l.store.Extend(ctx, l.key, l.owner, ttl); err != nil {
		return err
	}
	l.setExpiresAt(time.Now().Add(ttl))
	metrics.Extensions.Inc()
	l.logger.Debug().Str("key", l.key).Dur("ttl", ttl).Msg("lock extended")
	return nil
}

// Release frees the lock. It propagates ErrLockNotOwned when this instance no
// longer owns the lease, for example when it expired and was claimed by
// someone else.
func (l *Lock) Release(ctx context.Context) error {
	if l.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "Lock.Release")
		defer span.End()
	}
	if err := l.store.Delete(ctx, l.key, l.owner); err != nil {
		return err
	}
	l.setExpiresAt(time.Time{})
	metrics.Releases.Inc()
	l.logger.Debug().Str("key", l.key).Str("owner", l.owner).Msg("lock released")
	return nil
}

// ForceRelease frees the lock regardless of who owns it. Intended for
// administrative recovery, not normal flow.
func (l *Lock) ForceRelease(ctx context.Context) error {
	if err := l.store.ForceDelete(ctx, l.key); err != nil {
		return err
	}
	l.setExpiresAt(time.Time{})
	metrics.Releases.Inc()
	l.logger.Debug().Str("key", l.key).Msg("lock force released")
	return nil
}

// IsExpired reports whether the locally estimated lease expiry has passed.
// It is false when no expiry is tracked (never acquired, released, or an
// unbounded TTL) and never consults the store.
func (l *Lock) IsExpired() bool {
	exp := l.expirationTime()
	if exp.IsZero() {
		return false
	}
	return time.Now().After(exp)
}

// RemainingTime returns the time left on the locally estimated lease. ok is
// false when no expiry is tracked. The result turns negative once the lease
// has expired; the sign carries how overdue it is.
func (l *Lock) RemainingTime() (remaining time.Duration, ok bool) {
	exp := l.expirationTime()
	if exp.IsZero() {
		return 0, false
	}
	return time.Until(exp), true
}

// IsLocked reports whether the key is currently held, according to the store.
// Unlike the expiry queries this is authoritative, at the cost of a store
// round trip.
func (l *Lock) IsLocked(ctx context.Context) (bool, error) {
	return l.store.Exists(ctx, l.key)
}

func (l *Lock) setExpiresAt(t time.Time) {
	l.mu.Lock()
	l.expiresAt = t
	l.mu.Unlock()
}

func (l *Lock) expirationTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.expiresAt
}
