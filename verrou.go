// Package verrou implements distributed locking over pluggable stores.
// A Verrou binds one store to a set of defaults (TTL, retry policy, logger)
// and mints locks from it; each lock is identified by a key shared across
// all competitors and an owner token unique to one holder. Stores for
// process memory, Redis, SQL databases, NATS JetStream KV and etcd live
// under stores/.
package verrou

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/florian-lefebvre/verrou/lock"
)

// Verrou creates locks bound to one store, applying shared defaults.
type Verrou struct {
	store      lock.Store
	logger     zerolog.Logger
	defaultTTL time.Duration
	retry      lock.RetryConfig
	tracing    bool
}

// Option configures a Verrou.
type Option func(*Verrou)

// WithLogger sets the logger handed to every created lock. The default
// discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Verrou) {
		v.logger = logger
	}
}

// WithDefaultTTL sets the lease duration applied by CreateLock. Zero means
// leases never expire on their own.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(v *Verrou) {
		v.defaultTTL = ttl
	}
}

// WithRetry sets the default retry policy for every created lock.
func WithRetry(cfg lock.RetryConfig) Option {
	return func(v *Verrou) {
		v.retry = cfg
	}
}

// WithTracing enables OpenTelemetry spans on every created lock.
func WithTracing() Option {
	return func(v *Verrou) {
		v.tracing = true
	}
}

// New returns a Verrou bound to store.
func New(store lock.Store, opts ...Option) *Verrou {
	v := &Verrou{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verrou) lockOptions(extra ...lock.Option) []lock.Option {
	opts := []lock.Option{
		lock.WithRetry(v.retry),
		lock.WithLogger(v.logger),
	}
	if v.tracing {
		opts = append(opts, lock.WithTracing())
	}
	return append(opts, extra...)
}

// CreateLock returns a lock on key with the configured default TTL and a
// freshly generated owner token.
func (v *Verrou) CreateLock(key string) *lock.Lock {
	return lock.New(v.store, key, v.lockOptions(lock.WithTTL(v.defaultTTL))...)
}

// CreateLockWithTTL is CreateLock with an explicit lease duration. Zero or
// less means the lease never expires on its own.
func (v *Verrou) CreateLockWithTTL(key string, ttl time.Duration) *lock.Lock {
	return lock.New(v.store, key, v.lockOptions(lock.WithTTL(ttl))...)
}

// RestoreLock adopts a previously serialized lease, owner token included.
func (v *Verrou) RestoreLock(s lock.Serialized) *lock.Lock {
	return lock.Restore(v.store, s, v.lockOptions()...)
}

// Close tears down the underlying store.
func (v *Verrou) Close() error {
	return v.store.Close()
}
