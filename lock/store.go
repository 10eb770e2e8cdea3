package lock

import (
	"context"
	"time"
)

// Store is the capability set every lock backend must expose. Implementations
// must be safe for concurrent use; for networked backends the guarantees hold
// across processes and machines.
//
// A ttl of zero or less means the lease never expires on its own.
type Store interface {
	// Save atomically acquires the key for owner. It returns true if the key
	// was free, or its previous lease had expired, and is now held by owner
	// with the given ttl. It returns false when another live owner holds the
	// key; that case is never an error. Under arbitrary concurrent callers,
	// exactly one caller observes true for a given free-or-expired key.
	Save(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Extend moves the lease expiry to now+ttl. It fails with ErrLockNotOwned
	// when no entry exists for the key or its current owner differs.
	Extend(ctx context.Context, key, owner string, ttl time.Duration) error

	// Delete releases the entry. It fails with ErrLockNotOwned when no entry
	// exists, it is not currently held, or it is held by a different owner.
	// An ownership mismatch is a hard error, never a silent no-op.
	Delete(ctx context.Context, key, owner string) error

	// ForceDelete releases the entry unconditionally. It is a no-op when the
	// entry is absent and never checks ownership.
	ForceDelete(ctx context.Context, key string) error

	// Exists reports whether an entry is present, not expired, and held.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources such as connections and handles.
	Close() error
}
