// Package memory provides the reference in-process lock store. It maintains
// one exclusive-access slot per key, acquired non-blockingly, with expired
// leases reclaimed lazily on the next Save rather than by a background
// sweeper. Entries are retained for the lifetime of the store; a key whose
// holder vanished without releasing and whose lease has no TTL can only be
// reclaimed through ForceDelete.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

// entry is the store-side state for one key. The slot's held/free state is
// the ground truth of "is this key currently locked"; owner and expiresAt
// only qualify the current hold.
type entry struct {
	slot      *semaphore.Weighted
	held      bool
	owner     string
	expiresAt time.Time // zero means the lease never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store implements the lock store contract in process memory. It is safe for
// concurrent use and is the default backend for single-process setups.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty in-process store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Save acquires key for owner when the key is free or its previous lease has
// expired. At most one caller observes true for a given free-or-expired key.
func (s *Store) Save(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{slot: semaphore.NewWeighted(1), owner: owner}
		s.entries[key] = e
	}
	// Lazy reclamation: a stale hold is force-released before the attempt.
	if e.held && e.expired(now) {
		e.slot.Release(1)
		e.held = false
	}
	if !e.slot.TryAcquire(1) {
		return false, nil
	}
	e.held = true
	e.owner = owner
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return true, nil
}

// Extend moves the lease expiry to now+ttl without touching the slot.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.held || e.owner != owner {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	e.expiresAt = time.Now().Add(ttl)
	return nil
}

// Delete releases the slot held by owner.
func (s *Store) Delete(ctx context.Context, key, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.held || e.owner != owner {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	e.slot.Release(1)
	e.held = false
	return nil
}

// ForceDelete releases the slot regardless of owner. Absent or free entries
// are a silent no-op.
func (s *Store) ForceDelete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.held {
		e.slot.Release(1)
		e.held = false
	}
	return nil
}

// Exists reports whether the entry is present, held, and not expired.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.held {
		return false, nil
	}
	return !e.expired(time.Now()), nil
}

// Close implements the store contract. The in-process store holds no
// external resources.
func (s *Store) Close() error {
	return nil
}
