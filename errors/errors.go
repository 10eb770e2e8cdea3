// Package errors defines the failure taxonomy shared by the lock state
// machine and every store implementation. Callers match with errors.Is.
package errors

import "errors"

var (
	// ErrLockTimeout is returned by Acquire when the configured attempts are
	// exhausted or the acquisition timeout elapses before the lock is obtained.
	ErrLockTimeout = errors.New("verrou: lock acquisition timed out")

	// ErrLockAlreadyAcquired is returned by TryAcquire when the lock is held
	// by another live owner.
	ErrLockAlreadyAcquired = errors.New("verrou: lock already acquired")

	// ErrLockNotOwned is returned by a store's Extend or Delete when the
	// caller is not the current holder of the lease: the entry is absent, it
	// expired and was reclaimed, or a different owner holds it.
	ErrLockNotOwned = errors.New("verrou: lock not owned by this instance")

	// ErrInvalidDuration is returned when a duration cannot be resolved:
	// an unparsable or negative duration string, or an Extend on a lock that
	// has no TTL and was given none.
	ErrInvalidDuration = errors.New("verrou: invalid duration")
)
