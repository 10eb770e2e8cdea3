// Package lock implements a distributed mutual-exclusion primitive backed by
// a pluggable Store. A Lock is bound to one store and one key; acquisition
// retries with a fixed delay under two independent bounds (attempt count and
// wall-clock timeout), and a held lease can be extended or released while
// held. Exclusivity across processes is enforced entirely by the store's
// atomic Save; the Lock itself only tracks a local, advisory estimate of the
// lease expiry: IsExpired and RemainingTime never consult the store, while
// IsLocked does and is therefore authoritative.
package lock
