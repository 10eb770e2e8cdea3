package lock

import "time"

// Serialized is the persistable snapshot of a Lock, sufficient for another
// process to adopt the same lease by owner token.
type Serialized struct {
	Key       string        `json:"key"`
	Owner     string        `json:"owner"`
	TTL       time.Duration `json:"ttl"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Serialize returns the lock's identity and locally estimated expiry.
func (l *Lock) Serialize() Serialized {
	return Serialized{
		Key:       l.key,
		Owner:     l.owner,
		TTL:       l.ttl,
		ExpiresAt: l.expirationTime(),
	}
}

// Restore rebuilds a Lock from a Serialized snapshot against store. The
// restored lock carries the original owner token and may release or extend
// the lease the snapshot refers to.
func Restore(store Store, s Serialized, opts ...Option) *Lock {
	l := New(store, s.Key, WithOwner(s.Owner), WithTTL(s.TTL))
	for _, opt := range opts {
		opt(l)
	}
	l.setExpiresAt(s.ExpiresAt)
	return l
}
