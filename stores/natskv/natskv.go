// Package natskv provides a lock store backed by a NATS JetStream key-value
// bucket. Acquisition uses the bucket's per-key create/update revision CAS:
// Create wins a free key, and a stale lease is reclaimed by updating against
// the revision that was read. The lease expiry lives inside the stored value,
// checked lazily, since JetStream KV has no per-key TTL.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

const defaultBucket = "verrou_locks"

// record is the stored value for one lease. A zero ExpiresAt means the lease
// never expires on its own.
type record struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store implements the lock store contract on a JetStream KV bucket.
type Store struct {
	conn   *nats.Conn
	kv     nats.KeyValue
	bucket string
}

// Option configures a Store.
type Option func(*Store)

// WithBucket sets the KV bucket name. The default is "verrou_locks".
func WithBucket(name string) Option {
	return func(s *Store) {
		s.bucket = name
	}
}

// New returns a Store using the provided NATS connection, creating the KV
// bucket when it does not exist yet. The store takes ownership of the
// connection; Close closes it.
func New(conn *nats.Conn, opts ...Option) (*Store, error) {
	s := &Store{conn: conn, bucket: defaultBucket}
	for _, opt := range opts {
		opt(s)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, err
	}
	kv, err := js.KeyValue(s.bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: s.bucket})
	}
	if err != nil {
		return nil, err
	}
	s.kv = kv
	return s, nil
}

// casConflict reports whether err is a revision mismatch, meaning the entry
// changed hands between our read and write.
func casConflict(err error) bool {
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

// Save acquires key for owner. A free key is taken with Create; a key whose
// recorded lease has expired is reclaimed with a revision-checked Update.
func (s *Store) Save(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := time.Now()
	rec := record{Owner: owner}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	_, err = s.kv.Create(key, data)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, nats.ErrKeyExists) {
		return false, err
	}

	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			// Released between our Create and Get; one more try.
			if _, err := s.kv.Create(key, data); err != nil {
				return false, nil
			}
			return true, nil
		}
		return false, err
	}
	var cur record
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return false, err
	}
	if !cur.expired(now) {
		return false, nil
	}
	if _, err := s.kv.Update(key, data, entry.Revision()); err != nil {
		if casConflict(err) {
			// Lost the reclaim race.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Extend moves the lease expiry to now+ttl when owner still holds the key.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
		}
		return err
	}
	var cur record
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return err
	}
	if cur.Owner != owner {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	data, err := json.Marshal(record{Owner: owner, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return err
	}
	if _, err := s.kv.Update(key, data, entry.Revision()); err != nil {
		if casConflict(err) {
			return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
		}
		return err
	}
	return nil
}

// Delete removes the key when owner still holds it.
func (s *Store) Delete(ctx context.Context, key, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
		}
		return err
	}
	var cur record
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return err
	}
	if cur.Owner != owner {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	if err := s.kv.Delete(key, nats.LastRevision(entry.Revision())); err != nil {
		if casConflict(err) {
			return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
		}
		return err
	}
	return nil
}

// ForceDelete removes the key unconditionally.
func (s *Store) ForceDelete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.kv.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return err
	}
	return nil
}

// Exists reports whether a live lease is recorded for the key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	var cur record
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return false, err
	}
	return !cur.expired(time.Now()), nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
