// Package redis provides a lock store backed by Redis. Acquisition relies on
// SET NX with a millisecond expiry; ownership-checked mutations run as Lua
// scripts so the check and the write are atomic server-side. Expiry is
// native to Redis, so no lazy reclamation is needed.
package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

var deleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Store implements the lock store contract using a Redis backend. The value
// stored under each key is the holder's owner token.
type Store struct {
	client *redis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every lock key, e.g. "verrou:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New returns a Store using the provided Redis client. The store takes
// ownership of the client; Close closes it.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Save acquires key for owner via SET NX. A ttl of zero or less stores the
// key without expiration.
func (s *Store) Save(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.SetNX(ctx, s.redisKey(key), owner, ttl).Result()
}

// Extend resets the key's expiry to ttl when owner still holds it.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, s.client, []string{s.redisKey(key)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	return nil
}

// Delete removes the key when owner still holds it.
func (s *Store) Delete(ctx context.Context, key, owner string) error {
	res, err := deleteScript.Run(ctx, s.client, []string{s.redisKey(key)}, owner).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	return nil
}

// ForceDelete removes the key unconditionally.
func (s *Store) ForceDelete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

// Exists reports whether the key is present. Redis removes expired keys
// itself, so presence implies a live hold.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
