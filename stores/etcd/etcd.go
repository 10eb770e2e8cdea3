// Package etcd provides a lock store backed by etcd. Acquisition is a
// transaction that puts the key only when it does not exist yet, attaching a
// lease whose server-side expiry stands in for lazy reclamation. etcd leases
// have one-second granularity, so sub-second TTLs round up to a second.
package etcd

import (
	"context"
	"fmt"
	"math"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

const defaultOpTimeout = 5 * time.Second

// Store implements the lock store contract using an etcd backend. The value
// stored under each key is the holder's owner token.
type Store struct {
	client  *clientv3.Client
	prefix  string
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every lock key, e.g. "verrou/".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTimeout sets the per-operation timeout for etcd calls.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New returns a Store using the provided etcd client. The store takes
// ownership of the client; Close closes it.
func New(client *clientv3.Client, opts ...Option) *Store {
	s := &Store{client: client, timeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) etcdKey(key string) string {
	return s.prefix + key
}

func leaseSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Save acquires key for owner when no revision exists for it yet. An expired
// previous lease has already been deleted server-side by its etcd lease, so
// the create-revision comparison covers the free-or-expired case.
func (s *Store) Save(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	k := s.etcdKey(key)
	var putOpts []clientv3.OpOption
	var leaseID clientv3.LeaseID
	if ttl > 0 {
		lease, err := s.client.Grant(cctx, leaseSeconds(ttl))
		if err != nil {
			return false, err
		}
		leaseID = lease.ID
		putOpts = append(putOpts, clientv3.WithLease(leaseID))
	}

	resp, err := s.client.Txn(cctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, owner, putOpts...)).
		Commit()
	if err != nil {
		return false, err
	}
	if !resp.Succeeded && leaseID != 0 {
		// The granted lease would otherwise linger until its TTL.
		_, _ = s.client.Revoke(cctx, leaseID)
	}
	return resp.Succeeded, nil
}

// Extend re-puts the key under a fresh lease when owner still holds it.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	k := s.etcdKey(key)
	lease, err := s.client.Grant(cctx, leaseSeconds(ttl))
	if err != nil {
		return err
	}
	resp, err := s.client.Txn(cctx).
		If(clientv3.Compare(clientv3.Value(k), "=", owner)).
		Then(clientv3.OpPut(k, owner, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		return err
	}
	if !resp.Succeeded {
		_, _ = s.client.Revoke(cctx, lease.ID)
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	return nil
}

// Delete removes the key when owner still holds it.
func (s *Store) Delete(ctx context.Context, key, owner string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	k := s.etcdKey(key)
	resp, err := s.client.Txn(cctx).
		If(clientv3.Compare(clientv3.Value(k), "=", owner)).
		Then(clientv3.OpDelete(k)).
		Commit()
	if err != nil {
		return err
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	return nil
}

// ForceDelete removes the key unconditionally.
func (s *Store) ForceDelete(ctx context.Context, key string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Delete(cctx, s.etcdKey(key))
	return err
}

// Exists reports whether the key is present. etcd removes a key when its
// lease expires, so presence implies a live hold.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(cctx, s.etcdKey(key), clientv3.WithCountOnly())
	if err != nil {
		return false, err
	}
	return resp.Count > 0, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
