// Package database provides a lock store backed by a SQL database through
// GORM. One row exists per key; acquisition is a single conditional upsert so
// the free-or-expired check and the ownership write happen in one statement.
// Requires a dialect with conditional upsert support (SQLite, PostgreSQL).
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

const (
	defaultTableName = "verrou_locks"
	defaultOpTimeout = 5 * time.Second
)

// lockRow is the internal model for one lease. A NULL expires_at means the
// lease never expires on its own.
type lockRow struct {
	Key       string     `gorm:"primaryKey;column:key_id;size:255"`
	Owner     string     `gorm:"column:owner;size:255"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

// Store implements the lock store contract using a GORM backend.
type Store struct {
	db        *gorm.DB
	tableName string
	timeout   time.Duration
}

// Option configures a Store.
type Option func(*options)

type options struct {
	tableName string
	timeout   time.Duration
}

// WithTableName sets the table used to persist leases.
func WithTableName(name string) Option {
	return func(o *options) {
		o.tableName = name
	}
}

// WithTimeout sets the per-operation timeout for database calls.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New returns a Store using the provided GORM DB connection, creating the
// lock table when it does not exist yet.
func New(db *gorm.DB, opts ...Option) *Store {
	o := options{
		tableName: defaultTableName,
		timeout:   defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// Ensure the table exists
	if !db.Migrator().HasTable(o.tableName) {
		_ = db.Table(o.tableName).AutoMigrate(&lockRow{})
	}

	return &Store{db: db, tableName: o.tableName, timeout: o.timeout}
}

// Save acquires key for owner through INSERT .. ON CONFLICT DO UPDATE,
// guarded so the update only fires when the existing lease has expired.
// Exactly one of any set of concurrent callers gets an affected row.
func (s *Store) Save(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	var exp *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		exp = &t
	}

	row := lockRow{Key: key, Owner: owner, ExpiresAt: exp}
	res := s.db.WithContext(cctx).Table(s.tableName).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":      owner,
			"expires_at": exp,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr(s.tableName+".expires_at IS NOT NULL AND "+s.tableName+".expires_at <= ?", now),
		}},
	}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Extend moves the lease expiry to now+ttl when owner still holds the row.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(cctx).Table(s.tableName).
		Where("key_id = ? AND owner = ?", key, owner).
		Update("expires_at", time.Now().Add(ttl))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	return nil
}

// Delete removes the row when owner still holds it.
func (s *Store) Delete(ctx context.Context, key, owner string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(cctx).Table(s.tableName).
		Where("key_id = ? AND owner = ?", key, owner).
		Delete(&lockRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: key %q", verrouerrors.ErrLockNotOwned, key)
	}
	return nil
}

// ForceDelete removes the row unconditionally.
func (s *Store) ForceDelete(ctx context.Context, key string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.db.WithContext(cctx).Table(s.tableName).
		Where("key_id = ?", key).
		Delete(&lockRow{}).Error
}

// Exists reports whether a live lease row is present for the key. Expired
// rows linger until the next Save reclaims them, so the expiry is checked
// here rather than assumed.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int64
	err := s.db.WithContext(cctx).Table(s.tableName).
		Where("key_id = ? AND (expires_at IS NULL OR expires_at > ?)", key, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
