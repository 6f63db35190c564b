// Package store owns the GORM handle and the transaction scope every workflow runs in.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Store wraps the pooled connection. It keeps no state besides the pool.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns a context-bound handle for single statements outside a transaction.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// WithinTx runs fn inside one transaction. The transaction is rolled back when fn returns an
// error, panics, or ctx is cancelled before commit.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// IsUniqueViolation reports whether err is a unique constraint failure translated by the dialector.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsNotFound reports whether err is GORM's record-not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// PingContext checks the underlying pool.
func (s *Store) PingContext(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
