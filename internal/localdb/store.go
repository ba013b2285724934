// Package localdb is the terminal's durable local cache: catalog copies,
// offline sales, the sync queue and small keyed state documents, all in one
// SQLite file accessed through gorm.
package localdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing.
	ErrNotFound = errors.New("localdb: record not found")
	// ErrCacheCorruption wraps every storage-engine failure. Callers that get
	// it should stop relying on offline mode.
	ErrCacheCorruption = errors.New("localdb: local cache unavailable")
)

// Store is safe for concurrent use. SQLite serialises writers, so the pool is
// capped at one connection and every operation runs as a single transaction.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite file at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("localdb: create dir: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("localdb: open %s: %w: %w", path, ErrCacheCorruption, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("localdb: %w: %w", ErrCacheCorruption, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("localdb: migrate: %w: %w", ErrCacheCorruption, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the file is still readable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrapErr("ping", err)
	}
	return wrapErr("ping", sqlDB.PingContext(ctx))
}

func (s *Store) runTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// wrapErr maps gorm errors onto the package sentinels. Context errors pass
// through untouched so callers can tell cancellation from a broken file.
func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("localdb: %s: %w", op, ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("localdb: %s: %w", op, err)
	case errors.Is(err, ErrCacheCorruption):
		return err
	default:
		return fmt.Errorf("localdb: %s: %w: %w", op, ErrCacheCorruption, err)
	}
}

// Stats counts every collection in one read transaction.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&OfflineSale{}).Where("synced = ?", false).Count(&st.UnsyncedSales).Error; err != nil {
			return err
		}
		if err := tx.Model(&CachedProduct{}).Count(&st.CachedProducts).Error; err != nil {
			return err
		}
		if err := tx.Model(&CachedCustomer{}).Count(&st.CachedCustomers).Error; err != nil {
			return err
		}
		if err := tx.Model(&QueueEntry{}).Count(&st.QueueDepth).Error; err != nil {
			return err
		}
		return tx.Model(&DeadLetter{}).Count(&st.DeadLetters).Error
	})
	return st, wrapErr("stats", err)
}

// ClearAll empties the catalog copies, offline sales, the sync queue and its
// dead letters. Unsynced data is lost; it exists for support staff resetting a
// terminal. Key-value state survives: the per-day sale number counters must
// not restart, or the terminal would reissue numbers the server already holds.
func (s *Store) ClearAll(ctx context.Context) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		for _, m := range []interface{}{&OfflineSale{}, &CachedProduct{}, &CachedCustomer{}, &QueueEntry{}, &DeadLetter{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr("clear all", err)
}
