package localdb

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SaveOfflineSale appends rec with Synced=false. Any entries given are
// enqueued in the same transaction, so a sale is never recorded without the
// queue entry that will replay it.
func (s *Store) SaveOfflineSale(ctx context.Context, rec *OfflineSale, entries ...QueueEntry) error {
	rec.Synced = false
	rec.SyncedAt = nil
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		for i := range entries {
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr("save offline sale", err)
}

// GetUnsyncedSales returns offline sales not yet confirmed, oldest first.
func (s *Store) GetUnsyncedSales(ctx context.Context) ([]OfflineSale, error) {
	var out []OfflineSale
	err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("created_at ASC").
		Find(&out).Error
	return out, wrapErr("get unsynced sales", err)
}

// ListOfflineSales returns the most recent offline sales, synced or not.
func (s *Store) ListOfflineSales(ctx context.Context, limit int) ([]OfflineSale, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []OfflineSale
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, wrapErr("list offline sales", err)
}

func (s *Store) GetOfflineSale(ctx context.Context, id string) (*OfflineSale, error) {
	var rec OfflineSale
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, wrapErr("get offline sale", err)
	}
	return &rec, nil
}

// MarkSynced flips an offline sale to synced. It is idempotent: an already
// synced sale keeps its original SyncedAt.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return markSynced(tx, id)
	})
	return wrapErr("mark synced", err)
}

func markSynced(tx *gorm.DB, id string) error {
	res := tx.Model(&OfflineSale{}).
		Where("id = ? AND synced = ?", id, false).
		Updates(map[string]interface{}{"synced": true, "synced_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&OfflineSale{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}
