package localdb

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Queue order is by timestamp; rowid breaks ties between entries written in
// the same clock tick.
const queueOrder = "timestamp ASC, rowid ASC"

// Append adds an entry to the sync queue.
func (s *Store) Append(ctx context.Context, e QueueEntry) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&e).Error
	})
	return wrapErr("append queue entry", err)
}

// ListQueue returns every pending entry in FIFO order.
func (s *Store) ListQueue(ctx context.Context) ([]QueueEntry, error) {
	var out []QueueEntry
	err := s.db.WithContext(ctx).Order(queueOrder).Find(&out).Error
	return out, wrapErr("list queue", err)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*QueueEntry, error) {
	var e QueueEntry
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, wrapErr("get queue entry", err)
	}
	return &e, nil
}

func (s *Store) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&QueueEntry{}).Count(&n).Error
	return n, wrapErr("queue depth", err)
}

// Complete removes a confirmed entry. When syncedSaleID is set the offline
// sale it refers to is marked synced in the same transaction.
func (s *Store) Complete(ctx context.Context, id, syncedSaleID string) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&QueueEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if syncedSaleID == "" {
			return nil
		}
		// The sale row may have been wiped by ClearAll; the entry is still done.
		if err := markSynced(tx, syncedSaleID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	})
	return wrapErr("complete queue entry", err)
}

// RecordFailure increments attempts with a single UPDATE and stores msg as the
// last error. It returns the new attempt count.
func (s *Store) RecordFailure(ctx context.Context, id, msg string) (int, error) {
	var attempts int
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&QueueEntry{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": msg,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&QueueEntry{}).Select("attempts").Where("id = ?", id).Row().Scan(&attempts)
	})
	return attempts, wrapErr("record queue failure", err)
}

// MoveToDeadLetter takes an entry out of the live queue and files it under
// reason.
func (s *Store) MoveToDeadLetter(ctx context.Context, id, reason string) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		var e QueueEntry
		if err := tx.Where("id = ?", id).First(&e).Error; err != nil {
			return err
		}
		dl := DeadLetter{
			ID:         e.ID,
			EntityType: e.EntityType,
			Action:     e.Action,
			Payload:    e.Payload,
			Ref:        e.Ref,
			Timestamp:  e.Timestamp,
			Attempts:   e.Attempts,
			LastError:  e.LastError,
			Reason:     reason,
			FailedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&dl).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&QueueEntry{}).Error
	})
	return wrapErr("move to dead letter", err)
}

// DeadLetters lists entries awaiting manual review, most recent failure first.
func (s *Store) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	var out []DeadLetter
	err := s.db.WithContext(ctx).Order("failed_at DESC").Find(&out).Error
	return out, wrapErr("list dead letters", err)
}

// Requeue moves a dead letter back into the live queue with a fresh attempt
// budget. The original timestamp is kept so it replays in its causal place.
func (s *Store) Requeue(ctx context.Context, id string) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		var dl DeadLetter
		if err := tx.Where("id = ?", id).First(&dl).Error; err != nil {
			return err
		}
		e := QueueEntry{
			ID:         dl.ID,
			EntityType: dl.EntityType,
			Action:     dl.Action,
			Payload:    dl.Payload,
			Ref:        dl.Ref,
			Timestamp:  dl.Timestamp,
		}
		if err := tx.Create(&e).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&DeadLetter{}).Error
	})
	return wrapErr("requeue dead letter", err)
}
