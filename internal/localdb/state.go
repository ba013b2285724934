package localdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetState loads the raw document stored under key.
func (s *Store) GetState(ctx context.Context, key string) ([]byte, error) {
	var kv KVState
	if err := s.db.WithContext(ctx).Where("state_key = ?", key).First(&kv).Error; err != nil {
		return nil, wrapErr("get state "+key, err)
	}
	return kv.Value, nil
}

// PutState replaces the document stored under key.
func (s *Store) PutState(ctx context.Context, key string, value []byte) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&KVState{Key: key, Value: value}).Error
	})
	return wrapErr("put state "+key, err)
}

// JSONState persists a single value of type T as JSON under a fixed key.
// *JSONState[cart.State] satisfies cart.StateStore.
type JSONState[T any] struct {
	store *Store
	key   string
}

func NewJSONState[T any](store *Store, key string) *JSONState[T] {
	return &JSONState[T]{store: store, key: key}
}

// Load reports ok=false when nothing is stored yet. A document that no longer
// decodes is reported as ErrCacheCorruption.
func (j *JSONState[T]) Load(ctx context.Context) (T, bool, error) {
	var v T
	raw, err := j.store.GetState(ctx, j.key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("localdb: decode state %s: %w: %w", j.key, ErrCacheCorruption, err)
	}
	return v, true, nil
}

func (j *JSONState[T]) Save(ctx context.Context, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localdb: encode state %s: %w", j.key, err)
	}
	return j.store.PutState(ctx, j.key, raw)
}
