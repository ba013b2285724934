package repository

import (
	"context"

	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PriceHistoryRepository interface {
	CreateTx(tx *gorm.DB, pc *model.PriceChange) error
	ListByItem(ctx context.Context, itemID uuid.UUID, page, limit int) ([]model.PriceChange, int64, error)
}

type priceHistoryRepo struct{ db *gorm.DB }

func NewPriceHistoryRepository(db *gorm.DB) PriceHistoryRepository {
	return &priceHistoryRepo{db: db}
}

func (r *priceHistoryRepo) CreateTx(tx *gorm.DB, pc *model.PriceChange) error {
	return tx.Create(pc).Error
}

// ListByItem returns one page of an item's price changes, newest first.
func (r *priceHistoryRepo) ListByItem(ctx context.Context, itemID uuid.UUID, page, limit int) ([]model.PriceChange, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&model.PriceChange{}).
		Where("item_id = ?", itemID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []model.PriceChange
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
