package repository

import (
	"context"

	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockMovementFilter defines filters for listing stock movements.
type StockMovementFilter struct {
	ItemID *uuid.UUID
	Type   string
	Limit  int
}

type StockMovementRepository interface {
	CreateTx(tx *gorm.DB, m *model.StockMovement) error
	// ExistsByReference reports whether an adjustment with this reference was
	// already applied.
	ExistsByReference(ctx context.Context, ref string) (bool, error)
	List(ctx context.Context, filter StockMovementFilter) ([]model.StockMovement, error)
}

type stockMovementRepo struct{ db *gorm.DB }

func NewStockMovementRepository(db *gorm.DB) StockMovementRepository {
	return &stockMovementRepo{db: db}
}

func (r *stockMovementRepo) CreateTx(tx *gorm.DB, m *model.StockMovement) error {
	return tx.Create(m).Error
}

func (r *stockMovementRepo) ExistsByReference(ctx context.Context, ref string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.StockMovement{}).
		Where("reference = ? AND type = ?", ref, model.MovementAdjustment).
		Count(&n).Error
	return n > 0, err
}

func (r *stockMovementRepo) List(ctx context.Context, filter StockMovementFilter) ([]model.StockMovement, error) {
	q := r.db.WithContext(ctx).Model(&model.StockMovement{})
	if filter.ItemID != nil {
		q = q.Where("item_id = ?", *filter.ItemID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var out []model.StockMovement
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
