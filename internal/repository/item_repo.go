package repository

import (
	"context"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository defines the data access contract for catalog items.
// Services depend on this interface, not on the concrete GORM implementation,
// so they can be unit tested with in-memory stubs.
type ItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error)
	// FindByCode matches an active item by barcode first, then SKU.
	FindByCode(ctx context.Context, code string) (*model.Item, error)
	List(ctx context.Context, filter dto.ListParams) ([]model.Item, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// ListLowStock returns active items with a minimum stock set and stock at
	// or below it, emptiest first.
	ListLowStock(ctx context.Context, limit int) ([]model.Item, error)

	// Used inside transactions. FindByIDTx locks the row until commit.
	SaveTx(tx *gorm.DB, it *model.Item) error
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.Item, error)
	UpdateStockTx(tx *gorm.DB, id uuid.UUID, delta int) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type itemRepo struct{ db *gorm.DB }

func NewItemRepository(db *gorm.DB) ItemRepository { return &itemRepo{db: db} }

func (r *itemRepo) DB() *gorm.DB { return r.db }

func (r *itemRepo) SaveTx(tx *gorm.DB, it *model.Item) error {
	return tx.Save(it).Error
}

func (r *itemRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	var it model.Item
	err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error
	return &it, err
}

func (r *itemRepo) FindByCode(ctx context.Context, code string) (*model.Item, error) {
	var it model.Item
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND (barcode = ? OR sku = ?)", true, code, code).
		Order(clause.Expr{SQL: "CASE WHEN barcode = ? THEN 0 ELSE 1 END", Vars: []interface{}{code}}).
		First(&it).Error
	return &it, err
}

func (r *itemRepo) List(ctx context.Context, filter dto.ListParams) ([]model.Item, error) {
	q := r.db.WithContext(ctx).Model(&model.Item{})
	if !filter.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		q = q.Where("name ILIKE ? OR sku ILIKE ? OR barcode = ?", like, like, filter.Query)
	}
	var items []model.Item
	err := q.Order("name ASC").Find(&items).Error
	return items, err
}

func (r *itemRepo) ListLowStock(ctx context.Context, limit int) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND min_stock > 0 AND stock <= min_stock", true).
		Order(clause.Expr{SQL: "stock * 1.0 / min_stock ASC, name ASC"}).
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *itemRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Item{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *itemRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.Item, error) {
	var it model.Item
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&it, "id = ?", id).Error
	return &it, err
}

func (r *itemRepo) UpdateStockTx(tx *gorm.DB, id uuid.UUID, delta int) error {
	return tx.Model(&model.Item{}).Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", delta)).Error
}
