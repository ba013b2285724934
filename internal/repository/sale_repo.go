package repository

import (
	"context"

	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	FindByOfflineID(ctx context.Context, offlineID string) (*model.Sale, error)
	CancelTx(tx *gorm.DB, id uuid.UUID, reason string) error
	// ListParked returns parked sales oldest first; an empty terminalID
	// lists every terminal.
	ListParked(ctx context.Context, terminalID string) ([]model.Sale, error)
	DeleteParkedTx(tx *gorm.DB, id uuid.UUID) error
	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Preload("Items").Preload("Payments").First(&s, "id = ?", id).Error
	return &s, err
}

func (r *saleRepo) FindByOfflineID(ctx context.Context, offlineID string) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Preload("Items").Preload("Payments").
		Where("offline_id = ?", offlineID).First(&s).Error
	return &s, err
}

// CancelTx flips a completed sale to cancelled. It affects no row when the
// sale was already cancelled, which the caller treats as a conflict.
func (r *saleRepo) CancelTx(tx *gorm.DB, id uuid.UUID, reason string) error {
	res := tx.Model(&model.Sale{}).
		Where("id = ? AND status = ?", id, model.SaleCompleted).
		Updates(map[string]interface{}{"status": model.SaleCancelled, "cancel_reason": reason})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *saleRepo) ListParked(ctx context.Context, terminalID string) ([]model.Sale, error) {
	q := r.db.WithContext(ctx).Preload("Items").Where("status = ?", model.SaleParked)
	if terminalID != "" {
		q = q.Where("terminal_id = ?", terminalID)
	}
	var out []model.Sale
	err := q.Order("sold_at ASC").Find(&out).Error
	return out, err
}

// DeleteParkedTx removes a parked sale and its lines. Completed and cancelled
// sales are never deleted; the call reports not found for them.
func (r *saleRepo) DeleteParkedTx(tx *gorm.DB, id uuid.UUID) error {
	var parked model.Sale
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").
		Where("id = ? AND status = ?", id, model.SaleParked).First(&parked).Error
	if err != nil {
		return err
	}
	if err := tx.Where("sale_id = ?", id).Delete(&model.SaleItem{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", id).Delete(&model.Sale{}).Error
}
