package repository

import (
	"context"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CustomerRepository interface {
	Save(ctx context.Context, c *model.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	List(ctx context.Context, filter dto.ListParams) ([]model.Customer, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type customerRepo struct{ db *gorm.DB }

func NewCustomerRepository(db *gorm.DB) CustomerRepository { return &customerRepo{db: db} }

func (r *customerRepo) Save(ctx context.Context, c *model.Customer) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *customerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return &c, err
}

func (r *customerRepo) List(ctx context.Context, filter dto.ListParams) ([]model.Customer, error) {
	q := r.db.WithContext(ctx).Model(&model.Customer{})
	if !filter.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		q = q.Where("name ILIKE ? OR phone LIKE ? OR email ILIKE ?", like, like, like)
	}
	var out []model.Customer
	err := q.Order("name ASC").Find(&out).Error
	return out, err
}

func (r *customerRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Customer{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
