package service

import (
	"context"
	"fmt"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"
	"github.com/JKKN-Institutions/JKKNPOS/internal/repository"

	"github.com/google/uuid"
)

type CustomerService interface {
	Upsert(ctx context.Context, p dto.CustomerParams) (*dto.CustomerResponse, error)
	Delete(ctx context.Context, p dto.DeleteParams) (*dto.DeleteResponse, error)
	List(ctx context.Context, p dto.ListParams) ([]dto.CustomerResponse, error)
}

type customerService struct {
	repo repository.CustomerRepository
}

func NewCustomerService(repo repository.CustomerRepository) CustomerService {
	return &customerService{repo: repo}
}

func (s *customerService) Upsert(ctx context.Context, p dto.CustomerParams) (*dto.CustomerResponse, error) {
	c := &model.Customer{ID: uuid.New(), IsActive: true}
	if p.ID != "" {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrValidation, err)
		}
		existing, err := s.repo.FindByID(ctx, id)
		switch {
		case err == nil:
			c = existing
		case isNotFound(err):
			c.ID = id
		default:
			return nil, err
		}
	}

	c.Name = p.Name
	c.Phone = p.Phone
	c.Email = p.Email
	c.Address = p.Address
	c.CreditLimit = p.CreditLimit
	c.OutstandingBalance = p.OutstandingBalance

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return customerToResponse(c), nil
}

func (s *customerService) Delete(ctx context.Context, p dto.DeleteParams) (*dto.DeleteResponse, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrValidation, err)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: customer %s", ErrNotFound, p.ID)
		}
		return nil, err
	}
	return &dto.DeleteResponse{ID: p.ID, Deleted: true}, nil
}

func (s *customerService) List(ctx context.Context, p dto.ListParams) ([]dto.CustomerResponse, error) {
	rows, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]dto.CustomerResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *customerToResponse(&rows[i]))
	}
	return out, nil
}

func customerToResponse(c *model.Customer) *dto.CustomerResponse {
	return &dto.CustomerResponse{
		ID:                 c.ID.String(),
		Name:               c.Name,
		Phone:              c.Phone,
		Email:              c.Email,
		Address:            c.Address,
		CreditLimit:        c.CreditLimit,
		OutstandingBalance: c.OutstandingBalance,
		UpdatedAt:          c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
