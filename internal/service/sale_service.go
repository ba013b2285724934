package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"
	"github.com/JKKN-Institutions/JKKNPOS/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// totalTolerance absorbs per-line rounding in terminal-computed totals.
var totalTolerance = decimal.New(1, -2)

type SaleService interface {
	CreateSale(ctx context.Context, p dto.CreateSaleParams) (*dto.SaleResponse, error)
	CancelSale(ctx context.Context, p dto.CancelSaleParams) (*dto.SaleResponse, error)
	ParkSale(ctx context.Context, p dto.ParkSaleParams) (*dto.SaleResponse, error)
	ParkedSales(ctx context.Context, p dto.ParkedSalesParams) ([]dto.SaleResponse, error)
	ResumeParked(ctx context.Context, p dto.ResumeParkedSaleParams) (*dto.ResumeParkedSaleResponse, error)
}

type saleService struct {
	repo      repository.SaleRepository
	items     repository.ItemRepository
	customers repository.CustomerRepository
	movements repository.StockMovementRepository
	numbers   SaleNumberGenerator
	cache     *itemCache
	now       func() time.Time
}

func NewSaleService(
	repo repository.SaleRepository,
	items repository.ItemRepository,
	customers repository.CustomerRepository,
	movements repository.StockMovementRepository,
	numbers SaleNumberGenerator,
	rdb *redis.Client,
) SaleService {
	return &saleService{
		repo:      repo,
		items:     items,
		customers: customers,
		movements: movements,
		numbers:   numbers,
		cache:     &itemCache{rdb: rdb},
		now:       time.Now,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── CreateSale ───────────────────────────────────────────────────────────────
//   1. Replays of a known offline_id return the stored sale
//   2. Check totals and payment, resolve the customer
//   3. Generate a sale number when the terminal sent none
//   4. BEGIN TX: lock items, check stock, create sale+items+payment,
//      decrement stock, write movements
//   5. COMMIT, then drop the cached lookups of the sold items

func (s *saleService) CreateSale(ctx context.Context, p dto.CreateSaleParams) (*dto.SaleResponse, error) {
	if existing, err := s.repo.FindByOfflineID(ctx, p.OfflineID); err == nil {
		if existing.Status == model.SaleParked {
			return nil, fmt.Errorf("%w: offline_id %s belongs to a parked sale", ErrConflict, p.OfflineID)
		}
		log.Info().Str("offline_id", p.OfflineID).Str("sale_number", existing.SaleNumber).Msg("sale: duplicate offline_id, returning stored sale")
		resp := saleToResponse(existing)
		resp.Duplicate = true
		return resp, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if diff := p.Subtotal.Sub(p.Discount).Add(p.Tax).Sub(p.Total).Abs(); diff.GreaterThan(totalTolerance) {
		return nil, fmt.Errorf("%w: subtotal - discount + tax does not match total", ErrValidation)
	}
	if p.PaymentMethod == dto.PaymentCash && p.PaymentAmount.LessThan(p.Total) {
		return nil, fmt.Errorf("%w: cash payment is less than the total", ErrValidation)
	}

	customerID, err := s.resolveCustomer(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}
	lines, err := toSaleLines(p.Items)
	if err != nil {
		return nil, err
	}

	soldAt := s.now().UTC()
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		soldAt = p.CreatedAt.UTC()
	}
	saleNumber := p.SaleNumber
	if saleNumber == "" {
		n, err := s.numbers.Next(ctx, soldAt)
		if err != nil {
			return nil, err
		}
		saleNumber = n
	}

	sale := model.Sale{
		ID:           uuid.New(),
		SaleNumber:   saleNumber,
		OfflineID:    p.OfflineID,
		TerminalID:   p.TerminalID,
		CustomerID:   customerID,
		Subtotal:     p.Subtotal,
		Discount:     p.Discount,
		DiscountType: p.DiscountType,
		Tax:          p.Tax,
		Total:        p.Total,
		Status:       model.SaleCompleted,
		Notes:        p.Notes,
		SoldAt:       soldAt,
		Items:        lines,
		Payments: []model.SalePayment{{
			Method:    p.PaymentMethod,
			Amount:    p.PaymentAmount,
			Reference: p.PaymentReference,
		}},
	}

	codes, txErr := s.insert(ctx, &sale)
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		// A concurrent replay won the unique offline_id index.
		if existing, err := s.repo.FindByOfflineID(ctx, p.OfflineID); err == nil && existing.Status != model.SaleParked {
			resp := saleToResponse(existing)
			resp.Duplicate = true
			return resp, nil
		}
		// The offline_id is new, so the terminal-issued number belongs to
		// another sale. Keep the sale under a number from the server sequence.
		if p.SaleNumber != "" {
			n, err := s.numbers.Next(ctx, soldAt)
			if err != nil {
				return nil, err
			}
			log.Warn().
				Str("offline_id", p.OfflineID).
				Str("terminal_number", p.SaleNumber).
				Str("sale_number", n).
				Msg("sale: terminal sale number already taken, renumbered")
			sale.SaleNumber = n
			codes, txErr = s.insert(ctx, &sale)
		}
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			txErr = fmt.Errorf("%w: sale number %s is already taken", ErrConflict, sale.SaleNumber)
		}
	}
	if txErr != nil {
		return nil, txErr
	}

	s.cache.invalidate(ctx, codes...)
	log.Info().
		Str("sale_number", sale.SaleNumber).
		Str("offline_id", sale.OfflineID).
		Str("terminal_id", sale.TerminalID).
		Str("total", sale.Total.StringFixed(2)).
		Msg("sale: recorded")
	return saleToResponse(&sale), nil
}

// insert runs the stock check and writes the sale with its stock decrements
// and movements in one transaction. It returns the lookup codes of the sold
// items.
func (s *saleService) insert(ctx context.Context, sale *model.Sale) ([]string, error) {
	lines := sale.Items
	var codes []string
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		codes = codes[:0]
		// Stock is checked against what earlier lines of this sale already took.
		taken := make(map[uuid.UUID]int, len(lines))
		before := make(map[uuid.UUID]int, len(lines))
		for _, l := range lines {
			it, err := s.items.FindByIDTx(tx, l.ItemID)
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%w: item %s", ErrNotFound, l.ItemID)
				}
				return err
			}
			if !it.IsActive {
				return fmt.Errorf("%w: item %s is inactive", ErrValidation, it.Name)
			}
			if _, ok := before[l.ItemID]; !ok {
				before[l.ItemID] = it.Stock
				codes = append(codes, it.Codes()...)
			}
			if taken[l.ItemID]+l.Quantity > before[l.ItemID] {
				return fmt.Errorf("%w: insufficient stock for %s (%d available)", ErrConflict, it.Name, before[l.ItemID]-taken[l.ItemID])
			}
			taken[l.ItemID] += l.Quantity
		}

		if err := s.repo.Create(ctx, tx, sale); err != nil {
			return err
		}

		for _, l := range lines {
			if err := s.items.UpdateStockTx(tx, l.ItemID, -l.Quantity); err != nil {
				return fmt.Errorf("decrement stock of %s: %w", l.Name, err)
			}
			saleID := sale.ID
			mov := &model.StockMovement{
				ItemID:      l.ItemID,
				Type:        model.MovementSale,
				Quantity:    -l.Quantity,
				StockBefore: before[l.ItemID],
				StockAfter:  before[l.ItemID] - l.Quantity,
				Reason:      "Sale " + sale.SaleNumber,
				Reference:   sale.OfflineID,
				SaleID:      &saleID,
			}
			before[l.ItemID] -= l.Quantity
			if err := s.movements.CreateTx(tx, mov); err != nil {
				return err
			}
		}
		return nil
	})
	return codes, err
}

// ── CancelSale ───────────────────────────────────────────────────────────────

// CancelSale marks a completed sale cancelled and puts its stock back with
// inverse movements, in one transaction.
func (s *saleService) CancelSale(ctx context.Context, p dto.CancelSaleParams) (*dto.SaleResponse, error) {
	id, err := uuid.Parse(p.SaleID)
	if err != nil {
		return nil, fmt.Errorf("%w: sale_id: %v", ErrValidation, err)
	}
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: sale %s", ErrNotFound, p.SaleID)
		}
		return nil, err
	}
	switch sale.Status {
	case model.SaleCancelled:
		return nil, fmt.Errorf("%w: sale %s is already cancelled", ErrConflict, sale.SaleNumber)
	case model.SaleParked:
		return nil, fmt.Errorf("%w: sale %s is parked, resume it instead", ErrConflict, sale.SaleNumber)
	}

	var codes []string
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.CancelTx(tx, id, p.Reason); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: sale %s is already cancelled", ErrConflict, sale.SaleNumber)
			}
			return err
		}
		for _, l := range sale.Items {
			it, err := s.items.FindByIDTx(tx, l.ItemID)
			if err != nil {
				return fmt.Errorf("restore stock of %s: %w", l.Name, err)
			}
			codes = append(codes, it.Codes()...)
			if err := s.items.UpdateStockTx(tx, l.ItemID, l.Quantity); err != nil {
				return err
			}
			saleID := sale.ID
			if err := s.movements.CreateTx(tx, &model.StockMovement{
				ItemID:      l.ItemID,
				Type:        model.MovementCancel,
				Quantity:    l.Quantity,
				StockBefore: it.Stock,
				StockAfter:  it.Stock + l.Quantity,
				Reason:      fmt.Sprintf("Cancelled sale %s: %s", sale.SaleNumber, p.Reason),
				Reference:   sale.OfflineID,
				SaleID:      &saleID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.cache.invalidate(ctx, codes...)
	sale.Status = model.SaleCancelled
	sale.CancelReason = p.Reason
	log.Info().Str("sale_number", sale.SaleNumber).Str("reason", p.Reason).Msg("sale: cancelled")
	return saleToResponse(sale), nil
}

// ── Parked sales ─────────────────────────────────────────────────────────────

// parkedNumberPrefix keeps parked sales out of the invoice sequence.
const parkedNumberPrefix = "HOLD-"

// ParkSale stores a held cart under its offline_id. Nothing is paid and no
// stock moves. Parking the same offline_id again returns the stored sale.
func (s *saleService) ParkSale(ctx context.Context, p dto.ParkSaleParams) (*dto.SaleResponse, error) {
	if existing, err := s.repo.FindByOfflineID(ctx, p.OfflineID); err == nil {
		if existing.Status != model.SaleParked {
			return nil, fmt.Errorf("%w: offline_id %s belongs to a recorded sale", ErrConflict, p.OfflineID)
		}
		resp := saleToResponse(existing)
		resp.Duplicate = true
		return resp, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if diff := p.Subtotal.Sub(p.Discount).Add(p.Tax).Sub(p.Total).Abs(); diff.GreaterThan(totalTolerance) {
		return nil, fmt.Errorf("%w: subtotal - discount + tax does not match total", ErrValidation)
	}
	customerID, err := s.resolveCustomer(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}
	lines, err := toSaleLines(p.Items)
	if err != nil {
		return nil, err
	}
	parkedAt := s.now().UTC()
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		parkedAt = p.CreatedAt.UTC()
	}

	sale := model.Sale{
		ID:           uuid.New(),
		SaleNumber:   parkedNumberPrefix + p.OfflineID,
		OfflineID:    p.OfflineID,
		TerminalID:   p.TerminalID,
		CustomerID:   customerID,
		Subtotal:     p.Subtotal,
		Discount:     p.Discount,
		DiscountType: p.DiscountType,
		Tax:          p.Tax,
		Total:        p.Total,
		Status:       model.SaleParked,
		Notes:        p.Notes,
		SoldAt:       parkedAt,
		Items:        lines,
	}
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, &sale)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent replay parked it first.
		if existing, ferr := s.repo.FindByOfflineID(ctx, p.OfflineID); ferr == nil && existing.Status == model.SaleParked {
			resp := saleToResponse(existing)
			resp.Duplicate = true
			return resp, nil
		}
		return nil, fmt.Errorf("%w: offline_id %s is already taken", ErrConflict, p.OfflineID)
	}
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("offline_id", sale.OfflineID).
		Str("terminal_id", sale.TerminalID).
		Int("lines", len(lines)).
		Msg("sale: parked")
	return saleToResponse(&sale), nil
}

func (s *saleService) ParkedSales(ctx context.Context, p dto.ParkedSalesParams) ([]dto.SaleResponse, error) {
	rows, err := s.repo.ListParked(ctx, p.TerminalID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SaleResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *saleToResponse(&rows[i]))
	}
	return out, nil
}

// ResumeParked removes a parked sale so its cart can be rung up. A parked
// sale that is already gone reports Resumed false, which makes replays safe.
func (s *saleService) ResumeParked(ctx context.Context, p dto.ResumeParkedSaleParams) (*dto.ResumeParkedSaleResponse, error) {
	resp := &dto.ResumeParkedSaleResponse{OfflineID: p.OfflineID}
	sale, err := s.repo.FindByOfflineID(ctx, p.OfflineID)
	if err != nil {
		if isNotFound(err) {
			return resp, nil
		}
		return nil, err
	}
	if sale.Status != model.SaleParked {
		return nil, fmt.Errorf("%w: sale %s is not parked", ErrConflict, sale.SaleNumber)
	}
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		return s.repo.DeleteParkedTx(tx, sale.ID)
	})
	switch {
	case isNotFound(err):
		return resp, nil
	case err != nil:
		return nil, err
	}
	resp.Resumed = true
	log.Info().Str("offline_id", p.OfflineID).Msg("sale: parked sale resumed")
	return resp, nil
}

func (s *saleService) resolveCustomer(ctx context.Context, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: customer_id: %v", ErrValidation, err)
	}
	if _, err := s.customers.FindByID(ctx, id); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: customer %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &id, nil
}

func toSaleLines(items []dto.SaleItemParams) ([]model.SaleItem, error) {
	lines := make([]model.SaleItem, 0, len(items))
	for _, it := range items {
		id, err := uuid.Parse(it.ItemID)
		if err != nil {
			return nil, fmt.Errorf("%w: item_id %q: %v", ErrValidation, it.ItemID, err)
		}
		lines = append(lines, model.SaleItem{
			ItemID:   id,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Discount: it.Discount,
			Tax:      it.Tax,
			Total:    it.Total,
		})
	}
	return lines, nil
}

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	items := make([]dto.SaleItemResponse, 0, len(s.Items))
	for _, l := range s.Items {
		items = append(items, dto.SaleItemResponse{
			ItemID:   l.ItemID.String(),
			Name:     l.Name,
			Quantity: l.Quantity,
			Price:    l.Price,
			Discount: l.Discount,
			Tax:      l.Tax,
			Total:    l.Total,
		})
	}
	resp := &dto.SaleResponse{
		ID:         s.ID.String(),
		OfflineID:  s.OfflineID,
		SaleNumber: s.SaleNumber,
		Items:      items,
		Subtotal:   s.Subtotal,
		Discount:   s.Discount,
		Tax:        s.Tax,
		Total:      s.Total,
		Status:     s.Status,
		CreatedAt:  s.SoldAt.UTC().Format(time.RFC3339),
	}
	if s.CustomerID != nil {
		id := s.CustomerID.String()
		resp.CustomerID = &id
	}
	if len(s.Payments) > 0 {
		resp.PaymentMethod = s.Payments[0].Method
		resp.PaymentAmount = s.Payments[0].Amount
		resp.Change = decimal.Max(s.Payments[0].Amount.Sub(s.Total), decimal.Zero)
	}
	return resp
}
