package service

import (
	"context"
	"encoding/json"
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

// itemCacheTTL bounds how stale a scanned item can be if an invalidation is
// lost.
const itemCacheTTL = 4 * time.Hour

type InventoryService interface {
	UpsertItem(ctx context.Context, p dto.ItemParams) (*dto.ItemResponse, error)
	DeleteItem(ctx context.Context, p dto.DeleteParams) (*dto.DeleteResponse, error)
	ListItems(ctx context.Context, p dto.ListParams) ([]dto.ItemResponse, error)
	GetItemByCode(ctx context.Context, p dto.ItemByCodeParams) (*dto.ItemResponse, error)
	AdjustStock(ctx context.Context, p dto.AdjustStockParams) (*dto.StockResponse, error)
	PriceHistory(ctx context.Context, p dto.PriceHistoryParams) (*dto.PriceHistoryResponse, error)
	LowStockItems(ctx context.Context, p dto.LowStockParams) ([]dto.LowStockItemResponse, error)
}

const defaultLowStockLimit = 100

type inventoryService struct {
	repo      repository.ItemRepository
	movements repository.StockMovementRepository
	prices    repository.PriceHistoryRepository
	cache     *itemCache
}

func NewInventoryService(
	repo repository.ItemRepository,
	movements repository.StockMovementRepository,
	prices repository.PriceHistoryRepository,
	rdb *redis.Client,
) InventoryService {
	return &inventoryService{repo: repo, movements: movements, prices: prices, cache: &itemCache{rdb: rdb}}
}

// ── Items ────────────────────────────────────────────────────────────────────

// UpsertItem creates the item when p.ID is empty or unknown, else updates it.
// Stock is only taken from p on creation; existing stock changes go through
// AdjustStock so every change has a movement. Price changes of an existing
// item are recorded in the price history in the same transaction.
func (s *inventoryService) UpsertItem(ctx context.Context, p dto.ItemParams) (*dto.ItemResponse, error) {
	var it *model.Item
	var oldCodes []string
	var change *model.PriceChange
	if p.ID != "" {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrValidation, err)
		}
		existing, err := s.repo.FindByID(ctx, id)
		switch {
		case err == nil:
			it = existing
			oldCodes = existing.Codes()
			if !existing.Price.Equal(p.Price) || !existing.CostPrice.Equal(p.CostPrice) {
				change = &model.PriceChange{
					ItemID:      id,
					CostBefore:  existing.CostPrice,
					CostAfter:   p.CostPrice,
					PriceBefore: existing.Price,
					PriceAfter:  p.Price,
					Reason:      model.PriceReasonUpdate,
				}
			}
		case isNotFound(err):
			it = &model.Item{ID: id, Stock: p.Stock, IsActive: true}
		default:
			return nil, err
		}
	} else {
		it = &model.Item{ID: uuid.New(), Stock: p.Stock, IsActive: true}
	}

	it.Name = p.Name
	it.SKU = p.SKU
	it.Barcode = p.Barcode
	it.Price = p.Price
	it.CostPrice = p.CostPrice
	it.MinStock = p.MinStock
	it.CategoryID = p.CategoryID
	it.ImageURL = p.ImageURL
	if p.IsActive != nil {
		it.IsActive = *p.IsActive
	}

	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.SaveTx(tx, it); err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		return s.prices.CreateTx(tx, change)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: item code already in use", ErrConflict)
		}
		return nil, err
	}
	s.cache.invalidate(ctx, append(oldCodes, it.Codes()...)...)
	return itemToResponse(it), nil
}

func (s *inventoryService) DeleteItem(ctx context.Context, p dto.DeleteParams) (*dto.DeleteResponse, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrValidation, err)
	}
	it, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: item %s", ErrNotFound, p.ID)
		}
		return nil, err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return nil, err
	}
	s.cache.invalidate(ctx, it.Codes()...)
	return &dto.DeleteResponse{ID: p.ID, Deleted: true}, nil
}

func (s *inventoryService) ListItems(ctx context.Context, p dto.ListParams) ([]dto.ItemResponse, error) {
	items, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ItemResponse, 0, len(items))
	for i := range items {
		out = append(out, *itemToResponse(&items[i]))
	}
	return out, nil
}

// LowStockItems lists active items at or below their minimum stock, emptiest
// first. Items without a minimum are never low.
func (s *inventoryService) LowStockItems(ctx context.Context, p dto.LowStockParams) ([]dto.LowStockItemResponse, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLowStockLimit
	}
	items, err := s.repo.ListLowStock(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LowStockItemResponse, 0, len(items))
	for i := range items {
		it := &items[i]
		out = append(out, dto.LowStockItemResponse{
			ItemResponse:    *itemToResponse(it),
			StockPercentage: decimal.NewFromInt(int64(it.Stock) * 100).Div(decimal.NewFromInt(int64(it.MinStock))).Round(2),
		})
	}
	return out, nil
}

// GetItemByCode answers from Redis when it can and fills the cache on a miss.
func (s *inventoryService) GetItemByCode(ctx context.Context, p dto.ItemByCodeParams) (*dto.ItemResponse, error) {
	if cached, ok := s.cache.get(ctx, p.Code); ok {
		return cached, nil
	}
	it, err := s.repo.FindByCode(ctx, p.Code)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: no active item with code %q", ErrNotFound, p.Code)
		}
		return nil, err
	}
	resp := itemToResponse(it)
	s.cache.set(ctx, p.Code, resp)
	return resp, nil
}

// ── Stock ────────────────────────────────────────────────────────────────────

// AdjustStock applies a signed delta and records a movement in one
// transaction. A delta that would take stock below zero is a conflict. A
// reference that was already applied returns the current stock unchanged.
func (s *inventoryService) AdjustStock(ctx context.Context, p dto.AdjustStockParams) (*dto.StockResponse, error) {
	id, err := uuid.Parse(p.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: item_id: %v", ErrValidation, err)
	}

	if p.Reference != "" {
		seen, err := s.movements.ExistsByReference(ctx, p.Reference)
		if err != nil {
			return nil, err
		}
		if seen {
			it, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			log.Info().Str("item_id", p.ItemID).Str("reference", p.Reference).Msg("inventory: adjustment already applied")
			return &dto.StockResponse{ItemID: p.ItemID, Stock: it.Stock}, nil
		}
	}

	var after int
	var codes []string
	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		it, err := s.repo.FindByIDTx(tx, id)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: item %s", ErrNotFound, p.ItemID)
			}
			return err
		}
		codes = it.Codes()
		after = it.Stock + p.Delta
		if after < 0 {
			return fmt.Errorf("%w: stock of %s would drop to %d", ErrConflict, it.Name, after)
		}
		if err := s.repo.UpdateStockTx(tx, id, p.Delta); err != nil {
			return err
		}
		return s.movements.CreateTx(tx, &model.StockMovement{
			ItemID:      id,
			Type:        model.MovementAdjustment,
			Quantity:    p.Delta,
			StockBefore: it.Stock,
			StockAfter:  after,
			Reason:      p.Reason,
			Reference:   p.Reference,
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, codes...)
	log.Info().
		Str("item_id", p.ItemID).
		Int("delta", p.Delta).
		Int("stock", after).
		Str("reason", p.Reason).
		Msg("inventory: stock adjusted")
	return &dto.StockResponse{ItemID: p.ItemID, Stock: after}, nil
}

func (s *inventoryService) PriceHistory(ctx context.Context, p dto.PriceHistoryParams) (*dto.PriceHistoryResponse, error) {
	id, err := uuid.Parse(p.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: item_id: %v", ErrValidation, err)
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: item %s", ErrNotFound, p.ItemID)
		}
		return nil, err
	}
	rows, total, err := s.prices.ListByItem(ctx, id, p.Page, p.Limit)
	if err != nil {
		return nil, err
	}
	out := &dto.PriceHistoryResponse{Items: make([]dto.PriceChangeResponse, 0, len(rows)), Total: total}
	for _, r := range rows {
		out.Items = append(out.Items, dto.PriceChangeResponse{
			CostBefore:  r.CostBefore,
			CostAfter:   r.CostAfter,
			PriceBefore: r.PriceBefore,
			PriceAfter:  r.PriceAfter,
			Reason:      r.Reason,
			CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func itemToResponse(it *model.Item) *dto.ItemResponse {
	return &dto.ItemResponse{
		ID:         it.ID.String(),
		Name:       it.Name,
		SKU:        it.SKU,
		Barcode:    it.Barcode,
		Price:      it.Price,
		CostPrice:  it.CostPrice,
		Stock:      it.Stock,
		MinStock:   it.MinStock,
		CategoryID: it.CategoryID,
		ImageURL:   it.ImageURL,
		IsActive:   it.IsActive,
		UpdatedAt:  it.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ── Item cache ───────────────────────────────────────────────────────────────

// itemCache keeps get_item_by_code answers in Redis. Failures are logged and
// treated as misses; the database stays the source of truth.
type itemCache struct {
	rdb *redis.Client
}

func itemCacheKey(code string) string { return "item:code:" + code }

func (c *itemCache) get(ctx context.Context, code string) (*dto.ItemResponse, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, itemCacheKey(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("code", code).Msg("inventory: item cache read failed")
		}
		return nil, false
	}
	var resp dto.ItemResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (c *itemCache) set(ctx context.Context, code string, resp *dto.ItemResponse) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, itemCacheKey(code), raw, itemCacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("inventory: item cache write failed")
	}
}

func (c *itemCache) invalidate(ctx context.Context, codes ...string) {
	if c.rdb == nil || len(codes) == 0 {
		return
	}
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, itemCacheKey(code))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Strs("codes", codes).Msg("inventory: item cache invalidation failed")
	}
}
