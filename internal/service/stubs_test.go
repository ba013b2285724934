package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"
	"github.com/JKKN-Institutions/JKKNPOS/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────
// In-memory repositories. DB() returns nil so runTx calls fn(nil) directly.

type stubItemRepo struct {
	mu          sync.Mutex
	items       map[uuid.UUID]model.Item
	byCodeCalls int
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{items: make(map[uuid.UUID]model.Item)}
}

func (r *stubItemRepo) add(it model.Item) model.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	r.items[it.ID] = it
	return it
}

func (r *stubItemRepo) stock(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].Stock
}

func (r *stubItemRepo) SaveTx(_ *gorm.DB, it *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[it.ID] = *it
	return nil
}

func (r *stubItemRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &it, nil
}

func (r *stubItemRepo) FindByCode(_ context.Context, code string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCodeCalls++
	for _, it := range r.items {
		if it.IsActive && (it.Barcode == code || it.SKU == code) {
			found := it
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubItemRepo) List(_ context.Context, f dto.ListParams) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Item
	for _, it := range r.items {
		if !it.IsActive && !f.IncludeInactive {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *stubItemRepo) ListLowStock(_ context.Context, limit int) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Item
	for _, it := range r.items {
		if it.IsActive && it.MinStock > 0 && it.Stock <= it.MinStock {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Stock*out[j].MinStock < out[j].Stock*out[i].MinStock
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubItemRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	it.IsActive = false
	r.items[id] = it
	return nil
}

func (r *stubItemRepo) FindByIDTx(_ *gorm.DB, id uuid.UUID) (*model.Item, error) {
	return r.FindByID(context.Background(), id)
}

func (r *stubItemRepo) UpdateStockTx(_ *gorm.DB, id uuid.UUID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	it.Stock += delta
	r.items[id] = it
	return nil
}

func (r *stubItemRepo) DB() *gorm.DB { return nil }

var _ repository.ItemRepository = (*stubItemRepo)(nil)

type stubCustomerRepo struct {
	customers map[uuid.UUID]model.Customer
}

func newStubCustomerRepo() *stubCustomerRepo {
	return &stubCustomerRepo{customers: make(map[uuid.UUID]model.Customer)}
}

func (r *stubCustomerRepo) Save(_ context.Context, c *model.Customer) error {
	r.customers[c.ID] = *c
	return nil
}

func (r *stubCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *stubCustomerRepo) List(_ context.Context, f dto.ListParams) ([]model.Customer, error) {
	var out []model.Customer
	for _, c := range r.customers {
		if c.IsActive || f.IncludeInactive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *stubCustomerRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	c, ok := r.customers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.IsActive = false
	r.customers[id] = c
	return nil
}

var _ repository.CustomerRepository = (*stubCustomerRepo)(nil)

type stubSaleRepo struct {
	sales map[uuid.UUID]*model.Sale
}

func newStubSaleRepo() *stubSaleRepo {
	return &stubSaleRepo{sales: make(map[uuid.UUID]*model.Sale)}
}

func (r *stubSaleRepo) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	for _, existing := range r.sales {
		if existing.OfflineID == s.OfflineID || existing.SaleNumber == s.SaleNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	stored := *s
	r.sales[s.ID] = &stored
	return nil
}

func (r *stubSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *stubSaleRepo) FindByOfflineID(_ context.Context, offlineID string) (*model.Sale, error) {
	for _, s := range r.sales {
		if s.OfflineID == offlineID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSaleRepo) CancelTx(_ *gorm.DB, id uuid.UUID, reason string) error {
	s, ok := r.sales[id]
	if !ok || s.Status != model.SaleCompleted {
		return gorm.ErrRecordNotFound
	}
	s.Status = model.SaleCancelled
	s.CancelReason = reason
	return nil
}

func (r *stubSaleRepo) ListParked(_ context.Context, terminalID string) ([]model.Sale, error) {
	var out []model.Sale
	for _, s := range r.sales {
		if s.Status == model.SaleParked && (terminalID == "" || s.TerminalID == terminalID) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SoldAt.Before(out[j].SoldAt) })
	return out, nil
}

func (r *stubSaleRepo) DeleteParkedTx(_ *gorm.DB, id uuid.UUID) error {
	s, ok := r.sales[id]
	if !ok || s.Status != model.SaleParked {
		return gorm.ErrRecordNotFound
	}
	delete(r.sales, id)
	return nil
}

func (r *stubSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

type stubMovementRepo struct {
	movements []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubMovementRepo) ExistsByReference(_ context.Context, ref string) (bool, error) {
	for _, m := range r.movements {
		if m.Type == model.MovementAdjustment && m.Reference == ref {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubMovementRepo) List(_ context.Context, f repository.StockMovementFilter) ([]model.StockMovement, error) {
	var out []model.StockMovement
	for _, m := range r.movements {
		if f.ItemID != nil && m.ItemID != *f.ItemID {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

type stubPriceRepo struct {
	changes []model.PriceChange
}

func (r *stubPriceRepo) CreateTx(_ *gorm.DB, pc *model.PriceChange) error {
	r.changes = append(r.changes, *pc)
	return nil
}

func (r *stubPriceRepo) ListByItem(_ context.Context, itemID uuid.UUID, _, _ int) ([]model.PriceChange, int64, error) {
	var out []model.PriceChange
	for i := len(r.changes) - 1; i >= 0; i-- {
		if r.changes[i].ItemID == itemID {
			out = append(out, r.changes[i])
		}
	}
	return out, int64(len(out)), nil
}

var _ repository.PriceHistoryRepository = (*stubPriceRepo)(nil)

// ── Fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	items     *stubItemRepo
	customers *stubCustomerRepo
	sales     *stubSaleRepo
	movements *stubMovementRepo
	prices    *stubPriceRepo
	redis     *miniredis.Miniredis
	rdb       *redis.Client

	numbers   SaleNumberGenerator
	saleSvc   *saleService
	inventory InventoryService
	customer  CustomerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		items:     newStubItemRepo(),
		customers: newStubCustomerRepo(),
		sales:     newStubSaleRepo(),
		movements: &stubMovementRepo{},
		prices:    &stubPriceRepo{},
		redis:     mr,
		rdb:       rdb,
	}
	f.numbers = NewSaleNumberGenerator(rdb, "INV")
	f.saleSvc = NewSaleService(f.sales, f.items, f.customers, f.movements, f.numbers, rdb).(*saleService)
	f.inventory = NewInventoryService(f.items, f.movements, f.prices, rdb)
	f.customer = NewCustomerService(f.customers)
	return f
}
