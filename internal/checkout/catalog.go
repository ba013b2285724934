package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/cart"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"

	"github.com/rs/zerolog/log"
)

// RefreshReport counts what RefreshCatalog wrote to the cache.
type RefreshReport struct {
	Products  int `json:"products"`
	Customers int `json:"customers"`
}

// RefreshCatalog replaces the cached products and customers with the
// service's current lists. Inactive items are fetched too, so a deactivation
// reaches the cache and the item stops being sellable offline.
func (s *Service) RefreshCatalog(ctx context.Context) (RefreshReport, error) {
	var rep RefreshReport

	var items []dto.ItemResponse
	if err := s.remote.Call(ctx, dto.OpGetBusinessItems, dto.ListParams{IncludeInactive: true}, &items); err != nil {
		return rep, fmt.Errorf("checkout: fetch items: %w", err)
	}
	var customers []dto.CustomerResponse
	if err := s.remote.Call(ctx, dto.OpGetBusinessCustomers, dto.ListParams{}, &customers); err != nil {
		return rep, fmt.Errorf("checkout: fetch customers: %w", err)
	}

	now := s.now()
	products := make([]localdb.CachedProduct, 0, len(items))
	for _, it := range items {
		products = append(products, cachedProduct(it, now))
	}
	if err := s.store.ReplaceProducts(ctx, products); err != nil {
		return rep, err
	}
	rep.Products = len(products)

	cached := make([]localdb.CachedCustomer, 0, len(customers))
	for _, c := range customers {
		cached = append(cached, localdb.CachedCustomer{
			ID:                 c.ID,
			Name:               c.Name,
			Phone:              c.Phone,
			Email:              c.Email,
			Address:            c.Address,
			CreditLimit:        c.CreditLimit,
			OutstandingBalance: c.OutstandingBalance,
			UpdatedAt:          parseTime(c.UpdatedAt, now),
		})
	}
	if err := s.store.ReplaceCustomers(ctx, cached); err != nil {
		return rep, err
	}
	rep.Customers = len(cached)

	log.Info().
		Int("products", rep.Products).
		Int("customers", rep.Customers).
		Msg("checkout: catalog refreshed")
	return rep, nil
}

// LookupProduct resolves a scanned barcode or SKU, from the cache first and
// then from the service. A product found remotely is cached.
func (s *Service) LookupProduct(ctx context.Context, code string) (*localdb.CachedProduct, error) {
	p, err := s.store.GetProductByBarcode(ctx, code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, localdb.ErrNotFound) {
		log.Warn().Err(err).Str("code", code).Msg("checkout: cache lookup failed, asking service")
	}

	var it dto.ItemResponse
	if err := s.remote.Call(ctx, dto.OpGetItemByCode, dto.ItemByCodeParams{Code: code}, &it); err != nil {
		var re *remote.Error
		if errors.As(err, &re) && re.Code == dto.CodeNotFound {
			return nil, ErrProductNotFound
		}
		if remote.IsConnectivity(err) {
			return nil, fmt.Errorf("%w: %s (service unreachable)", ErrProductNotFound, code)
		}
		return nil, fmt.Errorf("checkout: lookup %s: %w", code, err)
	}

	cp := cachedProduct(it, s.now())
	if err := s.store.CacheProducts(ctx, []localdb.CachedProduct{cp}); err != nil {
		log.Warn().Err(err).Str("item_id", it.ID).Msg("checkout: could not cache looked-up product")
	}
	return &cp, nil
}

// AddToCart resolves ref as a cached product id, then as a barcode or SKU,
// and adds one unit to the cart. Stock is enforced against the cached figure.
func (s *Service) AddToCart(ctx context.Context, ref string) (cart.Snapshot, error) {
	p, err := s.store.GetProduct(ctx, ref)
	if errors.Is(err, localdb.ErrNotFound) {
		p, err = s.LookupProduct(ctx, ref)
	}
	if err != nil {
		return cart.Snapshot{}, err
	}
	if !p.IsActive {
		return cart.Snapshot{}, fmt.Errorf("%w: %s is inactive", ErrProductNotFound, p.Name)
	}
	if err := s.session.TryAddItem(cart.Product{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		TrackStock: true,
	}); err != nil {
		return cart.Snapshot{}, err
	}
	return s.session.Snapshot(), nil
}

func cachedProduct(it dto.ItemResponse, now time.Time) localdb.CachedProduct {
	return localdb.CachedProduct{
		ID:         it.ID,
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
		UpdatedAt:  parseTime(it.UpdatedAt, now),
	}
}

// parseTime reads the service's RFC 3339 timestamps, falling back to now.
func parseTime(v string, now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC()
	}
	return now.UTC()
}
