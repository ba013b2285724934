// seedcatalog creates or updates a small demo catalog.
// Usage: go run ./cmd/seedcatalog
package main

import (
	"context"

	"github.com/JKKN-Institutions/JKKNPOS/internal/config"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/infra"
	"github.com/JKKN-Institutions/JKKNPOS/internal/repository"
	"github.com/JKKN-Institutions/JKKNPOS/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Fixed ids keep reruns idempotent.
var demoItems = []dto.ItemParams{
	{ID: "0b6f6c1e-4c1f-4f7e-9a51-000000000001", Name: "Green Tea 250g", SKU: "TEA-250", Barcode: "8901000000011", Price: decimal.RequireFromString("120.00"), CostPrice: decimal.RequireFromString("80.00"), Stock: 40, MinStock: 5},
	{ID: "0b6f6c1e-4c1f-4f7e-9a51-000000000002", Name: "Basmati Rice 5kg", SKU: "RICE-5", Barcode: "8901000000028", Price: decimal.RequireFromString("650.00"), CostPrice: decimal.RequireFromString("520.00"), Stock: 25, MinStock: 3},
	{ID: "0b6f6c1e-4c1f-4f7e-9a51-000000000003", Name: "Notebook A5", SKU: "NB-A5", Barcode: "8901000000035", Price: decimal.RequireFromString("45.00"), CostPrice: decimal.RequireFromString("28.00"), Stock: 200, MinStock: 20},
}

var demoCustomers = []dto.CustomerParams{
	{ID: "0b6f6c1e-4c1f-4f7e-9a51-100000000001", Name: "Walk-in Regular", Phone: "9000000001", CreditLimit: decimal.RequireFromString("1000.00")},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	ctx := context.Background()
	// Without Redis the item cache is skipped.
	inventory := service.NewInventoryService(
		repository.NewItemRepository(db),
		repository.NewStockMovementRepository(db),
		repository.NewPriceHistoryRepository(db),
		nil,
	)
	customers := service.NewCustomerService(repository.NewCustomerRepository(db))

	for _, p := range demoItems {
		it, err := inventory.UpsertItem(ctx, p)
		if err != nil {
			log.Fatal().Err(err).Str("sku", p.SKU).Msg("upsert item")
		}
		log.Info().Str("id", it.ID).Str("name", it.Name).Int("stock", it.Stock).Msg("item seeded")
	}
	for _, p := range demoCustomers {
		c, err := customers.Upsert(ctx, p)
		if err != nil {
			log.Fatal().Err(err).Str("name", p.Name).Msg("upsert customer")
		}
		log.Info().Str("id", c.ID).Str("name", c.Name).Msg("customer seeded")
	}
}
