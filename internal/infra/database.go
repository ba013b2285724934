package infra

import (
	"fmt"

	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and brings the
// schema up to date with RunMigrations.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Unique violations surface as gorm.ErrDuplicatedKey, which the sale
		// service relies on to detect concurrent replays.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates every table, then applies the idempotent
// SQL patches AutoMigrate cannot express.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&model.Item{},
		&model.Customer{},
		&model.Sale{},
		&model.SaleItem{},
		&model.SalePayment{},
		&model.StockMovement{},
		&model.PriceChange{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// fully handle on its own (partial indexes, check constraints). Each statement
// is guarded so re-running on an already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"unique active barcode", `
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_active_barcode
    ON items (barcode) WHERE is_active AND barcode <> ''`},
		{"unique active sku", `
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_active_sku
    ON items (sku) WHERE is_active AND sku <> ''`},
		{"stock never negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_items_stock_non_negative') THEN
    ALTER TABLE items ADD CONSTRAINT chk_items_stock_non_negative CHECK (stock >= 0);
  END IF;
END $$`},
		{"adjustment references", `
CREATE INDEX IF NOT EXISTS idx_stock_movements_adjustment_ref
    ON stock_movements (reference) WHERE type = 'adjustment'`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
