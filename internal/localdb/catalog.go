package localdb

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 200

// CacheProducts bulk-upserts products by id. Existing rows are overwritten in
// full.
func (s *Store) CacheProducts(ctx context.Context, products []CachedProduct) error {
	if len(products) == 0 {
		return nil
	}
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(&products, upsertBatchSize).Error
	})
	return wrapErr("cache products", err)
}

// CacheCustomers bulk-upserts customers by id.
func (s *Store) CacheCustomers(ctx context.Context, customers []CachedCustomer) error {
	if len(customers) == 0 {
		return nil
	}
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(&customers, upsertBatchSize).Error
	})
	return wrapErr("cache customers", err)
}

// ReplaceProducts makes the cached catalog exactly products. Rows missing from
// the list are removed in the same transaction.
func (s *Store) ReplaceProducts(ctx context.Context, products []CachedProduct) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CachedProduct{}).Error; err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		return tx.CreateInBatches(&products, upsertBatchSize).Error
	})
	return wrapErr("replace products", err)
}

// ReplaceCustomers makes the cached customer list exactly customers.
func (s *Store) ReplaceCustomers(ctx context.Context, customers []CachedCustomer) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CachedCustomer{}).Error; err != nil {
			return err
		}
		if len(customers) == 0 {
			return nil
		}
		return tx.CreateInBatches(&customers, upsertBatchSize).Error
	})
	return wrapErr("replace customers", err)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*CachedProduct, error) {
	var p CachedProduct
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, wrapErr("get product", err)
	}
	return &p, nil
}

// GetProductByBarcode matches the barcode first, then the SKU.
func (s *Store) GetProductByBarcode(ctx context.Context, code string) (*CachedProduct, error) {
	var p CachedProduct
	err := s.db.WithContext(ctx).
		Where("barcode = ? OR sku = ?", code, code).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN barcode = ? THEN 0 ELSE 1 END",
			Vars: []interface{}{code},
		}}).
		First(&p).Error
	if err != nil {
		return nil, wrapErr("get product by barcode", err)
	}
	return &p, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*CachedCustomer, error) {
	var c CachedCustomer
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, wrapErr("get customer", err)
	}
	return &c, nil
}

// SearchProducts is a case-insensitive substring match over name, SKU and
// barcode. An empty query returns every cached product.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]CachedProduct, error) {
	q := s.db.WithContext(ctx).Model(&CachedProduct{})
	if query = strings.TrimSpace(query); query != "" {
		pat := likePattern(strings.ToLower(query))
		q = q.Where(
			"LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(sku) LIKE ? ESCAPE '\\' OR LOWER(barcode) LIKE ? ESCAPE '\\'",
			pat, pat, pat,
		)
	}
	var out []CachedProduct
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, wrapErr("search products", err)
	}
	return out, nil
}

// GetProductsByCategory returns the active cached products of a category.
func (s *Store) GetProductsByCategory(ctx context.Context, categoryID string) ([]CachedProduct, error) {
	var out []CachedProduct
	err := s.db.WithContext(ctx).
		Where("category_id = ? AND is_active = ?", categoryID, true).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr("get products by category", err)
	}
	return out, nil
}

// LowStockProducts returns active cached products with a minimum stock set
// and stock at or below it, emptiest first. The figures are as fresh as the
// last refresh plus local sales.
func (s *Store) LowStockProducts(ctx context.Context) ([]CachedProduct, error) {
	var out []CachedProduct
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND min_stock > 0 AND stock <= min_stock", true).
		Order("CAST(stock AS REAL) / min_stock ASC, name ASC").
		Find(&out).Error
	if err != nil {
		return nil, wrapErr("low stock products", err)
	}
	return out, nil
}

// SearchCustomers matches name and email case-insensitively and phone as a
// plain substring.
func (s *Store) SearchCustomers(ctx context.Context, query string) ([]CachedCustomer, error) {
	q := s.db.WithContext(ctx).Model(&CachedCustomer{})
	if query = strings.TrimSpace(query); query != "" {
		lower := likePattern(strings.ToLower(query))
		q = q.Where(
			"LOWER(name) LIKE ? ESCAPE '\\' OR phone LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\'",
			lower, likePattern(query), lower,
		)
	}
	var out []CachedCustomer
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, wrapErr("search customers", err)
	}
	return out, nil
}

// AdjustCachedStock applies a signed delta to the cached stock figure. Stock
// never goes below zero locally; the server remains the authority.
func (s *Store) AdjustCachedStock(ctx context.Context, productID string, delta int) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&CachedProduct{}).
			Where("id = ?", productID).
			Update("stock", gorm.Expr("MAX(stock + ?, 0)", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return wrapErr("adjust cached stock", err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
