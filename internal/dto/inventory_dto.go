package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// AdjustStockParams is a signed stock delta for one item. Reference carries
// the terminal-side id (queue entry or offline sale) for traceability.
type AdjustStockParams struct {
	ItemID    string `json:"item_id"   validate:"required,uuid"`
	Delta     int    `json:"delta"     validate:"required,ne=0"`
	Reason    string `json:"reason"    validate:"required,oneof=sale restock correction damage return"`
	Reference string `json:"reference" validate:"max=64"`
	Notes     string `json:"notes"     validate:"max=250"`
}

// ItemParams is the payload of upsert_item. An empty ID creates a new item.
type ItemParams struct {
	ID         string          `json:"id"          validate:"omitempty,uuid"`
	Name       string          `json:"name"        validate:"required,min=2,max=120"`
	SKU        string          `json:"sku"         validate:"max=64"`
	Barcode    string          `json:"barcode"     validate:"omitempty,min=4,max=32"`
	Price      decimal.Decimal `json:"price"       validate:"min=0"`
	CostPrice  decimal.Decimal `json:"cost_price"  validate:"min=0"`
	Stock      int             `json:"stock"       validate:"min=0"`
	MinStock   int             `json:"min_stock"   validate:"min=0"`
	CategoryID string          `json:"category_id" validate:"max=64"`
	ImageURL   string          `json:"image_url"   validate:"omitempty,url"`
	IsActive   *bool           `json:"is_active"`
}

type DeleteParams struct {
	ID string `json:"id" validate:"required,uuid"`
}

type ItemByCodeParams struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

// ListParams filters the catalog read operations. An empty Query returns
// everything.
type ListParams struct {
	Query           string `json:"query"`
	IncludeInactive bool   `json:"include_inactive"`
}

// LowStockParams limits get_low_stock_items; zero means the default of 100.
type LowStockParams struct {
	Limit int `json:"limit" validate:"min=0,max=500"`
}

type PriceHistoryParams struct {
	ItemID string `json:"item_id" validate:"required,uuid"`
	Page   int    `json:"page"    validate:"min=0"`
	Limit  int    `json:"limit"   validate:"min=0,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ItemResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Barcode    string          `json:"barcode"`
	Price      decimal.Decimal `json:"price"`
	CostPrice  decimal.Decimal `json:"cost_price"`
	Stock      int             `json:"stock"`
	MinStock   int             `json:"min_stock"`
	CategoryID string          `json:"category_id"`
	ImageURL   string          `json:"image_url"`
	IsActive   bool            `json:"is_active"`
	UpdatedAt  string          `json:"updated_at"`
}

// LowStockItemResponse is an active item at or below its minimum stock.
// StockPercentage is stock as a percentage of the minimum.
type LowStockItemResponse struct {
	ItemResponse
	StockPercentage decimal.Decimal `json:"stock_percentage"`
}

type StockResponse struct {
	ItemID string `json:"item_id"`
	Stock  int    `json:"stock"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type PriceChangeResponse struct {
	CostBefore  decimal.Decimal `json:"cost_before"`
	CostAfter   decimal.Decimal `json:"cost_after"`
	PriceBefore decimal.Decimal `json:"price_before"`
	PriceAfter  decimal.Decimal `json:"price_after"`
	Reason      string          `json:"reason"`
	CreatedAt   string          `json:"created_at"`
}

type PriceHistoryResponse struct {
	Items []PriceChangeResponse `json:"items"`
	Total int64                 `json:"total"`
}
