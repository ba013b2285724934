package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods accepted by create_sale.
const (
	PaymentCash   = "CASH"
	PaymentCard   = "CARD"
	PaymentUPI    = "UPI"
	PaymentWallet = "WALLET"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// SaleItemParams is one flattened cart line as sent to create_sale. Amounts
// are already rounded to cents by the terminal.
type SaleItemParams struct {
	ItemID   string          `json:"item_id"  validate:"required"`
	Name     string          `json:"name"     validate:"required"`
	Quantity int             `json:"quantity" validate:"required,min=1"`
	Price    decimal.Decimal `json:"price"    validate:"min=0"`
	Discount decimal.Decimal `json:"discount" validate:"min=0"`
	Tax      decimal.Decimal `json:"tax"      validate:"min=0"`
	Total    decimal.Decimal `json:"total"    validate:"min=0"`
}

// CreateSaleParams are the params of the create_sale operation. The same
// struct is the payload of a queued "sale/create" entry.
type CreateSaleParams struct {
	// OfflineID is generated by the terminal for every checkout and is the
	// server's deduplication key.
	OfflineID        string           `json:"offline_id"        validate:"required,uuid"`
	SaleNumber       string           `json:"sale_number"       validate:"omitempty,max=64"`
	TerminalID       string           `json:"terminal_id"`
	CustomerID       *string          `json:"customer_id"       validate:"omitempty,uuid"`
	Items            []SaleItemParams `json:"items"             validate:"required,min=1,dive"`
	PaymentMethod    string           `json:"payment_method"    validate:"required,oneof=CASH CARD UPI WALLET"`
	PaymentAmount    decimal.Decimal  `json:"payment_amount"    validate:"min=0"`
	PaymentReference string           `json:"payment_reference" validate:"max=120"`
	Subtotal         decimal.Decimal  `json:"subtotal"          validate:"min=0"`
	Discount         decimal.Decimal  `json:"discount"          validate:"min=0"`
	DiscountType     string           `json:"discount_type"     validate:"omitempty,oneof=percentage fixed"`
	Tax              decimal.Decimal  `json:"tax"               validate:"min=0"`
	Total            decimal.Decimal  `json:"total"             validate:"min=0"`
	Notes            string           `json:"notes"             validate:"max=500"`
	// CreatedAt is the time the sale was rung up, which differs from the time
	// it reaches the server for sales replayed from the queue.
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ParkSaleParams hold a cart on the server without taking payment or stock.
// OfflineID is the terminal's id for the held cart.
type ParkSaleParams struct {
	OfflineID    string           `json:"offline_id"    validate:"required,uuid"`
	TerminalID   string           `json:"terminal_id"`
	CustomerID   *string          `json:"customer_id"   validate:"omitempty,uuid"`
	Items        []SaleItemParams `json:"items"         validate:"required,min=1,dive"`
	Subtotal     decimal.Decimal  `json:"subtotal"      validate:"min=0"`
	Discount     decimal.Decimal  `json:"discount"      validate:"min=0"`
	DiscountType string           `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	Tax          decimal.Decimal  `json:"tax"           validate:"min=0"`
	Total        decimal.Decimal  `json:"total"         validate:"min=0"`
	Notes        string           `json:"notes"         validate:"max=500"`
	CreatedAt    *time.Time       `json:"created_at,omitempty"`
}

// ParkedSalesParams filters get_parked_sales. An empty TerminalID lists the
// parked sales of every terminal.
type ParkedSalesParams struct {
	TerminalID string `json:"terminal_id" validate:"max=64"`
}

type ResumeParkedSaleParams struct {
	OfflineID string `json:"offline_id" validate:"required,uuid"`
}

type CancelSaleParams struct {
	SaleID string `json:"sale_id" validate:"required,uuid"`
	Reason string `json:"reason"  validate:"required,min=3"`
}

type GenerateSaleNumberParams struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"` // empty = today
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleItemResponse struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type SaleResponse struct {
	ID            string             `json:"id"`
	OfflineID     string             `json:"offline_id"`
	SaleNumber    string             `json:"sale_number"`
	CustomerID    *string            `json:"customer_id"`
	Items         []SaleItemResponse `json:"items"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Discount      decimal.Decimal    `json:"discount"`
	Tax           decimal.Decimal    `json:"tax"`
	Total         decimal.Decimal    `json:"total"`
	PaymentMethod string             `json:"payment_method"`
	PaymentAmount decimal.Decimal    `json:"payment_amount"`
	Change        decimal.Decimal    `json:"change"`
	Status        string             `json:"status"`
	// Duplicate is true when the offline_id had already been recorded and the
	// stored sale is returned unchanged.
	Duplicate bool   `json:"duplicate"`
	CreatedAt string `json:"created_at"`
}

// ResumeParkedSaleResponse reports whether a parked sale was removed. A replay
// finds nothing and reports false.
type ResumeParkedSaleResponse struct {
	OfflineID string `json:"offline_id"`
	Resumed   bool   `json:"resumed"`
}

type SaleNumberResponse struct {
	SaleNumber string `json:"sale_number"`
}
