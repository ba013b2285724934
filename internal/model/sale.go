package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale statuses.
const (
	SaleCompleted = "completed"
	SaleCancelled = "cancelled"
	// SaleParked holds a cart for later. It has no payment and moves no stock.
	SaleParked = "parked"
)

// Sale is one recorded checkout. OfflineID is the terminal-generated id and
// the deduplication key for replayed create_sale calls.
type Sale struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleNumber   string          `gorm:"uniqueIndex;not null"`
	OfflineID    string          `gorm:"uniqueIndex;not null"`
	TerminalID   string          `gorm:"index"`
	CustomerID   *uuid.UUID      `gorm:"type:uuid;index"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountType string
	Tax          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status       string          `gorm:"not null;index"`
	Notes        string
	CancelReason string
	// SoldAt is when the terminal rang the sale up; CreatedAt is when it
	// reached the server.
	SoldAt    time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items    []SaleItem    `gorm:"foreignKey:SaleID"`
	Payments []SalePayment `gorm:"foreignKey:SaleID"`
}

type SaleItem struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name     string          `gorm:"not null"`
	Quantity int             `gorm:"not null"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Tax      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

type SalePayment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method    string          `gorm:"not null"` // CASH | CARD | UPI | WALLET
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Reference string
}
