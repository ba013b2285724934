package model

import (
	"time"

	"github.com/google/uuid"
)

// Stock movement types.
const (
	MovementSale       = "sale"
	MovementAdjustment = "adjustment"
	MovementCancel     = "sale_cancelled"
)

// StockMovement records every stock change of an item. Sales, manual
// adjustments and cancellations each write one per affected item.
type StockMovement struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItemID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type        string     `gorm:"not null"`
	Quantity    int        `gorm:"not null"` // positive = in, negative = out
	StockBefore int        `gorm:"not null"`
	StockAfter  int        `gorm:"not null"`
	Reason      string
	Reference   string     `gorm:"index"` // terminal reference or idempotency key
	SaleID      *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt   time.Time

	Item *Item `gorm:"foreignKey:ItemID"`
}

func (StockMovement) TableName() string { return "stock_movements" }
