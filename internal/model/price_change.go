package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceReasonUpdate marks a change made through upsert_item.
const PriceReasonUpdate = "item_update"

// PriceChange records one change of an item's sale or cost price.
// Rows are append-only.
type PriceChange struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItemID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	CostBefore  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CostAfter   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PriceBefore decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PriceAfter  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Reason      string          `gorm:"not null;default:'item_update'"`
	CreatedAt   time.Time

	Item *Item `gorm:"foreignKey:ItemID"`
}

func (PriceChange) TableName() string { return "price_history" }
