package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a sellable catalog entry. Barcode and SKU are both scannable codes;
// get_item_by_code matches either.
type Item struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name       string          `gorm:"index;not null"`
	SKU        string          `gorm:"index"`
	Barcode    string          `gorm:"index"`
	CategoryID string
	ImageURL   string
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CostPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Stock      int             `gorm:"not null;default:0"`
	MinStock   int             `gorm:"not null;default:0"`
	IsActive   bool            `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Codes returns the non-empty scannable codes of the item.
func (i *Item) Codes() []string {
	var out []string
	if i.Barcode != "" {
		out = append(out, i.Barcode)
	}
	if i.SKU != "" && i.SKU != i.Barcode {
		out = append(out, i.SKU)
	}
	return out
}
