package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is soft-deleted: delete_customer clears IsActive and the row stays
// referenced by past sales.
type Customer struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name               string          `gorm:"index;not null"`
	Phone              string          `gorm:"index"`
	Email              string
	Address            string
	CreditLimit        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	IsActive           bool            `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
