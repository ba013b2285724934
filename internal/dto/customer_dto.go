package dto

import "github.com/shopspring/decimal"

type CustomerParams struct {
	ID                 string          `json:"id"                  validate:"omitempty,uuid"`
	Name               string          `json:"name"                validate:"required,min=2,max=120"`
	Phone              string          `json:"phone"               validate:"max=20"`
	Email              string          `json:"email"               validate:"omitempty,email"`
	Address            string          `json:"address"             validate:"max=250"`
	CreditLimit        decimal.Decimal `json:"credit_limit"        validate:"min=0"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance" validate:"min=0"`
}

type CustomerResponse struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Phone              string          `json:"phone"`
	Email              string          `json:"email"`
	Address            string          `json:"address"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	UpdatedAt          string          `json:"updated_at"`
}
