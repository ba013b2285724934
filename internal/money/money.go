// Package money holds the pure monetary/tax arithmetic shared by the cart,
// the checkout flow and the server. Values stay at full precision while
// computing; Round is applied only where amounts leave the process
// (display, RPC params, persisted sale records).
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a discount figure is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is one of the known discount types.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// DefaultTaxRate is the flat GST rate applied when none is configured.
var DefaultTaxRate = decimal.RequireFromString("0.18")

var hundred = decimal.NewFromInt(100)

// Breakdown is the result of applying a discount and a flat tax to a subtotal.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxableBase    decimal.Decimal `json:"taxable_base"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// DiscountAmount resolves a discount against subtotal. The result is always
// within [0, subtotal].
func DiscountAmount(subtotal, discount decimal.Decimal, t DiscountType) decimal.Decimal {
	if discount.IsNegative() || !subtotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	if t == DiscountPercentage {
		amount = subtotal.Mul(discount).Div(hundred)
	} else {
		amount = discount
	}
	return Clamp(amount, decimal.Zero, subtotal)
}

// Tax returns base * rate. A negative base yields zero tax.
func Tax(base, rate decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return base.Mul(rate)
}

// Compute applies discount then tax:
//
//	taxableBase = subtotal - discountAmount
//	taxAmount   = taxableBase * rate
//	total       = taxableBase + taxAmount
func Compute(subtotal, discount decimal.Decimal, t DiscountType, rate decimal.Decimal) Breakdown {
	d := DiscountAmount(subtotal, discount, t)
	base := subtotal.Sub(d)
	tax := Tax(base, rate)
	return Breakdown{
		Subtotal:       subtotal,
		DiscountAmount: d,
		TaxableBase:    base,
		TaxAmount:      tax,
		Total:          base.Add(tax),
	}
}

// Rounded returns a copy of b with every figure rounded to cents.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		Subtotal:       Round(b.Subtotal),
		DiscountAmount: Round(b.DiscountAmount),
		TaxableBase:    Round(b.TaxableBase),
		TaxAmount:      Round(b.TaxAmount),
		Total:          Round(b.Total),
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// Round rounds half away from zero to 2 decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders d with exactly two decimals ("236.00").
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseRate accepts a fractional rate ("0.18") or a percentage ("18", "18%")
// and returns the fractional form.
func ParseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return DefaultTaxRate, nil
	}
	r, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: invalid tax rate %q: %w", s, err)
	}
	if r.IsNegative() {
		return decimal.Zero, fmt.Errorf("money: negative tax rate %q", s)
	}
	if r.GreaterThan(decimal.NewFromInt(1)) {
		r = r.Div(hundred)
	}
	return r, nil
}
