// Package cart implements the active checkout session of a terminal: line
// items, selected customer, cart-level discount and notes, with every total
// derived from current state.
package cart

import (
	"errors"

	"github.com/JKKN-Institutions/JKKNPOS/internal/money"

	"github.com/shopspring/decimal"
)

// ErrInsufficientStock is returned by TryAddItem when the merged quantity
// would exceed the stock carried by the product.
var ErrInsufficientStock = errors.New("insufficient stock")

// Product is what the catalog hands to the cart when a product is scanned or
// picked. Only ID, Name and Price are snapshotted into the line.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Stock      int
	TrackStock bool
}

// Customer is a weak reference to a customer record plus display snapshot.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// LineItem is one product line. LineTax and LineTotal are derived:
//
//	LineTotal = Quantity*UnitPrice - LineDiscount + LineTax
type LineItem struct {
	ItemID       string          `json:"item_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTax      decimal.Decimal `json:"line_tax"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// Gross is Quantity*UnitPrice before any discount.
func (l LineItem) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l *LineItem) recompute(rate decimal.Decimal) {
	gross := l.Gross()
	l.LineDiscount = money.Clamp(l.LineDiscount, decimal.Zero, gross)
	net := gross.Sub(l.LineDiscount)
	l.LineTax = money.Tax(net, rate)
	l.LineTotal = net.Add(l.LineTax)
}

// State is the persisted shape of a cart.
type State struct {
	Items        []LineItem         `json:"items"`
	Customer     *Customer          `json:"customer,omitempty"`
	Discount     decimal.Decimal    `json:"discount"`
	DiscountType money.DiscountType `json:"discount_type"`
	Notes        string             `json:"notes"`
}

func (s State) clone() State {
	out := s
	out.Items = append([]LineItem(nil), s.Items...)
	if s.Customer != nil {
		c := *s.Customer
		out.Customer = &c
	}
	return out
}

// Cart is the aggregate. It does no I/O and never returns errors for ordinary
// flows: removing or updating a missing line is a no-op.
type Cart struct {
	state   State
	taxRate decimal.Decimal
}

// New returns an empty cart taxing at rate.
func New(rate decimal.Decimal) *Cart {
	return &Cart{
		state:   State{DiscountType: money.DiscountFixed},
		taxRate: rate,
	}
}

// FromState rebuilds a cart from persisted state. Derived line figures are
// recomputed so a changed tax rate or a tampered file cannot leave stale totals.
func FromState(s State, rate decimal.Decimal) *Cart {
	c := &Cart{state: s.clone(), taxRate: rate}
	if !c.state.DiscountType.Valid() {
		c.state.DiscountType = money.DiscountFixed
	}
	kept := c.state.Items[:0]
	seen := make(map[string]bool, len(c.state.Items))
	for _, l := range c.state.Items {
		if l.Quantity <= 0 || seen[l.ItemID] {
			continue
		}
		seen[l.ItemID] = true
		l.recompute(rate)
		kept = append(kept, l)
	}
	c.state.Items = kept
	return c
}

// State returns a deep copy of the current state.
func (c *Cart) State() State { return c.state.clone() }

// TaxRate returns the rate the cart was built with.
func (c *Cart) TaxRate() decimal.Decimal { return c.taxRate }

func (c *Cart) indexOf(itemID string) int {
	for i := range c.state.Items {
		if c.state.Items[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// AddItem merges one unit of p into the cart: an existing line gains one unit,
// otherwise a new line with quantity 1 and no discount is appended.
func (c *Cart) AddItem(p Product) {
	if i := c.indexOf(p.ID); i >= 0 {
		c.state.Items[i].Quantity++
		c.state.Items[i].recompute(c.taxRate)
		return
	}
	l := LineItem{
		ItemID:       p.ID,
		Name:         p.Name,
		UnitPrice:    p.Price,
		Quantity:     1,
		LineDiscount: decimal.Zero,
	}
	l.recompute(c.taxRate)
	c.state.Items = append(c.state.Items, l)
}

// TryAddItem is AddItem with a stock check for products that track stock.
func (c *Cart) TryAddItem(p Product) error {
	if p.TrackStock {
		qty := 0
		if i := c.indexOf(p.ID); i >= 0 {
			qty = c.state.Items[i].Quantity
		}
		if qty+1 > p.Stock {
			return ErrInsufficientStock
		}
	}
	c.AddItem(p)
	return nil
}

// RemoveItem deletes the line for itemID, if any.
func (c *Cart) RemoveItem(itemID string) {
	i := c.indexOf(itemID)
	if i < 0 {
		return
	}
	c.state.Items = append(c.state.Items[:i], c.state.Items[i+1:]...)
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes it. The line
// discount is kept, clamped to the new gross if it no longer fits.
func (c *Cart) UpdateQuantity(itemID string, qty int) {
	if qty <= 0 {
		c.RemoveItem(itemID)
		return
	}
	i := c.indexOf(itemID)
	if i < 0 {
		return
	}
	c.state.Items[i].Quantity = qty
	c.state.Items[i].recompute(c.taxRate)
}

// UpdateLineDiscount sets a line discount clamped to [0, quantity*unitPrice].
func (c *Cart) UpdateLineDiscount(itemID string, amount decimal.Decimal) {
	i := c.indexOf(itemID)
	if i < 0 {
		return
	}
	c.state.Items[i].LineDiscount = amount
	c.state.Items[i].recompute(c.taxRate)
}

// SetCustomer selects a customer; nil clears the selection.
func (c *Cart) SetCustomer(cu *Customer) {
	if cu == nil {
		c.state.Customer = nil
		return
	}
	cp := *cu
	c.state.Customer = &cp
}

// SetCartDiscount sets the cart-level discount. Unknown types fall back to
// fixed and negative amounts to zero.
func (c *Cart) SetCartDiscount(amount decimal.Decimal, t money.DiscountType) {
	if !t.Valid() {
		t = money.DiscountFixed
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	c.state.Discount = amount
	c.state.DiscountType = t
}

// SetNotes replaces the free-text notes.
func (c *Cart) SetNotes(notes string) { c.state.Notes = notes }

// Clear resets the cart to its empty state.
func (c *Cart) Clear() {
	c.state = State{DiscountType: money.DiscountFixed}
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []LineItem {
	return append([]LineItem(nil), c.state.Items...)
}

// Customer returns the selected customer or nil.
func (c *Cart) Customer() *Customer {
	if c.state.Customer == nil {
		return nil
	}
	cu := *c.state.Customer
	return &cu
}

// Subtotal is the sum of quantity*unitPrice over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.state.Items {
		sum = sum.Add(l.Gross())
	}
	return sum
}

// LineDiscountTotal is the sum of per-line discounts.
func (c *Cart) LineDiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.state.Items {
		sum = sum.Add(l.LineDiscount)
	}
	return sum
}

// breakdown applies the cart discount on top of the line-discounted subtotal.
func (c *Cart) breakdown() money.Breakdown {
	net := c.Subtotal().Sub(c.LineDiscountTotal())
	return money.Compute(net, c.state.Discount, c.state.DiscountType, c.taxRate)
}

// DiscountAmount is the resolved cart-level discount.
func (c *Cart) DiscountAmount() decimal.Decimal { return c.breakdown().DiscountAmount }

// TaxAmount is the cart-level tax. With no cart discount it equals the sum of
// the line taxes.
func (c *Cart) TaxAmount() decimal.Decimal { return c.breakdown().TaxAmount }

// Total is subtotal minus all discounts plus tax.
func (c *Cart) Total() decimal.Decimal { return c.breakdown().Total }

// ItemCount is the number of units across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.state.Items {
		n += l.Quantity
	}
	return n
}

// Summary is a display snapshot of the totals, rounded to cents.
type Summary struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	LineDiscountTotal decimal.Decimal `json:"line_discount_total"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	Total             decimal.Decimal `json:"total"`
	ItemCount         int             `json:"item_count"`
}

// Summary computes all totals once and rounds them for output.
func (c *Cart) Summary() Summary {
	b := c.breakdown()
	return Summary{
		Subtotal:          money.Round(c.Subtotal()),
		LineDiscountTotal: money.Round(c.LineDiscountTotal()),
		DiscountAmount:    money.Round(b.DiscountAmount),
		TaxAmount:         money.Round(b.TaxAmount),
		Total:             money.Round(b.Total),
		ItemCount:         c.ItemCount(),
	}
}
