package service

import (
	"context"
	"testing"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 17, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedItem(f *fixture, name, barcode string, price string, stock int) model.Item {
	return f.items.add(model.Item{
		Name:     name,
		Barcode:  barcode,
		Price:    dec(price),
		Stock:    stock,
		IsActive: true,
	})
}

// saleParams builds a one-line cash sale with consistent totals.
func saleParams(it model.Item, qty int) dto.CreateSaleParams {
	total := it.Price.Mul(decimal.NewFromInt(int64(qty)))
	return dto.CreateSaleParams{
		OfflineID:     uuid.NewString(),
		TerminalID:    "T1",
		Items:         []dto.SaleItemParams{{ItemID: it.ID.String(), Name: it.Name, Quantity: qty, Price: it.Price, Total: total}},
		PaymentMethod: dto.PaymentCash,
		PaymentAmount: total.Add(dec("5")),
		Subtotal:      total,
		Total:         total,
	}
}

func TestCreateSale_DecrementsStockAndNumbersTheSale(t *testing.T) {
	f := newFixture(t)
	f.saleSvc.now = func() time.Time { return fixedNow }
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	resp, err := f.saleSvc.CreateSale(context.Background(), saleParams(it, 3))
	require.NoError(t, err)

	assert.Equal(t, "INV-20261017-0001", resp.SaleNumber)
	assert.Equal(t, model.SaleCompleted, resp.Status)
	assert.True(t, dec("120").Equal(resp.Total))
	assert.True(t, dec("5").Equal(resp.Change))
	assert.False(t, resp.Duplicate)
	assert.Equal(t, fixedNow.Format(time.RFC3339), resp.CreatedAt)
	assert.Equal(t, 7, f.items.stock(it.ID))

	require.Len(t, f.movements.movements, 1)
	mov := f.movements.movements[0]
	assert.Equal(t, model.MovementSale, mov.Type)
	assert.Equal(t, -3, mov.Quantity)
	assert.Equal(t, 10, mov.StockBefore)
	assert.Equal(t, 7, mov.StockAfter)

	second, err := f.saleSvc.CreateSale(context.Background(), saleParams(it, 1))
	require.NoError(t, err)
	assert.Equal(t, "INV-20261017-0002", second.SaleNumber)
}

func TestCreateSale_KeepsTerminalNumberAndSaleTime(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	rungUp := time.Date(2026, 10, 16, 21, 0, 0, 0, time.UTC)
	p := saleParams(it, 1)
	p.SaleNumber = "OFF-20261016-0007"
	p.CreatedAt = &rungUp

	resp, err := f.saleSvc.CreateSale(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "OFF-20261016-0007", resp.SaleNumber)
	assert.Equal(t, rungUp.Format(time.RFC3339), resp.CreatedAt)
	assert.False(t, f.redis.Exists("sale_number:20261016"), "no counter is consumed for a numbered sale")
}

func TestCreateSale_TakenTerminalNumberIsRenumbered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	rungUp := time.Date(2026, 10, 16, 21, 0, 0, 0, time.UTC)

	first := saleParams(it, 1)
	first.SaleNumber = "OFF-20261016-T1-0001"
	first.CreatedAt = &rungUp
	_, err := f.saleSvc.CreateSale(ctx, first)
	require.NoError(t, err)

	// Another terminal (or a wiped local store) issued the same number.
	second := saleParams(it, 2)
	second.SaleNumber = first.SaleNumber
	second.CreatedAt = &rungUp
	resp, err := f.saleSvc.CreateSale(ctx, second)
	require.NoError(t, err)

	assert.False(t, resp.Duplicate)
	assert.Equal(t, second.OfflineID, resp.OfflineID)
	assert.Equal(t, "INV-20261016-0001", resp.SaleNumber)
	assert.Equal(t, 7, f.items.stock(it.ID))
	assert.Len(t, f.sales.sales, 2)
}

func TestCreateSale_RenumberCollisionIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	rungUp := time.Date(2026, 10, 16, 21, 0, 0, 0, time.UTC)
	for _, n := range []string{"OFF-20261016-T1-0001", "INV-20261016-0001"} {
		id := uuid.New()
		f.sales.sales[id] = &model.Sale{ID: id, OfflineID: uuid.NewString(), SaleNumber: n, Status: model.SaleCompleted}
	}

	p := saleParams(it, 1)
	p.SaleNumber = "OFF-20261016-T1-0001"
	p.CreatedAt = &rungUp
	_, err := f.saleSvc.CreateSale(ctx, p)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 10, f.items.stock(it.ID))
	assert.Empty(t, f.movements.movements)
}

func TestCreateSale_ReplayReturnsStoredSale(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	p := saleParams(it, 2)

	first, err := f.saleSvc.CreateSale(context.Background(), p)
	require.NoError(t, err)

	replay, err := f.saleSvc.CreateSale(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, first.SaleNumber, replay.SaleNumber)
	assert.Equal(t, 8, f.items.stock(it.ID), "stock is decremented once")
	assert.Len(t, f.sales.sales, 1)
}

func TestCreateSale_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *dto.CreateSaleParams, f *fixture)
		want   error
	}{
		{
			name:   "totals do not add up",
			mutate: func(p *dto.CreateSaleParams, _ *fixture) { p.Total = p.Total.Add(dec("1")) },
			want:   ErrValidation,
		},
		{
			name:   "cash below total",
			mutate: func(p *dto.CreateSaleParams, _ *fixture) { p.PaymentAmount = dec("1") },
			want:   ErrValidation,
		},
		{
			name: "unknown customer",
			mutate: func(p *dto.CreateSaleParams, _ *fixture) {
				id := uuid.NewString()
				p.CustomerID = &id
			},
			want: ErrNotFound,
		},
		{
			name:   "unknown item",
			mutate: func(p *dto.CreateSaleParams, _ *fixture) { p.Items[0].ItemID = uuid.NewString() },
			want:   ErrNotFound,
		},
		{
			name:   "more than in stock",
			mutate: func(p *dto.CreateSaleParams, _ *fixture) { p.Items[0].Quantity = 11 },
			want:   ErrConflict,
		},
		{
			name: "inactive item",
			mutate: func(p *dto.CreateSaleParams, f *fixture) {
				id := uuid.MustParse(p.Items[0].ItemID)
				it := f.items.items[id]
				it.IsActive = false
				f.items.items[id] = it
			},
			want: ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			it := seedItem(f, "Tea", "890100", "40.00", 10)
			p := saleParams(it, 1)
			tc.mutate(&p, f)

			_, err := f.saleSvc.CreateSale(context.Background(), p)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, 10, f.items.stock(it.ID))
			assert.Empty(t, f.sales.sales)
			assert.Empty(t, f.movements.movements)
		})
	}
}

func TestCreateSale_StockCheckCountsEarlierLines(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "10.00", 5)

	p := saleParams(it, 3)
	p.Items = append(p.Items, p.Items[0])
	p.Subtotal = dec("60")
	p.Total = dec("60")
	p.PaymentAmount = dec("60")

	_, err := f.saleSvc.CreateSale(context.Background(), p)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 5, f.items.stock(it.ID))
}

func TestCreateSale_NonCashMayPayExactly(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	p := saleParams(it, 1)
	p.PaymentMethod = dto.PaymentUPI
	p.PaymentAmount = p.Total

	resp, err := f.saleSvc.CreateSale(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, resp.Change.IsZero())
	assert.Equal(t, dto.PaymentUPI, resp.PaymentMethod)
}

func TestCreateSale_InvalidatesCachedLookup(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	_, err := f.inventory.GetItemByCode(context.Background(), dto.ItemByCodeParams{Code: "890100"})
	require.NoError(t, err)
	require.True(t, f.redis.Exists(itemCacheKey("890100")))

	_, err = f.saleSvc.CreateSale(context.Background(), saleParams(it, 4))
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(itemCacheKey("890100")))

	got, err := f.inventory.GetItemByCode(context.Background(), dto.ItemByCodeParams{Code: "890100"})
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)
}

func TestCancelSale_RestoresStock(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	sale, err := f.saleSvc.CreateSale(context.Background(), saleParams(it, 4))
	require.NoError(t, err)
	require.Equal(t, 6, f.items.stock(it.ID))

	cancelled, err := f.saleSvc.CancelSale(context.Background(), dto.CancelSaleParams{SaleID: sale.ID, Reason: "customer returned"})
	require.NoError(t, err)
	assert.Equal(t, model.SaleCancelled, cancelled.Status)
	assert.Equal(t, 10, f.items.stock(it.ID))

	last := f.movements.movements[len(f.movements.movements)-1]
	assert.Equal(t, model.MovementCancel, last.Type)
	assert.Equal(t, 4, last.Quantity)
	assert.Equal(t, 6, last.StockBefore)
	assert.Equal(t, 10, last.StockAfter)

	_, err = f.saleSvc.CancelSale(context.Background(), dto.CancelSaleParams{SaleID: sale.ID, Reason: "again"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 10, f.items.stock(it.ID))
}

func TestCancelSale_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.saleSvc.CancelSale(context.Background(), dto.CancelSaleParams{SaleID: uuid.NewString(), Reason: "typo"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.saleSvc.CancelSale(context.Background(), dto.CancelSaleParams{SaleID: "nope", Reason: "typo"})
	require.ErrorIs(t, err, ErrValidation)
}

func parkParams(it model.Item, qty int) dto.ParkSaleParams {
	sale := saleParams(it, qty)
	return dto.ParkSaleParams{
		OfflineID:  sale.OfflineID,
		TerminalID: sale.TerminalID,
		Items:      sale.Items,
		Subtotal:   sale.Subtotal,
		Total:      sale.Total,
		Notes:      "back in five",
	}
}

func TestParkSale_HoldsCartWithoutStockOrNumber(t *testing.T) {
	f := newFixture(t)
	f.saleSvc.now = func() time.Time { return fixedNow }
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	ctx := context.Background()

	p := parkParams(it, 2)
	resp, err := f.saleSvc.ParkSale(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, model.SaleParked, resp.Status)
	assert.Equal(t, "HOLD-"+p.OfflineID, resp.SaleNumber)
	assert.Equal(t, 10, f.items.stock(it.ID))
	assert.Empty(t, f.movements.movements)

	again, err := f.saleSvc.ParkSale(ctx, p)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	// Parking used no invoice number.
	sale, err := f.saleSvc.CreateSale(ctx, saleParams(it, 1))
	require.NoError(t, err)
	assert.Equal(t, "INV-20261017-0001", sale.SaleNumber)

	other := parkParams(it, 1)
	other.TerminalID = "T2"
	_, err = f.saleSvc.ParkSale(ctx, other)
	require.NoError(t, err)

	mine, err := f.saleSvc.ParkedSales(ctx, dto.ParkedSalesParams{TerminalID: "T1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.OfflineID, mine[0].OfflineID)

	all, err := f.saleSvc.ParkedSales(ctx, dto.ParkedSalesParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResumeParked_RemovesOnceAndGuardsRecordedSales(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	ctx := context.Background()

	p := parkParams(it, 2)
	_, err := f.saleSvc.ParkSale(ctx, p)
	require.NoError(t, err)

	// A parked sale is neither cancellable nor replayable as a completed sale.
	var parkedID string
	for id, s := range f.sales.sales {
		if s.OfflineID == p.OfflineID {
			parkedID = id.String()
		}
	}
	_, err = f.saleSvc.CancelSale(ctx, dto.CancelSaleParams{SaleID: parkedID, Reason: "mistake"})
	assert.ErrorIs(t, err, ErrConflict)
	reuse := saleParams(it, 1)
	reuse.OfflineID = p.OfflineID
	_, err = f.saleSvc.CreateSale(ctx, reuse)
	assert.ErrorIs(t, err, ErrConflict)

	res, err := f.saleSvc.ResumeParked(ctx, dto.ResumeParkedSaleParams{OfflineID: p.OfflineID})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	left, err := f.saleSvc.ParkedSales(ctx, dto.ParkedSalesParams{})
	require.NoError(t, err)
	assert.Empty(t, left)

	res, err = f.saleSvc.ResumeParked(ctx, dto.ResumeParkedSaleParams{OfflineID: p.OfflineID})
	require.NoError(t, err)
	assert.False(t, res.Resumed)

	done, err := f.saleSvc.CreateSale(ctx, saleParams(it, 1))
	require.NoError(t, err)
	_, err = f.saleSvc.ResumeParked(ctx, dto.ResumeParkedSaleParams{OfflineID: done.OfflineID})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.saleSvc.ParkSale(ctx, dto.ParkSaleParams{OfflineID: done.OfflineID, Items: reuse.Items, Subtotal: reuse.Subtotal, Total: reuse.Total})
	assert.ErrorIs(t, err, ErrConflict)
}
