package service

import (
	"context"
	"testing"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertItem_CreateThenUpdateKeepsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.inventory.UpsertItem(ctx, dto.ItemParams{Name: "Green Tea", Barcode: "890100", Price: dec("40"), Stock: 12})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 12, created.Stock)
	assert.True(t, created.IsActive)

	updated, err := f.inventory.UpsertItem(ctx, dto.ItemParams{ID: created.ID, Name: "Green Tea 250g", Barcode: "890100", Price: dec("45"), Stock: 99})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Green Tea 250g", updated.Name)
	assert.True(t, dec("45").Equal(updated.Price))
	assert.Equal(t, 12, updated.Stock, "stock only changes through adjustments")

	hist, err := f.inventory.PriceHistory(ctx, dto.PriceHistoryParams{ItemID: created.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), hist.Total)
	assert.True(t, dec("40").Equal(hist.Items[0].PriceBefore))
	assert.True(t, dec("45").Equal(hist.Items[0].PriceAfter))
	assert.Equal(t, model.PriceReasonUpdate, hist.Items[0].Reason)

	_, err = f.inventory.UpsertItem(ctx, dto.ItemParams{ID: created.ID, Name: "Green Tea 250g", Barcode: "890100", Price: dec("45.00")})
	require.NoError(t, err)
	assert.Len(t, f.prices.changes, 1, "same price is not a change")

	_, err = f.inventory.PriceHistory(ctx, dto.PriceHistoryParams{ItemID: uuid.NewString()})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertItem_UnknownIDCreatesWithThatID(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	resp, err := f.inventory.UpsertItem(context.Background(), dto.ItemParams{ID: id, Name: "Sugar", Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, 3, f.items.stock(uuid.MustParse(id)))
}

func TestUpsertItem_CodeChangeDropsOldCacheEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	_, err := f.inventory.GetItemByCode(ctx, dto.ItemByCodeParams{Code: "890100"})
	require.NoError(t, err)
	require.True(t, f.redis.Exists(itemCacheKey("890100")))

	_, err = f.inventory.UpsertItem(ctx, dto.ItemParams{ID: it.ID.String(), Name: "Tea", Barcode: "890200", Price: dec("40")})
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(itemCacheKey("890100")))

	_, err = f.inventory.GetItemByCode(ctx, dto.ItemByCodeParams{Code: "890100"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetItemByCode_ServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedItem(f, "Tea", "890100", "40.00", 10)

	first, err := f.inventory.GetItemByCode(ctx, dto.ItemByCodeParams{Code: "890100"})
	require.NoError(t, err)
	second, err := f.inventory.GetItemByCode(ctx, dto.ItemByCodeParams{Code: "890100"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.Price.Equal(second.Price))
	assert.Equal(t, 1, f.items.byCodeCalls)
	assert.Equal(t, 4*time.Hour, f.redis.TTL(itemCacheKey("890100")))
}

func TestGetItemByCode_SKUAndMiss(t *testing.T) {
	f := newFixture(t)
	f.items.add(model.Item{Name: "Rice 5kg", SKU: "RICE-5", IsActive: true})

	got, err := f.inventory.GetItemByCode(context.Background(), dto.ItemByCodeParams{Code: "RICE-5"})
	require.NoError(t, err)
	assert.Equal(t, "Rice 5kg", got.Name)

	_, err = f.inventory.GetItemByCode(context.Background(), dto.ItemByCodeParams{Code: "nothing"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, f.redis.Exists(itemCacheKey("nothing")), "misses are not cached")
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	_, err := f.inventory.GetItemByCode(ctx, dto.ItemByCodeParams{Code: "890100"})
	require.NoError(t, err)

	resp, err := f.inventory.DeleteItem(ctx, dto.DeleteParams{ID: it.ID.String()})
	require.NoError(t, err)
	assert.True(t, resp.Deleted)

	_, err = f.inventory.GetItemByCode(ctx, dto.ItemByCodeParams{Code: "890100"})
	require.ErrorIs(t, err, ErrNotFound)

	list, err := f.inventory.ListItems(ctx, dto.ListParams{})
	require.NoError(t, err)
	assert.Empty(t, list)

	all, err := f.inventory.ListItems(ctx, dto.ListParams{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.inventory.DeleteItem(ctx, dto.DeleteParams{ID: uuid.NewString()})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListItems_Query(t *testing.T) {
	f := newFixture(t)
	seedItem(f, "Green Tea", "1001", "40", 1)
	seedItem(f, "Coffee", "1002", "90", 1)

	got, err := f.inventory.ListItems(context.Background(), dto.ListParams{Query: "tea"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Green Tea", got[0].Name)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := seedItem(f, "Tea", "890100", "40.00", 10)

	resp, err := f.inventory.AdjustStock(ctx, dto.AdjustStockParams{ItemID: it.ID.String(), Delta: 5, Reason: "restock", Reference: "q-1"})
	require.NoError(t, err)
	assert.Equal(t, 15, resp.Stock)

	require.Len(t, f.movements.movements, 1)
	mov := f.movements.movements[0]
	assert.Equal(t, model.MovementAdjustment, mov.Type)
	assert.Equal(t, 10, mov.StockBefore)
	assert.Equal(t, 15, mov.StockAfter)
	assert.Equal(t, "q-1", mov.Reference)
}

func TestAdjustStock_ReplayedReferenceIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := seedItem(f, "Tea", "890100", "40.00", 10)
	p := dto.AdjustStockParams{ItemID: it.ID.String(), Delta: -2, Reason: "damage", Reference: "q-7"}

	_, err := f.inventory.AdjustStock(ctx, p)
	require.NoError(t, err)
	resp, err := f.inventory.AdjustStock(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, 8, resp.Stock)
	assert.Equal(t, 8, f.items.stock(it.ID))
	assert.Len(t, f.movements.movements, 1)
}

func TestAdjustStock_BelowZeroIsConflict(t *testing.T) {
	f := newFixture(t)
	it := seedItem(f, "Tea", "890100", "40.00", 3)

	_, err := f.inventory.AdjustStock(context.Background(), dto.AdjustStockParams{ItemID: it.ID.String(), Delta: -4, Reason: "correction"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, f.items.stock(it.ID))
	assert.Empty(t, f.movements.movements)

	_, err = f.inventory.AdjustStock(context.Background(), dto.AdjustStockParams{ItemID: uuid.NewString(), Delta: 1, Reason: "restock"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLowStockItems_EmptiestFirstWithPercentage(t *testing.T) {
	f := newFixture(t)
	add := func(name string, stock, min int, active bool) {
		f.items.add(model.Item{Name: name, Price: dec("10"), Stock: stock, MinStock: min, IsActive: active})
	}
	add("Sugar", 3, 4, true)
	add("Salt", 1, 10, true)
	add("Rice", 20, 5, true)
	add("Flour", 0, 0, true)
	add("Old Soap", 0, 5, false)

	low, err := f.inventory.LowStockItems(context.Background(), dto.LowStockParams{})
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Salt", low[0].Name)
	assert.True(t, dec("10").Equal(low[0].StockPercentage))
	assert.Equal(t, "Sugar", low[1].Name)
	assert.True(t, dec("75").Equal(low[1].StockPercentage))

	one, err := f.inventory.LowStockItems(context.Background(), dto.LowStockParams{Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Salt", one[0].Name)
}
