//go:build integration

package router_test

// End-to-end tests against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/config"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/infra"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/middleware"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/router"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

const secret = "integration-secret-at-least-32-chars"

type testEnv struct {
	server *httptest.Server
	client *remote.Client
	db     *gorm.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("pos_test"),
		tcPostgres.WithUsername("pos"),
		tcPostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			tcPostgres.BasicWaitStrategies()...,
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:             8000,
		Env:              "test",
		JWTSecret:        secret,
		DatabaseURL:      pgURL,
		RedisURL:         rdURL,
		BusinessID:       "B1",
		SaleNumberPrefix: "INV",
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	srv := httptest.NewServer(router.New(cfg, db, rdb))
	t.Cleanup(srv.Close)

	tok, err := middleware.IssueDeviceToken(secret, "T1", "B1", time.Hour)
	require.NoError(t, err)

	return &testEnv{
		server: srv,
		client: remote.New(remote.Config{BaseURL: srv.URL, Token: tok, Timeout: 10 * time.Second}),
		db:     db,
	}
}

func (e *testEnv) seedItem(t *testing.T, name, barcode string, price int64, stock int) dto.ItemResponse {
	t.Helper()
	var it dto.ItemResponse
	require.NoError(t, e.client.Call(context.Background(), dto.OpUpsertItem, dto.ItemParams{
		Name: name, Barcode: barcode, Price: decimal.NewFromInt(price), Stock: stock,
	}, &it))
	return it
}

func sale(it dto.ItemResponse, qty int64) dto.CreateSaleParams {
	total := it.Price.Mul(decimal.NewFromInt(qty))
	return dto.CreateSaleParams{
		OfflineID:     uuid.NewString(),
		TerminalID:    "T1",
		Items:         []dto.SaleItemParams{{ItemID: it.ID, Name: it.Name, Quantity: int(qty), Price: it.Price, Total: total}},
		PaymentMethod: dto.PaymentCash,
		PaymentAmount: total,
		Subtotal:      total,
		Total:         total,
	}
}

func stockOf(t *testing.T, e *testEnv, code string) int {
	t.Helper()
	var it dto.ItemResponse
	require.NoError(t, e.client.Call(context.Background(), dto.OpGetItemByCode, dto.ItemByCodeParams{Code: code}, &it))
	return it.Stock
}

func TestE2E_HealthAndAuth(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	other, err := middleware.IssueDeviceToken(secret, "T9", "another-business", time.Hour)
	require.NoError(t, err)
	foreign := remote.New(remote.Config{BaseURL: env.server.URL, Token: other})
	err = foreign.Call(context.Background(), dto.OpGetBusinessItems, dto.ListParams{}, nil)
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
}

func TestE2E_SaleCycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	it := env.seedItem(t, "Gaseosa 500ml", "7890001000001", 25, 20)

	p := sale(it, 3)
	var created dto.SaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpCreateSale, p, &created))
	assert.Regexp(t, `^INV-\d{8}-0001$`, created.SaleNumber)
	assert.Equal(t, 17, stockOf(t, env, "7890001000001"))

	// Replay of the same offline_id
	var replay dto.SaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpCreateSale, p, &replay))
	assert.True(t, replay.Duplicate)
	assert.Equal(t, created.ID, replay.ID)
	assert.Equal(t, 17, stockOf(t, env, "7890001000001"))

	// Overselling is a conflict and leaves stock alone
	err := env.client.Call(ctx, dto.OpCreateSale, sale(it, 50), nil)
	assert.True(t, remote.IsConflict(err))
	assert.Equal(t, 17, stockOf(t, env, "7890001000001"))

	var cancelled dto.SaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpCancelSale, dto.CancelSaleParams{SaleID: created.ID, Reason: "returned"}, &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, 20, stockOf(t, env, "7890001000001"))

	err = env.client.Call(ctx, dto.OpCancelSale, dto.CancelSaleParams{SaleID: created.ID, Reason: "again"}, nil)
	assert.True(t, remote.IsConflict(err))

	var movements int64
	require.NoError(t, env.db.Table("stock_movements").Where("item_id = ?", it.ID).Count(&movements).Error)
	assert.Equal(t, int64(2), movements)
}

func TestE2E_AdjustStockReplay(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	it := env.seedItem(t, "Arroz 1kg", "7790001", 90, 4)

	key := uuid.NewString()
	p := dto.AdjustStockParams{ItemID: it.ID, Delta: 6, Reason: "restock"}
	require.NoError(t, env.client.Call(ctx, dto.OpAdjustStock, p, nil, remote.WithIdempotencyKey(key)))
	require.NoError(t, env.client.Call(ctx, dto.OpAdjustStock, p, nil, remote.WithIdempotencyKey(key)))
	assert.Equal(t, 10, stockOf(t, env, "7790001"))

	err := env.client.Call(ctx, dto.OpAdjustStock, dto.AdjustStockParams{ItemID: it.ID, Delta: -11, Reason: "damage"}, nil)
	assert.True(t, remote.IsConflict(err))
}

func TestE2E_ParkedSaleCycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	it := env.seedItem(t, "Yerba 1kg", "7790002", 120, 5)

	s := sale(it, 2)
	park := dto.ParkSaleParams{OfflineID: s.OfflineID, TerminalID: "T1", Items: s.Items, Subtotal: s.Subtotal, Total: s.Total}
	var parked dto.SaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpParkSale, park, &parked))
	assert.Equal(t, "parked", parked.Status)
	assert.Equal(t, 5, stockOf(t, env, "7790002"))

	var list []dto.SaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpGetParkedSales, dto.ParkedSalesParams{TerminalID: "T1"}, &list))
	require.Len(t, list, 1)
	require.Len(t, list[0].Items, 1)

	var res dto.ResumeParkedSaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpResumeParkedSale, dto.ResumeParkedSaleParams{OfflineID: s.OfflineID}, &res))
	assert.True(t, res.Resumed)
	require.NoError(t, env.client.Call(ctx, dto.OpResumeParkedSale, dto.ResumeParkedSaleParams{OfflineID: s.OfflineID}, &res))
	assert.False(t, res.Resumed)

	var lines int64
	require.NoError(t, env.db.Table("sale_items").Where("item_id = ?", it.ID).Count(&lines).Error)
	assert.Zero(t, lines)
}

func TestE2E_LowStockAndTakenSaleNumber(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	var low dto.ItemResponse
	require.NoError(t, env.client.Call(ctx, dto.OpUpsertItem, dto.ItemParams{
		Name: "Sal fina", Barcode: "7790003", Price: decimal.NewFromInt(10), Stock: 2, MinStock: 8,
	}, &low))
	env.seedItem(t, "Azucar", "7790004", 15, 50)

	var items []dto.LowStockItemResponse
	require.NoError(t, env.client.Call(ctx, dto.OpGetLowStockItems, dto.LowStockParams{}, &items))
	require.Len(t, items, 1)
	assert.Equal(t, low.ID, items[0].ID)
	assert.True(t, decimal.NewFromInt(25).Equal(items[0].StockPercentage))

	// A terminal number already used by another sale is replaced, not rejected.
	first := sale(low, 1)
	first.SaleNumber = "OFF-20261017-T1-0001"
	require.NoError(t, env.client.Call(ctx, dto.OpCreateSale, first, nil))
	second := sale(low, 1)
	second.SaleNumber = first.SaleNumber
	var got dto.SaleResponse
	require.NoError(t, env.client.Call(ctx, dto.OpCreateSale, second, &got))
	assert.Regexp(t, `^INV-\d{8}-0001$`, got.SaleNumber)
}

func TestE2E_DuplicateBarcodeIsConflict(t *testing.T) {
	env := setupTestEnv(t)
	env.seedItem(t, "Tea", "890100", 40, 1)

	err := env.client.Call(context.Background(), dto.OpUpsertItem, dto.ItemParams{Name: "Other tea", Barcode: "890100"}, nil)
	assert.True(t, remote.IsConflict(err))
}

// A terminal that sold offline drains its queue into the real service.
func TestE2E_QueueDrain(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	it := env.seedItem(t, "Galletitas", "7790002", 10, 5)

	store, err := localdb.Open(filepath.Join(t.TempDir(), "terminal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := syncqueue.New(store, syncqueue.Config{})
	p := sale(it, 2)
	p.SaleNumber = "OFF-20261017-0001"
	_, err = q.Enqueue(ctx, syncqueue.ActionCreate, syncqueue.SalePayload{CreateSaleParams: p}, p.OfflineID)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, syncqueue.ActionCreate, syncqueue.SalePayload{CreateSaleParams: sale(it, 9)}, "")
	require.NoError(t, err)

	rep, err := q.Drain(ctx, syncqueue.NewRemoteSender(env.client))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 1, rep.DeadLettered)
	assert.Equal(t, int64(0), rep.Remaining)
	assert.Equal(t, 3, stockOf(t, env, "7790002"))

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, syncqueue.ReasonConflict, dead[0].Reason)
}
