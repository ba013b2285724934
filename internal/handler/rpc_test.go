package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/handler"
	"github.com/JKKN-Institutions/JKKNPOS/internal/middleware"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-at-least-32-chars-long!!"

func init() { gin.SetMode(gin.TestMode) }

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeSales struct {
	err  error
	last dto.CreateSaleParams
}

func (f *fakeSales) CreateSale(_ context.Context, p dto.CreateSaleParams) (*dto.SaleResponse, error) {
	f.last = p
	if f.err != nil {
		return nil, f.err
	}
	return &dto.SaleResponse{ID: "s-1", OfflineID: p.OfflineID, SaleNumber: "INV-20261017-0001", Total: p.Total, Status: "completed"}, nil
}

func (f *fakeSales) CancelSale(_ context.Context, p dto.CancelSaleParams) (*dto.SaleResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.SaleResponse{ID: p.SaleID, Status: "cancelled"}, nil
}

func (f *fakeSales) ParkSale(_ context.Context, p dto.ParkSaleParams) (*dto.SaleResponse, error) {
	return &dto.SaleResponse{OfflineID: p.OfflineID, SaleNumber: "HOLD-" + p.OfflineID, Status: "parked"}, f.err
}

func (f *fakeSales) ParkedSales(_ context.Context, p dto.ParkedSalesParams) ([]dto.SaleResponse, error) {
	return []dto.SaleResponse{{OfflineID: "held-" + p.TerminalID, Status: "parked"}}, f.err
}

func (f *fakeSales) ResumeParked(_ context.Context, p dto.ResumeParkedSaleParams) (*dto.ResumeParkedSaleResponse, error) {
	return &dto.ResumeParkedSaleResponse{OfflineID: p.OfflineID, Resumed: true}, f.err
}

type fakeNumbers struct{}

func (fakeNumbers) Next(context.Context, time.Time) (string, error) { return "INV-20261017-0009", nil }
func (fakeNumbers) Generate(context.Context, dto.GenerateSaleNumberParams) (*dto.SaleNumberResponse, error) {
	return &dto.SaleNumberResponse{SaleNumber: "INV-20261017-0009"}, nil
}

type fakeInventory struct {
	adjust dto.AdjustStockParams
	upsert dto.ItemParams
	err    error
}

func (f *fakeInventory) UpsertItem(_ context.Context, p dto.ItemParams) (*dto.ItemResponse, error) {
	f.upsert = p
	return &dto.ItemResponse{ID: p.ID, Name: p.Name}, f.err
}
func (f *fakeInventory) DeleteItem(_ context.Context, p dto.DeleteParams) (*dto.DeleteResponse, error) {
	return &dto.DeleteResponse{ID: p.ID, Deleted: true}, f.err
}
func (f *fakeInventory) ListItems(context.Context, dto.ListParams) ([]dto.ItemResponse, error) {
	return []dto.ItemResponse{{ID: "i-1", Name: "Tea"}}, f.err
}
func (f *fakeInventory) GetItemByCode(_ context.Context, p dto.ItemByCodeParams) (*dto.ItemResponse, error) {
	if p.Code != "890100" {
		return nil, fmt.Errorf("%w: no active item with code %q", service.ErrNotFound, p.Code)
	}
	return &dto.ItemResponse{ID: "i-1", Name: "Tea", Barcode: p.Code, Stock: 4}, nil
}
func (f *fakeInventory) AdjustStock(_ context.Context, p dto.AdjustStockParams) (*dto.StockResponse, error) {
	f.adjust = p
	if f.err != nil {
		return nil, f.err
	}
	return &dto.StockResponse{ItemID: p.ItemID, Stock: 10}, nil
}

func (f *fakeInventory) PriceHistory(context.Context, dto.PriceHistoryParams) (*dto.PriceHistoryResponse, error) {
	return &dto.PriceHistoryResponse{}, f.err
}

func (f *fakeInventory) LowStockItems(_ context.Context, p dto.LowStockParams) ([]dto.LowStockItemResponse, error) {
	return []dto.LowStockItemResponse{{ItemResponse: dto.ItemResponse{ID: "i-1", Stock: 1, MinStock: 4}, StockPercentage: decimal.NewFromInt(25)}}, f.err
}

type fakeCustomers struct{ upsert dto.CustomerParams }

func (f *fakeCustomers) Upsert(_ context.Context, p dto.CustomerParams) (*dto.CustomerResponse, error) {
	f.upsert = p
	return &dto.CustomerResponse{ID: p.ID, Name: p.Name}, nil
}
func (f *fakeCustomers) Delete(_ context.Context, p dto.DeleteParams) (*dto.DeleteResponse, error) {
	return &dto.DeleteResponse{ID: p.ID, Deleted: true}, nil
}
func (f *fakeCustomers) List(context.Context, dto.ListParams) ([]dto.CustomerResponse, error) {
	return nil, nil
}

// ── Harness ───────────────────────────────────────────────────────────────────

type harness struct {
	sales     *fakeSales
	inventory *fakeInventory
	customers *fakeCustomers
	engine    *gin.Engine
	token     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sales: &fakeSales{}, inventory: &fakeInventory{}, customers: &fakeCustomers{}}

	rpc := handler.NewRPCHandler(h.sales, fakeNumbers{}, h.inventory, h.customers)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/health", handler.Health(map[string]handler.Check{
		"db": func(context.Context) error { return nil },
	}))
	r.POST("/v1/rpc/:operation", middleware.JWTAuth(testSecret), rpc.Invoke)
	h.engine = r

	tok, err := middleware.IssueDeviceToken(testSecret, "T1", "B1", time.Hour)
	require.NoError(t, err)
	h.token = tok
	return h
}

func (h *harness) call(t *testing.T, op string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, dto.RPCResponse) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/rpc/"+op, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var env dto.RPCResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func rpcBody(op string, params interface{}) dto.RPCRequest {
	raw, _ := json.Marshal(params)
	return dto.RPCRequest{Operation: op, Params: raw}
}

func validSale() dto.CreateSaleParams {
	return dto.CreateSaleParams{
		OfflineID:     "7f1c1b7e-1a3e-4a59-9c59-0b9f6f3c2a10",
		Items:         []dto.SaleItemParams{{ItemID: "3d8f1f8e-7b7a-4c1e-a1f4-6b4b0c7e9d21", Name: "Tea", Quantity: 1, Price: decimal.NewFromInt(40), Total: decimal.NewFromInt(40)}},
		PaymentMethod: dto.PaymentCash,
		PaymentAmount: decimal.NewFromInt(50),
		Subtotal:      decimal.NewFromInt(40),
		Total:         decimal.NewFromInt(40),
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestInvoke_Success(t *testing.T) {
	h := newHarness(t)

	w, env := h.call(t, dto.OpGetItemByCode, rpcBody(dto.OpGetItemByCode, dto.ItemByCodeParams{Code: "890100"}), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, env.Error)

	var item dto.ItemResponse
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "Tea", item.Name)
	assert.Equal(t, 4, item.Stock)
}

func TestInvoke_NoParamsUsesZeroValue(t *testing.T) {
	h := newHarness(t)

	w, env := h.call(t, dto.OpGenerateSaleNumber, dto.RPCRequest{Operation: dto.OpGenerateSaleNumber}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sale_number":"INV-20261017-0009"}`, string(env.Data))
}

func TestInvoke_ParkedSalesAndLowStockAreRouted(t *testing.T) {
	h := newHarness(t)

	w, env := h.call(t, dto.OpGetParkedSales, rpcBody(dto.OpGetParkedSales, dto.ParkedSalesParams{TerminalID: "T1"}), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var parked []dto.SaleResponse
	require.NoError(t, json.Unmarshal(env.Data, &parked))
	require.Len(t, parked, 1)
	assert.Equal(t, "held-T1", parked[0].OfflineID)

	park := dto.ParkSaleParams{OfflineID: "not-a-uuid", Items: validSale().Items}
	w, env = h.call(t, dto.OpParkSale, rpcBody(dto.OpParkSale, park), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)

	w, env = h.call(t, dto.OpGetLowStockItems, rpcBody(dto.OpGetLowStockItems, dto.LowStockParams{}), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var low []dto.LowStockItemResponse
	require.NoError(t, json.Unmarshal(env.Data, &low))
	require.Len(t, low, 1)
	assert.True(t, low[0].StockPercentage.Equal(decimal.NewFromInt(25)))

	w, _ = h.call(t, dto.OpGetLowStockItems, rpcBody(dto.OpGetLowStockItems, dto.LowStockParams{Limit: 501}), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestInvoke_UnknownOperation(t *testing.T) {
	h := newHarness(t)

	w, env := h.call(t, "drop_tables", dto.RPCRequest{Operation: "drop_tables"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.CodeUnknownOperation, env.Error.Code)
}

func TestInvoke_ValidationFields(t *testing.T) {
	h := newHarness(t)
	p := validSale()
	p.OfflineID = "not-a-uuid"
	p.PaymentMethod = "CHEQUE"

	w, env := h.call(t, dto.OpCreateSale, rpcBody(dto.OpCreateSale, p), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.CodeValidation, env.Error.Code)
	assert.Equal(t, "uuid", env.Error.Fields["CreateSaleParams.OfflineID"])
	assert.Equal(t, "oneof", env.Error.Fields["CreateSaleParams.PaymentMethod"])
}

func TestInvoke_MalformedBodies(t *testing.T) {
	h := newHarness(t)

	w, env := h.call(t, dto.OpCreateSale, `{"operation":`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.CodeValidation, env.Error.Code)

	w, env = h.call(t, dto.OpCreateSale, rpcBody(dto.OpCancelSale, validSale()), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.CodeValidation, env.Error.Code)

	w, env = h.call(t, dto.OpCreateSale, `{"operation":"create_sale","params":[1,2]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.CodeValidation, env.Error.Code)
}

func TestInvoke_ServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: totals", service.ErrValidation), http.StatusUnprocessableEntity, dto.CodeValidation},
		{fmt.Errorf("%w: item", service.ErrNotFound), http.StatusNotFound, dto.CodeNotFound},
		{fmt.Errorf("%w: insufficient stock", service.ErrConflict), http.StatusConflict, dto.CodeConflict},
		{fmt.Errorf("create sale: %w", gorm.ErrDuplicatedKey), http.StatusConflict, dto.CodeConflict},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, dto.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newHarness(t)
			h.sales.err = tc.err

			w, env := h.call(t, dto.OpCreateSale, rpcBody(dto.OpCreateSale, validSale()), nil)
			assert.Equal(t, tc.status, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			if tc.code == dto.CodeInternal {
				assert.NotContains(t, env.Error.Message, "pq:")
			}
		})
	}
}

func TestInvoke_IdempotencyKey(t *testing.T) {
	h := newHarness(t)
	key := "5b0e2f3a-9d7c-4c8e-8f5b-2a6d1e9c3b47"
	hdr := map[string]string{dto.IdempotencyHeader: key}

	adjust := dto.AdjustStockParams{ItemID: "3d8f1f8e-7b7a-4c1e-a1f4-6b4b0c7e9d21", Delta: 6, Reason: "restock"}
	w, _ := h.call(t, dto.OpAdjustStock, rpcBody(dto.OpAdjustStock, adjust), hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, key, h.inventory.adjust.Reference)

	adjust.Reference = "explicit"
	h.call(t, dto.OpAdjustStock, rpcBody(dto.OpAdjustStock, adjust), hdr)
	assert.Equal(t, "explicit", h.inventory.adjust.Reference)

	h.call(t, dto.OpUpsertItem, rpcBody(dto.OpUpsertItem, dto.ItemParams{Name: "Tea"}), hdr)
	assert.Equal(t, key, h.inventory.upsert.ID)

	h.call(t, dto.OpUpsertItem, rpcBody(dto.OpUpsertItem, dto.ItemParams{Name: "Tea"}), map[string]string{dto.IdempotencyHeader: "q-17"})
	assert.Empty(t, h.inventory.upsert.ID, "non-uuid keys are not used as ids")

	h.call(t, dto.OpUpsertCustomer, rpcBody(dto.OpUpsertCustomer, dto.CustomerParams{Name: "Priya"}), hdr)
	assert.Equal(t, key, h.customers.upsert.ID)
}

func TestInvoke_RequiresToken(t *testing.T) {
	h := newHarness(t)
	h.token = "garbage"

	w, env := h.call(t, dto.OpGetItemByCode, rpcBody(dto.OpGetItemByCode, dto.ItemByCodeParams{Code: "890100"}), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.CodeUnauthorized, env.Error.Code)
}

// The remote client must classify this handler's answers the way the sync
// queue expects.
func TestInvoke_ClassifiedByRemoteClient(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.engine)
	t.Cleanup(srv.Close)

	client := remote.New(remote.Config{BaseURL: srv.URL, Token: h.token, Timeout: 5 * time.Second})
	ctx := context.Background()

	var item dto.ItemResponse
	require.NoError(t, client.Call(ctx, dto.OpGetItemByCode, dto.ItemByCodeParams{Code: "890100"}, &item))
	assert.Equal(t, "Tea", item.Name)

	err := client.Call(ctx, dto.OpGetItemByCode, dto.ItemByCodeParams{Code: "000"}, nil)
	assert.True(t, remote.IsValidation(err))

	h.sales.err = fmt.Errorf("%w: insufficient stock", service.ErrConflict)
	err = client.Call(ctx, dto.OpCreateSale, validSale(), nil)
	assert.True(t, remote.IsConflict(err))

	h.sales.err = errors.New("boom")
	err = client.Call(ctx, dto.OpCreateSale, validSale(), nil)
	assert.True(t, remote.IsConnectivity(err), "internal errors are retried")

	require.NoError(t, client.Ping(ctx))
}
