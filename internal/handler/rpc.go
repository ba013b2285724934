package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JKKN-Institutions/JKKNPOS/internal/apierror"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/metrics"
	"github.com/JKKN-Institutions/JKKNPOS/internal/middleware"
	"github.com/JKKN-Institutions/JKKNPOS/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// rpcFunc runs one operation. key is the request's Idempotency-Key, possibly
// empty.
type rpcFunc func(ctx context.Context, raw json.RawMessage, key string) (interface{}, error)

// op adapts a typed service method into an rpcFunc.
func op[P any, R any](fn func(context.Context, P) (R, error)) rpcFunc {
	return func(ctx context.Context, raw json.RawMessage, _ string) (interface{}, error) {
		p, err := decodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, p)
	}
}

type RPCHandler struct {
	ops map[string]rpcFunc
}

func NewRPCHandler(sales service.SaleService, numbers service.SaleNumberGenerator, inventory service.InventoryService, customers service.CustomerService) *RPCHandler {
	h := &RPCHandler{ops: map[string]rpcFunc{
		dto.OpCreateSale:           op(sales.CreateSale),
		dto.OpCancelSale:           op(sales.CancelSale),
		dto.OpParkSale:             op(sales.ParkSale),
		dto.OpGetParkedSales:       op(sales.ParkedSales),
		dto.OpResumeParkedSale:     op(sales.ResumeParked),
		dto.OpGenerateSaleNumber:   op(numbers.Generate),
		dto.OpDeleteItem:           op(inventory.DeleteItem),
		dto.OpGetBusinessItems:     op(inventory.ListItems),
		dto.OpGetItemByCode:        op(inventory.GetItemByCode),
		dto.OpGetPriceHistory:      op(inventory.PriceHistory),
		dto.OpGetLowStockItems:     op(inventory.LowStockItems),
		dto.OpDeleteCustomer:       op(customers.Delete),
		dto.OpGetBusinessCustomers: op(customers.List),
	}}

	// Replays of these writes carry the same Idempotency-Key. It becomes the
	// adjustment reference or the id of a created row so a replay is a no-op.
	h.ops[dto.OpAdjustStock] = func(ctx context.Context, raw json.RawMessage, key string) (interface{}, error) {
		p, err := decodeParams[dto.AdjustStockParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Reference == "" {
			p.Reference = key
		}
		return inventory.AdjustStock(ctx, p)
	}
	h.ops[dto.OpUpsertItem] = func(ctx context.Context, raw json.RawMessage, key string) (interface{}, error) {
		p, err := decodeParams[dto.ItemParams](raw)
		if err != nil {
			return nil, err
		}
		if p.ID == "" && isUUID(key) {
			p.ID = key
		}
		return inventory.UpsertItem(ctx, p)
	}
	h.ops[dto.OpUpsertCustomer] = func(ctx context.Context, raw json.RawMessage, key string) (interface{}, error) {
		p, err := decodeParams[dto.CustomerParams](raw)
		if err != nil {
			return nil, err
		}
		if p.ID == "" && isUUID(key) {
			p.ID = key
		}
		return customers.Upsert(ctx, p)
	}
	return h
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return s != "" && err == nil
}

// Invoke godoc
// @Summary      Invoke a business operation
// @Description  Single RPC entry point. The body is {operation, params}; the path names the operation.
// @Tags         rpc
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        operation path   string          true "Operation name"
// @Param        body      body   dto.RPCRequest  true "Operation params"
// @Success      200 {object} dto.RPCResponse
// @Failure      404 {object} apierror.Envelope
// @Failure      409 {object} apierror.Envelope
// @Failure      422 {object} apierror.Envelope
// @Router       /v1/rpc/{operation} [post]
func (h *RPCHandler) Invoke(c *gin.Context) {
	name := c.Param("operation")
	fn, ok := h.ops[name]
	if !ok {
		metrics.RPCRequests.WithLabelValues("unknown", dto.CodeUnknownOperation).Inc()
		c.JSON(http.StatusNotFound, apierror.New(dto.CodeUnknownOperation, "unknown operation "+name))
		return
	}

	var req dto.RPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, name, &paramsError{msg: "invalid JSON body"})
		return
	}
	if req.Operation != "" && req.Operation != name {
		h.fail(c, name, &paramsError{msg: "operation in body does not match path"})
		return
	}

	data, err := fn(c.Request.Context(), req.Params, c.GetHeader(dto.IdempotencyHeader))
	if err != nil {
		h.fail(c, name, err)
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		h.fail(c, name, err)
		return
	}
	metrics.RPCRequests.WithLabelValues(name, "OK").Inc()
	c.JSON(http.StatusOK, dto.RPCResponse{Data: raw})
}

// fail maps service errors to the envelope. Unclassified errors are logged
// and answered with a bare INTERNAL.
func (h *RPCHandler) fail(c *gin.Context, name string, err error) {
	var env *apierror.Envelope
	var pe *paramsError
	switch {
	case errors.As(err, &pe):
		env = apierror.New(dto.CodeValidation, pe.msg)
		env.Error.Fields = pe.fields
	case errors.Is(err, service.ErrValidation):
		env = apierror.New(dto.CodeValidation, err.Error())
	case errors.Is(err, service.ErrNotFound):
		env = apierror.New(dto.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		env = apierror.New(dto.CodeConflict, err.Error())
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// A 500 would be retried forever by the terminal's queue.
		env = apierror.New(dto.CodeConflict, "record already exists")
	default:
		ev := log.Error().Err(err).Str("operation", name)
		if claims := middleware.GetClaims(c); claims != nil {
			ev = ev.Str("terminal_id", claims.TerminalID)
		}
		ev.Msg("rpc: operation failed")
		env = apierror.Internal()
	}
	metrics.RPCRequests.WithLabelValues(name, env.Error.Code).Inc()
	c.JSON(apierror.Status(env.Error.Code), env)
}
