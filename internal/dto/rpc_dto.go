package dto

import "encoding/json"

// Operation names understood by the business-logic service.
const (
	OpCreateSale           = "create_sale"
	OpCancelSale           = "cancel_sale"
	OpGenerateSaleNumber   = "generate_sale_number"
	OpAdjustStock          = "adjust_stock"
	OpUpsertItem           = "upsert_item"
	OpDeleteItem           = "delete_item"
	OpUpsertCustomer       = "upsert_customer"
	OpDeleteCustomer       = "delete_customer"
	OpGetBusinessItems     = "get_business_items"
	OpGetBusinessCustomers = "get_business_customers"
	OpGetItemByCode        = "get_item_by_code"
	OpGetPriceHistory      = "get_price_history"
	OpParkSale             = "park_sale"
	OpGetParkedSales       = "get_parked_sales"
	OpResumeParkedSale     = "resume_parked_sale"
	OpGetLowStockItems     = "get_low_stock_items"
)

// Error codes carried in RPCError.Code.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeUnknownOperation = "UNKNOWN_OPERATION"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// IdempotencyHeader carries the terminal-side id of a write so replays can be
// recognised by the server.
const IdempotencyHeader = "Idempotency-Key"

// RPCRequest is the body of POST /v1/rpc/:operation.
type RPCRequest struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
}

// RPCError is the failure half of the RPC envelope.
type RPCError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// RPCResponse carries exactly one of Data or Error.
type RPCResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *RPCError       `json:"error,omitempty"`
}
