package syncqueue

import (
	"encoding/json"
	"fmt"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
)

// EntityType tags the payload union.
type EntityType string

const (
	EntitySale            EntityType = "sale"
	EntityProduct         EntityType = "product"
	EntityCustomer        EntityType = "customer"
	EntityStockAdjustment EntityType = "stock_adjustment"
	EntityParkedSale      EntityType = "parked_sale"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Payload is the params of exactly one remote operation.
type Payload interface {
	EntityType() EntityType
}

type SalePayload struct {
	dto.CreateSaleParams
}

func (SalePayload) EntityType() EntityType { return EntitySale }

// ParkedSalePayload is a held cart. Create parks it on the service and delete
// resumes it.
type ParkedSalePayload struct {
	dto.ParkSaleParams
}

func (ParkedSalePayload) EntityType() EntityType { return EntityParkedSale }

type StockAdjustmentPayload struct {
	dto.AdjustStockParams
}

func (StockAdjustmentPayload) EntityType() EntityType { return EntityStockAdjustment }

type ProductPayload struct {
	dto.ItemParams
}

func (ProductPayload) EntityType() EntityType { return EntityProduct }

type CustomerPayload struct {
	dto.CustomerParams
}

func (CustomerPayload) EntityType() EntityType { return EntityCustomer }

// Encode serialises p for storage in a queue entry.
func Encode(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("sync_queue: encode %s payload: %w", p.EntityType(), err)
	}
	return raw, nil
}

// Decode is the inverse of Encode, dispatching on the stored entity type.
func Decode(t EntityType, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case EntitySale:
		var v SalePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityStockAdjustment:
		var v StockAdjustmentPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityParkedSale:
		var v ParkedSalePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityProduct:
		var v ProductPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EntityCustomer:
		var v CustomerPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("sync_queue: unknown entity type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("sync_queue: decode %s payload: %w", t, err)
	}
	return p, nil
}
