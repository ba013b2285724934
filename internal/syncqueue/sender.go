package syncqueue

import (
	"context"
	"fmt"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
)

// Sender delivers one entry. Errors are classified with remote.KindOf.
type Sender interface {
	Send(ctx context.Context, e localdb.QueueEntry) error
}

// Caller is the subset of *remote.Client the sender needs.
type Caller interface {
	Call(ctx context.Context, operation string, params, out interface{}, opts ...remote.CallOption) error
}

// RemoteSender maps (entity type, action) to an RPC operation and sends the
// stored payload with the entry id as idempotency key.
type RemoteSender struct {
	client Caller
}

func NewRemoteSender(c Caller) *RemoteSender {
	return &RemoteSender{client: c}
}

// Operation resolves the RPC operation for an entry.
func Operation(t EntityType, a Action) (string, bool) {
	switch t {
	case EntitySale:
		if a == ActionCreate {
			return dto.OpCreateSale, true
		}
	case EntityStockAdjustment:
		if a == ActionCreate {
			return dto.OpAdjustStock, true
		}
	case EntityParkedSale:
		switch a {
		case ActionCreate:
			return dto.OpParkSale, true
		case ActionDelete:
			return dto.OpResumeParkedSale, true
		}
	case EntityProduct:
		switch a {
		case ActionCreate, ActionUpdate:
			return dto.OpUpsertItem, true
		case ActionDelete:
			return dto.OpDeleteItem, true
		}
	case EntityCustomer:
		switch a {
		case ActionCreate, ActionUpdate:
			return dto.OpUpsertCustomer, true
		case ActionDelete:
			return dto.OpDeleteCustomer, true
		}
	}
	return "", false
}

func (s *RemoteSender) Send(ctx context.Context, e localdb.QueueEntry) error {
	t, a := EntityType(e.EntityType), Action(e.Action)
	op, ok := Operation(t, a)
	if !ok {
		return &remote.Error{Kind: remote.KindValidation, Message: fmt.Sprintf("no operation for %s/%s", t, a)}
	}
	p, err := Decode(t, e.Payload)
	if err != nil {
		return &remote.Error{Kind: remote.KindValidation, Message: err.Error(), Err: err}
	}

	var params interface{} = p
	if a == ActionDelete {
		switch v := p.(type) {
		case ProductPayload:
			params = dto.DeleteParams{ID: v.ID}
		case CustomerPayload:
			params = dto.DeleteParams{ID: v.ID}
		case ParkedSalePayload:
			params = dto.ResumeParkedSaleParams{OfflineID: v.OfflineID}
		}
	}
	return s.client.Call(ctx, op, params, nil, remote.WithIdempotencyKey(e.ID))
}
