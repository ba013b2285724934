package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/cart"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var ErrHeldCartNotFound = errors.New("checkout: held cart not found")

const heldCartsKey = "held_carts"

// HeldCart is a cart put aside so another customer can be served. ID is also
// the offline_id of the parked sale on the service.
type HeldCart struct {
	ID     string          `json:"id"`
	State  cart.State      `json:"state"`
	Total  decimal.Decimal `json:"total"`
	HeldAt time.Time       `json:"held_at"`
}

type HoldResult struct {
	Held HeldCart `json:"held"`
	// Queued is true when the service was unreachable and the park was queued.
	Queued bool `json:"queued"`
	// CartKept is true when the cart was edited while it was being held.
	CartKept bool `json:"cart_kept"`
}

// Hold parks the active cart and clears it. The local copy is written first
// and is what Resume reads, so holding works offline. The service copy lets
// other screens list parked sales.
func (s *Service) Hold(ctx context.Context) (*HoldResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.session.Snapshot()
	if len(snap.State.Items) == 0 {
		return nil, ErrEmptyCart
	}
	now := s.now().UTC()
	held := HeldCart{
		ID:     uuid.NewString(),
		State:  snap.State,
		Total:  snap.Summary.Total,
		HeldAt: now,
	}

	list := s.heldCarts()
	carts, _, err := list.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout: load held carts: %w", err)
	}
	if err := list.Save(ctx, append(carts, held)); err != nil {
		return nil, fmt.Errorf("checkout: save held cart: %w", err)
	}

	res := &HoldResult{Held: held}
	params := buildParkParams(snap, s.cfg.TerminalID, held.ID, now)
	queued, err := s.callOrQueue(ctx, dto.OpParkSale, params, syncqueue.ActionCreate, syncqueue.ParkedSalePayload{ParkSaleParams: params}, held.ID)
	if err != nil {
		// The hold stands locally; only the service copy is missing.
		log.Warn().Err(err).Str("held_id", held.ID).Msg("checkout: parked sale not stored on service")
	}
	res.Queued = queued
	res.CartKept = !s.session.ClearIf(snap.Version)
	log.Info().
		Str("held_id", held.ID).
		Int("lines", len(held.State.Items)).
		Str("total", held.Total.StringFixed(2)).
		Bool("queued", queued).
		Msg("checkout: cart held")
	return res, nil
}

// HeldCarts lists held carts oldest first.
func (s *Service) HeldCarts(ctx context.Context) ([]HeldCart, error) {
	carts, _, err := s.heldCarts().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout: load held carts: %w", err)
	}
	return carts, nil
}

// Resume moves a held cart back into the active cart, which must be empty,
// and removes the parked sale from the service.
func (s *Service) Resume(ctx context.Context, id string) (cart.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.heldCarts()
	carts, _, err := list.Load(ctx)
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("checkout: load held carts: %w", err)
	}
	idx := -1
	for i := range carts {
		if carts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cart.Snapshot{}, ErrHeldCartNotFound
	}
	held := carts[idx]
	if err := s.session.Restore(held.State); err != nil {
		return cart.Snapshot{}, err
	}
	if err := list.Save(ctx, append(carts[:idx:idx], carts[idx+1:]...)); err != nil {
		return cart.Snapshot{}, fmt.Errorf("checkout: save held carts: %w", err)
	}

	params := dto.ResumeParkedSaleParams{OfflineID: held.ID}
	payload := syncqueue.ParkedSalePayload{ParkSaleParams: dto.ParkSaleParams{OfflineID: held.ID, TerminalID: s.cfg.TerminalID}}
	// A park still waiting in the queue must reach the service before its
	// resume does, so the resume queues behind it.
	var rerr error
	if pending, err := s.store.QueueDepth(ctx); err == nil && pending > 0 {
		_, rerr = s.queue.Enqueue(ctx, syncqueue.ActionDelete, payload, held.ID)
	} else {
		_, rerr = s.callOrQueue(ctx, dto.OpResumeParkedSale, params, syncqueue.ActionDelete, payload, held.ID)
	}
	if rerr != nil {
		log.Warn().Err(rerr).Str("held_id", held.ID).Msg("checkout: parked sale not removed from service")
	}
	log.Info().Str("held_id", held.ID).Msg("checkout: held cart resumed")
	return s.session.Snapshot(), nil
}

func (s *Service) heldCarts() *localdb.JSONState[[]HeldCart] {
	return localdb.NewJSONState[[]HeldCart](s.store, heldCartsKey)
}

// callOrQueue sends op now and queues payload when the service is
// unreachable. It reports whether the call was queued.
func (s *Service) callOrQueue(ctx context.Context, op string, params interface{}, action syncqueue.Action, payload syncqueue.Payload, ref string) (bool, error) {
	err := s.remote.Call(ctx, op, params, nil, remote.WithIdempotencyKey(ref))
	switch {
	case err == nil:
		return false, nil
	case remote.IsConnectivity(err):
		if _, err := s.queue.Enqueue(ctx, action, payload, ref); err != nil {
			return false, fmt.Errorf("checkout: queue %s: %w", op, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("checkout: %s: %w", op, err)
	}
}

func buildParkParams(snap cart.Snapshot, terminalID, id string, now time.Time) dto.ParkSaleParams {
	sale := buildParams(snap, Payment{}, decimal.Zero, terminalID, now)
	return dto.ParkSaleParams{
		OfflineID:    id,
		TerminalID:   sale.TerminalID,
		CustomerID:   sale.CustomerID,
		Items:        sale.Items,
		Subtotal:     sale.Subtotal,
		Discount:     sale.Discount,
		DiscountType: sale.DiscountType,
		Tax:          sale.Tax,
		Total:        sale.Total,
		Notes:        sale.Notes,
		CreatedAt:    sale.CreatedAt,
	}
}
