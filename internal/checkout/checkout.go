// Package checkout turns the active cart into a sale. It records the sale with
// the business-logic service when reachable and falls back to the local
// offline store plus the sync queue when it is not.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/cart"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/money"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart           = errors.New("checkout: cart is empty")
	ErrInsufficientPayment = errors.New("checkout: payment amount is less than the total")
	// ErrOfflineUnavailable means the remote service is unreachable and the
	// local store cannot record the sale either.
	ErrOfflineUnavailable = errors.New("checkout: offline mode unavailable")
	ErrProductNotFound    = errors.New("checkout: product not found")
)

const defaultOfflinePrefix = "OFF"

type Config struct {
	TerminalID    string
	OfflinePrefix string // local sale numbers: <prefix>-YYYYMMDD-<terminal>-NNNN
}

// Payment is what the cashier collected.
type Payment struct {
	Method    string          `json:"method"    validate:"required,oneof=CASH CARD UPI WALLET"`
	Amount    decimal.Decimal `json:"amount"    validate:"min=0"`
	Reference string          `json:"reference" validate:"max=120"`
}

// Result describes a completed checkout.
type Result struct {
	OfflineID  string            `json:"offline_id"`
	SaleNumber string            `json:"sale_number"`
	Total      decimal.Decimal   `json:"total"`
	Paid       decimal.Decimal   `json:"paid"`
	Change     decimal.Decimal   `json:"change"`
	Offline    bool              `json:"offline"`
	Sale       *dto.SaleResponse `json:"sale,omitempty"`
	// CartKept is true when the cart was edited while the sale was being
	// recorded, so it was not cleared.
	CartKept bool `json:"cart_kept"`
}

type Service struct {
	cfg     Config
	session *cart.Session
	store   *localdb.Store
	queue   *syncqueue.Queue
	remote  syncqueue.Caller
	now     func() time.Time

	mu              sync.Mutex // one checkout at a time
	offlineDisabled atomic.Bool
}

func New(cfg Config, session *cart.Session, store *localdb.Store, q *syncqueue.Queue, rc syncqueue.Caller) *Service {
	if cfg.OfflinePrefix == "" {
		cfg.OfflinePrefix = defaultOfflinePrefix
	}
	return &Service{
		cfg:     cfg,
		session: session,
		store:   store,
		queue:   q,
		remote:  rc,
		now:     time.Now,
	}
}

// OfflineAvailable reports whether sales can still be recorded locally.
func (s *Service) OfflineAvailable() bool { return !s.offlineDisabled.Load() }

// Checkout records the current cart as a sale paid with p.
//
// Online, the sale goes straight to create_sale. When the service is
// unreachable the sale and its queue entry are written locally in one
// transaction and Result.Offline is set. Validation and conflict errors from
// the service are returned and the cart is kept.
func (s *Service) Checkout(ctx context.Context, p Payment) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.session.Snapshot()
	if len(snap.State.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := dto.Validate(p); err != nil {
		return nil, err
	}

	total := snap.Summary.Total
	paid := total
	if p.Method == dto.PaymentCash {
		if p.Amount.LessThan(total) {
			return nil, ErrInsufficientPayment
		}
		paid = money.Round(p.Amount)
	}

	now := s.now().UTC()
	params := buildParams(snap, p, paid, s.cfg.TerminalID, now)
	if err := dto.Validate(params); err != nil {
		return nil, fmt.Errorf("checkout: build sale: %w", err)
	}

	res := &Result{
		OfflineID: params.OfflineID,
		Total:     total,
		Paid:      paid,
		Change:    paid.Sub(total),
	}

	var sale dto.SaleResponse
	err := s.remote.Call(ctx, dto.OpCreateSale, params, &sale, remote.WithIdempotencyKey(params.OfflineID))
	switch {
	case err == nil:
		res.Sale = &sale
		res.SaleNumber = sale.SaleNumber
		log.Info().
			Str("sale_number", sale.SaleNumber).
			Str("offline_id", params.OfflineID).
			Str("total", total.StringFixed(2)).
			Msg("checkout: sale recorded online")

	case remote.IsConnectivity(err):
		log.Warn().Err(err).Str("offline_id", params.OfflineID).Msg("checkout: service unreachable, recording offline")
		if err := s.saveOffline(ctx, &params, snap, now); err != nil {
			return nil, err
		}
		res.Offline = true
		res.SaleNumber = params.SaleNumber

	default:
		return nil, fmt.Errorf("checkout: create sale: %w", err)
	}

	res.CartKept = !s.session.ClearIf(snap.Version)
	s.decrementCachedStock(ctx, snap.State.Items)
	return res, nil
}

func (s *Service) saveOffline(ctx context.Context, params *dto.CreateSaleParams, snap cart.Snapshot, now time.Time) error {
	if s.offlineDisabled.Load() {
		return ErrOfflineUnavailable
	}

	number, err := s.nextSaleNumber(ctx, now)
	if err != nil {
		return s.disableOffline(err)
	}
	params.SaleNumber = number

	entry, err := s.queue.NewEntry(syncqueue.ActionCreate, syncqueue.SalePayload{CreateSaleParams: *params}, params.OfflineID)
	if err != nil {
		return fmt.Errorf("checkout: queue sale: %w", err)
	}
	rec := &localdb.OfflineSale{
		ID:            params.OfflineID,
		SaleNumber:    number,
		CustomerID:    params.CustomerID,
		Items:         params.Items,
		Subtotal:      params.Subtotal,
		Discount:      params.Discount,
		Tax:           params.Tax,
		Total:         params.Total,
		PaymentMethod: params.PaymentMethod,
		PaymentAmount: params.PaymentAmount,
		Notes:         params.Notes,
		Status:        "completed",
		CreatedAt:     now,
	}
	if snap.State.Customer != nil {
		rec.CustomerName = snap.State.Customer.Name
	}
	if err := s.store.SaveOfflineSale(ctx, rec, entry); err != nil {
		return s.disableOffline(err)
	}
	log.Info().
		Str("sale_number", number).
		Str("offline_id", params.OfflineID).
		Str("entry_id", entry.ID).
		Msg("checkout: sale stored offline")
	return nil
}

func (s *Service) disableOffline(cause error) error {
	if errors.Is(cause, localdb.ErrCacheCorruption) {
		s.offlineDisabled.Store(true)
		log.Error().Err(cause).Msg("checkout: local store failed, offline mode disabled")
	}
	return fmt.Errorf("%w: %w", ErrOfflineUnavailable, cause)
}

// nextSaleNumber returns <prefix>-YYYYMMDD-<terminal>-NNNN from a per-day
// counter kept in the local store. Callers hold s.mu.
func (s *Service) nextSaleNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq := localdb.NewJSONState[int](s.store, "sale_seq:"+s.cfg.TerminalID+":"+day)
	n, _, err := seq.Load(ctx)
	if err != nil {
		return "", err
	}
	n++
	if err := seq.Save(ctx, n); err != nil {
		return "", err
	}
	parts := []string{s.cfg.OfflinePrefix, day}
	if s.cfg.TerminalID != "" {
		parts = append(parts, s.cfg.TerminalID)
	}
	parts = append(parts, fmt.Sprintf("%04d", n))
	return strings.Join(parts, "-"), nil
}

func (s *Service) decrementCachedStock(ctx context.Context, lines []cart.LineItem) {
	for _, l := range lines {
		err := s.store.AdjustCachedStock(ctx, l.ItemID, -l.Quantity)
		if err != nil && !errors.Is(err, localdb.ErrNotFound) {
			log.Warn().Err(err).Str("item_id", l.ItemID).Msg("checkout: cached stock not updated")
		}
	}
}

// buildParams flattens a cart snapshot into create_sale params, rounding every
// amount to cents. Discount is the sum of line discounts and the cart
// discount, so Subtotal - Discount + Tax == Total.
func buildParams(snap cart.Snapshot, p Payment, paid decimal.Decimal, terminalID string, now time.Time) dto.CreateSaleParams {
	items := make([]dto.SaleItemParams, 0, len(snap.State.Items))
	for _, l := range snap.State.Items {
		items = append(items, dto.SaleItemParams{
			ItemID:   l.ItemID,
			Name:     l.Name,
			Quantity: l.Quantity,
			Price:    money.Round(l.UnitPrice),
			Discount: money.Round(l.LineDiscount),
			Tax:      money.Round(l.LineTax),
			Total:    money.Round(l.LineTotal),
		})
	}
	sum := snap.Summary
	params := dto.CreateSaleParams{
		OfflineID:        uuid.NewString(),
		TerminalID:       terminalID,
		Items:            items,
		PaymentMethod:    p.Method,
		PaymentAmount:    paid,
		PaymentReference: p.Reference,
		Subtotal:         sum.Subtotal,
		Discount:         sum.LineDiscountTotal.Add(sum.DiscountAmount),
		DiscountType:     string(snap.State.DiscountType),
		Tax:              sum.TaxAmount,
		Total:            sum.Total,
		Notes:            snap.State.Notes,
		CreatedAt:        &now,
	}
	if snap.State.Customer != nil && snap.State.Customer.ID != "" {
		id := snap.State.Customer.ID
		params.CustomerID = &id
	}
	return params
}

// ── Stock ─────────────────────────────────────────────────────────────────────

// AdjustStock applies delta to an item's stock. Online the service applies it
// at once; otherwise it is queued. Either way the cached copy is updated so
// the terminal sees the new figure immediately. It reports whether the
// adjustment was queued.
func (s *Service) AdjustStock(ctx context.Context, params dto.AdjustStockParams) (bool, error) {
	if err := dto.Validate(params); err != nil {
		return false, err
	}

	// The online attempt and any queued replay share one reference, so a
	// response lost after the service committed is not applied twice.
	if params.Reference == "" {
		params.Reference = uuid.NewString()
	}

	queued := false
	err := s.remote.Call(ctx, dto.OpAdjustStock, params, nil, remote.WithIdempotencyKey(params.Reference))
	switch {
	case err == nil:
	case remote.IsConnectivity(err):
		if _, err := s.queue.Enqueue(ctx, syncqueue.ActionCreate, syncqueue.StockAdjustmentPayload{AdjustStockParams: params}, params.Reference); err != nil {
			return false, fmt.Errorf("checkout: queue stock adjustment: %w", err)
		}
		queued = true
	default:
		return false, fmt.Errorf("checkout: adjust stock: %w", err)
	}

	if err := s.store.AdjustCachedStock(ctx, params.ItemID, params.Delta); err != nil && !errors.Is(err, localdb.ErrNotFound) {
		log.Warn().Err(err).Str("item_id", params.ItemID).Msg("checkout: cached stock not updated")
	}
	log.Info().
		Str("item_id", params.ItemID).
		Int("delta", params.Delta).
		Str("reason", params.Reason).
		Str("reference", params.Reference).
		Bool("queued", queued).
		Msg("checkout: stock adjusted")
	return queued, nil
}
