package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/money"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const saveTimeout = 2 * time.Second

// ErrCartNotEmpty is returned by Restore when the active cart has lines.
var ErrCartNotEmpty = errors.New("cart is not empty")

// StateStore persists a cart between process restarts.
// Load reports ok=false when nothing has been saved yet.
type StateStore interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, s State) error
}

// Snapshot is a consistent read of the cart: state and totals computed
// together, tagged with the mutation counter it was taken at.
type Snapshot struct {
	State   State   `json:"state"`
	Summary Summary `json:"summary"`
	Version uint64  `json:"version"`
}

// Session is the single owner of the terminal's active cart. Mutations are
// serialized and each one is persisted before the call returns; a failed save
// is logged and the in-memory cart stays authoritative.
type Session struct {
	mu      sync.Mutex
	cart    *Cart
	store   StateStore
	version uint64
}

// NewSession loads the persisted cart from store, or starts empty. A load
// failure is logged and the session starts with an empty cart.
func NewSession(ctx context.Context, store StateStore, rate decimal.Decimal) *Session {
	s := &Session{cart: New(rate), store: store}
	if store == nil {
		return s
	}
	st, ok, err := store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("cart: failed to load persisted cart, starting empty")
		return s
	}
	if ok {
		s.cart = FromState(st, rate)
		log.Info().Int("lines", len(st.Items)).Msg("cart: restored persisted cart")
	}
	return s
}

func (s *Session) mutate(fn func(c *Cart)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cart)
	s.version++
	s.persistLocked()
}

func (s *Session) persistLocked() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, s.cart.State()); err != nil {
		log.Error().Err(err).Msg("cart: failed to persist cart state")
	}
}

func (s *Session) AddItem(p Product) { s.mutate(func(c *Cart) { c.AddItem(p) }) }

// TryAddItem enforces stock for products that track it; on error the cart is
// left untouched and nothing is persisted.
func (s *Session) TryAddItem(p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.TryAddItem(p); err != nil {
		return err
	}
	s.version++
	s.persistLocked()
	return nil
}

func (s *Session) RemoveItem(itemID string) { s.mutate(func(c *Cart) { c.RemoveItem(itemID) }) }

func (s *Session) UpdateQuantity(itemID string, qty int) {
	s.mutate(func(c *Cart) { c.UpdateQuantity(itemID, qty) })
}

func (s *Session) UpdateLineDiscount(itemID string, amount decimal.Decimal) {
	s.mutate(func(c *Cart) { c.UpdateLineDiscount(itemID, amount) })
}

func (s *Session) SetCustomer(cu *Customer) { s.mutate(func(c *Cart) { c.SetCustomer(cu) }) }

func (s *Session) SetCartDiscount(amount decimal.Decimal, t money.DiscountType) {
	s.mutate(func(c *Cart) { c.SetCartDiscount(amount, t) })
}

func (s *Session) SetNotes(notes string) { s.mutate(func(c *Cart) { c.SetNotes(notes) }) }

func (s *Session) Clear() { s.mutate(func(c *Cart) { c.Clear() }) }

// ClearIf clears the cart only if no mutation happened since version was
// observed. It reports whether the cart was cleared.
func (s *Session) ClearIf(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false
	}
	s.cart.Clear()
	s.version++
	s.persistLocked()
	return true
}

// Restore replaces an empty cart with st, recomputing every line at the
// session's tax rate. A cart with lines is left untouched.
func (s *Session) Restore(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cart.State().Items) > 0 {
		return ErrCartNotEmpty
	}
	s.cart = FromState(st, s.cart.TaxRate())
	s.version++
	s.persistLocked()
	return nil
}

// Snapshot returns the current state and rounded totals.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:   s.cart.State(),
		Summary: s.cart.Summary(),
		Version: s.version,
	}
}

// TaxRate returns the rate applied by the underlying cart.
func (s *Session) TaxRate() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.TaxRate()
}
