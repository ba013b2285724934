package terminalapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JKKN-Institutions/JKKNPOS/internal/apierror"
	"github.com/JKKN-Institutions/JKKNPOS/internal/cart"
	"github.com/JKKN-Institutions/JKKNPOS/internal/checkout"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/money"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/shell"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Handler struct {
	d Deps
}

// ── Requests ─────────────────────────────────────────────────────────────────

type addItemRequest struct {
	// Ref is a product id, barcode or SKU.
	Ref string `json:"ref" validate:"required,max=100"`
}

type updateItemRequest struct {
	Quantity *int             `json:"quantity"      validate:"omitempty,min=0"`
	Discount *decimal.Decimal `json:"line_discount" validate:"omitempty,min=0"`
}

type customerRequest struct {
	// An empty ID detaches the customer.
	ID    string `json:"id"    validate:"max=64"`
	Name  string `json:"name"  validate:"required_with=ID,max=150"`
	Phone string `json:"phone" validate:"max=30"`
}

type discountRequest struct {
	Amount decimal.Decimal   `json:"amount" validate:"min=0"`
	Type   money.DiscountType `json:"type"   validate:"required,oneof=percentage fixed"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type syncStatusResponse struct {
	Shell            shell.Status    `json:"shell"`
	Queue            syncqueue.Stats `json:"queue"`
	Local            localdb.Stats   `json:"local"`
	OfflineAvailable bool            `json:"offline_available"`
}

// ── Cart ─────────────────────────────────────────────────────────────────────

// GetCart godoc
// @Summary Current cart with totals
// @Tags    cart
// @Produce json
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart [get]
func (h *Handler) GetCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// ClearCart godoc
// @Summary Empty the cart
// @Tags    cart
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart [delete]
func (h *Handler) ClearCart(c *gin.Context) {
	h.d.Session.Clear()
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// AddItem godoc
// @Summary Add one unit of a product by id, barcode or SKU
// @Tags    cart
// @Accept  json
// @Produce json
// @Param   body body addItemRequest true "Product reference"
// @Success 200 {object} cart.Snapshot
// @Failure 404 {object} apierror.Envelope
// @Failure 409 {object} apierror.Envelope
// @Router  /api/cart/items [post]
func (h *Handler) AddItem(c *gin.Context) {
	var req addItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	snap, err := h.d.Checkout.AddToCart(c.Request.Context(), req.Ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// UpdateItem godoc
// @Summary Change quantity or line discount of a cart line
// @Tags    cart
// @Accept  json
// @Produce json
// @Param   id   path string            true "Item ID"
// @Param   body body updateItemRequest true "Changes"
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart/items/{id} [patch]
func (h *Handler) UpdateItem(c *gin.Context) {
	var req updateItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	id := c.Param("id")
	if req.Quantity != nil {
		h.d.Session.UpdateQuantity(id, *req.Quantity)
	}
	if req.Discount != nil {
		h.d.Session.UpdateLineDiscount(id, *req.Discount)
	}
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// RemoveItem godoc
// @Summary Remove a cart line
// @Tags    cart
// @Param   id path string true "Item ID"
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart/items/{id} [delete]
func (h *Handler) RemoveItem(c *gin.Context) {
	h.d.Session.RemoveItem(c.Param("id"))
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// SetCustomer godoc
// @Summary Attach or detach the cart customer
// @Tags    cart
// @Accept  json
// @Param   body body customerRequest true "Customer"
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart/customer [put]
func (h *Handler) SetCustomer(c *gin.Context) {
	var req customerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.ID == "" {
		h.d.Session.SetCustomer(nil)
	} else {
		h.d.Session.SetCustomer(&cart.Customer{ID: req.ID, Name: req.Name, Phone: req.Phone})
	}
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// SetDiscount godoc
// @Summary Set the cart-level discount
// @Tags    cart
// @Accept  json
// @Param   body body discountRequest true "Discount"
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart/discount [put]
func (h *Handler) SetDiscount(c *gin.Context) {
	var req discountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.d.Session.SetCartDiscount(req.Amount, req.Type)
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// SetNotes godoc
// @Summary Set the cart notes
// @Tags    cart
// @Accept  json
// @Param   body body notesRequest true "Notes"
// @Success 200 {object} cart.Snapshot
// @Router  /api/cart/notes [put]
func (h *Handler) SetNotes(c *gin.Context) {
	var req notesRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.d.Session.SetNotes(req.Notes)
	c.JSON(http.StatusOK, h.d.Session.Snapshot())
}

// ── Checkout ─────────────────────────────────────────────────────────────────

// Checkout godoc
// @Summary Record the cart as a sale, offline when the service is unreachable
// @Tags    checkout
// @Accept  json
// @Produce json
// @Param   body body checkout.Payment true "Payment"
// @Success 201 {object} checkout.Result
// @Failure 422 {object} apierror.Envelope
// @Failure 503 {object} apierror.Envelope
// @Router  /api/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	var p checkout.Payment
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(dto.CodeValidation, "invalid JSON body"))
		return
	}
	res, err := h.d.Checkout.Checkout(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Offline {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

// HoldCart godoc
// @Summary Put the cart aside and start an empty one
// @Tags    cart
// @Produce json
// @Success 200 {object} checkout.HoldResult
// @Failure 422 {object} apierror.Envelope
// @Router  /api/cart/hold [post]
func (h *Handler) HoldCart(c *gin.Context) {
	res, err := h.d.Checkout.Hold(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HeldCarts godoc
// @Summary Carts put aside on this terminal
// @Tags    cart
// @Produce json
// @Success 200 {array} checkout.HeldCart
// @Router  /api/held-carts [get]
func (h *Handler) HeldCarts(c *gin.Context) {
	out, err := h.d.Checkout.HeldCarts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		out = []checkout.HeldCart{}
	}
	c.JSON(http.StatusOK, out)
}

// ResumeCart godoc
// @Summary Bring a held cart back into the empty active cart
// @Tags    cart
// @Param   id path string true "Held cart id"
// @Success 200 {object} cart.Snapshot
// @Failure 404 {object} apierror.Envelope
// @Failure 409 {object} apierror.Envelope
// @Router  /api/held-carts/{id}/resume [post]
func (h *Handler) ResumeCart(c *gin.Context) {
	snap, err := h.d.Checkout.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ── Catalog ──────────────────────────────────────────────────────────────────

// SearchProducts godoc
// @Summary Search cached products by name, SKU or barcode
// @Tags    catalog
// @Param   q query string false "Search text"
// @Success 200 {array} localdb.CachedProduct
// @Router  /api/products [get]
func (h *Handler) SearchProducts(c *gin.Context) {
	out, err := h.d.Store.SearchProducts(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// LookupProduct godoc
// @Summary Find a product by barcode or SKU, asking the service on a cache miss
// @Tags    catalog
// @Param   code path string true "Barcode or SKU"
// @Success 200 {object} localdb.CachedProduct
// @Failure 404 {object} apierror.Envelope
// @Router  /api/products/lookup/{code} [get]
func (h *Handler) LookupProduct(c *gin.Context) {
	p, err := h.d.Checkout.LookupProduct(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CategoryProducts godoc
// @Summary Active cached products of a category
// @Tags    catalog
// @Param   id path string true "Category id"
// @Success 200 {array} localdb.CachedProduct
// @Router  /api/categories/{id}/products [get]
func (h *Handler) CategoryProducts(c *gin.Context) {
	out, err := h.d.Store.GetProductsByCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// LowStockProducts godoc
// @Summary Cached products at or below their minimum stock
// @Tags    catalog
// @Success 200 {array} localdb.CachedProduct
// @Router  /api/products/low-stock [get]
func (h *Handler) LowStockProducts(c *gin.Context) {
	out, err := h.d.Store.LowStockProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// SearchCustomers godoc
// @Summary Search cached customers by name, phone or email
// @Tags    catalog
// @Param   q query string false "Search text"
// @Success 200 {array} localdb.CachedCustomer
// @Router  /api/customers [get]
func (h *Handler) SearchCustomers(c *gin.Context) {
	out, err := h.d.Store.SearchCustomers(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// RefreshCatalog godoc
// @Summary Replace the cached catalog with the service's lists
// @Tags    catalog
// @Success 200 {object} checkout.RefreshReport
// @Failure 503 {object} apierror.Envelope
// @Router  /api/catalog/refresh [post]
func (h *Handler) RefreshCatalog(c *gin.Context) {
	rep, err := h.d.Checkout.RefreshCatalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// AdjustStock godoc
// @Summary Adjust an item's stock, queued when offline
// @Tags    catalog
// @Accept  json
// @Param   body body dto.AdjustStockParams true "Adjustment"
// @Success 200 {object} map[string]bool
// @Router  /api/stock/adjust [post]
func (h *Handler) AdjustStock(c *gin.Context) {
	var req dto.AdjustStockParams
	if !bindAndValidate(c, &req) {
		return
	}
	queued, err := h.d.Checkout.AdjustStock(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": queued})
}

// ── Sync ─────────────────────────────────────────────────────────────────────

// SyncStatus godoc
// @Summary Connectivity, shell and queue status
// @Tags    sync
// @Success 200 {object} syncStatusResponse
// @Router  /api/sync/status [get]
func (h *Handler) SyncStatus(c *gin.Context) {
	ctx := c.Request.Context()
	var out syncStatusResponse
	if h.d.Shell != nil {
		out.Shell = h.d.Shell.Status()
	}
	qs, err := h.d.Queue.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	ls, err := h.d.Store.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	out.Queue = qs
	out.Local = ls
	out.OfflineAvailable = h.d.Checkout.OfflineAvailable()
	c.JSON(http.StatusOK, out)
}

// SyncNow godoc
// @Summary Drain the sync queue now
// @Tags    sync
// @Success 200 {object} syncqueue.DrainReport
// @Router  /api/sync [post]
func (h *Handler) SyncNow(c *gin.Context) {
	if h.d.Shell == nil {
		c.JSON(http.StatusServiceUnavailable, apierror.New(dto.CodeUnavailable, "sync is not running"))
		return
	}
	rep, err := h.d.Shell.SyncNow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// DeadLetters godoc
// @Summary Entries the sync queue gave up on
// @Tags    sync
// @Success 200 {array} localdb.DeadLetter
// @Router  /api/sync/dead-letters [get]
func (h *Handler) DeadLetters(c *gin.Context) {
	out, err := h.d.Queue.DeadLetters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Requeue godoc
// @Summary Move a dead letter back onto the queue
// @Tags    sync
// @Param   id path string true "Entry ID"
// @Success 204
// @Failure 404 {object} apierror.Envelope
// @Router  /api/sync/dead-letters/{id}/requeue [post]
func (h *Handler) Requeue(c *gin.Context) {
	if err := h.d.Queue.Requeue(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OfflineSales godoc
// @Summary Sales recorded on this terminal, newest first
// @Tags    sync
// @Param   limit query int false "Max rows" default(50)
// @Success 200 {array} localdb.OfflineSale
// @Router  /api/offline-sales [get]
func (h *Handler) OfflineSales(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, apierror.New(dto.CodeValidation, "limit must be between 1 and 500"))
		return
	}
	out, err := h.d.Store.ListOfflineSales(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ClearLocalData godoc
// @Summary Wipe the local catalog, offline sales and sync queue
// @Description Recovery for a corrupted cache. Unsynced sales are lost, so the caller must pass confirm=yes.
// @Tags    sync
// @Param   confirm query string true "Must be yes"
// @Success 204
// @Failure 400 {object} apierror.Envelope
// @Router  /api/local-data [delete]
func (h *Handler) ClearLocalData(c *gin.Context) {
	if c.Query("confirm") != "yes" {
		c.JSON(http.StatusBadRequest, apierror.New(dto.CodeValidation, "pass confirm=yes to wipe local data"))
		return
	}
	if err := h.d.Store.ClearAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	log.Warn().Msg("terminal: local data wiped")
	c.Status(http.StatusNoContent)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(dto.CodeValidation, "invalid JSON body"))
		return false
	}
	if err := dto.Validate(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(dto.ValidationFields(err)))
		return false
	}
	return true
}

// respondError maps domain errors to the envelope. Anything unrecognised goes
// to the error handler as a 500.
func respondError(c *gin.Context, err error) {
	var re *remote.Error
	switch {
	case dto.ValidationFields(err) != nil:
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(dto.ValidationFields(err)))
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrInsufficientPayment):
		c.JSON(http.StatusUnprocessableEntity, apierror.New(dto.CodeValidation, err.Error()))
	case errors.Is(err, cart.ErrInsufficientStock), errors.Is(err, cart.ErrCartNotEmpty):
		c.JSON(http.StatusConflict, apierror.New(dto.CodeConflict, err.Error()))
	case errors.Is(err, checkout.ErrOfflineUnavailable):
		c.JSON(http.StatusServiceUnavailable, apierror.New(dto.CodeUnavailable, err.Error()))
	case errors.Is(err, checkout.ErrProductNotFound), errors.Is(err, checkout.ErrHeldCartNotFound), errors.Is(err, localdb.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.New(dto.CodeNotFound, err.Error()))
	case remote.IsConnectivity(err) && errors.As(err, &re):
		c.JSON(http.StatusServiceUnavailable, apierror.New(dto.CodeUnavailable, "business service unreachable"))
	case errors.As(err, &re) && re.Code != "":
		env := apierror.New(re.Code, re.Message)
		env.Error.Fields = re.Fields
		c.JSON(apierror.Status(re.Code), env)
	default:
		_ = c.Error(err)
	}
}
