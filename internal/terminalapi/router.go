// Package terminalapi is the terminal's local HTTP surface: a small JSON API
// for the checkout screen, /metrics, and the offline shell for everything
// else.
package terminalapi

import (
	"github.com/JKKN-Institutions/JKKNPOS/internal/cart"
	"github.com/JKKN-Institutions/JKKNPOS/internal/checkout"
	"github.com/JKKN-Institutions/JKKNPOS/internal/handler"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/middleware"
	"github.com/JKKN-Institutions/JKKNPOS/internal/shell"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the terminal components the API exposes.
type Deps struct {
	Session  *cart.Session
	Checkout *checkout.Service
	Store    *localdb.Store
	Queue    *syncqueue.Queue
	Shell    *shell.Shell
}

// New returns the terminal engine. Unmatched routes fall through to the shell.
func New(env string, d Deps) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.ErrorHandler())

	h := &Handler{d: d}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", handler.Health(map[string]handler.Check{"local_db": d.Store.Ping}))

	api := r.Group("/api")
	{
		api.GET("/cart", h.GetCart)
		api.DELETE("/cart", h.ClearCart)
		api.POST("/cart/items", h.AddItem)
		api.PATCH("/cart/items/:id", h.UpdateItem)
		api.DELETE("/cart/items/:id", h.RemoveItem)
		api.PUT("/cart/customer", h.SetCustomer)
		api.PUT("/cart/discount", h.SetDiscount)
		api.PUT("/cart/notes", h.SetNotes)

		api.POST("/checkout", h.Checkout)
		api.POST("/cart/hold", h.HoldCart)
		api.GET("/held-carts", h.HeldCarts)
		api.POST("/held-carts/:id/resume", h.ResumeCart)

		api.GET("/products", h.SearchProducts)
		api.GET("/products/lookup/:code", h.LookupProduct)
		api.GET("/products/low-stock", h.LowStockProducts)
		api.GET("/categories/:id/products", h.CategoryProducts)
		api.GET("/customers", h.SearchCustomers)
		api.POST("/catalog/refresh", h.RefreshCatalog)
		api.POST("/stock/adjust", h.AdjustStock)

		api.GET("/sync/status", h.SyncStatus)
		api.POST("/sync", h.SyncNow)
		api.GET("/sync/dead-letters", h.DeadLetters)
		api.POST("/sync/dead-letters/:id/requeue", h.Requeue)

		api.GET("/offline-sales", h.OfflineSales)
		api.DELETE("/local-data", h.ClearLocalData)
	}

	if d.Shell != nil {
		r.NoRoute(gin.WrapH(d.Shell))
	}
	return r
}
