package router

import (
	"context"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/config"
	"github.com/JKKN-Institutions/JKKNPOS/internal/handler"
	"github.com/JKKN-Institutions/JKKNPOS/internal/middleware"
	"github.com/JKKN-Institutions/JKKNPOS/internal/repository"
	"github.com/JKKN-Institutions/JKKNPOS/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // per terminal, or per IP before auth

	// ── Repositories ─────────────────────────────────────────────────────────
	itemRepo := repository.NewItemRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	priceRepo := repository.NewPriceHistoryRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	numbers := service.NewSaleNumberGenerator(rdb, cfg.SaleNumberPrefix)
	inventorySvc := service.NewInventoryService(itemRepo, movementRepo, priceRepo, rdb)
	customerSvc := service.NewCustomerService(customerRepo)
	saleSvc := service.NewSaleService(saleRepo, itemRepo, customerRepo, movementRepo, numbers, rdb)

	// ── Handlers ─────────────────────────────────────────────────────────────
	rpcH := handler.NewRPCHandler(saleSvc, numbers, inventorySvc, customerSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(map[string]handler.Check{
		"db": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), middleware.RequireBusiness(cfg.BusinessID))
	{
		v1.POST("/rpc/:operation", rpcH.Invoke)
	}

	// Swagger UI, outside production only
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
