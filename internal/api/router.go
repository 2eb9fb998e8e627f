package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/middleware"
	"github.com/persistorai/auditledger/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Ledger      LedgerService
	Reports     ReportGenerator
	Hub         *ws.Hub
	Keys        middleware.PrincipalLookup
	Checks      []ReadinessCheck
	CORSOrigins []string
	Version     string
	RateLimit   int
	RateBurst   int
}

// Router-level limits.
const (
	maxBodySize      = 1 << 20 // 1 MB
	defaultRateLimit = 100     // requests per second per principal
	defaultRateBurst = 200     // token bucket burst size
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	rate, burst := deps.RateLimit, deps.RateBurst
	if rate <= 0 {
		rate = defaultRateLimit
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}

	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rate, burst).Handler())
	r.Use(middleware.Prometheus())
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.Ledger, deps.Checks, log, deps.Version)
	events := NewEventHandler(deps.Ledger, log)
	blocks := NewBlockHandler(deps.Ledger, log)
	reports := NewReportHandler(deps.Reports, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// All other API routes require authentication.
	guard := middleware.NewBruteForceGuard(ctx, middleware.BruteForceConfig{}, log)
	keys := middleware.NewCachedPrincipalLookup(ctx, deps.Keys)
	api.Use(middleware.BruteForce(guard))
	api.Use(middleware.Auth(keys, log, guard))

	// Events.
	api.POST("/events", events.Append)
	api.GET("/events", events.List)
	api.GET("/events/:id/proof", events.Proof)

	// Blocks.
	api.GET("/blocks", blocks.List)
	api.POST("/blocks/seal", blocks.Seal)
	api.GET("/blocks/:number", blocks.Get)

	// Chain.
	api.GET("/chain/verify", blocks.Verify)
	api.GET("/chain/status", blocks.Status)

	// Compliance.
	api.GET("/reports/:standard", reports.Generate)

	// WebSocket feed of sealed blocks.
	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins, keys))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
