package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	billingapp "github.com/backoffice/backend/internal/application/billing"
	billingdomain "github.com/backoffice/backend/internal/domain/billing"
	"github.com/backoffice/backend/internal/domain/identity"
	"github.com/backoffice/backend/internal/domain/shared"
	"github.com/backoffice/backend/internal/infrastructure/auth"
	"github.com/backoffice/backend/internal/infrastructure/cache"
	"github.com/backoffice/backend/internal/infrastructure/config"
	"github.com/backoffice/backend/internal/infrastructure/event"
	"github.com/backoffice/backend/internal/infrastructure/logger"
	"github.com/backoffice/backend/internal/infrastructure/payment"
	"github.com/backoffice/backend/internal/infrastructure/persistence"
	"github.com/backoffice/backend/internal/interfaces/http/handler"
	"github.com/backoffice/backend/internal/interfaces/http/middleware"
	"github.com/backoffice/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Usage Billing Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	usageEventRepo := persistence.NewUsageEventRepository(db.DB)
	usageSummaryRepo := persistence.NewUsageSummaryRepository(db.DB)
	usageLimitRepo := persistence.NewUsageLimitRepository(db.DB)
	invoiceRepo := persistence.NewInvoiceRepository(db.DB)
	tenantRepo := persistence.NewTenantRepository(db.DB)
	planRepo := persistence.NewPlanRepository(db.DB)
	subscriptionRepo := persistence.NewSubscriptionRepository(db.DB)
	userRepo := persistence.NewUserRepository(db.DB)
	txRunner := persistence.NewGormTxRunner(db.DB)

	// Usage meter cache: Redis when reachable, in-memory otherwise.
	// Dashboard reads tolerate staleness; limit enforcement never reads it.
	var meterCache billingdomain.UsageMeterCache
	if redisCache, err := cache.NewRedisUsageMeterCache(cfg.Redis); err != nil {
		log.Warn("Redis unavailable, using in-memory usage meter cache", zap.Error(err))
		meterCache = cache.NewInMemoryUsageMeterCache()
	} else {
		log.Info("Redis usage meter cache connected", zap.String("addr", cfg.Redis.Addr()))
		meterCache = redisCache
	}

	// Webhook replay suppression by Stripe event ID, same fallback rule
	var idempotencyStore shared.IdempotencyStore
	if redisStore, err := cache.NewRedisIdempotencyStore(cfg.Redis); err != nil {
		log.Warn("Redis unavailable, using in-memory webhook idempotency store", zap.Error(err))
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	} else {
		idempotencyStore = redisStore
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Payment gateway
	stripeGateway, err := payment.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	// Initialize event bus
	eventBus := event.NewBus(log)

	// Limit warning/exceeded events -> tenant alerts
	limitAlertHandler := billingapp.NewLimitAlertHandler(log).
		WithNotifier(billingapp.NewLoggingLimitAlertNotifier(log))
	eventBus.Subscribe(limitAlertHandler, limitAlertHandler.EventTypes()...)

	log.Info("Event handlers registered",
		zap.Strings("limit_alert_events", limitAlertHandler.EventTypes()),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize application services
	usageService := billingapp.NewUsageService(
		usageEventRepo, usageSummaryRepo, usageLimitRepo, subscriptionRepo,
		txRunner, eventBus, meterCache, log,
	)
	usageService.SetMeterCacheTTL(cfg.Usage.MeterCacheTTL)
	limitService := billingapp.NewLimitService(
		usageLimitRepo, usageEventRepo, subscriptionRepo, tenantRepo, eventBus, log,
	)
	billingService := billingapp.NewBillingService(
		usageSummaryRepo, usageLimitRepo, invoiceRepo,
		subscriptionRepo, planRepo, tenantRepo, eventBus, log,
	)
	planChangeService := billingapp.NewPlanChangeService(
		subscriptionRepo, planRepo, tenantRepo, userRepo, stripeGateway, eventBus, log,
	)
	webhookService := billingapp.NewStripeWebhookService(cfg.Stripe.WebhookSecret, planChangeService, log).
		WithIdempotencyStore(idempotencyStore)
	exportService := billingapp.NewExportService(usageEventRepo, log)

	// JWT service for request authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Async API call metering
	trackerCfg := middleware.DefaultUsageTrackerConfig()
	trackerCfg.Enabled = cfg.Usage.TrackAPIcalls
	trackerCfg.Logger = log
	usageTracker := middleware.NewUsageTracker(trackerCfg, usageService)
	usageTracker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := usageTracker.Stop(stopCtx); err != nil {
			log.Error("Error stopping usage tracker", zap.Error(err))
		}
	}()

	// Initialize HTTP handlers
	usageHandler := handler.NewUsageHandler(usageService, limitService, exportService)
	billingHandler := handler.NewBillingHandler(billingService)
	subscriptionHandler := handler.NewSubscriptionHandler(planChangeService, planRepo, subscriptionRepo)
	webhookHandler := handler.NewStripeWebhookHandler(webhookService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Stripe webhook endpoint (no authentication; verified by signature)
	webhookGroup := engine.Group("/api/v1/billing/webhook")
	webhookGroup.POST("/stripe", webhookHandler.HandleStripeWebhook)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	// Configure skip paths for public endpoints
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		SkipPathPrefixes: []string{
			"/api/v1/billing/webhook",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Resolve tenant context from JWT claims and reject suspended tenants
	tenantCfg := middleware.DefaultTenantConfig()
	tenantCfg.HeaderEnabled = false
	tenantCfg.SkipPaths = []string{
		"/api/v1/ping",
		"/api/v1/system/ping",
		"/api/v1/system/info",
		"/api/v1/billing/webhook",
	}
	tenantCfg.Validator = newActiveTenantValidator(tenantRepo)
	tenantCfg.Logger = log
	r.Use(middleware.TenantMiddlewareWithConfig(tenantCfg))

	// Meter each authenticated API call as an API_CALL usage event
	if cfg.Usage.TrackAPIcalls {
		r.Use(middleware.TrackAPIUsage(usageTracker))
		log.Info("API call usage tracking enabled",
			zap.Int("buffer_size", trackerCfg.BufferSize),
		)
	}

	// Usage metering routes
	usageRoutes := router.NewDomainGroup("usage", "/usage")
	usageRoutes.POST("/track", usageHandler.TrackUsage)
	usageRoutes.GET("/limits", usageHandler.GetLimits)
	usageRoutes.GET("/events", usageHandler.ListEvents)
	usageRoutes.GET("/export", usageHandler.ExportEvents)

	// Billing and subscription routes
	billingRoutes := router.NewDomainGroup("billing", "/billing")
	billingRoutes.POST("/calculate-usage", billingHandler.CalculateUsage)
	billingRoutes.GET("/summary", billingHandler.GetSummary)
	billingRoutes.GET("/invoices", billingHandler.ListInvoices)
	billingRoutes.GET("/plans", subscriptionHandler.ListPlans)

	subscriptionRoutes := billingRoutes.Group("subscription", "/subscription")
	subscriptionRoutes.GET("/current", subscriptionHandler.GetCurrentSubscription)
	subscriptionRoutes.POST("/payment-intent", subscriptionHandler.CreatePaymentIntent)
	subscriptionRoutes.POST("/verify-payment", subscriptionHandler.VerifyPayment)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	// Register all domain groups
	r.Register(usageRoutes).
		Register(billingRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}

// activeTenantValidator confirms the authenticated tenant exists and is
// active before any billing operation runs
type activeTenantValidator struct {
	tenants identity.TenantRepository
}

func newActiveTenantValidator(tenants identity.TenantRepository) *activeTenantValidator {
	return &activeTenantValidator{tenants: tenants}
}

func (v *activeTenantValidator) ValidateTenant(tenantID string) (*middleware.TenantInfo, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tenant, err := v.tenants.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive() {
		return nil, fmt.Errorf("tenant %s is not active", tenant.Code)
	}
	return &middleware.TenantInfo{ID: tenant.ID, Code: tenant.Code}, nil
}
