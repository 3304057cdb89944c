package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/orrange/orrange-api/internal/auth"
	"github.com/orrange/orrange-api/internal/config"
	"github.com/orrange/orrange-api/internal/custody"
	"github.com/orrange/orrange-api/internal/database"
	"github.com/orrange/orrange-api/internal/orders"
	"github.com/orrange/orrange-api/internal/transfer"
	"github.com/orrange/orrange-api/internal/users"
	"github.com/orrange/orrange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Test credentials registered outside production so the simulation and local
// clients can authenticate without an identity platform.
const (
	testUserKey     = "test-user-key"
	testMerchantKey = "test-merchant-key"
	testAdminKey    = "test-admin-key"
	testSecret      = "test-api-secret"
)

// main initializes and runs the exchange API server with graceful shutdown
// support. It wires the custody gateway, the order state machine, and the
// transfer orchestrator behind the HTTP routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	configureLogging(cfg)

	// Initialize database
	db, err := database.NewDatabase(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.Default()

	// Custody gateway: real provider client, or the in-memory simulated
	// gateway for local runs.
	var gateway custody.Gateway
	var authority custody.SigningAuthority
	if cfg.Custody.Simulated() {
		sim := custody.NewSimulatedGateway()
		gateway = sim
		authority = sim
		log.Warn().Msg("custody gateway running in simulated mode")
	} else {
		client := custody.NewClient(cfg.Custody)
		gateway = client
		authority = client
	}

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWT.Secret)
	authHandlers := auth.NewGinHandlers(authService)
	if !cfg.App.IsProduction() {
		authService.RegisterAPICredentials(testUserKey, testSecret)
		authService.RegisterAPICredentials(testMerchantKey, testSecret)
		authService.RegisterAPICredentials(testAdminKey, testSecret)
	}

	userService := users.NewService(db)
	userHandlers := users.NewGinHandlers(userService)

	orchestrator := transfer.NewOrchestrator(db, gateway)
	bootstrap := transfer.NewBootstrap(db, authority)

	orderService := orders.NewService(db, userService, orchestrator, bootstrap)
	orderHandlers := orders.NewGinHandlers(orderService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authHandlers, userHandlers, orderHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

// configureLogging sets up zerolog: pretty printing outside production,
// debug level when requested.
func configureLogging(cfg *config.Config) {
	if !cfg.App.IsProduction() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// setupRoutes configures all API endpoints and their handlers:
// - Auth routes: public token issuance
// - User routes: profile sync and lookup, admin role management
// - Order routes: the order lifecycle operations
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	userHandlers *users.GinHandlers,
	orderHandlers *orders.GinHandlers,
) {
	secret := []byte(cfg.JWT.Secret)

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// User routes
		userGroup := v1.Group("/users")
		userGroup.Use(middleware.JWTAuth(secret))
		{
			userGroup.POST("/sync", userHandlers.SyncHandler())
			userGroup.GET("/me", userHandlers.MeHandler())
		}

		// Admin routes
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.JWTAuth(secret))
		{
			adminGroup.POST("/users/:user_id/promote", userHandlers.PromoteHandler())
		}

		// Order routes
		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(secret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("", orderHandlers.ListOrdersHandler())
			orderGroup.GET("/queue", orderHandlers.MerchantQueueHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.POST("/:order_id/accept", orderHandlers.AcceptOrderHandler())
			orderGroup.POST("/:order_id/submit-payment", orderHandlers.SubmitPaymentHandler())
			orderGroup.POST("/:order_id/confirm-payment", orderHandlers.ConfirmPaymentHandler())
			orderGroup.POST("/:order_id/retry-transfer", orderHandlers.RetryTransferHandler())
			orderGroup.POST("/:order_id/cancel", orderHandlers.CancelOrderHandler())
		}
	}
}
