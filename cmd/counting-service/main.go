package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tapline/tapline-backend/internal/counting/events"
	"github.com/tapline/tapline-backend/internal/counting/handler"
	"github.com/tapline/tapline-backend/internal/counting/registry"
	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/internal/counting/service"
	"github.com/tapline/tapline-backend/pkg/config"
	"github.com/tapline/tapline-backend/pkg/database"
	"github.com/tapline/tapline-backend/pkg/httputil"
	"github.com/tapline/tapline-backend/pkg/logger"
	"github.com/tapline/tapline-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("counting-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("counting-service", cfg.Server.Environment)
	log.Info().Msg("starting Counting Service")

	// Connect to database. All counting tables live in the counting schema
	// behind row level security.
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	db = db.WithSearchPath("counting, public")
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewCountingEventPublisher(rmq, log.WithComponent("events"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	catalogRepo := repository.NewCatalogRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	vendorRepo := repository.NewVendorRepository(db)

	// External product registries, queried in order after the local catalog
	registryLog := log.WithComponent("registry")
	providers := registry.NewChain(registryLog,
		registry.NewOpenFoodFactsProvider(cfg.Registry.OpenFoodFactsURL, cfg.Registry.Timeout, registryLog),
		registry.NewUPCItemDBProvider(cfg.Registry.UPCItemDBURL, cfg.Registry.UPCItemDBKey, cfg.Registry.Timeout, registryLog),
	)

	// Initialize services
	lookupService := service.NewLookupService(catalogRepo, inventoryRepo, providers, publisher, log)
	sessionService := service.NewSessionService(sessionRepo, inventoryRepo, lookupService, publisher, log)
	reorderService := service.NewReorderService(inventoryRepo, log)
	ratingService := service.NewVendorRatingService(vendorRepo, log)

	// Initialize handlers
	lookupHandler := handler.NewLookupHandler(lookupService, log)
	sessionHandler := handler.NewSessionHandler(sessionService, log)
	reorderHandler := handler.NewReorderHandler(reorderService, log)
	vendorHandler := handler.NewVendorHandler(ratingService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.TenantMiddleware)   // Extract tenant context from headers
	r.Use(httputil.IdentityMiddleware) // Extract caller identity from headers

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "counting-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/counting", func(r chi.Router) {
		r.With(httputil.RequirePermission("counting.read")).Get("/lookup", lookupHandler.Lookup)
		r.With(httputil.RequirePermission("counting.read")).Post("/lookup/batch", lookupHandler.LookupBatch)

		r.With(httputil.RequirePermission("counting.scan")).Post("/sessions", sessionHandler.Dispatch)
		r.With(httputil.RequirePermission("counting.read")).Get("/sessions", sessionHandler.Get)

		r.With(httputil.RequirePermission("counting.read")).Get("/reorder/suggestions", reorderHandler.Suggestions)
		r.With(httputil.RequirePermission("counting.read")).Get("/vendors/{id}/rating", vendorHandler.Rating)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
