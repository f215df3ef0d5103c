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
	"github.com/go-chi/cors"
	"github.com/tapline/tapline-backend/internal/gateway"
	"github.com/tapline/tapline-backend/pkg/config"
	"github.com/tapline/tapline-backend/pkg/httputil"
	"github.com/tapline/tapline-backend/pkg/logger"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("api-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("api-gateway", cfg.Server.Environment)
	log.Info().Msg("starting API Gateway")

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS - supports subdomain-based multi-tenancy
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Allow localhost variations (development)
			// Matches: http://localhost:3000, http://harbor-taproom.localhost:3000, etc.
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.localhost:3000 subdomains for development
			if len(origin) > 21 && origin[len(origin)-15:] == ".localhost:3000" {
				return true
			}
			// Allow *.tapline.io for production
			if len(origin) > 11 && origin[len(origin)-11:] == ".tapline.io" {
				return true
			}
			// Allow tapline.io itself
			if origin == "https://tapline.io" || origin == "http://tapline.io" {
				return true
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create proxy handler
	proxy := gateway.NewProxy(cfg, log)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "api-gateway",
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", proxy.ForwardToAuth)
			r.Post("/refresh", proxy.ForwardToAuth)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(proxy.AuthMiddleware)
				r.Post("/logout", proxy.ForwardToAuth)
				r.Get("/me", proxy.ForwardToAuth)
			})
		})

		// Counting routes (protected)
		r.Group(func(r chi.Router) {
			r.Use(proxy.AuthMiddleware)

			r.Route("/counting", func(r chi.Router) {
				r.Get("/lookup", proxy.ForwardToCounting)
				r.Post("/lookup/batch", proxy.ForwardToCounting)

				r.Get("/sessions", proxy.ForwardToCounting)
				r.Post("/sessions", proxy.ForwardToCounting)

				r.Get("/reorder/suggestions", proxy.ForwardToCounting)
				r.Get("/vendors/{id}/rating", proxy.ForwardToCounting)
			})
		})
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
