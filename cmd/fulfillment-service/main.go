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
	"github.com/redis/go-redis/v9"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/allocation"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/consumers"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/events"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/handler"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/service"
	"github.com/bakeflow/bakeflow-backend/pkg/config"
	"github.com/bakeflow/bakeflow-backend/pkg/database"
	"github.com/bakeflow/bakeflow-backend/pkg/httputil"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("fulfillment-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("fulfillment-service", cfg.Server.Environment)
	log.Info().Msg("starting Fulfillment Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis (allocation session store)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewFulfillmentEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	lpRepo := repository.NewLicensePlateRepository(db)
	demandRepo := repository.NewDemandRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	shipmentRepo := repository.NewShipmentRepository(db)
	workOrderRepo := repository.NewWorkOrderRepository(db)

	// Initialize allocation session store
	sessionStore := allocation.NewStore(rdb, cfg.Fulfillment.SessionTTL)

	// Initialize services
	allocationService := service.NewAllocationService(lpRepo, demandRepo, reservationRepo, sessionStore, publisher, &cfg.Fulfillment, log)
	shipmentService := service.NewShipmentService(shipmentRepo, demandRepo, lpRepo, reservationRepo, publisher, &cfg.Fulfillment, log)
	outputService := service.NewOutputService(workOrderRepo, demandRepo, reservationRepo, lpRepo, publisher, log)

	// Initialize handlers
	allocationHandler := handler.NewAllocationHandler(allocationService, log)
	shipmentHandler := handler.NewShipmentHandler(shipmentService, log)
	outputHandler := handler.NewOutputHandler(outputService, log)

	// Start quality event consumer (keeps LP QA statuses in sync)
	qualityConsumer, err := consumers.NewQualityEventConsumer(rmq, lpRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create quality event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := qualityConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start quality event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.localhost:3000 subdomains for development
			if len(origin) > 15 && origin[len(origin)-15:] == ".localhost:3000" {
				return true
			}
			// Allow *.bakeflow.de for production
			if len(origin) > 12 && origin[len(origin)-12:] == ".bakeflow.de" {
				return true
			}
			return origin == "https://bakeflow.de"
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Every route except /health requires the gateway-issued token
	r.Use(httputil.Auth(&cfg.JWT))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "fulfillment-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/fulfillment", func(r chi.Router) {
		// Candidate ranking
		r.Get("/products/{id}/candidates", allocationHandler.Candidates)

		// Demand lines
		r.Post("/demand-lines/{id}/allocation", allocationHandler.Plan)
		r.Post("/demand-lines/{id}/skip", shipmentHandler.SkipDemandLine)

		// Allocation sessions
		r.Route("/allocation-sessions/{id}", func(r chi.Router) {
			r.Get("/", allocationHandler.GetSession)
			r.Post("/toggle", allocationHandler.Toggle)
			r.Post("/override", allocationHandler.Override)
			r.Post("/strategy", allocationHandler.Strategy)
			r.Post("/refresh", allocationHandler.Refresh)
			r.Post("/commit", allocationHandler.Commit)
			r.Delete("/", allocationHandler.Cancel)
		})

		// Reservations
		r.Post("/reservations/{id}/release", allocationHandler.Release)

		// Shipments
		r.Post("/orders/{id}/shipments", shipmentHandler.Create)
		r.Route("/shipments/{id}", func(r chi.Router) {
			r.Get("/", shipmentHandler.Get)
			r.Post("/boxes", shipmentHandler.AddBox)
			r.Put("/boxes/{boxID}", shipmentHandler.UpdateBox)
			r.Post("/boxes/{boxID}/contents", shipmentHandler.AddBoxContent)
			r.Post("/pack", shipmentHandler.Pack)
			r.Post("/manifest", shipmentHandler.Manifest)
			r.Post("/ship", shipmentHandler.Ship)
			r.Post("/deliver", shipmentHandler.Deliver)
			r.Put("/carrier", shipmentHandler.SetCarrier)
			r.Get("/tracking", shipmentHandler.Tracking)
		})

		// Production output
		r.Post("/work-orders/{id}/outputs", outputHandler.RegisterOutput)
		r.Post("/work-orders/{id}/by-products/next", outputHandler.NextByProduct)
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

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
