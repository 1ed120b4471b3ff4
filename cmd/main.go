/**
 * @description
 * This is the main entry point for the settlement service. It is responsible
 * for initializing all components: configuration, database connection, the
 * fiat and chain gateway clients, the RabbitMQ producer, the lifecycle
 * engine, the safety service, the multi-sig gate, the cron scheduler and the
 * internal HTTP API. It wires everything together and starts the service.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and the HTTP server.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/chainclient, pkg/junoclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kustodia/settlement-service/internal/api"
	"github.com/kustodia/settlement-service/internal/app"
	"github.com/kustodia/settlement-service/internal/config"
	"github.com/kustodia/settlement-service/internal/store"
	"github.com/kustodia/settlement-service/pkg/chainclient"
	"github.com/kustodia/settlement-service/pkg/junoclient"
	"github.com/kustodia/settlement-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	// Missing credentials must abort the whole scheduler, not surface later
	// as per-job failures.
	if err := cfg.Validate(); err != nil {
		logger.Error("fatal configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Initialize the RabbitMQ producer to publish settlement events. A broker
	// outage degrades to log-only operation; it never blocks settlement.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		logger.Info("rabbitmq producer connected")
	}

	// Initialize external gateway clients.
	junoClient := junoclient.NewClient(cfg.JunoAPIBaseURL, cfg.JunoAPIKey, cfg.JunoAPISecret)
	chainClient := chainclient.NewClient(cfg.ChainAPIBaseURL, cfg.ChainAPIKey)

	// Initialize the data access layer and the core services.
	repository := store.NewPostgresRepository(dbpool)
	gate := app.NewMultiSigGate(repository, producer, logger, cfg)
	engine := app.NewEngine(repository, chainClient, junoClient, producer, gate, logger, cfg)
	safety := app.NewSafetyService(repository, chainClient, producer, logger, cfg)

	// Start the cron scheduler in the background.
	jobs := app.NewJobs(engine, safety, gate, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	logger.Info("settlement scheduler started")

	// Set up the internal HTTP API.
	handlers := api.NewSettlementHandlers(gate, repository)
	router := chi.NewRouter()
	router.Mount("/settlement", api.SettlementRoutes(handlers, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}
	go func() {
		logger.Info("internal api listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for in-flight jobs to finish
	logger.Info("settlement service stopped gracefully")
}
