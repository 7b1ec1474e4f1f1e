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
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/adapters"
	"github.com/eventfuse/eventfuse/internal/api"
	"github.com/eventfuse/eventfuse/internal/classifier"
	"github.com/eventfuse/eventfuse/internal/collector"
	"github.com/eventfuse/eventfuse/internal/database"
	"github.com/eventfuse/eventfuse/internal/delivery"
	"github.com/eventfuse/eventfuse/internal/dispatcher"
	"github.com/eventfuse/eventfuse/internal/fusion"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/metrics"
	middlewares "github.com/eventfuse/eventfuse/internal/middleware"
	"github.com/eventfuse/eventfuse/internal/queue"
	"github.com/eventfuse/eventfuse/internal/secrets"
	"github.com/eventfuse/eventfuse/internal/seed"
	"github.com/eventfuse/eventfuse/internal/store"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting EventFuse application",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer db.Close(ctx)

	// Initialize store
	eventStore := store.New(db)

	// Queues: redis when configured, in-memory otherwise
	var taskQueue queue.TaskQueue
	var dlq queue.DLQ
	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}
	if redisClient != nil {
		taskQueue = queue.NewRedisTaskQueue(redisClient)
		dlq = queue.NewRedisDLQ(redisClient)
		defer redisClient.Close()
		logger.Info("Using redis queues")
	} else {
		taskQueue = queue.NewInMemoryTaskQueue()
		dlq = queue.NewInMemoryDLQ()
		logger.Warn("REDIS_URL not set, using in-memory queues")
	}

	// Seed sources and rules if a seed file is configured
	if cfg.SeedFile != "" {
		seedFile, err := seed.Load(cfg.SeedFile)
		if err != nil {
			logger.Fatal("Failed to load seed file", "error", err, "path", cfg.SeedFile)
		}
		if err := seed.Apply(ctx, eventStore, seedFile); err != nil {
			logger.Fatal("Failed to apply seed file", "error", err)
		}
	}

	// Shared outbound HTTP client
	httpClient := resty.New().
		SetTimeout(cfg.Collector.FetchTimeout).
		SetHeader("User-Agent", "eventfuse/"+Version)

	// Platform adapters
	registry := adapters.NewRegistry(
		adapters.NewRSSAdapter(httpClient),
		adapters.NewNewsRSSAdapter(httpClient),
		adapters.NewFacebookAdapter(httpClient),
		adapters.NewInstagramAdapter(httpClient),
		adapters.NewThreadsAdapter(httpClient),
		adapters.NewMarketAdapter(httpClient),
	)
	logger.Info("Adapters registered", "platforms", registry.Platforms())

	// Enrichment classifier (lexicon fallback when no endpoint is set)
	cls := classifier.New(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, httpClient)

	// Fusion engine
	engine := fusion.NewEngine(cfg.Fusion.Window)

	// Delivery with all channel senders
	secretCache := secrets.NewCache(secrets.EnvProvider{}, cfg.Secrets.CacheTTL)
	deliverer := delivery.New(eventStore, dlq, cfg.Delivery,
		delivery.NewTelegramSender(httpClient, secretCache, ""),
		delivery.NewLineSender(httpClient, secretCache, ""),
		delivery.NewSlackSender(httpClient, secretCache),
		delivery.NewWebhookSender(httpClient),
		delivery.NewEmailSender(httpClient, secretCache, os.Getenv("EMAIL_RELAY_URL")),
	)

	// Collector worker pool
	coll := collector.New(
		eventStore,
		taskQueue,
		registry,
		engine,
		deliverer,
		cls,
		cfg.Collector,
		cfg.Dispatcher.TaskQueue,
		cfg.Fusion.RawAlertThreshold,
	)
	go func() {
		if err := coll.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Collector error", "error", err)
		}
	}()

	// Dispatcher fan-out on a fixed interval
	disp := dispatcher.New(eventStore, taskQueue, cfg.Dispatcher.TaskQueue)
	go runDispatchLoop(ctx, disp, cfg.Dispatcher)

	// Setup HTTP server
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Logging)
	r.Use(middlewares.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	r.Use(middlewares.RateLimit(cfg.Server.RateLimitPerMinute))
	r.Use(middlewares.CORS(cfg.Server.CORSAllowedOrigins))
	r.Use(middlewares.Security)

	// Initialize API handlers
	apiHandler := api.NewHandler(eventStore, dlq, disp, cfg.Admin.TokenHash, Version, BuildTime, GitCommit)
	apiHandler.RegisterRoutes(r)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

// runDispatchLoop runs one fan-out cycle per interval. Each cycle gets its
// own deadline so a slow store cannot let cycles pile up.
func runDispatchLoop(ctx context.Context, disp *dispatcher.Dispatcher, cfg config.DispatcherConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycleCtx, cycleCancel := context.WithTimeout(ctx, cfg.CycleTimeout)
			// Run logs the cycle summary itself
			_, err := disp.Run(cycleCtx)
			cycleCancel()
			if err != nil {
				logger.Error("Dispatch cycle failed", "error", err)
			}
		}
	}
}

func startMetricsServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", "address", addr, "path", path)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server failed", "error", err)
	}
}
