package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/app"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/config"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/delivery"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/middleware"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/processing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/queue"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/tracing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	closer, err := tracing.InitTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.NewStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize job store: %v", err)
	}
	defer stores.Close()

	// Dispatcher: in-process goroutines or the RabbitMQ worker pool
	var (
		dispatcher processing.Dispatcher
		local      *processing.LocalDispatcher
		depth      monitoring.QueueProvider
	)
	switch cfg.Queue.Mode {
	case "rabbitmq":
		q, err := queue.New(cfg.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		dispatcher = q
		depth = q
		logger.Info("Dispatching jobs to RabbitMQ")

	default:
		orchestrator, err := app.NewOrchestrator(ctx, cfg, stores.Processing, app.NewFFmpeg(cfg), logger)
		if err != nil {
			logger.Fatalf("Failed to initialize orchestrator: %v", err)
		}
		local = processing.NewLocalDispatcher(orchestrator, logger)
		dispatcher = local
		logger.Info("Processing jobs in-process")
	}

	// Rate limiting counters live in Redis when it is available
	var counters middleware.CounterStore
	if stores.Cache != nil {
		counters = stores.Cache
	} else {
		memCounters := middleware.NewMemoryCounterStore()
		go memCounters.RunCleanup(ctx, time.Minute, 10*cfg.Delivery.RateWindow)
		counters = memCounters
	}

	layout := transcoder.ArtifactLayout{Root: cfg.Processing.OutputRoot}
	handler := delivery.NewHandler(stores.Jobs, dispatcher, layout, cfg.Processing.Profiles, cfg.Delivery.CacheMaxAge, logger)
	auth := middleware.NewServiceAuth(cfg.Auth.JWTSecret)
	if !auth.Enabled() {
		logger.Warn("Service token check disabled, trigger routes are open")
	}

	router := setupRouter(handler, stores.Jobs.Health, auth, counters, cfg, logger)

	monitoring.NewMonitor(depth, stores.HealthChecks(), 15*time.Second, logger).Start(ctx)

	// Start metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, stores.Jobs.Health, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Metrics server forced to shutdown", err)
		}
	}
	if local != nil {
		logger.Info("Waiting for in-flight jobs...")
		if err := local.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("In-flight jobs did not finish before shutdown", err)
		}
	}

	logger.Info("Server stopped")
}

func setupRouter(handler *delivery.Handler, health metrics.HealthFunc, auth *middleware.ServiceAuth, counters middleware.CounterStore, cfg *config.Config, logger *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if err := health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(counters, int64(cfg.Delivery.RateLimit), cfg.Delivery.RateWindow, logger))
	handler.RegisterRoutes(v1, auth.Middleware())

	return router
}
