package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/app"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/config"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/processing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/queue"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/tracing"
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

	closer, err := tracing.InitTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName+"-worker", cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.NewStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize job store: %v", err)
	}
	defer stores.Close()

	orchestrator, err := app.NewOrchestrator(ctx, cfg, stores.Processing, app.NewFFmpeg(cfg), logger)
	if err != nil {
		logger.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	monitoring.NewMonitor(q, stores.HealthChecks(), 15*time.Second, logger).Start(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, stores.Jobs.Health, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Task handler; the orchestrator records failures on the job itself
	handler := func(ctx context.Context, task processing.Task) error {
		logger.WithFileID(task.FileID).Info("Processing task")
		return orchestrator.Process(ctx, task)
	}

	depth, err := q.GetQueueDepth()
	if err != nil {
		logger.ErrorWithErr("Failed to inspect queue", err)
	}

	// Start consuming tasks
	logger.Infof("Worker started, %d tasks waiting", depth)
	done, err := q.Consume(ctx, runtime.NumCPU(), handler)
	if err != nil {
		logger.Fatalf("Failed to consume tasks: %v", err)
	}

	// Wait for shutdown
	<-done
	logger.Info("Worker stopped")
}
