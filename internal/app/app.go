// Package app assembles the components shared by the API server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/cache"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/config"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/database"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/processing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/storage"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/webhook"
)

// Stores holds the job store and whatever backs it
type Stores struct {
	Jobs database.JobStore
	// Processing never serves reads from the cache. The orchestrator uses it.
	Processing database.JobStore
	Cache      *cache.Cache // nil unless Redis is enabled

	closers []func()
}

// Close releases every connection in reverse order of creation
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// NewStores opens the configured job store, wrapped with the Redis
// read-through cache when enabled.
func NewStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Stores, error) {
	s := &Stores{}

	switch cfg.Database.Driver {
	case "memory":
		s.Jobs = database.NewMemoryStore()
		logger.Warn("Using in-memory job store, jobs are lost on restart")

	default:
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		s.Jobs = database.NewRepository(db)
	}

	if cfg.Redis.Enabled {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { c.Close() })
		s.Cache = c
		cached := cache.NewCachedJobStore(s.Jobs, c, cfg.Redis.JobTTL, logger)
		s.Jobs = cached
		s.Processing = cached.Consistent()
		return s, nil
	}

	s.Processing = s.Jobs
	return s, nil
}

// HealthChecks lists the dependencies the monitor samples
func (s *Stores) HealthChecks() map[string]monitoring.HealthCheck {
	checks := map[string]monitoring.HealthCheck{
		"job_store": s.Jobs.Health,
	}
	if s.Cache != nil {
		checks["redis"] = s.Cache.Ping
	}
	return checks
}

// SpriteConfig converts the sprite section into the transcoder layout
func SpriteConfig(cfg config.SpritesConfig) transcoder.SpriteConfig {
	variants := make([]transcoder.SpriteVariantConfig, 0, len(cfg.Variants))
	for _, v := range cfg.Variants {
		variants = append(variants, transcoder.SpriteVariantConfig{
			DPI:     v.DPI,
			Width:   v.Width,
			Height:  v.Height,
			Quality: v.Quality,
		})
	}

	return transcoder.SpriteConfig{
		IntervalSeconds: cfg.Interval,
		MaxThumbnails:   cfg.MaxThumbnails,
		MaxPerSheet:     cfg.MaxPerSheet,
		Columns:         cfg.Columns,
		Variants:        variants,
	}
}

// NewFFmpeg builds the media processor from config
func NewFFmpeg(cfg *config.Config, opts ...transcoder.Option) *transcoder.FFmpeg {
	opts = append([]transcoder.Option{transcoder.WithSpriteConfig(SpriteConfig(cfg.Sprites))}, opts...)
	return transcoder.NewFFmpeg(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, opts...)
}

// NewOrchestrator wires the orchestrator with the optional archive and
// webhook hooks.
func NewOrchestrator(ctx context.Context, cfg *config.Config, store database.JobStore, media processing.MediaProcessor, logger *logging.Logger) (*processing.Orchestrator, error) {
	opts := []processing.Option{
		processing.WithJobTimeout(cfg.Processing.JobTimeout),
	}

	if cfg.Storage.Enabled {
		stor, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		opts = append(opts, processing.WithArchiver(storage.NewArchiver(stor, stor.Bucket(), logger)))
	}

	if notifier := webhook.NewService(cfg.Webhook.URLs, cfg.Webhook.Secret, logger); notifier.Enabled() {
		opts = append(opts, processing.WithNotifier(notifier))
	}

	layout := transcoder.ArtifactLayout{Root: cfg.Processing.OutputRoot}
	return processing.NewOrchestrator(store, media, layout, cfg.Processing.Profiles, logger, opts...), nil
}
