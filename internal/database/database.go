package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/config"
)

// DB wraps the database connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// schema holds the single table backing the job store. source_file_id is
// unique so each file has exactly one live job.
const schema = `
CREATE TABLE IF NOT EXISTS processing_jobs (
	id                 TEXT PRIMARY KEY,
	source_file_id     TEXT NOT NULL UNIQUE,
	source_path        TEXT NOT NULL,
	stem               TEXT NOT NULL,
	status             TEXT NOT NULL,
	run_id             TEXT NOT NULL DEFAULT '',
	renditions         JSONB NOT NULL DEFAULT '[]'::jsonb,
	scrub              JSONB,
	sprite_metadata    JSONB,
	duration_seconds   INTEGER,
	frame_rate         INTEGER,
	error_message      TEXT,
	source_unavailable BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at         TIMESTAMPTZ,
	processed_at       TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

ALTER TABLE processing_jobs ADD COLUMN IF NOT EXISTS run_id TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON processing_jobs (status);
`

// New creates a new database connection
func New(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxConns, cfg.MinConns,
	)
	return Connect(dsn)
}

// Connect opens a pool from a DSN or URL and pings it
func Connect(dsn string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// EnsureSchema creates the job table if it does not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks if the database is healthy
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
