package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// Repository is the Postgres JobStore
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const jobColumns = `
	id, source_file_id, source_path, stem, status, run_id, renditions, scrub, sprite_metadata,
	duration_seconds, frame_rate, error_message, source_unavailable,
	created_at, started_at, processed_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ProcessingJob, error) {
	var (
		job            models.ProcessingJob
		scrub, sprites []byte
	)

	err := row.Scan(
		&job.ID, &job.SourceFileID, &job.SourcePath, &job.Stem, &job.Status, &job.RunID,
		&job.Renditions, &scrub, &sprites,
		&job.DurationSeconds, &job.FrameRate, &job.ErrorMessage, &job.SourceUnavailable,
		&job.CreatedAt, &job.StartedAt, &job.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(scrub) > 0 {
		job.Scrub = &models.ScrubRendition{}
		if err := json.Unmarshal(scrub, job.Scrub); err != nil {
			return nil, fmt.Errorf("failed to decode scrub: %w", err)
		}
	}
	if len(sprites) > 0 {
		job.SpriteMetadata = &models.SpriteMetadata{}
		if err := json.Unmarshal(sprites, job.SpriteMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode sprite metadata: %w", err)
		}
	}
	if job.Renditions == nil {
		job.Renditions = models.Renditions{}
	}

	return &job, nil
}

// nullableJSON encodes v for a JSONB column, mapping nil pointers to NULL
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GetJob retrieves the job of a source file
func (r *Repository) GetJob(ctx context.Context, fileID string) (*models.ProcessingJob, error) {
	query := `SELECT` + jobColumns + ` FROM processing_jobs WHERE source_file_id = $1`

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ResetJob inserts a pending job or resets the existing one in place.
// The job id and created_at survive a reset. A processing row is not
// touched, so the upsert returns no row and ErrJobInProgress is reported.
func (r *Repository) ResetJob(ctx context.Context, fileID, sourcePath, stem string) (*models.ProcessingJob, error) {
	query := `
		INSERT INTO processing_jobs (id, source_file_id, source_path, stem, status, run_id, renditions)
		VALUES ($1, $2, $3, $4, $5, $6, '[]'::jsonb)
		ON CONFLICT (source_file_id) DO UPDATE SET
			source_path = EXCLUDED.source_path,
			stem = EXCLUDED.stem,
			status = EXCLUDED.status,
			run_id = EXCLUDED.run_id,
			renditions = '[]'::jsonb,
			scrub = NULL,
			sprite_metadata = NULL,
			duration_seconds = NULL,
			frame_rate = NULL,
			error_message = NULL,
			source_unavailable = FALSE,
			started_at = NULL,
			processed_at = NULL,
			updated_at = NOW()
		WHERE processing_jobs.status <> $7
		RETURNING` + jobColumns

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), fileID, sourcePath, stem, models.JobStatusPending,
		uuid.New().String(), models.JobStatusProcessing,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}

	return job, nil
}

// UpdateJob replaces every mutable column of the job while its run is current
func (r *Repository) UpdateJob(ctx context.Context, job *models.ProcessingJob) error {
	return updateJob(ctx, r.db.Pool, job)
}

// querier is satisfied by the pool and by transactions
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updateJob(ctx context.Context, q querier, job *models.ProcessingJob) error {
	scrub, err := nullableJSON(job.Scrub)
	if err != nil {
		return fmt.Errorf("failed to encode scrub: %w", err)
	}
	sprites, err := nullableJSON(job.SpriteMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode sprite metadata: %w", err)
	}

	query := `
		UPDATE processing_jobs
		SET source_path = $2, stem = $3, status = $4, renditions = $5, scrub = $6,
		    sprite_metadata = $7, duration_seconds = $8, frame_rate = $9, error_message = $10,
		    source_unavailable = $11, started_at = $12, processed_at = $13, updated_at = NOW()
		WHERE source_file_id = $1 AND run_id = $14
	`

	tag, err := q.Exec(ctx, query,
		job.SourceFileID, job.SourcePath, job.Stem, job.Status, job.Renditions, scrub,
		sprites, job.DurationSeconds, job.FrameRate, job.ErrorMessage,
		job.SourceUnavailable, job.StartedAt, job.ProcessedAt, job.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processing_jobs WHERE source_file_id = $1)`, job.SourceFileID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return ErrJobNotFound
	}
	return ErrRunSuperseded
}

// MarkArtifactUnavailable flags a missing artifact on the stored record.
// The row is locked so a concurrent completion write is not lost.
func (r *Repository) MarkArtifactUnavailable(ctx context.Context, fileID string, ref ArtifactRef) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT` + jobColumns + ` FROM processing_jobs WHERE source_file_id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRow(ctx, query, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock job: %w", err)
	}

	if !applyUnavailable(job, ref) {
		return nil
	}
	if err := updateJob(ctx, tx, job); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DeleteJob removes the job of a source file
func (r *Repository) DeleteJob(ctx context.Context, fileID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM processing_jobs WHERE source_file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Health checks the underlying pool
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}
