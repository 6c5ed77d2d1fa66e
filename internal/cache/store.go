package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/database"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// CachedJobStore puts a Redis read-through cache in front of a JobStore.
// Writes go to the store first and then evict the cached copy. Cache
// failures are logged and never fail the call.
type CachedJobStore struct {
	store  database.JobStore
	cache  *Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedJobStore wraps store with cache
func NewCachedJobStore(store database.JobStore, cache *Cache, ttl time.Duration, logger *logging.Logger) *CachedJobStore {
	return &CachedJobStore{store: store, cache: cache, ttl: ttl, logger: logger}
}

// GetJob serves from cache when possible. On a miss the store is read
// and the result cached unless a write for the file raced the read.
func (s *CachedJobStore) GetJob(ctx context.Context, fileID string) (*models.ProcessingJob, error) {
	job, err := s.cache.GetJob(ctx, fileID)
	if err != nil {
		s.logger.WithFileID(fileID).ErrorWithErr("Job cache read failed", err)
	}
	if job != nil {
		return job, nil
	}

	var loadErr error
	job, err = s.cache.FillJob(ctx, fileID, s.ttl, func(ctx context.Context) (*models.ProcessingJob, error) {
		job, err := s.store.GetJob(ctx, fileID)
		loadErr = err
		return job, err
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		s.logger.WithFileID(fileID).ErrorWithErr("Job cache write failed", err)
	}
	if job == nil {
		// Redis failed before the store was read
		return s.store.GetJob(ctx, fileID)
	}
	return job, nil
}

// Consistent returns a view that reads straight from the backing store
// and still invalidates the cache on writes. Code that decides state
// transitions uses it so it never acts on a cached record.
func (s *CachedJobStore) Consistent() database.JobStore {
	return consistentJobStore{s}
}

type consistentJobStore struct {
	*CachedJobStore
}

func (s consistentJobStore) GetJob(ctx context.Context, fileID string) (*models.ProcessingJob, error) {
	return s.store.GetJob(ctx, fileID)
}

// ResetJob resets in the store and evicts the cached record
func (s *CachedJobStore) ResetJob(ctx context.Context, fileID, sourcePath, stem string) (*models.ProcessingJob, error) {
	job, err := s.store.ResetJob(ctx, fileID, sourcePath, stem)
	s.evict(ctx, fileID)
	return job, err
}

// UpdateJob writes through and evicts the cached record
func (s *CachedJobStore) UpdateJob(ctx context.Context, job *models.ProcessingJob) error {
	err := s.store.UpdateJob(ctx, job)
	s.evict(ctx, job.SourceFileID)
	return err
}

// MarkArtifactUnavailable writes through and evicts the cached record
func (s *CachedJobStore) MarkArtifactUnavailable(ctx context.Context, fileID string, ref database.ArtifactRef) error {
	err := s.store.MarkArtifactUnavailable(ctx, fileID, ref)
	s.evict(ctx, fileID)
	return err
}

// DeleteJob deletes from the store and evicts the cached record
func (s *CachedJobStore) DeleteJob(ctx context.Context, fileID string) error {
	err := s.store.DeleteJob(ctx, fileID)
	s.evict(ctx, fileID)
	return err
}

// Health checks both the store and Redis
func (s *CachedJobStore) Health(ctx context.Context) error {
	if err := s.store.Health(ctx); err != nil {
		return err
	}
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (s *CachedJobStore) evict(ctx context.Context, fileID string) {
	if err := s.cache.InvalidateJob(ctx, fileID); err != nil {
		s.logger.WithFileID(fileID).ErrorWithErr("Job cache eviction failed", err)
	}
}
