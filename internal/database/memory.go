package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// MemoryStore is an in-process JobStore for single-node deployments and tests
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.ProcessingJob
	now  func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.ProcessingJob),
		now:  time.Now,
	}
}

// GetJob returns a copy of the stored job
func (s *MemoryStore) GetJob(ctx context.Context, fileID string) (*models.ProcessingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[fileID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// ResetJob creates a pending job or resets the existing one in place
func (s *MemoryStore) ResetJob(ctx context.Context, fileID, sourcePath, stem string) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[fileID]
	if !ok {
		job = &models.ProcessingJob{
			ID:           uuid.New().String(),
			SourceFileID: fileID,
			CreatedAt:    s.now(),
		}
		s.jobs[fileID] = job
	} else if job.Status == models.JobStatusProcessing {
		return nil, ErrJobInProgress
	}
	job.Reset(sourcePath, stem, uuid.New().String())

	return job.Clone(), nil
}

// UpdateJob replaces the stored record if the job's run is still current
func (s *MemoryStore) UpdateJob(ctx context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.SourceFileID]
	if !ok {
		return ErrJobNotFound
	}
	if stored.RunID != job.RunID {
		return ErrRunSuperseded
	}
	s.jobs[job.SourceFileID] = job.Clone()
	return nil
}

// MarkArtifactUnavailable flags a missing artifact on the stored record
func (s *MemoryStore) MarkArtifactUnavailable(ctx context.Context, fileID string, ref ArtifactRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[fileID]
	if !ok {
		return ErrJobNotFound
	}
	applyUnavailable(job, ref)
	return nil
}

// DeleteJob removes the job of a source file
func (s *MemoryStore) DeleteJob(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[fileID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, fileID)
	return nil
}

// Health always succeeds
func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}
