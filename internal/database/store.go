package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

var (
	// ErrJobNotFound is returned when no processing job exists for a file
	ErrJobNotFound = errors.New("processing job not found")
	// ErrJobInProgress is returned when a reset targets a job that is processing
	ErrJobInProgress = errors.New("processing job is in progress")
	// ErrRunSuperseded is returned when a write carries a run id that is no
	// longer the job's current run
	ErrRunSuperseded = errors.New("processing run superseded")
)

// JobStore persists the single live processing job of each source file.
// Every write replaces the whole record.
type JobStore interface {
	GetJob(ctx context.Context, fileID string) (*models.ProcessingJob, error)
	// ResetJob creates the job in pending state, or resets an existing one
	// to pending under a new run id and drops all of its results. A job
	// that is processing is left alone and ErrJobInProgress is returned.
	ResetJob(ctx context.Context, fileID, sourcePath, stem string) (*models.ProcessingJob, error)
	// UpdateJob replaces the record only while job.RunID is still the
	// stored run. Writes from an older run get ErrRunSuperseded.
	UpdateJob(ctx context.Context, job *models.ProcessingJob) error
	MarkArtifactUnavailable(ctx context.Context, fileID string, ref ArtifactRef) error
	DeleteJob(ctx context.Context, fileID string) error
	Health(ctx context.Context) error
}

// ArtifactKind identifies which output of a job a delivery request targets
type ArtifactKind string

// ArtifactKind constants
const (
	ArtifactOriginal    ArtifactKind = "original"
	ArtifactRendition   ArtifactKind = "rendition"
	ArtifactScrub       ArtifactKind = "scrub"
	ArtifactSpriteSheet ArtifactKind = "sprite_sheet"
)

// ArtifactRef points at one artifact of a job
type ArtifactRef struct {
	Kind    ArtifactKind
	Quality string // rendition quality name
	DPI     int    // sprite density
	Sheet   int    // sprite sheet index
}

func (r ArtifactRef) String() string {
	switch r.Kind {
	case ArtifactRendition:
		return fmt.Sprintf("%s:%s", r.Kind, r.Quality)
	case ArtifactSpriteSheet:
		return fmt.Sprintf("%s:%dx:%d", r.Kind, r.DPI, r.Sheet)
	default:
		return string(r.Kind)
	}
}

// applyUnavailable flags the referenced artifact on the job. It reports
// whether anything changed so stores can skip a no-op write.
func applyUnavailable(job *models.ProcessingJob, ref ArtifactRef) bool {
	switch ref.Kind {
	case ArtifactOriginal:
		if job.SourceUnavailable {
			return false
		}
		job.SourceUnavailable = true
		return true

	case ArtifactRendition:
		r, ok := job.Rendition(ref.Quality)
		if !ok || r.Unavailable {
			return false
		}
		r.Unavailable = true
		return true

	case ArtifactScrub:
		if job.Scrub == nil || job.Scrub.Unavailable {
			return false
		}
		job.Scrub.Unavailable = true
		return true

	case ArtifactSpriteSheet:
		if job.SpriteMetadata == nil {
			return false
		}
		v, ok := job.SpriteMetadata.Variant(ref.DPI)
		if !ok {
			return false
		}
		for i := range v.Sheets {
			if v.Sheets[i].SheetIndex == ref.Sheet && !v.Sheets[i].Unavailable {
				v.Sheets[i].Unavailable = true
				return true
			}
		}
	}
	return false
}
