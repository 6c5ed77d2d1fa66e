package processing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/database"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/storage"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

var (
	// ErrNotVideo is returned when the source does not look like a video
	ErrNotVideo = errors.New("source is not a video file")
	// ErrDispatch wraps failures to hand a task off
	ErrDispatch = errors.New("failed to dispatch task")
)

// Trigger resets the job of a file to pending and hands the task to the
// dispatcher. It never waits for processing. A job that is processing is
// not reset and database.ErrJobInProgress is returned. When the hand-off
// fails the job is recorded as failed and returned with an ErrDispatch error.
func Trigger(ctx context.Context, store database.JobStore, dispatcher Dispatcher, task Task, logger *logging.Logger) (*models.ProcessingJob, error) {
	if task.FileID == "" || task.SourcePath == "" {
		return nil, errors.New("file id and source path are required")
	}
	if !storage.IsVideoFile(task.SourcePath) {
		return nil, fmt.Errorf("%w: %s", ErrNotVideo, filepath.Base(task.SourcePath))
	}
	if task.Stem == "" {
		task.Stem = StemOf(task.SourcePath)
	}

	job, err := store.ResetJob(ctx, task.FileID, task.SourcePath, task.Stem)
	if err != nil {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}
	task.RunID = job.RunID
	metrics.RecordJobTriggered()

	if err := dispatcher.Dispatch(ctx, task); err != nil {
		dispatchErr := fmt.Errorf("%w: %v", ErrDispatch, err)

		msg := dispatchErr.Error()
		if terr := job.Transition(models.JobStatusFailed); terr == nil {
			job.ErrorMessage = &msg
			if uerr := store.UpdateJob(ctx, job); uerr != nil {
				logger.WithFileID(task.FileID).ErrorWithErr("Failed to record dispatch failure", uerr)
			}
		}
		return job, dispatchErr
	}

	logger.WithFileID(task.FileID).WithJobID(job.ID).Info("Processing job dispatched")
	return job, nil
}

// StemOf derives an output file stem from a source path
func StemOf(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
