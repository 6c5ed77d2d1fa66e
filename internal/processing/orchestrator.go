package processing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/database"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/tracing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// Task is one request to (re)build the artifacts of a source file.
// RunID ties the task to the reset that created it.
type Task struct {
	FileID     string                  `json:"file_id"`
	RunID      string                  `json:"run_id,omitempty"`
	SourcePath string                  `json:"source_path"`
	Stem       string                  `json:"stem"`
	Profiles   []models.QualityProfile `json:"profiles,omitempty"`
}

// MediaProcessor produces the artifacts of a job. *transcoder.FFmpeg
// implements it.
type MediaProcessor interface {
	Probe(ctx context.Context, inputPath string) (*models.SourceMedia, error)
	Encode(ctx context.Context, inputPath, outputDir, stem string, profile models.QualityProfile, src *models.SourceMedia) (*models.Rendition, error)
	BuildScrub(ctx context.Context, inputPath, outputDir, stem string) (*models.ScrubRendition, error)
	BuildSprites(ctx context.Context, inputPath, outputDir, stem string, duration float64) (*models.SpriteMetadata, error)
}

// Archiver copies finished artifacts somewhere durable
type Archiver interface {
	Archive(ctx context.Context, fileID string, paths []string) error
}

// Notifier announces job state changes
type Notifier interface {
	NotifyJob(ctx context.Context, job *models.ProcessingJob) error
}

// Orchestrator drives a job through pending -> processing -> completed|failed
type Orchestrator struct {
	store      database.JobStore
	media      MediaProcessor
	layout     transcoder.ArtifactLayout
	profiles   []models.QualityProfile
	logger     *logging.Logger
	archiver   Archiver
	notifier   Notifier
	jobTimeout time.Duration
	now        func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithArchiver uploads outputs after a job completes
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) {
		o.archiver = a
	}
}

// WithNotifier sends webhook events on state changes
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithJobTimeout bounds the wall-clock time of a job. Zero disables it.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.jobTimeout = d
	}
}

// NewOrchestrator creates an orchestrator. profiles is the ladder used
// when a task names none.
func NewOrchestrator(store database.JobStore, media MediaProcessor, layout transcoder.ArtifactLayout, profiles []models.QualityProfile, logger *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		media:    media,
		layout:   layout,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Layout returns the artifact layout jobs are written to
func (o *Orchestrator) Layout() transcoder.ArtifactLayout {
	return o.layout
}

// Process runs a task to completion. The job record always ends in a
// terminal state unless the job could not be moved to processing or a
// newer run took over the job, in which case the record is left to it.
func (o *Orchestrator) Process(ctx context.Context, task Task) error {
	// ffmpeg work is never cancelled by the caller
	ctx = context.WithoutCancel(ctx)
	if o.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.jobTimeout)
		defer cancel()
	}

	logger := o.logger.WithFileID(task.FileID)
	start := o.now()

	job, err := o.store.GetJob(ctx, task.FileID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if task.RunID != "" && task.RunID != job.RunID {
		logger.Warnf("Skipping task of superseded run %s, job is on run %s", task.RunID, job.RunID)
		return fmt.Errorf("%w: run %s", database.ErrRunSuperseded, task.RunID)
	}

	span, ctx := tracing.StartJobSpan(ctx, "processing.job", job.ID, task.FileID)

	if err := job.Transition(models.JobStatusProcessing); err != nil {
		tracing.FinishSpan(span, err)
		return err
	}
	startedAt := o.now()
	job.StartedAt = &startedAt
	if err := o.store.UpdateJob(ctx, job); err != nil {
		err = fmt.Errorf("failed to mark job processing: %w", err)
		tracing.FinishSpan(span, err)
		return err
	}

	metrics.RecordJobStarted()
	logger.LogJobEvent(job.ID, "started", string(job.Status), nil)
	o.notify(ctx, job)

	outputDir, done, err := o.run(ctx, job, task)
	if errors.Is(err, database.ErrRunSuperseded) {
		logger.Warnf("Job was replaced during run %s, result dropped", job.RunID)
		tracing.FinishSpan(span, err)
		return err
	}
	if err != nil {
		o.fail(ctx, job, err, start)
		tracing.FinishSpan(span, err)
		return err
	}

	metrics.RecordJobFinished(string(models.JobStatusCompleted), time.Since(start).Seconds())
	logger.LogJobEvent(job.ID, "completed", string(done.Status), map[string]interface{}{
		"renditions":  len(done.Renditions),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	o.archive(ctx, done, outputDir)
	o.notify(ctx, done)
	tracing.FinishSpan(span, nil)
	return nil
}

// run builds every artifact and persists the completed record
func (o *Orchestrator) run(ctx context.Context, job *models.ProcessingJob, task Task) (string, *models.ProcessingJob, error) {
	outputDir, err := o.layout.Prepare(task.FileID)
	if err != nil {
		return "", nil, err
	}

	var src *models.SourceMedia
	err = o.stage(ctx, job.ID, "probe", func(ctx context.Context) error {
		var err error
		src, err = o.media.Probe(ctx, task.SourcePath)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	metrics.RecordSourceDuration(src.DurationSeconds)

	profiles := task.Profiles
	if len(profiles) == 0 {
		profiles = o.profiles
	}

	var (
		wg         sync.WaitGroup
		renditions = make([]*models.Rendition, len(profiles))
		scrub      *models.ScrubRendition
		sprites    *models.SpriteMetadata
		errs       = make([]error, len(profiles)+2)
	)

	for i, profile := range profiles {
		i, profile := i, profile
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = o.stage(ctx, job.ID, "encode_"+profile.Name, func(ctx context.Context) error {
				r, err := o.media.Encode(ctx, task.SourcePath, outputDir, task.Stem, profile, src)
				renditions[i] = r
				return err
			})
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[len(profiles)] = o.stage(ctx, job.ID, "scrub", func(ctx context.Context) error {
			var err error
			scrub, err = o.media.BuildScrub(ctx, task.SourcePath, outputDir, task.Stem)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		errs[len(profiles)+1] = o.stage(ctx, job.ID, "sprites", func(ctx context.Context) error {
			var err error
			sprites, err = o.media.BuildSprites(ctx, task.SourcePath, outputDir, task.Stem, src.DurationSeconds)
			return err
		})
	}()

	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return "", nil, err
	}

	done := job.Clone()
	done.Renditions = models.Renditions{}
	for _, r := range renditions {
		// nil means the profile would have upscaled
		if r == nil {
			continue
		}
		done.Renditions = append(done.Renditions, *r)
		metrics.RecordRendition(r.QualityName)
	}
	done.Scrub = scrub
	done.SpriteMetadata = sprites

	duration := int(math.Round(src.DurationSeconds))
	frameRate := int(math.Round(src.FrameRate))
	done.DurationSeconds = &duration
	done.FrameRate = &frameRate
	done.ErrorMessage = nil
	processedAt := o.now()
	done.ProcessedAt = &processedAt

	if err := done.Transition(models.JobStatusCompleted); err != nil {
		return "", nil, err
	}
	if err := o.store.UpdateJob(ctx, done); err != nil {
		return "", nil, fmt.Errorf("failed to save completed job: %w", err)
	}
	return outputDir, done, nil
}

// stage times one unit of work under its own span
func (o *Orchestrator) stage(ctx context.Context, jobID, name string, fn func(context.Context) error) error {
	span, ctx := tracing.StartSpan(ctx, "processing."+name)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	metrics.RecordStage(name, duration.Seconds(), err)
	o.logger.LogStageDuration(jobID, name, duration, err)
	tracing.FinishSpan(span, err)
	return err
}

// fail records the failure on the job. A store error here is logged and
// dropped so the caller still sees the original cause.
func (o *Orchestrator) fail(ctx context.Context, job *models.ProcessingJob, cause error, start time.Time) {
	logger := o.logger.WithFileID(job.SourceFileID).WithJobID(job.ID)

	failed := job.Clone()
	if err := failed.Transition(models.JobStatusFailed); err != nil {
		logger.ErrorWithErr("Cannot mark job failed", err)
		return
	}
	msg := cause.Error()
	failed.ErrorMessage = &msg
	failed.Renditions = models.Renditions{}
	failed.Scrub = nil
	failed.SpriteMetadata = nil
	processedAt := o.now()
	failed.ProcessedAt = &processedAt

	if err := o.store.UpdateJob(ctx, failed); err != nil {
		if errors.Is(err, database.ErrRunSuperseded) {
			logger.Warn("Job was reset during processing, failure dropped")
			return
		}
		logger.ErrorWithErr("Failed to record job failure", err)
		metrics.RecordError("orchestrator", "persist_failure")
	}

	metrics.RecordJobFinished(string(models.JobStatusFailed), time.Since(start).Seconds())
	logger.WithError(cause).LogJobEvent(job.ID, "failed", string(failed.Status), nil)
	o.notify(ctx, failed)
}

func (o *Orchestrator) archive(ctx context.Context, job *models.ProcessingJob, outputDir string) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.Archive(ctx, job.SourceFileID, ArtifactPaths(job, outputDir)); err != nil {
		o.logger.WithFileID(job.SourceFileID).ErrorWithErr("Failed to archive artifacts", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, job *models.ProcessingJob) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyJob(ctx, job); err != nil {
		o.logger.WithFileID(job.SourceFileID).ErrorWithErr("Failed to send webhook", err)
	}
}

// ArtifactPaths lists every file a completed job produced
func ArtifactPaths(job *models.ProcessingJob, outputDir string) []string {
	var paths []string
	for _, r := range job.Renditions {
		paths = append(paths, r.FilePath)
	}
	if job.Scrub != nil {
		paths = append(paths, job.Scrub.FilePath)
	}
	if job.SpriteMetadata != nil {
		for _, v := range job.SpriteMetadata.Variants {
			for _, s := range v.Sheets {
				paths = append(paths, s.FilePath)
			}
		}
		paths = append(paths, transcoder.SpriteMetadataPath(outputDir, job.Stem))
	}
	return paths
}
