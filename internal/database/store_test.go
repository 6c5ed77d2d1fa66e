package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

func completedJob(t *testing.T, store JobStore, fileID string) *models.ProcessingJob {
	t.Helper()
	ctx := context.Background()

	job, err := store.ResetJob(ctx, fileID, "/uploads/"+fileID+".mp4", "clip")
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Millisecond)
	duration, fps := 10, 30
	job.Status = models.JobStatusCompleted
	job.StartedAt = &started
	job.ProcessedAt = &started
	job.DurationSeconds = &duration
	job.FrameRate = &fps
	job.Renditions = models.Renditions{
		{QualityName: "720p", FilePath: "/out/q/clip_720p.mp4", ByteSize: 1000, BitrateKbps: 2800},
		{QualityName: "480p", FilePath: "/out/q/clip_480p.mp4", ByteSize: 500, BitrateKbps: 1400},
	}
	job.Scrub = &models.ScrubRendition{FilePath: "/out/s/clip_scrub.mp4"}
	job.SpriteMetadata = &models.SpriteMetadata{
		IntervalSeconds:       1,
		TotalThumbnails:       10,
		SheetCount:            1,
		MaxThumbnailsPerSheet: 100,
		DurationSeconds:       10,
		Variants: []models.SpriteVariant{{
			DPI: 1, ThumbnailWidth: 160, ThumbnailHeight: 90,
			Sheets: []models.SpriteSheet{{DPIVariant: 1, FilePath: "/out/t/clip_sprite_1x_0.jpg", Cols: 10, Rows: 1, EndTime: 10, ThumbnailCount: 10, PixelWidth: 1600, PixelHeight: 90}},
		}},
	}
	require.NoError(t, store.UpdateJob(ctx, job))
	return job
}

// runJobStoreTests exercises the behavior every JobStore must share
func runJobStoreTests(t *testing.T, newStore func(t *testing.T) JobStore) {
	ctx := context.Background()

	t.Run("missing job", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetJob(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrJobNotFound)

		err = store.UpdateJob(ctx, &models.ProcessingJob{SourceFileID: uuid.NewString()})
		assert.ErrorIs(t, err, ErrJobNotFound)

		err = store.MarkArtifactUnavailable(ctx, uuid.NewString(), ArtifactRef{Kind: ArtifactScrub})
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("reset creates pending job", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()

		job, err := store.ResetJob(ctx, fileID, "/uploads/a.mp4", "a")
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, fileID, job.SourceFileID)
		assert.Equal(t, models.JobStatusPending, job.Status)
		assert.Empty(t, job.Renditions)
		assert.Nil(t, job.Scrub)
		assert.Nil(t, job.SpriteMetadata)
	})

	t.Run("update round trip", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()
		want := completedJob(t, store, fileID)

		got, err := store.GetJob(ctx, fileID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, want.Renditions, got.Renditions)
		assert.Equal(t, want.Scrub, got.Scrub)
		assert.Equal(t, want.SpriteMetadata, got.SpriteMetadata)
		assert.Equal(t, 10, *got.DurationSeconds)
		assert.Equal(t, 30, *got.FrameRate)
		require.NotNil(t, got.ProcessedAt)
		assert.True(t, want.ProcessedAt.Equal(*got.ProcessedAt))
	})

	t.Run("reset replaces results and keeps identity", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()
		first := completedJob(t, store, fileID)

		again, err := store.ResetJob(ctx, fileID, "/uploads/b.mp4", "b")
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, models.JobStatusPending, again.Status)
		assert.Equal(t, "b", again.Stem)
		assert.Empty(t, again.Renditions)
		assert.Nil(t, again.Scrub)
		assert.Nil(t, again.SpriteMetadata)
		assert.Nil(t, again.DurationSeconds)
		assert.Nil(t, again.ProcessedAt)
	})

	t.Run("reset issues a new run", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()

		first, err := store.ResetJob(ctx, fileID, "/uploads/a.mp4", "a")
		require.NoError(t, err)
		second, err := store.ResetJob(ctx, fileID, "/uploads/b.mp4", "b")
		require.NoError(t, err)

		assert.NotEmpty(t, first.RunID)
		assert.NotEqual(t, first.RunID, second.RunID)
	})

	t.Run("reset refuses a processing job", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()

		job, err := store.ResetJob(ctx, fileID, "/uploads/a.mp4", "a")
		require.NoError(t, err)
		require.NoError(t, job.Transition(models.JobStatusProcessing))
		require.NoError(t, store.UpdateJob(ctx, job))

		_, err = store.ResetJob(ctx, fileID, "/uploads/b.mp4", "b")
		assert.ErrorIs(t, err, ErrJobInProgress)

		got, err := store.GetJob(ctx, fileID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusProcessing, got.Status)
		assert.Equal(t, "/uploads/a.mp4", got.SourcePath)
		assert.Equal(t, job.RunID, got.RunID)
	})

	t.Run("update from a superseded run is rejected", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()

		stale, err := store.ResetJob(ctx, fileID, "/uploads/a.mp4", "a")
		require.NoError(t, err)
		current, err := store.ResetJob(ctx, fileID, "/uploads/b.mp4", "b")
		require.NoError(t, err)

		require.NoError(t, stale.Transition(models.JobStatusProcessing))
		assert.ErrorIs(t, store.UpdateJob(ctx, stale), ErrRunSuperseded)

		got, err := store.GetJob(ctx, fileID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, got.Status)
		assert.Equal(t, "/uploads/b.mp4", got.SourcePath)
		assert.Equal(t, current.RunID, got.RunID)
	})

	t.Run("mark artifacts unavailable", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()
		completedJob(t, store, fileID)

		require.NoError(t, store.MarkArtifactUnavailable(ctx, fileID, ArtifactRef{Kind: ArtifactRendition, Quality: "480p"}))
		require.NoError(t, store.MarkArtifactUnavailable(ctx, fileID, ArtifactRef{Kind: ArtifactScrub}))
		require.NoError(t, store.MarkArtifactUnavailable(ctx, fileID, ArtifactRef{Kind: ArtifactOriginal}))
		require.NoError(t, store.MarkArtifactUnavailable(ctx, fileID, ArtifactRef{Kind: ArtifactSpriteSheet, DPI: 1, Sheet: 0}))
		// unknown rendition is a no-op
		require.NoError(t, store.MarkArtifactUnavailable(ctx, fileID, ArtifactRef{Kind: ArtifactRendition, Quality: "4k"}))

		got, err := store.GetJob(ctx, fileID)
		require.NoError(t, err)

		r720, _ := got.Rendition("720p")
		r480, _ := got.Rendition("480p")
		assert.False(t, r720.Unavailable)
		assert.True(t, r480.Unavailable)
		assert.True(t, got.Scrub.Unavailable)
		assert.True(t, got.SourceUnavailable)
		assert.True(t, got.SpriteMetadata.Variants[0].Sheets[0].Unavailable)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		fileID := uuid.NewString()
		_, err := store.ResetJob(ctx, fileID, "/uploads/a.mp4", "a")
		require.NoError(t, err)

		require.NoError(t, store.DeleteJob(ctx, fileID))
		_, err = store.GetJob(ctx, fileID)
		assert.True(t, errors.Is(err, ErrJobNotFound))
		assert.ErrorIs(t, store.DeleteJob(ctx, fileID), ErrJobNotFound)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, newStore(t).Health(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runJobStoreTests(t, func(t *testing.T) JobStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	completedJob(t, store, "file-1")

	got, err := store.GetJob(ctx, "file-1")
	require.NoError(t, err)
	got.Renditions[0].QualityName = "mutated"
	got.SpriteMetadata.Variants[0].Sheets[0].FilePath = "mutated"

	again, err := store.GetJob(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "720p", again.Renditions[0].QualityName)
	assert.Equal(t, "/out/t/clip_sprite_1x_0.jpg", again.SpriteMetadata.Variants[0].Sheets[0].FilePath)
}

// TestRepository runs against a real Postgres when SCRUBSTREAM_TEST_DATABASE_URL is set
func TestRepository(t *testing.T) {
	dsn := os.Getenv("SCRUBSTREAM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test - SCRUBSTREAM_TEST_DATABASE_URL not set")
	}

	db, err := Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(context.Background()))

	runJobStoreTests(t, func(t *testing.T) JobStore {
		return NewRepository(db)
	})
}

func TestArtifactRefString(t *testing.T) {
	assert.Equal(t, "rendition:720p", ArtifactRef{Kind: ArtifactRendition, Quality: "720p"}.String())
	assert.Equal(t, "sprite_sheet:2x:1", ArtifactRef{Kind: ArtifactSpriteSheet, DPI: 2, Sheet: 1}.String())
	assert.Equal(t, "scrub", ArtifactRef{Kind: ArtifactScrub}.String())
}
