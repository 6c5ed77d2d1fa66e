package delivery

import (
	"context"
	"errors"
	"image"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/database"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/processing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

const thumbnailJPEGQuality = 85

// Handler serves job status and artifacts
type Handler struct {
	store       database.JobStore
	dispatcher  processing.Dispatcher
	layout      transcoder.ArtifactLayout
	profiles    []models.QualityProfile
	cacheMaxAge time.Duration
	logger      *logging.Logger
}

// NewHandler creates a delivery handler. profiles is the set a trigger
// may pick from by name.
func NewHandler(store database.JobStore, dispatcher processing.Dispatcher, layout transcoder.ArtifactLayout, profiles []models.QualityProfile, cacheMaxAge time.Duration, logger *logging.Logger) *Handler {
	return &Handler{
		store:       store,
		dispatcher:  dispatcher,
		layout:      layout,
		profiles:    profiles,
		cacheMaxAge: cacheMaxAge,
		logger:      logger,
	}
}

// RegisterRoutes mounts the file routes. serviceAuth guards the routes
// that change state.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, serviceAuth gin.HandlerFunc) {
	files := rg.Group("/files/:fileId")
	{
		files.POST("/process", serviceAuth, h.triggerProcessing)
		files.DELETE("/job", serviceAuth, h.deleteJob)

		files.GET("/job", h.getJob)
		files.GET("/original", h.streamOriginal)
		files.GET("/renditions/:quality", h.streamRendition)
		files.GET("/scrub", h.streamScrub)
		files.GET("/sprites", h.getSprites)
		files.GET("/sprites/:dpi/:sheet", h.streamSpriteSheet)
		files.GET("/thumbnails/:dpi", h.getThumbnail)
	}
}

// ProcessRequest is the body of a trigger call
type ProcessRequest struct {
	SourcePath string   `json:"source_path" binding:"required"`
	Stem       string   `json:"stem"`
	Profiles   []string `json:"profiles"`
}

func (h *Handler) triggerProcessing(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := processing.Task{
		FileID:     c.Param("fileId"),
		SourcePath: req.SourcePath,
		Stem:       req.Stem,
	}
	for _, name := range req.Profiles {
		profile, ok := models.FindQualityProfile(h.profiles, name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown quality profile: " + name})
			return
		}
		task.Profiles = append(task.Profiles, profile)
	}

	job, err := processing.Trigger(c.Request.Context(), h.store, h.dispatcher, task, h.logger)
	switch {
	case errors.Is(err, processing.ErrNotVideo):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrJobInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "job is still processing", "status": models.JobStatusProcessing})
	case errors.Is(err, processing.ErrDispatch):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "job": job})
	case err != nil:
		h.logger.WithFileID(task.FileID).ErrorWithErr("Failed to trigger processing", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger processing"})
	default:
		c.JSON(http.StatusAccepted, job)
	}
}

func (h *Handler) getJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) deleteJob(c *gin.Context) {
	fileID := c.Param("fileId")

	if err := h.store.DeleteJob(c.Request.Context(), fileID); err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.WithFileID(fileID).ErrorWithErr("Failed to delete job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete job"})
		return
	}

	if err := os.RemoveAll(h.layout.OutputDir(fileID)); err != nil {
		h.logger.WithFileID(fileID).ErrorWithErr("Failed to remove artifacts", err)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) streamOriginal(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	h.serve(c, job.SourceFileID, job.SourcePath, database.ArtifactRef{Kind: database.ArtifactOriginal})
}

func (h *Handler) streamRendition(c *gin.Context) {
	job, ok := h.loadCompletedJob(c)
	if !ok {
		return
	}

	quality := c.Param("quality")
	rendition, ok := job.Rendition(quality)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "rendition not found: " + quality})
		return
	}
	h.serve(c, job.SourceFileID, rendition.FilePath, database.ArtifactRef{Kind: database.ArtifactRendition, Quality: quality})
}

func (h *Handler) streamScrub(c *gin.Context) {
	job, ok := h.loadCompletedJob(c)
	if !ok {
		return
	}
	if job.Scrub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scrub rendition not found"})
		return
	}
	h.serve(c, job.SourceFileID, job.Scrub.FilePath, database.ArtifactRef{Kind: database.ArtifactScrub})
}

func (h *Handler) getSprites(c *gin.Context) {
	job, ok := h.loadCompletedJob(c)
	if !ok {
		return
	}
	if job.SpriteMetadata == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sprite metadata not found"})
		return
	}
	c.Header("Cache-Control", h.cacheControl())
	c.JSON(http.StatusOK, job.SpriteMetadata)
}

func (h *Handler) streamSpriteSheet(c *gin.Context) {
	dpi, err := strconv.Atoi(c.Param("dpi"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dpi"})
		return
	}
	index, err := strconv.Atoi(c.Param("sheet"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sheet index"})
		return
	}

	job, ok := h.loadCompletedJob(c)
	if !ok {
		return
	}

	sheet, ok := findSheet(job.SpriteMetadata, dpi, index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "sprite sheet not found"})
		return
	}
	h.serve(c, job.SourceFileID, sheet.FilePath, database.ArtifactRef{Kind: database.ArtifactSpriteSheet, DPI: dpi, Sheet: index})
}

func (h *Handler) getThumbnail(c *gin.Context) {
	dpi, err := strconv.Atoi(c.Param("dpi"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dpi"})
		return
	}
	t, err := strconv.ParseFloat(c.DefaultQuery("t", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
		return
	}

	job, ok := h.loadCompletedJob(c)
	if !ok {
		return
	}
	if job.SpriteMetadata == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sprite metadata not found"})
		return
	}

	loc, ok := job.SpriteMetadata.Locate(t, dpi)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "thumbnail not found"})
		return
	}
	variant, _ := job.SpriteMetadata.Variant(dpi)

	sheet, err := imaging.Open(loc.Sheet.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.missing(c, job.SourceFileID, database.ArtifactRef{Kind: database.ArtifactSpriteSheet, DPI: dpi, Sheet: loc.Sheet.SheetIndex})
			return
		}
		h.logger.WithFileID(job.SourceFileID).ErrorWithErr("Failed to decode sprite sheet", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read sprite sheet"})
		return
	}

	w, th := variant.ThumbnailWidth, variant.ThumbnailHeight
	thumb := imaging.Crop(sheet, image.Rect(loc.Col*w, loc.Row*th, (loc.Col+1)*w, (loc.Row+1)*th))

	c.Header("Cache-Control", h.cacheControl())
	c.Header("Content-Type", "image/jpeg")
	c.Status(http.StatusOK)
	if err := imaging.Encode(c.Writer, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		h.logger.WithFileID(job.SourceFileID).ErrorWithErr("Failed to encode thumbnail", err)
	}
}

// serve streams one artifact, flagging it on the job when it is gone
func (h *Handler) serve(c *gin.Context, fileID, path string, ref database.ArtifactRef) {
	n, err := ServeArtifact(c, path, h.cacheMaxAge)
	switch {
	case errors.Is(err, ErrArtifactMissing):
		h.missing(c, fileID, ref)
	case err != nil && n == 0:
		h.logger.WithFileID(fileID).ErrorWithErr("Failed to serve artifact", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read artifact"})
	case err != nil:
		// client went away mid-stream
		h.logger.WithFileID(fileID).WithError(err).Debug("Artifact stream interrupted")
		metrics.RecordDelivery(string(ref.Kind), n)
	default:
		metrics.RecordDelivery(string(ref.Kind), n)
	}
}

// missing answers 404 and records the artifact as unavailable. The
// record update is best effort.
func (h *Handler) missing(c *gin.Context, fileID string, ref database.ArtifactRef) {
	metrics.RecordMissingArtifact(string(ref.Kind))

	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.store.MarkArtifactUnavailable(ctx, fileID, ref); err != nil {
		h.logger.WithFileID(fileID).WithField("artifact", ref.String()).ErrorWithErr("Failed to mark artifact unavailable", err)
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found", "artifact": ref.String()})
}

func (h *Handler) loadJob(c *gin.Context) (*models.ProcessingJob, bool) {
	fileID := c.Param("fileId")

	job, err := h.store.GetJob(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return nil, false
		}
		h.logger.WithFileID(fileID).ErrorWithErr("Failed to load job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return nil, false
	}
	return job, true
}

func (h *Handler) loadCompletedJob(c *gin.Context) (*models.ProcessingJob, bool) {
	job, ok := h.loadJob(c)
	if !ok {
		return nil, false
	}
	if job.Status != models.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not completed", "status": job.Status})
		return nil, false
	}
	return job, true
}

func (h *Handler) cacheControl() string {
	return "private, max-age=" + strconv.FormatInt(int64(h.cacheMaxAge.Seconds()), 10)
}

func findSheet(meta *models.SpriteMetadata, dpi, index int) (*models.SpriteSheet, bool) {
	if meta == nil {
		return nil, false
	}
	variant, ok := meta.Variant(dpi)
	if !ok {
		return nil, false
	}
	for i := range variant.Sheets {
		if variant.Sheets[i].SheetIndex == index {
			return &variant.Sheets[i], true
		}
	}
	return nil, false
}
