package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// SpriteVariantConfig holds one pixel-density rendering of the sprite grid
type SpriteVariantConfig struct {
	DPI     int // Density multiplier (1, 2, 3)
	Width   int // Thumbnail width in pixels
	Height  int // Thumbnail height in pixels
	Quality int // JPEG quality (2-31, lower is better quality)
}

// SpriteConfig holds options for sprite sheet generation
type SpriteConfig struct {
	IntervalSeconds float64 // Time between thumbnails
	MaxThumbnails   int     // Overall cap across all sheets
	MaxPerSheet     int     // Per-sheet cap, keeps sheets under client texture limits
	Columns         int     // Maximum columns per sheet
	Variants        []SpriteVariantConfig
}

// DefaultSpriteConfig returns a 1s grid of at most 500 thumbnails in 10x10 sheets
func DefaultSpriteConfig() SpriteConfig {
	return SpriteConfig{
		IntervalSeconds: 1,
		MaxThumbnails:   500,
		MaxPerSheet:     100,
		Columns:         10,
		Variants: []SpriteVariantConfig{
			{DPI: 1, Width: 160, Height: 90, Quality: 4},
			{DPI: 2, Width: 320, Height: 180, Quality: 6},
			{DPI: 3, Width: 480, Height: 270, Quality: 8},
		},
	}
}

// SheetPlan is the time window and grid of one sheet, shared by every variant
type SheetPlan struct {
	Index          int
	FirstThumbnail int
	ThumbnailCount int
	Cols           int
	Rows           int
	StartTime      float64
	EndTime        float64
}

// SpritePlan is the time grid for a source duration
type SpritePlan struct {
	Interval        float64
	TotalThumbnails int
	MaxPerSheet     int
	Duration        float64
	Sheets          []SheetPlan
}

// PlanSprites splits ceil(duration/interval) thumbnails, capped at
// MaxThumbnails, into contiguous sheets of at most MaxPerSheet each.
// The interval is kept when the cap applies, so the sheets then cover
// only [0, MaxThumbnails*interval) of the source.
func PlanSprites(duration float64, cfg SpriteConfig) SpritePlan {
	plan := SpritePlan{
		Interval:    cfg.IntervalSeconds,
		MaxPerSheet: cfg.MaxPerSheet,
		Duration:    duration,
	}
	if duration <= 0 || cfg.IntervalSeconds <= 0 || cfg.MaxPerSheet <= 0 {
		return plan
	}

	total := int(math.Ceil(duration / cfg.IntervalSeconds))
	if cfg.MaxThumbnails > 0 && total > cfg.MaxThumbnails {
		total = cfg.MaxThumbnails
	}
	plan.TotalThumbnails = total

	columns := cfg.Columns
	if columns <= 0 {
		columns = int(math.Ceil(math.Sqrt(float64(cfg.MaxPerSheet))))
	}

	sheetCount := (total + cfg.MaxPerSheet - 1) / cfg.MaxPerSheet
	plan.Sheets = make([]SheetPlan, 0, sheetCount)
	for i := 0; i < sheetCount; i++ {
		first := i * cfg.MaxPerSheet
		count := min(cfg.MaxPerSheet, total-first)
		cols := min(columns, count)

		plan.Sheets = append(plan.Sheets, SheetPlan{
			Index:          i,
			FirstThumbnail: first,
			ThumbnailCount: count,
			Cols:           cols,
			Rows:           (count + cols - 1) / cols,
			StartTime:      float64(first) * cfg.IntervalSeconds,
			EndTime:        math.Min(float64(first+count)*cfg.IntervalSeconds, duration),
		})
	}

	return plan
}

// spriteCell is one (variant, sheet) pair of the render matrix
type spriteCell struct {
	variant SpriteVariantConfig
	sheet   SheetPlan
}

// BuildSprites renders every (variant, sheet) cell in parallel and writes
// the JSON description next to the sheets.
func (f *FFmpeg) BuildSprites(ctx context.Context, inputPath, outputDir, stem string, duration float64) (*models.SpriteMetadata, error) {
	cfg := f.sprites
	plan := PlanSprites(duration, cfg)
	if plan.TotalThumbnails == 0 {
		return nil, &EncodeError{Stage: "sprites", Output: outputDir, Spawn: false, Err: fmt.Errorf("source duration %.3fs yields no thumbnails", duration)}
	}

	cells := make([]spriteCell, 0, len(cfg.Variants)*len(plan.Sheets))
	for _, v := range cfg.Variants {
		for _, s := range plan.Sheets {
			cells = append(cells, spriteCell{variant: v, sheet: s})
		}
	}

	sheets, errs := parallelMap(cells, func(c spriteCell) (models.SpriteSheet, error) {
		return f.renderSheet(ctx, inputPath, outputDir, stem, plan.Interval, c)
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	meta := &models.SpriteMetadata{
		IntervalSeconds:       plan.Interval,
		TotalThumbnails:       plan.TotalThumbnails,
		SheetCount:            len(plan.Sheets),
		MaxThumbnailsPerSheet: plan.MaxPerSheet,
		DurationSeconds:       duration,
		Variants:              make([]models.SpriteVariant, 0, len(cfg.Variants)),
	}
	for i, v := range cfg.Variants {
		meta.Variants = append(meta.Variants, models.SpriteVariant{
			DPI:             v.DPI,
			ThumbnailWidth:  v.Width,
			ThumbnailHeight: v.Height,
			Sheets:          sheets[i*len(plan.Sheets) : (i+1)*len(plan.Sheets)],
		})
	}

	if err := writeSpriteMetadata(SpriteMetadataPath(outputDir, stem), meta); err != nil {
		return nil, err
	}

	return meta, nil
}

// renderSheet trims the source to the sheet window, samples it at 1/interval
// fps, fits each frame into the thumbnail box and tiles the result in one pass.
func (f *FFmpeg) renderSheet(ctx context.Context, inputPath, outputDir, stem string, interval float64, c spriteCell) (models.SpriteSheet, error) {
	outputPath := SpriteSheetPath(outputDir, stem, c.variant.DPI, c.sheet.Index)

	filter := fmt.Sprintf("fps=1/%s,%s,tile=%dx%d",
		strconv.FormatFloat(interval, 'f', -1, 64),
		fitFilter(c.variant.Width, c.variant.Height),
		c.sheet.Cols, c.sheet.Rows,
	)

	args := []string{
		"-ss", formatSeconds(c.sheet.StartTime),
		"-t", formatSeconds(c.sheet.EndTime - c.sheet.StartTime),
		"-i", inputPath,
		"-vf", filter,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(c.variant.Quality),
	}

	stage := fmt.Sprintf("sprite %dx sheet %d", c.variant.DPI, c.sheet.Index)
	if err := f.transcode(ctx, stage, outputPath, args); err != nil {
		return models.SpriteSheet{}, err
	}

	return models.SpriteSheet{
		DPIVariant:     c.variant.DPI,
		SheetIndex:     c.sheet.Index,
		FilePath:       outputPath,
		Cols:           c.sheet.Cols,
		Rows:           c.sheet.Rows,
		StartTime:      c.sheet.StartTime,
		EndTime:        c.sheet.EndTime,
		ThumbnailCount: c.sheet.ThumbnailCount,
		PixelWidth:     c.sheet.Cols * c.variant.Width,
		PixelHeight:    c.sheet.Rows * c.variant.Height,
	}, nil
}

func writeSpriteMetadata(path string, meta *models.SpriteMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sprite metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &FileSystemError{Op: "write", Path: path, Err: err}
	}
	return nil
}
