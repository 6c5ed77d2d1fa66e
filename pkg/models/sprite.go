package models

import "math"

// SpriteSheet describes one tiled mosaic image of thumbnails
type SpriteSheet struct {
	DPIVariant     int     `json:"dpi_variant"`
	SheetIndex     int     `json:"sheet_index"`
	FilePath       string  `json:"file_path"`
	Cols           int     `json:"cols"`
	Rows           int     `json:"rows"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	ThumbnailCount int     `json:"thumbnail_count"`
	PixelWidth     int     `json:"pixel_width"`
	PixelHeight    int     `json:"pixel_height"`
	Unavailable    bool    `json:"unavailable,omitempty"`
}

// SpriteVariant groups the sheets rendered at one pixel density
type SpriteVariant struct {
	DPI             int           `json:"dpi"`
	ThumbnailWidth  int           `json:"thumbnail_width"`
	ThumbnailHeight int           `json:"thumbnail_height"`
	Sheets          []SpriteSheet `json:"sheets"`
}

// SpriteMetadata is the canonical description of a job's sprite sheets.
// Clients resolve a timestamp to a tile from this document alone.
type SpriteMetadata struct {
	IntervalSeconds       float64         `json:"interval_seconds"`
	TotalThumbnails       int             `json:"total_thumbnails"`
	SheetCount            int             `json:"sheet_count"`
	MaxThumbnailsPerSheet int             `json:"max_thumbnails_per_sheet"`
	DurationSeconds       float64         `json:"duration_seconds"`
	Variants              []SpriteVariant `json:"variants"`
}

// Variant returns the variant rendered at the given density
func (m *SpriteMetadata) Variant(dpi int) (*SpriteVariant, bool) {
	for i := range m.Variants {
		if m.Variants[i].DPI == dpi {
			return &m.Variants[i], true
		}
	}
	return nil, false
}

// TileLocation points at one thumbnail inside a sheet
type TileLocation struct {
	Sheet *SpriteSheet
	Index int
	Col   int
	Row   int
}

// Locate finds the sheet and tile that holds the thumbnail for timestamp t.
// Timestamps past the last thumbnail, including the uncovered tail of a
// source that hit the thumbnail cap, resolve to the last tile.
func (m *SpriteMetadata) Locate(t float64, dpi int) (TileLocation, bool) {
	variant, ok := m.Variant(dpi)
	if !ok || m.TotalThumbnails == 0 || m.IntervalSeconds <= 0 || m.MaxThumbnailsPerSheet <= 0 {
		return TileLocation{}, false
	}

	index := int(math.Floor(t / m.IntervalSeconds))
	if index < 0 {
		index = 0
	}
	if index > m.TotalThumbnails-1 {
		index = m.TotalThumbnails - 1
	}

	sheetIndex := index / m.MaxThumbnailsPerSheet
	tile := index % m.MaxThumbnailsPerSheet
	for i := range variant.Sheets {
		sheet := &variant.Sheets[i]
		if sheet.SheetIndex != sheetIndex || sheet.Cols == 0 {
			continue
		}
		return TileLocation{
			Sheet: sheet,
			Index: index,
			Col:   tile % sheet.Cols,
			Row:   tile / sheet.Cols,
		}, true
	}
	return TileLocation{}, false
}

// Clone returns a deep copy
func (m *SpriteMetadata) Clone() *SpriteMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Variants = make([]SpriteVariant, len(m.Variants))
	for i, v := range m.Variants {
		v.Sheets = append([]SpriteSheet(nil), v.Sheets...)
		c.Variants[i] = v
	}
	return &c
}
