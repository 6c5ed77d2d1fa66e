package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact subtrees inside a file's output directory
const (
	QualitiesDir  = "qualities"
	ScrubDir      = "scrub"
	ThumbnailsDir = "thumbnails"
)

// ArtifactLayout maps file ids to their output directories. All artifact
// names are deterministic so paths can be rebuilt from stored metadata.
type ArtifactLayout struct {
	Root string
}

// OutputDir returns the per-file output directory
func (l ArtifactLayout) OutputDir(fileID string) string {
	return filepath.Join(l.Root, fileID)
}

// Prepare recreates the artifact subtrees of a file, dropping stale
// outputs left by a previous run.
func (l ArtifactLayout) Prepare(fileID string) (string, error) {
	dir := l.OutputDir(fileID)
	for _, sub := range []string{QualitiesDir, ScrubDir, ThumbnailsDir} {
		path := filepath.Join(dir, sub)
		if err := os.RemoveAll(path); err != nil {
			return "", &FileSystemError{Op: "clean", Path: path, Err: err}
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", &FileSystemError{Op: "mkdir", Path: path, Err: err}
		}
	}
	return dir, nil
}

// RenditionPath returns the playback rendition file for a quality
func RenditionPath(outputDir, stem, quality string) string {
	return filepath.Join(outputDir, QualitiesDir, fmt.Sprintf("%s_%s.mp4", stem, quality))
}

// ScrubPath returns the scrub rendition file
func ScrubPath(outputDir, stem string) string {
	return filepath.Join(outputDir, ScrubDir, stem+"_scrub.mp4")
}

// SpriteSheetPath returns the sheet image for a density variant and sheet index
func SpriteSheetPath(outputDir, stem string, dpi, index int) string {
	return filepath.Join(outputDir, ThumbnailsDir, fmt.Sprintf("%s_sprite_%dx_%d.jpg", stem, dpi, index))
}

// SpriteMetadataPath returns the sprite JSON description
func SpriteMetadataPath(outputDir, stem string) string {
	return filepath.Join(outputDir, ThumbnailsDir, stem+"_sprites.json")
}
