package transcoder

import (
	"context"
	"fmt"
	"os"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// Playback encoding settings
const (
	playbackPreset       = "medium"
	playbackCRF          = "23"
	playbackAudioBitrate = "128k"
)

// Encode produces a playback rendition at the given quality profile.
// It returns nil without an error when the profile would upscale the source.
func (f *FFmpeg) Encode(ctx context.Context, inputPath, outputDir, stem string, profile models.QualityProfile, src *models.SourceMedia) (*models.Rendition, error) {
	if profile.Upscales(src) {
		return nil, nil
	}

	outputPath := RenditionPath(outputDir, stem, profile.Name)

	args := []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", playbackPreset,
		"-crf", playbackCRF,
		"-maxrate", fmt.Sprintf("%dk", profile.BitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", profile.BitrateKbps*2),
		"-vf", fitFilter(profile.TargetWidth, profile.TargetHeight),
		"-c:a", "aac",
		"-b:a", playbackAudioBitrate,
		"-movflags", "+faststart",
	}

	if err := f.transcode(ctx, "encode "+profile.Name, outputPath, args); err != nil {
		return nil, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, &FileSystemError{Op: "stat", Path: outputPath, Err: err}
	}

	return &models.Rendition{
		QualityName: profile.Name,
		FilePath:    outputPath,
		ByteSize:    info.Size(),
		BitrateKbps: profile.BitrateKbps,
	}, nil
}
