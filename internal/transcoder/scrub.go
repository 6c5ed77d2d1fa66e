package transcoder

import (
	"context"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// BuildScrub produces the muted 640x360 rendition in which every frame is
// a keyframe, so a range request at any offset decodes without walking
// back to an earlier GOP.
func (f *FFmpeg) BuildScrub(ctx context.Context, inputPath, outputDir, stem string) (*models.ScrubRendition, error) {
	outputPath := ScrubPath(outputDir, stem)

	args := []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "30",
		"-g", "1",
		"-keyint_min", "1",
		"-sc_threshold", "0",
		"-vf", fitFilter(models.ScrubWidth, models.ScrubHeight),
		"-an",
		"-movflags", "+faststart",
	}

	if err := f.transcode(ctx, "scrub", outputPath, args); err != nil {
		return nil, err
	}

	return &models.ScrubRendition{FilePath: outputPath}, nil
}
