package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// CommandRunner executes an external tool with an argument list.
// Implementations must never route arguments through a shell.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run starts the command and waits for it to finish
func (ExecRunner) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
	sprites     SpriteConfig
}

// Option configures an FFmpeg instance
type Option func(*FFmpeg)

// WithRunner replaces the process runner
func WithRunner(r CommandRunner) Option {
	return func(f *FFmpeg) {
		f.runner = r
	}
}

// WithSpriteConfig sets the sprite sheet layout
func WithSpriteConfig(cfg SpriteConfig) Option {
	return func(f *FFmpeg) {
		f.sprites = cfg
	}
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      ExecRunner{},
		sprites:     DefaultSpriteConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SpriteConfig returns the sprite layout in use
func (f *FFmpeg) SpriteConfig() SpriteConfig {
	return f.sprites
}

// transcode runs one ffmpeg invocation. Every artifact builder goes
// through here so they share the same failure classification.
func (f *FFmpeg) transcode(ctx context.Context, stage, outputPath string, args []string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}, args...)
	full = append(full, outputPath)

	_, stderr, err := f.runner.Run(ctx, f.ffmpegPath, full)
	if err != nil {
		return newEncodeError(stage, outputPath, stderr, err)
	}
	return nil
}

// fitFilter scales into the target box keeping the aspect ratio and
// letterboxes the remainder so the output is exactly width x height.
func fitFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
