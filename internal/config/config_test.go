package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

database:
  driver: memory
  host: "testdb"

processing:
  outputRoot: /data/out
  jobTimeout: 45m
  profiles:
    - name: 720p
      targetWidth: 1280
      targetHeight: 720
      bitrateKbps: 2800

sprites:
  interval: 2
  maxPerSheet: 64
  columns: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "testdb", cfg.Database.Host)
	assert.Equal(t, "/data/out", cfg.Processing.OutputRoot)
	assert.Equal(t, 45*time.Minute, cfg.Processing.JobTimeout)

	require.Len(t, cfg.Processing.Profiles, 1)
	assert.Equal(t, "720p", cfg.Processing.Profiles[0].Name)
	assert.Equal(t, 1280, cfg.Processing.Profiles[0].TargetWidth)

	assert.Equal(t, 2.0, cfg.Sprites.Interval)
	assert.Equal(t, 64, cfg.Sprites.MaxPerSheet)
	assert.Equal(t, 8, cfg.Sprites.Columns)
	assert.Equal(t, 500, cfg.Sprites.MaxThumbnails)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Queue.Mode)
	assert.Equal(t, time.Hour, cfg.Delivery.CacheMaxAge)
	assert.Equal(t, time.Duration(0), cfg.Processing.JobTimeout)
	assert.Len(t, cfg.Processing.Profiles, 4)
	require.Len(t, cfg.Sprites.Variants, 3)
	assert.Equal(t, 3, cfg.Sprites.Variants[2].DPI)
	assert.Equal(t, 270, cfg.Sprites.Variants[2].Height)
}

func TestLoad_SpriteDefaultsMatchTranscoder(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	want := transcoder.DefaultSpriteConfig()
	assert.Equal(t, want.IntervalSeconds, cfg.Sprites.Interval)
	assert.Equal(t, want.MaxThumbnails, cfg.Sprites.MaxThumbnails)
	assert.Equal(t, want.MaxPerSheet, cfg.Sprites.MaxPerSheet)
	assert.Equal(t, want.Columns, cfg.Sprites.Columns)

	require.Len(t, cfg.Sprites.Variants, len(want.Variants))
	for i, v := range want.Variants {
		got := cfg.Sprites.Variants[i]
		assert.Equal(t, v.DPI, got.DPI)
		assert.Equal(t, v.Width, got.Width)
		assert.Equal(t, v.Height, got.Height)
		assert.Equal(t, v.Quality, got.Quality)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("QUEUE_MODE", "rabbitmq")

	cfg, err := Load(writeConfig(t, "server:\n  host: localhost\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "rabbitmq", cfg.Queue.Mode)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "database:\n  driver: sqlite\n"},
		{"unknown queue mode", "queue:\n  mode: kafka\n"},
		{"zero bitrate profile", "processing:\n  profiles:\n    - name: bad\n      targetWidth: 10\n      targetHeight: 10\n      bitrateKbps: 0\n"},
		{"bad webhook url", "webhook:\n  urls: [\"not a url\"]\n"},
		{"zero sprite interval", "sprites:\n  interval: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}
