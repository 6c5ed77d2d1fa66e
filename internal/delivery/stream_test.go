package delivery

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantErr   error
	}{
		{"closed", "bytes=200-299", 1000, 200, 299, nil},
		{"open end", "bytes=900-", 1000, 900, 999, nil},
		{"end clamped", "bytes=900-5000", 1000, 900, 999, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, nil},
		{"suffix", "bytes=-100", 1000, 900, 999, nil},
		{"suffix larger than file", "bytes=-5000", 1000, 0, 999, nil},
		{"start past end", "bytes=1000-", 1000, 0, 0, ErrRangeNotSatisfiable},
		{"zero suffix", "bytes=-0", 1000, 0, 0, ErrRangeNotSatisfiable},
		{"empty file", "bytes=0-", 0, 0, 0, ErrRangeNotSatisfiable},
		{"wrong unit", "items=0-10", 1000, 0, 0, ErrMalformedRange},
		{"multiple ranges", "bytes=0-1,5-6", 1000, 0, 0, ErrMalformedRange},
		{"reversed", "bytes=300-200", 1000, 0, 0, ErrMalformedRange},
		{"garbage", "bytes=abc-def", 1000, 0, 0, ErrMalformedRange},
		{"no dash", "bytes=100", 1000, 0, 0, ErrMalformedRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseRange(tt.header, tt.size)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

// writeArtifact creates a file whose byte i is i % 251
func writeArtifact(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func serveRequest(t *testing.T, path, rangeHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/artifact", nil)
	if rangeHeader != "" {
		c.Request.Header.Set("Range", rangeHeader)
	}

	_, err := ServeArtifact(c, path, time.Hour)
	c.Writer.WriteHeaderNow()
	return w, err
}

func TestServeArtifact_PartialContent(t *testing.T) {
	path, data := writeArtifact(t, "clip_720p.mp4", 1000)

	w, err := serveRequest(t, path, "bytes=200-299")
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 200-299/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.True(t, bytes.Equal(data[200:300], w.Body.Bytes()))
}

func TestServeArtifact_FullContent(t *testing.T) {
	path, data := writeArtifact(t, "clip_720p.mp4", 1000)

	w, err := serveRequest(t, path, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Equal(t, "private, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.Equal(t, data, w.Body.Bytes())
}

func TestServeArtifact_MalformedRangeServesFull(t *testing.T) {
	path, _ := writeArtifact(t, "clip_scrub.mp4", 1000)

	w, err := serveRequest(t, path, "bytes=oops")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1000, w.Body.Len())
}

func TestServeArtifact_Unsatisfiable(t *testing.T) {
	path, _ := writeArtifact(t, "clip_scrub.mp4", 1000)

	w, err := serveRequest(t, path, "bytes=5000-")
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */1000", w.Header().Get("Content-Range"))
	assert.Zero(t, w.Body.Len())
}

func TestServeArtifact_Missing(t *testing.T) {
	w, err := serveRequest(t, filepath.Join(t.TempDir(), "gone.mp4"), "")
	assert.ErrorIs(t, err, ErrArtifactMissing)
	assert.Zero(t, w.Body.Len())

	_, err = serveRequest(t, t.TempDir(), "")
	assert.ErrorIs(t, err, ErrArtifactMissing)
}
