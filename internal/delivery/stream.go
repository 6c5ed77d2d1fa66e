package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/storage"
)

var (
	// ErrArtifactMissing is returned when an artifact is not on disk
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrRangeNotSatisfiable is returned for ranges outside the artifact
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	// ErrMalformedRange is returned for Range headers that are ignored
	ErrMalformedRange = errors.New("malformed range")
)

// ParseRange parses a single "bytes=start-end" or "bytes=-suffix" range
// against an artifact of the given size. The returned bounds are inclusive.
func ParseRange(header string, size int64) (int64, int64, error) {
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(ranges, ",") {
		return 0, 0, ErrMalformedRange
	}

	first, last, ok := strings.Cut(strings.TrimSpace(ranges), "-")
	if !ok {
		return 0, 0, ErrMalformedRange
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)

	// suffix form: the last N bytes
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, ErrMalformedRange
		}
		if n == 0 || size == 0 {
			return 0, 0, ErrRangeNotSatisfiable
		}
		n = min(n, size)
		return size - n, size - 1, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, ErrMalformedRange
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return 0, 0, ErrMalformedRange
		}
		end = min(end, size-1)
	}

	if start >= size {
		return 0, 0, ErrRangeNotSatisfiable
	}
	return start, end, nil
}

// ServeArtifact streams a file, honouring a single byte range. It returns
// ErrArtifactMissing without writing anything when the file is absent.
func ServeArtifact(c *gin.Context, path string, maxAge time.Duration) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrArtifactMissing
		}
		return 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.IsDir() {
		return 0, ErrArtifactMissing
	}
	size := info.Size()

	header := c.Writer.Header()
	header.Set("Content-Type", storage.ContentType(path))
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int64(maxAge.Seconds())))

	start, end := int64(0), size-1
	status := http.StatusOK

	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		s, e, err := ParseRange(rangeHeader, size)
		switch {
		case errors.Is(err, ErrRangeNotSatisfiable):
			header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return 0, nil
		case err == nil:
			start, end = s, e
			status = http.StatusPartialContent
			header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		}
		// malformed ranges fall through to the full response
	}

	length := end - start + 1
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	c.Status(status)

	if c.Request.Method == http.MethodHead || length <= 0 {
		return 0, nil
	}

	n, err := io.Copy(c.Writer, io.NewSectionReader(f, start, length))
	if err != nil {
		return n, fmt.Errorf("failed to stream artifact: %w", err)
	}
	return n, nil
}
