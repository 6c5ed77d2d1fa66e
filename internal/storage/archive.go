package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
)

// FileUploader uploads a local file under an object name
type FileUploader interface {
	UploadFile(ctx context.Context, objectName, filePath string) (int64, error)
}

// Archiver copies finished artifacts of a file into object storage.
// Objects are keyed <fileID>/<subdir>/<name>, mirroring the local layout.
type Archiver struct {
	uploader FileUploader
	bucket   string
	logger   *logging.Logger
}

// NewArchiver creates an archiver
func NewArchiver(uploader FileUploader, bucket string, logger *logging.Logger) *Archiver {
	return &Archiver{uploader: uploader, bucket: bucket, logger: logger}
}

// ObjectName returns the archive key of a local artifact path
func ObjectName(fileID, filePath string) string {
	return path.Join(fileID, filepath.Base(filepath.Dir(filePath)), filepath.Base(filePath))
}

// Archive uploads every path and joins the failures
func (a *Archiver) Archive(ctx context.Context, fileID string, paths []string) error {
	var errs []error
	for _, p := range paths {
		objectName := ObjectName(fileID, p)
		start := time.Now()

		size, err := a.uploader.UploadFile(ctx, objectName, p)
		a.logger.LogStorageOperation("archive", a.bucket, objectName, size, time.Since(start), err)
		if err != nil {
			metrics.RecordStorageOperation("archive", "error", 0)
			errs = append(errs, fmt.Errorf("archive %s: %w", objectName, err))
			continue
		}
		metrics.RecordStorageOperation("archive", "success", size)
	}
	return errors.Join(errs...)
}
