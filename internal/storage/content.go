package storage

import (
	"path/filepath"
	"strings"
)

// ContentType returns the content type based on file extension
func ContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

var videoExtensions = []string{".mp4", ".m4v", ".mov", ".avi", ".mkv", ".webm"}

// IsVideoFile reports whether a file name has a video extension
func IsVideoFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}
