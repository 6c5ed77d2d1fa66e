package models

// SourceMedia holds the probed properties of an uploaded video.
// It is derived once per job and never persisted on its own.
type SourceMedia struct {
	DurationSeconds float64 `json:"duration_seconds"`
	FrameRate       float64 `json:"frame_rate"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Bitrate         int64   `json:"bitrate"`
}
