package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobStatus is the state of a processing job
type JobStatus string

// JobStatus constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ErrInvalidTransition is returned when a status change breaks the job state machine
var ErrInvalidTransition = errors.New("invalid job status transition")

// transitions lists the allowed forward moves. Going back to pending is
// only possible through a reset, which is not a transition.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is completed or failed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProcessingJob is the single live processing record of a source file
type ProcessingJob struct {
	ID                string          `json:"id" db:"id"`
	SourceFileID      string          `json:"source_file_id" db:"source_file_id"`
	SourcePath        string          `json:"source_path" db:"source_path"`
	Stem              string          `json:"stem" db:"stem"`
	Status            JobStatus       `json:"status" db:"status"`
	RunID             string          `json:"run_id" db:"run_id"`
	Renditions        Renditions      `json:"renditions" db:"renditions"`
	Scrub             *ScrubRendition `json:"scrub,omitempty" db:"scrub"`
	SpriteMetadata    *SpriteMetadata `json:"sprite_metadata,omitempty" db:"sprite_metadata"`
	DurationSeconds   *int            `json:"duration_seconds,omitempty" db:"duration_seconds"`
	FrameRate         *int            `json:"frame_rate,omitempty" db:"frame_rate"`
	ErrorMessage      *string         `json:"error_message,omitempty" db:"error_message"`
	SourceUnavailable bool            `json:"source_unavailable,omitempty" db:"source_unavailable"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty" db:"started_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

// Transition moves the job to the given status if the state machine allows it
func (j *ProcessingJob) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// Reset returns the job to pending under a new run and drops every
// artifact reference. Reprocessing always replaces results, it never
// appends to them.
func (j *ProcessingJob) Reset(sourcePath, stem, runID string) {
	j.SourcePath = sourcePath
	j.Stem = stem
	j.Status = JobStatusPending
	j.RunID = runID
	j.Renditions = Renditions{}
	j.Scrub = nil
	j.SpriteMetadata = nil
	j.DurationSeconds = nil
	j.FrameRate = nil
	j.ErrorMessage = nil
	j.SourceUnavailable = false
	j.StartedAt = nil
	j.ProcessedAt = nil
}

// Rendition finds a rendition by quality name
func (j *ProcessingJob) Rendition(quality string) (*Rendition, bool) {
	for i := range j.Renditions {
		if j.Renditions[i].QualityName == quality {
			return &j.Renditions[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so stores never share slices with callers
func (j *ProcessingJob) Clone() *ProcessingJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Renditions = append(Renditions{}, j.Renditions...)
	if j.Scrub != nil {
		s := *j.Scrub
		c.Scrub = &s
	}
	if j.SpriteMetadata != nil {
		c.SpriteMetadata = j.SpriteMetadata.Clone()
	}
	c.DurationSeconds = cloneInt(j.DurationSeconds)
	c.FrameRate = cloneInt(j.FrameRate)
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	c.StartedAt = cloneTime(j.StartedAt)
	c.ProcessedAt = cloneTime(j.ProcessedAt)
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}

// Rendition is a transcoded playback copy of the source
type Rendition struct {
	QualityName string `json:"quality_name"`
	FilePath    string `json:"file_path"`
	ByteSize    int64  `json:"byte_size"`
	BitrateKbps int    `json:"bitrate_kbps"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Renditions is stored as a JSONB array
type Renditions []Rendition

// Value implements driver.Valuer for database storage
func (r Renditions) Value() (driver.Value, error) {
	if r == nil {
		r = Renditions{}
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for database retrieval
func (r *Renditions) Scan(value interface{}) error {
	if value == nil {
		*r = Renditions{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	}
	return nil
}

// ScrubRendition is the muted all-keyframe seek copy
type ScrubRendition struct {
	FilePath    string `json:"file_path"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Scrub rendition geometry is fixed
const (
	ScrubWidth  = 640
	ScrubHeight = 360
)
