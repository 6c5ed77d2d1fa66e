package models

import "time"

// WebhookEvent represents the payload sent to webhooks
type WebhookEvent struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      *ProcessingJob `json:"data"`
}

// Webhook event types
const (
	WebhookEventJobStarted   = "job.started"
	WebhookEventJobCompleted = "job.completed"
	WebhookEventJobFailed    = "job.failed"
)

// WebhookEventFor maps a job status to the event announcing it
func WebhookEventFor(status JobStatus) (string, bool) {
	switch status {
	case JobStatusProcessing:
		return WebhookEventJobStarted, true
	case JobStatusCompleted:
		return WebhookEventJobCompleted, true
	case JobStatusFailed:
		return WebhookEventJobFailed, true
	}
	return "", false
}
