package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// maxResponseBody bounds how much of a receiver's reply is kept for errors
const maxResponseBody = 1024

// Service posts job state changes to the configured receivers. Each
// delivery is attempted once; failures are returned for the caller to log.
type Service struct {
	client *http.Client
	urls   []string
	secret string
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a new webhook service
func NewService(urls []string, secret string, logger *logging.Logger) *Service {
	return &Service{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		urls:   urls,
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether any receiver is configured
func (s *Service) Enabled() bool {
	return len(s.urls) > 0
}

// NotifyJob sends the event matching the job's status to every receiver
func (s *Service) NotifyJob(ctx context.Context, job *models.ProcessingJob) error {
	event, ok := models.WebhookEventFor(job.Status)
	if !ok || !s.Enabled() {
		return nil
	}

	payload, err := json.Marshal(models.WebhookEvent{
		Event:     event,
		Timestamp: s.now().UTC(),
		Data:      job,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var errs []error
	for _, url := range s.urls {
		if err := s.deliver(ctx, url, event, payload); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

// deliver performs one POST
func (s *Service) deliver(ctx context.Context, url, event string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	deliveryID := uuid.New().String()

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Scrubstream-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Delivery", deliveryID)

	// Add HMAC signature if secret is configured
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", GenerateSignature(payload, s.secret))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("receiver returned %d: %s", resp.StatusCode, string(body))
	}

	s.logger.WithFields(map[string]interface{}{
		"event":       event,
		"delivery_id": deliveryID,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Webhook delivered")
	return nil
}

// GenerateSignature generates HMAC-SHA256 signature for webhook payload
func GenerateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a signature header in constant time
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(GenerateSignature(payload, secret)), []byte(signature))
}
