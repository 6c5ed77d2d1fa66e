package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/config"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/database"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/delivery"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/middleware"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/processing"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/transcoder"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, task processing.Task) error { return nil }

func newTestRouter(t *testing.T, health func(context.Context) error, rateLimit int) *gin.Engine {
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	handler := delivery.NewHandler(store, nopDispatcher{}, transcoder.ArtifactLayout{Root: t.TempDir()}, models.DefaultQualityLadder(), time.Hour, logging.Nop())

	cfg := &config.Config{Delivery: config.DeliveryConfig{RateLimit: rateLimit, RateWindow: time.Minute}}
	return setupRouter(handler, health, middleware.NewServiceAuth(""), middleware.NewMemoryCounterStore(), cfg, logging.Nop())
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, func(context.Context) error { return nil }, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	router = newTestRouter(t, func(context.Context) error { return errors.New("db down") }, 0)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func TestRouter_RateLimitsFileRoutes(t *testing.T) {
	router := newTestRouter(t, func(context.Context) error { return nil }, 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files/file-1/job", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)

	// health is not rate limited
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
