package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
)

func newLimitedRouter(store CounterStore, limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit(store, limit, time.Minute, logging.Nop()))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func doGet(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_MemoryStore(t *testing.T) {
	router := newLimitedRouter(NewMemoryCounterStore(), 2)

	// First two requests should succeed
	for i := 0; i < 2; i++ {
		w := doGet(router, "10.0.0.1:1234")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	// Third request should be rate limited
	w := doGet(router, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Another client is unaffected
	assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.2:1234").Code)
}

func TestMemoryCounterStore_Refill(t *testing.T) {
	store := NewMemoryCounterStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _ := store.CheckRateLimit(ctx, "k", 3, 3*time.Second)
		assert.True(t, ok)
	}
	ok, _ := store.CheckRateLimit(ctx, "k", 3, 3*time.Second)
	assert.False(t, ok)

	now = now.Add(time.Second)
	ok, _ = store.CheckRateLimit(ctx, "k", 3, 3*time.Second)
	assert.True(t, ok)
}

func TestMemoryCounterStore_Cleanup(t *testing.T) {
	store := NewMemoryCounterStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.CheckRateLimit(ctx, "old", 1, time.Minute)
	now = now.Add(time.Hour)
	store.CheckRateLimit(ctx, "fresh", 1, time.Minute)

	assert.Equal(t, 1, store.Cleanup(30*time.Minute))
	assert.Len(t, store.limiters, 1)
	assert.Contains(t, store.limiters, "fresh")
}

type mockCounterStore struct {
	mock.Mock
}

func (m *mockCounterStore) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	args := m.Called(key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestRateLimit_UsesInjectedStore(t *testing.T) {
	store := new(mockCounterStore)
	store.On("CheckRateLimit", "ip:10.0.0.9", int64(5), time.Minute).Return(false, nil).Once()

	w := doGet(newLimitedRouter(store, 5), "10.0.0.9:80")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	store.AssertExpectations(t)
}

func TestRateLimit_StoreErrorFailsOpen(t *testing.T) {
	store := new(mockCounterStore)
	store.On("CheckRateLimit", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))

	w := doGet(newLimitedRouter(store, 5), "10.0.0.9:80")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	store := new(mockCounterStore)

	w := doGet(newLimitedRouter(store, 0), "10.0.0.9:80")
	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertNotCalled(t, "CheckRateLimit", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	router := gin.New()
	router.Use(Logger(logging.NewWithWriter(&buf, "info")))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test?t=3", nil))

	assert.Contains(t, buf.String(), `"path":"/test?t=3"`)
	assert.Contains(t, buf.String(), `"status_code":418`)
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Contains(t, buf.String(), `"request_id":"`+generated+`"`)

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}
