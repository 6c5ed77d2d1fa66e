package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
)

// CounterStore counts hits per key and reports whether key is within limit
// for the window. The Redis cache and MemoryCounterStore implement it.
type CounterStore interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// MemoryCounterStore keeps one token bucket per key in process
type MemoryCounterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryCounterStore creates an empty store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// CheckRateLimit refills limit tokens per window with a burst of limit
func (s *MemoryCounterStore) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.limiters[key]
	if !ok {
		every := rate.Every(window / time.Duration(max(limit, 1)))
		entry = &limiterEntry{limiter: rate.NewLimiter(every, int(limit))}
		s.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1), nil
}

// Cleanup drops limiters idle for longer than maxIdle and returns how many were removed
func (s *MemoryCounterStore) Cleanup(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for key, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done
func (s *MemoryCounterStore) RunCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(maxIdle)
		}
	}
}

// RateLimit middleware limits requests per caller service or IP. A store
// error is logged and the request is let through.
func RateLimit(store CounterStore, limit int64, window time.Duration, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		var key string
		if service, ok := GetService(c); ok && service != "" {
			key = fmt.Sprintf("service:%s", service)
		} else {
			// Fall back to IP address
			key = fmt.Sprintf("ip:%s", c.ClientIP())
		}

		allowed, err := store.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.WithField("key", key).ErrorWithErr("Rate limit check failed", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
