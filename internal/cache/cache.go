package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Job Cache Operations

func jobKey(fileID string) string {
	return fmt.Sprintf("job:file:%s", fileID)
}

func jobGenKey(fileID string) string {
	return fmt.Sprintf("job:gen:%s", fileID)
}

// jobGenTTL bounds how long an idle generation counter is kept
const jobGenTTL = 24 * time.Hour

// FillJob runs load and caches its result, unless InvalidateJob ran for
// the file between the start of load and the cache write. A read that
// raced a write therefore never puts the older record back. The loaded
// job is returned even when it was not cached; it is nil if load never
// ran.
func (c *Cache) FillJob(ctx context.Context, fileID string, ttl time.Duration, load func(context.Context) (*models.ProcessingJob, error)) (*models.ProcessingJob, error) {
	var loaded *models.ProcessingJob
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		job, err := load(ctx)
		if err != nil {
			return err
		}
		loaded = job

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(fileID), data, ttl)
			return nil
		})
		return err
	}, jobGenKey(fileID))

	if errors.Is(err, redis.TxFailedErr) {
		return loaded, nil
	}
	return loaded, err
}

// InvalidateJob bumps the generation of a file and evicts its cached job
func (c *Cache) InvalidateJob(ctx context.Context, fileID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, jobGenKey(fileID))
		pipe.Expire(ctx, jobGenKey(fileID), jobGenTTL)
		pipe.Del(ctx, jobKey(fileID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate job: %w", err)
	}
	return nil
}

// GetJob retrieves a cached job. A miss returns nil without an error.
func (c *Cache) GetJob(ctx context.Context, fileID string) (*models.ProcessingJob, error) {
	data, err := c.client.Get(ctx, jobKey(fileID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get job from cache: %w", err)
	}

	var job models.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// Rate Limiting Operations

// CheckRateLimit counts a hit against key in a fixed window and reports
// whether the caller is still within limit.
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	// Increment counter
	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
