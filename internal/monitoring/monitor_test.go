package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
)

type fakeQueue struct {
	depth int
	err   error
}

func (q *fakeQueue) GetQueueDepth() (int, error) {
	return q.depth, q.err
}

func TestCollect(t *testing.T) {
	queue := &fakeQueue{depth: 7}
	checks := map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	m := NewMonitor(queue, checks, 0, logging.Nop())

	m.Collect(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, 7, snap.QueueDepth)
	assert.Equal(t, map[string]bool{"database": true, "redis": false}, snap.Healthy)
	assert.False(t, snap.LastUpdated.IsZero())
	assert.False(t, m.Healthy())

	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DependencyUp.WithLabelValues("database")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.DependencyUp.WithLabelValues("redis")))
}

func TestCollect_KeepsLastDepthOnError(t *testing.T) {
	queue := &fakeQueue{depth: 3}
	m := NewMonitor(queue, nil, 0, logging.Nop())

	m.Collect(context.Background())
	queue.err = errors.New("channel closed")
	m.Collect(context.Background())

	assert.Equal(t, 3, m.Snapshot().QueueDepth)
	assert.True(t, m.Healthy())
}

func TestCollect_WithoutQueue(t *testing.T) {
	m := NewMonitor(nil, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	}, 0, logging.Nop())

	m.Collect(context.Background())
	assert.Equal(t, 0, m.Snapshot().QueueDepth)
	assert.True(t, m.Healthy())
}
