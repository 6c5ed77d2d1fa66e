package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/metrics"
)

// Snapshot holds the last sampled state of the dependencies
type Snapshot struct {
	QueueDepth  int             `json:"queue_depth"`
	Healthy     map[string]bool `json:"healthy"`
	LastUpdated time.Time       `json:"last_updated"`
}

// QueueProvider defines the interface for queue metrics
type QueueProvider interface {
	GetQueueDepth() (int, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Monitor periodically samples queue depth and dependency health into
// Prometheus gauges.
type Monitor struct {
	mu       sync.RWMutex
	snapshot Snapshot

	queue    QueueProvider
	checks   map[string]HealthCheck
	interval time.Duration
	logger   *logging.Logger
}

// NewMonitor creates a monitor. queue may be nil when tasks run in-process.
func NewMonitor(queue QueueProvider, checks map[string]HealthCheck, interval time.Duration, logger *logging.Logger) *Monitor {
	return &Monitor{
		snapshot: Snapshot{Healthy: make(map[string]bool)},
		queue:    queue,
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

// Start begins sampling until ctx is done
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Collect(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Collect(ctx)
			}
		}
	}()
}

// Collect takes one sample
func (m *Monitor) Collect(ctx context.Context) {
	healthy := make(map[string]bool, len(m.checks))
	for name, check := range m.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()

		healthy[name] = err == nil
		metrics.RecordDependencyHealth(name, err == nil)
		if err != nil {
			m.logger.WithField("dependency", name).ErrorWithErr("Health check failed", err)
		}
	}

	depth := -1
	if m.queue != nil {
		d, err := m.queue.GetQueueDepth()
		if err != nil {
			m.logger.ErrorWithErr("Failed to get queue depth", err)
		} else {
			depth = d
			metrics.RecordQueueDepth(d)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if depth >= 0 {
		m.snapshot.QueueDepth = depth
	}
	m.snapshot.Healthy = healthy
	m.snapshot.LastUpdated = time.Now()
}

// Snapshot returns a copy of the last sample
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.Healthy = make(map[string]bool, len(m.snapshot.Healthy))
	for k, v := range m.snapshot.Healthy {
		s.Healthy[k] = v
	}
	return s
}

// Healthy reports whether every dependency passed its last check
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ok := range m.snapshot.Healthy {
		if !ok {
			return false
		}
	}
	return true
}
