package monitor

import (
	"sync"
	"time"
)

type MetricsCollector interface {
	Record(metrics StageMetrics)
	Flush() RequestMetrics
}

type InMemoryCollector struct {
	mu        sync.RWMutex
	requestID string
	metrics   map[string]StageMetrics
	startTime time.Time
}

func NewInMemoryCollector(requestID string) *InMemoryCollector {
	return &InMemoryCollector{
		requestID: requestID,
		metrics:   make(map[string]StageMetrics),
		startTime: time.Now(),
	}
}

func (c *InMemoryCollector) Record(metrics StageMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[metrics.Stage] = metrics
}

func (c *InMemoryCollector) Flush() RequestMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stages := make(map[string]StageMetrics, len(c.metrics))
	for k, v := range c.metrics {
		stages[k] = v
	}

	end := time.Now()
	return RequestMetrics{
		RequestID:     c.requestID,
		TotalDuration: end.Sub(c.startTime),
		Stages:        stages,
		StartTime:     c.startTime,
		EndTime:       end,
	}
}

// Track runs fn as stage and records how long it took and whether it
// failed. fn reports how many items it produced.
func Track(c MetricsCollector, stage string, fn func() (int, error)) error {
	start := time.Now()
	items, err := fn()
	m := StageMetrics{Stage: stage, Items: items, Duration: time.Since(start), Success: err == nil}
	if err != nil {
		m.Error = err.Error()
	}
	c.Record(m)
	return err
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) Record(metrics StageMetrics) {}

func (c *NoOpCollector) Flush() RequestMetrics {
	return RequestMetrics{}
}
