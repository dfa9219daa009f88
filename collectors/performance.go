package collectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/metrics"
	"github.com/pagetrace/pagetrace/types"
)

// PerformanceCollector takes point-in-time snapshots of the page's
// performance metrics. Unlike the console and network collectors it is
// pull-based: Collect queries the driver and appends one snapshot entry.
type PerformanceCollector struct {
	driver PageDriver
	log    *zap.SugaredLogger

	mu       sync.Mutex
	buffer   []Entry
	started  bool
	disposed bool
}

// NewPerformanceCollector creates an idle performance collector.
func NewPerformanceCollector(driver PageDriver, log *zap.SugaredLogger) *PerformanceCollector {
	return &PerformanceCollector{driver: driver, log: log}
}

// Start marks the collector active. There is no subscription to set up.
func (c *PerformanceCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.started = true
}

// Stop marks the collector inactive without clearing the buffer.
func (c *PerformanceCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// Dispose marks the collector unusable. Idempotent.
func (c *PerformanceCollector) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.disposed = true
}

// Collect queries the driver for current metrics and buffers a snapshot.
func (c *PerformanceCollector) Collect(ctx context.Context) error {
	c.mu.Lock()
	active := c.started
	c.mu.Unlock()
	if !active {
		return fmt.Errorf("performance collector is not started")
	}

	values, err := c.driver.PerformanceMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to query performance metrics: %w", err)
	}

	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.buffer = append(c.buffer, Entry{Type: "snapshot", Timestamp: time.Now(), Fields: fields})
	return nil
}

// CollectedData returns a defensive copy of the buffer.
func (c *PerformanceCollector) CollectedData() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyEntries(c.buffer)
}

// Clear discards all buffered snapshots.
func (c *PerformanceCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = nil
}

// Metrics returns the per-metric mean across all buffered snapshots.
func (c *PerformanceCollector) Metrics() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, e := range c.buffer {
		for k, v := range e.Fields {
			if f, ok := asFloat(v); ok {
				sums[k] += f
				counts[k]++
			}
		}
	}

	means := make(map[string]float64, len(sums))
	for k, sum := range sums {
		means[k] = sum / float64(counts[k])
	}
	return means
}

// SaveMetrics persists the buffered snapshots under the execution's
// performance directory.
func (c *PerformanceCollector) SaveMetrics(svc *artifacts.Service, executionID, name string) (types.Attachment, bool, error) {
	entries := c.CollectedData()
	metrics.RecordCollectorEntries("performance", executionID, len(entries))
	att, ok, err := saveEntries(svc, executionID, types.AttachmentPerformance, name, "performance metrics snapshots", entries)
	if err != nil {
		c.log.Warnw("Failed to save performance metrics", "execution_id", executionID, "error", err)
	}
	return att, ok, err
}
