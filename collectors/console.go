package collectors

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/metrics"
	"github.com/pagetrace/pagetrace/types"
)

// ConsoleSummary aggregates the current console buffer.
type ConsoleSummary struct {
	Total   int            `json:"total"`
	ByLevel map[string]int `json:"by_level"`
	Errors  int            `json:"errors"`
}

// ConsoleCollector buffers console messages emitted by the page.
type ConsoleCollector struct {
	driver PageDriver
	log    *zap.SugaredLogger

	mu       sync.Mutex
	buffer   []Entry
	token    int
	started  bool
	disposed bool
}

// NewConsoleCollector creates a collector that is not yet subscribed.
func NewConsoleCollector(driver PageDriver, log *zap.SugaredLogger) *ConsoleCollector {
	return &ConsoleCollector{driver: driver, log: log}
}

// Start subscribes to the driver's console events.
func (c *ConsoleCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.disposed {
		return
	}
	c.token = c.driver.On(EventConsole, c.handle)
	c.started = true
}

// Stop unsubscribes from the driver without clearing the buffer.
func (c *ConsoleCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *ConsoleCollector) stopLocked() {
	if !c.started {
		return
	}
	c.driver.Off(EventConsole, c.token)
	c.started = false
}

// Dispose unsubscribes and marks the collector unusable. It is idempotent and
// must be called before the underlying page is torn down.
func (c *ConsoleCollector) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.stopLocked()
	c.disposed = true
}

// handle may be invoked from the driver's goroutines at any time between
// Start and Dispose.
func (c *ConsoleCollector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	c.buffer = append(c.buffer, Entry{Type: levelOf(ev), Timestamp: ts, Fields: ev.Fields})
}

func levelOf(ev Event) string {
	if level, ok := ev.Fields["level"].(string); ok && level != "" {
		return level
	}
	return "log"
}

// CollectedData returns a defensive copy of the buffer. Mutating the returned
// slice or its field maps never affects the collector's internal state.
func (c *ConsoleCollector) CollectedData() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyEntries(c.buffer)
}

// Clear discards all buffered entries.
func (c *ConsoleCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = nil
}

// Summary computes aggregate counts over the current buffer without
// mutating it.
func (c *ConsoleCollector) Summary() ConsoleSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := ConsoleSummary{ByLevel: make(map[string]int)}
	for _, e := range c.buffer {
		summary.Total++
		summary.ByLevel[e.Type]++
		if e.Type == "error" {
			summary.Errors++
		}
	}
	return summary
}

// SaveToFile persists the buffer under the execution's console directory.
// The returned ok is false when console attachments are disabled by policy.
func (c *ConsoleCollector) SaveToFile(svc *artifacts.Service, executionID, name string) (types.Attachment, bool, error) {
	entries := c.CollectedData()
	metrics.RecordCollectorEntries("console", executionID, len(entries))
	att, ok, err := saveEntries(svc, executionID, types.AttachmentConsole, name, "browser console log", entries)
	if err != nil {
		c.log.Warnw("Failed to save console log", "execution_id", executionID, "error", err)
	}
	return att, ok, err
}
