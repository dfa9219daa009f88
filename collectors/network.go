package collectors

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/metrics"
	"github.com/pagetrace/pagetrace/types"
)

// NetworkSummary aggregates the current network buffer.
type NetworkSummary struct {
	Requests           int            `json:"requests"`
	Responses          int            `json:"responses"`
	ByStatusClass      map[string]int `json:"by_status_class"`
	FailedResponses    int            `json:"failed_responses"`
	MeanResponseMillis float64        `json:"mean_response_ms"`
}

// NetworkCollector buffers request and response events emitted by the page.
// An optional URL substring filter is applied before buffering: events that
// do not match are dropped, never buffered-then-filtered.
type NetworkCollector struct {
	driver    PageDriver
	log       *zap.SugaredLogger
	urlFilter string

	mu            sync.Mutex
	buffer        []Entry
	requestToken  int
	responseToken int
	started       bool
	disposed      bool
}

// NewNetworkCollector creates a collector that is not yet subscribed.
// urlFilter, when non-empty, restricts buffering to URLs containing it.
func NewNetworkCollector(driver PageDriver, urlFilter string, log *zap.SugaredLogger) *NetworkCollector {
	return &NetworkCollector{driver: driver, urlFilter: urlFilter, log: log}
}

// Start subscribes to the driver's request and response events.
func (c *NetworkCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.disposed {
		return
	}
	c.requestToken = c.driver.On(EventRequest, c.handle)
	c.responseToken = c.driver.On(EventResponse, c.handle)
	c.started = true
}

// Stop unsubscribes from the driver without clearing the buffer.
func (c *NetworkCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *NetworkCollector) stopLocked() {
	if !c.started {
		return
	}
	c.driver.Off(EventRequest, c.requestToken)
	c.driver.Off(EventResponse, c.responseToken)
	c.started = false
}

// Dispose unsubscribes and marks the collector unusable. Idempotent.
func (c *NetworkCollector) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.stopLocked()
	c.disposed = true
}

func (c *NetworkCollector) handle(ev Event) {
	if c.urlFilter != "" {
		url, _ := ev.Fields["url"].(string)
		if !strings.Contains(url, c.urlFilter) {
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	c.buffer = append(c.buffer, Entry{Type: string(ev.Type), Timestamp: ts, Fields: ev.Fields})
}

// CollectedData returns a defensive copy of the buffer.
func (c *NetworkCollector) CollectedData() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyEntries(c.buffer)
}

// Clear discards all buffered entries.
func (c *NetworkCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = nil
}

// Summary computes aggregate counts and the mean response duration over the
// current buffer without mutating it.
func (c *NetworkCollector) Summary() NetworkSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := NetworkSummary{ByStatusClass: make(map[string]int)}
	var durationTotal float64
	var durationCount int

	for _, e := range c.buffer {
		switch EventType(e.Type) {
		case EventRequest:
			summary.Requests++
		case EventResponse:
			summary.Responses++
			if status, ok := asInt(e.Fields["status"]); ok {
				class := statusClass(status)
				summary.ByStatusClass[class]++
				if status >= 400 {
					summary.FailedResponses++
				}
			}
			if ms, ok := asFloat(e.Fields["duration_ms"]); ok {
				durationTotal += ms
				durationCount++
			}
		}
	}

	if durationCount > 0 {
		summary.MeanResponseMillis = durationTotal / float64(durationCount)
	}
	return summary
}

// SaveToFile persists the buffer under the execution's network directory.
func (c *NetworkCollector) SaveToFile(svc *artifacts.Service, executionID, name string) (types.Attachment, bool, error) {
	entries := c.CollectedData()
	metrics.RecordCollectorEntries("network", executionID, len(entries))
	att, ok, err := saveEntries(svc, executionID, types.AttachmentNetwork, name, "network traffic log", entries)
	if err != nil {
		c.log.Warnw("Failed to save network log", "execution_id", executionID, "error", err)
	}
	return att, ok, err
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
