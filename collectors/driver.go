// Package collectors buffers asynchronous telemetry emitted by a live page
// and persists it to per-scenario files through the artifacts service.
package collectors

import (
	"context"
	"time"
)

// EventType identifies a class of page events a driver can deliver.
type EventType string

const (
	EventConsole  EventType = "console"
	EventRequest  EventType = "request"
	EventResponse EventType = "response"
)

// Event is a single page event delivered by the driver. Fields carry the
// free-form payload (level/text for console, method/url/status for network).
type Event struct {
	Type      EventType
	Timestamp time.Time
	Fields    map[string]any
}

// Handler receives page events. Handlers may be invoked from the driver's own
// goroutines at any time between subscription and removal.
type Handler func(Event)

// PageDriver is the minimal surface collectors need from a browser driver:
// push-based subscriptions for console and network events plus a pull-based
// performance metrics query.
type PageDriver interface {
	// On subscribes a handler and returns a token for Off.
	On(event EventType, h Handler) int
	// Off removes a previously registered handler.
	Off(event EventType, token int)
	// PerformanceMetrics queries the page's current performance metrics.
	PerformanceMetrics(ctx context.Context) (map[string]float64, error)
}
