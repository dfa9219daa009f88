package collectors

import (
	"context"
	"sync"
)

// fakeDriver is an in-memory PageDriver for tests. Emit fans an event out to
// the handlers currently subscribed for its type.
type fakeDriver struct {
	mu       sync.Mutex
	next     int
	handlers map[EventType]map[int]Handler
	metrics  map[string]float64
	metErr   error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{handlers: make(map[EventType]map[int]Handler)}
}

func (d *fakeDriver) On(event EventType, h Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]Handler)
	}
	d.handlers[event][d.next] = h
	return d.next
}

func (d *fakeDriver) Off(event EventType, token int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers[event], token)
}

func (d *fakeDriver) PerformanceMetrics(ctx context.Context) (map[string]float64, error) {
	if d.metErr != nil {
		return nil, d.metErr
	}
	out := make(map[string]float64, len(d.metrics))
	for k, v := range d.metrics {
		out[k] = v
	}
	return out, nil
}

func (d *fakeDriver) Emit(ev Event) {
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.handlers[ev.Type]))
	for _, h := range d.handlers[ev.Type] {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (d *fakeDriver) subscriberCount(event EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[event])
}
