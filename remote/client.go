// Package remote maps execution lifecycle events onto a remote
// test-management service's launch/item/log API and guarantees the launch is
// closed out even when finalization happens in a different process.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/metrics"
)

const (
	defaultQueueSize   = 256
	defaultHTTPTimeout = 10 * time.Second
)

// ClientConfig configures the remote service client.
type ClientConfig struct {
	Endpoint    string // service base URL, e.g. https://reports.example.com
	Project     string
	APIKey      string
	QueueSize   int
	HTTPTimeout time.Duration
	Log         *zap.SugaredLogger
}

// Client talks to the remote test-management service. Launch creation is
// synchronous because callers need the launch id immediately; everything else
// goes through an internal asynchronous delivery queue and is not guaranteed
// to be sent before the enqueueing call returns. Flush forces the queue to
// drain within a deadline.
type Client struct {
	cfg   ClientConfig
	httpc *http.Client
	queue chan queued
	wg    sync.WaitGroup

	// Deliveries that failed since the last flush. A flush only counts as
	// confirmed when this is zero: a drained queue with dropped requests is
	// not a delivered queue.
	failed atomic.Int64

	mu     sync.Mutex
	closed bool
}

// queued is one pending delivery. A nil request with a non-nil done channel
// is a flush marker: the worker closes done when it reaches the marker.
type queued struct {
	method string
	path   string
	body   any
	done   chan struct{}
}

// NewClient creates a client and starts its delivery worker.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("remote project is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	c := &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.HTTPTimeout},
		queue: make(chan queued, cfg.QueueSize),
	}

	c.wg.Add(1)
	go c.processQueue()
	return c, nil
}

// Endpoint returns the configured service base URL.
func (c *Client) Endpoint() string { return c.cfg.Endpoint }

// Project returns the configured project name.
func (c *Client) Project() string { return c.cfg.Project }

// StartLaunch creates a new launch and returns its id. This call is
// synchronous: the id is needed for the persisted launch record before any
// other event may be reported.
func (c *Client) StartLaunch(ctx context.Context, name string, start time.Time, attributes map[string]string) (string, error) {
	body := map[string]any{
		"name":      name,
		"startTime": epochMillis(start),
	}
	if len(attributes) > 0 {
		attrs := make([]map[string]string, 0, len(attributes))
		for k, v := range attributes {
			attrs = append(attrs, map[string]string{"key": k, "value": v})
		}
		body["attributes"] = attrs
	}

	respBody, err := c.send(ctx, http.MethodPost, c.launchPath(""), body)
	if err != nil {
		return "", fmt.Errorf("failed to start launch: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse start-launch response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("start-launch response carried no id")
	}
	return resp.ID, nil
}

// FinishLaunch enqueues a finish-launch request.
func (c *Client) FinishLaunch(launchID string, end time.Time) error {
	return c.enqueue(http.MethodPut, c.launchPath(launchID)+"/finish", map[string]any{
		"endTime": epochMillis(end),
	})
}

// StartItem enqueues creation of a nested report item (feature, scenario or
// step) and returns its client-generated id. parentID is empty for top-level
// items.
func (c *Client) StartItem(launchID, parentID, name, itemType string, start time.Time) (string, error) {
	id := uuid.NewString()
	path := c.projectPath("item")
	if parentID != "" {
		path += "/" + parentID
	}
	err := c.enqueue(http.MethodPost, path, map[string]any{
		"uuid":       id,
		"launchUuid": launchID,
		"name":       name,
		"type":       itemType,
		"startTime":  epochMillis(start),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishItem enqueues completion of a report item.
func (c *Client) FinishItem(launchID, itemID, status string, end time.Time) error {
	return c.enqueue(http.MethodPut, c.projectPath("item")+"/"+itemID, map[string]any{
		"launchUuid": launchID,
		"status":     status,
		"endTime":    epochMillis(end),
	})
}

// Log enqueues a log entry for an item. When attachmentPath is non-empty the
// file content is inlined into the payload.
func (c *Client) Log(launchID, itemID, message, level string, at time.Time, attachmentPath string) error {
	body := map[string]any{
		"launchUuid": launchID,
		"itemUuid":   itemID,
		"message":    message,
		"level":      strings.ToLower(level),
		"time":       epochMillis(at),
	}
	if attachmentPath != "" {
		data, err := os.ReadFile(attachmentPath)
		if err != nil {
			return fmt.Errorf("failed to read attachment %s: %w", attachmentPath, err)
		}
		body["file"] = map[string]string{
			"name":    filepath.Base(attachmentPath),
			"content": base64.StdEncoding.EncodeToString(data),
		}
	}
	return c.enqueue(http.MethodPost, c.projectPath("log"), body)
}

// Flush forces the delivery queue to drain. It returns nil only when every
// request enqueued before the call has been delivered to the service; an
// error means either the queue could not be verified in time or at least one
// delivery since the previous flush failed and was dropped.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	marker := queued{done: make(chan struct{})}
	c.queue <- marker
	c.mu.Unlock()

	select {
	case <-marker.done:
		if n := c.failed.Swap(0); n > 0 {
			return fmt.Errorf("%d deliveries failed since last flush", n)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush not confirmed: %w", ctx.Err())
	}
}

// Close stops the delivery worker after draining the queue.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Client) enqueue(method, path string, body any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	c.queue <- queued{method: method, path: path, body: body}
	return nil
}

// processQueue delivers queued requests in order. Delivery failures are
// logged and counted but never stop the worker.
func (c *Client) processQueue() {
	defer c.wg.Done()

	for q := range c.queue {
		if q.done != nil {
			close(q.done)
			continue
		}
		if _, err := c.send(context.Background(), q.method, q.path, q.body); err != nil {
			c.cfg.Log.Warnw("Remote delivery failed", "method", q.method, "path", q.path, "error", err)
			c.failed.Add(1)
			metrics.RecordError("remote_delivery")
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.cfg.Endpoint, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("unexpected status %d from %s %s", resp.StatusCode, method, path)
	}
	return respBody, nil
}

func (c *Client) projectPath(resource string) string {
	return "/api/v1/" + c.cfg.Project + "/" + resource
}

func (c *Client) launchPath(launchID string) string {
	p := c.projectPath("launch")
	if launchID != "" {
		p += "/" + launchID
	}
	return p
}

// epochMillis renders a timestamp the way the service's API expects it.
func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
