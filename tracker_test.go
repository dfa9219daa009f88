package pagetrace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/collectors"
	"github.com/pagetrace/pagetrace/remote"
	"github.com/pagetrace/pagetrace/reporting"
	"github.com/pagetrace/pagetrace/types"
)

// fakeDriver implements collectors.PageDriver for tests.
type fakeDriver struct {
	mu       sync.Mutex
	handlers map[collectors.EventType]map[int]collectors.Handler
	next     int
	metrics  map[string]float64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		handlers: make(map[collectors.EventType]map[int]collectors.Handler),
		metrics:  map[string]float64{"first_contentful_paint_ms": 812},
	}
}

func (d *fakeDriver) On(event collectors.EventType, h collectors.Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]collectors.Handler)
	}
	d.handlers[event][d.next] = h
	return d.next
}

func (d *fakeDriver) Off(event collectors.EventType, token int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers[event], token)
}

func (d *fakeDriver) PerformanceMetrics(ctx context.Context) (map[string]float64, error) {
	return d.metrics, nil
}

func (d *fakeDriver) emit(event collectors.EventType, fields map[string]any) {
	d.mu.Lock()
	hs := make([]collectors.Handler, 0, len(d.handlers[event]))
	for _, h := range d.handlers[event] {
		hs = append(hs, h)
	}
	d.mu.Unlock()
	for _, h := range hs {
		h(collectors.Event{Type: event, Timestamp: time.Now(), Fields: fields})
	}
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		ReportsDir:  t.TempDir(),
		ExecutionID: "exec_20250101_120000",
		Policy:      artifacts.DefaultPolicy(),
		Metadata:    map[string]string{"env": "ci"},
		Log:         zap.NewNop().Sugar(),
	}
}

func runScenario(t *testing.T, tr *Tracker, driver *fakeDriver, name string, stepErr error) {
	t.Helper()
	require.NoError(t, tr.BeforeScenario(types.ScenarioDescriptor{
		ScenarioName: name,
		Feature:      "Checkout",
	}, driver))

	require.NoError(t, tr.BeforeStep(types.StepDescriptor{StepKeyword: "Given", StepText: "an open cart"}))
	require.NoError(t, tr.AfterStep(nil))

	driver.emit(collectors.EventConsole, map[string]any{"level": "error", "text": "boom"})
	driver.emit(collectors.EventRequest, map[string]any{"method": "GET", "url": "https://shop.example.com/api/cart"})

	require.NoError(t, tr.BeforeStep(types.StepDescriptor{StepKeyword: "When", StepText: "the order is placed"}))
	require.NoError(t, tr.AfterStep(stepErr))

	require.NoError(t, tr.AfterScenario(context.Background(), nil))
}

func TestTrackerEndToEndLocal(t *testing.T) {
	cfg := newTestConfig(t)
	tr, err := NewTracker(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.BeforeAll(ctx))

	driver := newFakeDriver()
	runScenario(t, tr, driver, "Successful checkout", nil)
	runScenario(t, tr, driver, "Checkout with coupon", nil)
	runScenario(t, tr, driver, "Checkout with expired card", errors.New("Intentional failure"))

	err = tr.AfterAll(ctx)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))

	exec := tr.Execution()
	stats := exec.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, exec.IsSuccessful())

	// All handlers were removed at scenario teardown.
	for event, hs := range driver.handlers {
		assert.Empty(t, hs, "leaked handlers for %s", event)
	}

	runDir := filepath.Join(cfg.ReportsDir, exec.ID())
	data, err := reporting.LoadReport(filepath.Join(runDir, artifacts.LogsDirName))
	require.NoError(t, err)
	assert.Equal(t, exec.ID(), data.ExecutionID)
	assert.Len(t, data.Scenarios, 3)
	assert.False(t, data.IsSuccessful)
	assert.Equal(t, []string{"Checkout with expired card"}, data.FailedScenarioNames)

	// Collector buffers were flushed per scenario.
	consoleFiles, err := os.ReadDir(filepath.Join(runDir, "console"))
	require.NoError(t, err)
	assert.Len(t, consoleFiles, 3)
	perfFiles, err := os.ReadDir(filepath.Join(runDir, "performance"))
	require.NoError(t, err)
	assert.Len(t, perfFiles, 3)

	// The failing scenario carries its attachments in the report.
	failed := data.Scenarios[2]
	assert.Equal(t, types.StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Attachments)
}

func TestTrackerStepFailureFailsScenario(t *testing.T) {
	cfg := newTestConfig(t)
	tr, err := NewTracker(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.BeforeAll(ctx))

	require.NoError(t, tr.BeforeScenario(types.ScenarioDescriptor{
		ScenarioName: "Broken flow",
		Feature:      "Checkout",
	}, nil))
	require.NoError(t, tr.BeforeStep(types.StepDescriptor{StepKeyword: "When", StepText: "it breaks"}))
	require.NoError(t, tr.AfterStep(errors.New("element not found")))
	require.NoError(t, tr.AfterScenario(ctx, nil))

	sc := tr.Execution().Scenarios()[0]
	assert.Equal(t, types.StatusFailed, sc.Status())
	steps := sc.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, "element not found", steps[0].ErrorMessage())
}

func TestTrackerHookOrderErrors(t *testing.T) {
	cfg := newTestConfig(t)
	tr, err := NewTracker(cfg)
	require.NoError(t, err)

	require.Error(t, tr.BeforeScenario(types.ScenarioDescriptor{ScenarioName: "x", Feature: "y"}, nil))
	require.Error(t, tr.BeforeStep(types.StepDescriptor{StepKeyword: "Given", StepText: "z"}))
	require.Error(t, tr.AfterStep(nil))
	require.Error(t, tr.AfterScenario(context.Background(), nil))
	require.Error(t, tr.AfterAll(context.Background()))
}

func TestTrackerGeneratesExecutionID(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ExecutionID = ""
	t.Setenv(EnvExecutionID, "")

	tr, err := NewTracker(cfg)
	require.NoError(t, err)
	require.NoError(t, tr.BeforeAll(context.Background()))
	assert.Regexp(t, `^exec_\d{8}_\d{6}$`, tr.Execution().ID())
}

func TestTrackerEnvExecutionIDOverride(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ExecutionID = ""
	t.Setenv(EnvExecutionID, "exec_from_env")

	tr, err := NewTracker(cfg)
	require.NoError(t, err)
	require.NoError(t, tr.BeforeAll(context.Background()))
	assert.Equal(t, "exec_from_env", tr.Execution().ID())
}

func TestTrackerRemoteLifecycle(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/web/launch" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "launch-42"})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := newTestConfig(t)
	cfg.RemoteEndpoint = srv.URL
	cfg.RemoteProject = "web"
	cfg.RemoteAPIKey = "token"
	cfg.FlushTimeout = 5 * time.Second

	tr, err := NewTracker(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.BeforeAll(ctx))

	// The launch record is on disk as soon as the execution starts.
	rec, err := remote.LoadLaunchRecord(remote.LaunchRecordPath(cfg.ReportsDir, tr.Execution().ID()))
	require.NoError(t, err)
	assert.Equal(t, "launch-42", rec.LaunchID)

	runScenario(t, tr, newFakeDriver(), "Successful checkout", nil)
	require.NoError(t, tr.AfterAll(ctx))

	mu.Lock()
	defer mu.Unlock()
	var finishes int
	for _, p := range paths {
		if p == "PUT /api/v1/web/launch/launch-42/finish" {
			finishes++
		}
	}
	assert.Equal(t, 1, finishes, "confirmed flush must not trigger the direct fallback")
}
