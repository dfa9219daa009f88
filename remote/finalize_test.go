package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/types"
)

// finishRecorder counts finish-launch requests against the fake service.
type finishRecorder struct {
	mu       sync.Mutex
	paths    []string
	bodies   []map[string]string
	respCode int
}

func (f *finishRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.paths = append(f.paths, r.Method+" "+r.URL.Path)
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()

		if f.respCode != 0 {
			w.WriteHeader(f.respCode)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (f *finishRecorder) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.paths))
	copy(out, f.paths)
	return out
}

func TestFinalizeSkipsWhenNothingRecoverable(t *testing.T) {
	rec := &finishRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	t.Setenv(EnvLaunchID, "")
	fin := NewFinalizer(FinalizeConfig{
		ReportsDir:  t.TempDir(),
		ExecutionID: "exec_20250101_120000",
		Endpoint:    srv.URL,
		Project:     "proj",
	})
	fin.Finalize(context.Background(), nil)

	assert.Empty(t, rec.recorded())
}

func TestFinalizeFromPersistedRecordIssuesOneDirectFinish(t *testing.T) {
	rec := &finishRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	reportsDir := t.TempDir()
	execID := "exec_20250101_120000"
	record := LaunchRecord{LaunchID: "launch-77", Endpoint: srv.URL, Project: "proj"}
	require.NoError(t, record.Save(LaunchRecordPath(reportsDir, execID)))

	fin := NewFinalizer(FinalizeConfig{
		ReportsDir:  reportsDir,
		ExecutionID: execID,
		APIKey:      "secret-token",
		SettleDelay: 0,
	})
	fin.Finalize(context.Background(), nil)

	got := rec.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, "PUT /api/v1/proj/launch/launch-77/finish", got[0])

	rec.mu.Lock()
	body := rec.bodies[0]
	rec.mu.Unlock()
	assert.NotEmpty(t, body["endTime"])
}

func TestFinalizeTreatsAlreadyFinishedAsSuccess(t *testing.T) {
	rec := &finishRecorder{respCode: http.StatusBadRequest}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	t.Setenv(EnvLaunchID, "launch-99")
	fin := NewFinalizer(FinalizeConfig{
		ReportsDir:  t.TempDir(),
		ExecutionID: "exec_20250101_120000",
		Endpoint:    srv.URL,
		Project:     "proj",
		SettleDelay: 0,
	})
	fin.Finalize(context.Background(), nil)

	require.Len(t, rec.recorded(), 1)
}

func TestFinalizeWithLiveReporterFlushesQueue(t *testing.T) {
	svc := &fakeService{launchID: "launch-1"}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Project: "proj"})
	require.NoError(t, err)
	defer client.Close()

	reportsDir := t.TempDir()
	reporter := NewRemoteReporter(client, reportsDir, "nightly", zap.NewNop().Sugar())

	exec, err := types.NewExecution("exec_20250101_120000")
	require.NoError(t, err)
	require.NoError(t, reporter.StartExecution(exec))
	require.NoError(t, reporter.EndExecution(exec))

	fin := NewFinalizer(FinalizeConfig{
		ReportsDir:   reportsDir,
		ExecutionID:  exec.ID(),
		SettleDelay:  0,
		FlushTimeout: 5 * time.Second,
	})
	fin.Finalize(context.Background(), reporter)

	// The confirmed flush means no direct fallback request: the only
	// finish-launch delivery goes through the client queue.
	var finishes int
	for _, r := range svc.recorded() {
		if r.Method == http.MethodPut && r.Path == "/api/v1/proj/launch/launch-1/finish" {
			finishes++
		}
	}
	assert.Equal(t, 1, finishes)
}

func TestFinalizeFallsBackWhenQueuedFinishFails(t *testing.T) {
	var mu sync.Mutex
	var finishes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/proj/launch" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "launch-5"})
			return
		}
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/finish") {
			mu.Lock()
			finishes++
			first := finishes == 1
			mu.Unlock()
			// Drop the queued finish; the direct retry succeeds.
			if first {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Project: "proj"})
	require.NoError(t, err)
	defer client.Close()

	reportsDir := t.TempDir()
	reporter := NewRemoteReporter(client, reportsDir, "nightly", zap.NewNop().Sugar())

	exec, err := types.NewExecution("exec_20250101_120000")
	require.NoError(t, err)
	require.NoError(t, reporter.StartExecution(exec))
	require.NoError(t, reporter.EndExecution(exec))

	fin := NewFinalizer(FinalizeConfig{
		ReportsDir:   reportsDir,
		ExecutionID:  exec.ID(),
		SettleDelay:  0,
		FlushTimeout: 5 * time.Second,
	})
	fin.Finalize(context.Background(), reporter)

	// The drained queue is not enough: the finish delivery failed, so the
	// launch is still open and the direct request must close it.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, finishes)
}
