package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/metrics"
)

const (
	defaultFlushTimeout = 10 * time.Second
	defaultSettleDelay  = 2 * time.Second
)

// FinalizeConfig configures the Finalization Protocol.
type FinalizeConfig struct {
	ReportsDir  string
	ExecutionID string

	// Connection details used when no persisted record supplies them.
	Endpoint string
	Project  string
	APIKey   string

	// FlushTimeout bounds the wait for the delivery queue to drain.
	FlushTimeout time.Duration
	// SettleDelay is a pragmatic upper-bound wait for asynchronous
	// write-behind mechanisms (queued delivery, video encoding) to settle
	// before the process exits. It is a heuristic, not a guarantee.
	SettleDelay time.Duration

	Log *zap.SugaredLogger
}

// Finalizer closes out a remote launch. It runs once per execution, possibly
// in a different process than the one that started the launch. Every step is
// wrapped so a failure at one step still lets the remaining steps proceed;
// Finalize never returns an error and never panics.
type Finalizer struct {
	cfg   FinalizeConfig
	httpc *http.Client
	now   func() time.Time
}

// NewFinalizer creates a finalizer with defaults applied.
func NewFinalizer(cfg FinalizeConfig) *Finalizer {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	return &Finalizer{
		cfg:   cfg,
		httpc: &http.Client{Timeout: defaultHTTPTimeout},
		now:   time.Now,
	}
}

// Finalize runs the protocol:
//
//  1. Recover the launch id: a live reporter first, then the persisted
//     launch record, then the environment variable.
//  2. Nothing recoverable: log and skip; local reporting is unaffected.
//  3. With a live reporter: issue finish-launch through the client and force
//     a synchronous flush of its delivery queue.
//  4. When the flush cannot be confirmed, any delivery was dropped, or there
//     is no live client at all, issue one direct synchronous finish request
//     against the service.
func (f *Finalizer) Finalize(ctx context.Context, reporter *RemoteReporter) {
	defer func() {
		if rec := recover(); rec != nil {
			f.cfg.Log.Errorw("Finalization panicked", "panic", rec)
		}
	}()

	launchID, endpoint, project := f.recoverLaunch(reporter)
	if launchID == "" {
		f.cfg.Log.Infow("No remote launch to finalize, skipping",
			"execution_id", f.cfg.ExecutionID)
		return
	}

	confirmed := false
	if reporter != nil && reporter.Client() != nil {
		client := reporter.Client()

		if err := client.FinishLaunch(launchID, f.now()); err != nil {
			f.cfg.Log.Warnw("Failed to enqueue finish-launch", "launch_id", launchID, "error", err)
		}

		flushCtx, cancel := context.WithTimeout(ctx, f.cfg.FlushTimeout)
		err := client.Flush(flushCtx)
		cancel()
		if err != nil {
			f.cfg.Log.Warnw("Delivery queue flush not confirmed", "launch_id", launchID, "error", err)
		} else {
			confirmed = true
		}

		// Give queued writes a moment to land before the process exits.
		if f.cfg.SettleDelay > 0 {
			time.Sleep(f.cfg.SettleDelay)
		}
	}

	if !confirmed {
		f.finishDirect(ctx, endpoint, project, launchID)
	}

	f.cfg.Log.Infow("Remote finalization complete",
		"launch_id", launchID, "flush_confirmed", confirmed)
}

// recoverLaunch locates the launch id and connection details.
func (f *Finalizer) recoverLaunch(reporter *RemoteReporter) (launchID, endpoint, project string) {
	if reporter != nil && reporter.LaunchID() != "" {
		return reporter.LaunchID(), reporter.Client().Endpoint(), reporter.Client().Project()
	}

	rec := RecoverLaunchRecord(f.cfg.ReportsDir, f.cfg.ExecutionID, f.cfg.Endpoint, f.cfg.Project)
	if rec == nil {
		return "", "", ""
	}

	endpoint = rec.Endpoint
	if endpoint == "" {
		endpoint = f.cfg.Endpoint
	}
	project = rec.Project
	if project == "" {
		project = f.cfg.Project
	}
	return rec.LaunchID, endpoint, project
}

// finishDirect bypasses the client's queue entirely: one synchronous HTTP
// request against the service's finish endpoint. Its own failure is logged
// and swallowed, since this is itself the last resort.
func (f *Finalizer) finishDirect(ctx context.Context, endpoint, project, launchID string) {
	if endpoint == "" || project == "" {
		f.cfg.Log.Warnw("Cannot issue direct finish, endpoint or project unknown",
			"launch_id", launchID)
		metrics.RecordFinalizeFallback("unconfigured")
		return
	}

	url := fmt.Sprintf("%s/api/v1/%s/launch/%s/finish",
		strings.TrimSuffix(endpoint, "/"), project, launchID)
	body, err := json.Marshal(map[string]string{"endTime": epochMillis(f.now())})
	if err != nil {
		f.cfg.Log.Warnw("Failed to build direct finish request", "error", err)
		metrics.RecordFinalizeFallback("error")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		f.cfg.Log.Warnw("Failed to build direct finish request", "error", err)
		metrics.RecordFinalizeFallback("error")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		f.cfg.Log.Warnw("Direct finish request failed", "launch_id", launchID, "error", err)
		metrics.RecordFinalizeFallback("error")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		f.cfg.Log.Infow("Direct finish succeeded", "launch_id", launchID)
		metrics.RecordFinalizeFallback("ok")
	case resp.StatusCode == http.StatusBadRequest:
		// The service rejects finishing an already-finished launch with 400;
		// at-least-once delivery makes that an expected outcome.
		f.cfg.Log.Infow("Launch already finished", "launch_id", launchID)
		metrics.RecordFinalizeFallback("already_finished")
	default:
		f.cfg.Log.Warnw("Direct finish returned unexpected status",
			"launch_id", launchID, "status", resp.StatusCode)
		metrics.RecordFinalizeFallback("unexpected_status")
	}
}
