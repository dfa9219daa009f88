package remote

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/types"
)

// Item types understood by the remote service.
const (
	itemTypeFeature  = "SUITE"
	itemTypeScenario = "TEST"
	itemTypeStep     = "STEP"
)

// RemoteReporter maps lifecycle events onto the remote service's
// launch/item/log API. It implements reporting.Reporter. The launch id is
// persisted to the run directory at launch start so that a later process can
// recover and finish the launch.
type RemoteReporter struct {
	client     *Client
	log        *zap.SugaredLogger
	reportsDir string
	launchName string

	launchID           string
	executionID        string
	featureItems       map[string]string
	scenarioItems      map[*types.Scenario]string
	stepItems          map[*types.Step]string
	activeScenarioItem string
	currentItem        string
}

// NewRemoteReporter creates a reporter over an existing client.
func NewRemoteReporter(client *Client, reportsDir, launchName string, log *zap.SugaredLogger) *RemoteReporter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RemoteReporter{
		client:        client,
		log:           log,
		reportsDir:    reportsDir,
		launchName:    launchName,
		featureItems:  make(map[string]string),
		scenarioItems: make(map[*types.Scenario]string),
		stepItems:     make(map[*types.Step]string),
	}
}

// Name implements Reporter.
func (r *RemoteReporter) Name() string { return "remote" }

// LaunchID returns the remote launch id, empty before StartExecution.
func (r *RemoteReporter) LaunchID() string { return r.launchID }

// Client returns the underlying delivery client.
func (r *RemoteReporter) Client() *Client { return r.client }

// StartExecution implements Reporter: it starts the remote launch
// synchronously and persists the launch record for cross-process recovery.
func (r *RemoteReporter) StartExecution(e *types.Execution) error {
	name := r.launchName
	if name == "" {
		name = e.ID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.client.cfg.HTTPTimeout)
	defer cancel()

	launchID, err := r.client.StartLaunch(ctx, name, e.StartTime(), e.Metadata())
	if err != nil {
		return fmt.Errorf("failed to start remote launch: %w", err)
	}
	r.launchID = launchID
	r.executionID = e.ID()

	rec := LaunchRecord{
		LaunchID: launchID,
		Endpoint: r.client.Endpoint(),
		Project:  r.client.Project(),
	}
	if err := rec.Save(LaunchRecordPath(r.reportsDir, e.ID())); err != nil {
		// The launch is usable without the record; only cross-process
		// finalization degrades to the env-var channel.
		r.log.Warnw("Failed to persist launch record", "launch_id", launchID, "error", err)
	}

	r.log.Infow("Remote launch started", "launch_id", launchID, "execution_id", e.ID())
	return nil
}

// StartScenario implements Reporter: features become suite items, scenarios
// become test items nested under their feature.
func (r *RemoteReporter) StartScenario(sc *types.Scenario) error {
	if r.launchID == "" {
		return fmt.Errorf("no remote launch is active")
	}

	featureID, err := r.ensureFeatureItem(sc.FeatureName(), sc.StartTime())
	if err != nil {
		return err
	}

	itemID, err := r.client.StartItem(r.launchID, featureID, sc.Name(), itemTypeScenario, sc.StartTime())
	if err != nil {
		return fmt.Errorf("failed to start scenario item: %w", err)
	}
	r.scenarioItems[sc] = itemID
	r.activeScenarioItem = itemID
	r.currentItem = itemID
	return nil
}

// EndScenario implements Reporter.
func (r *RemoteReporter) EndScenario(sc *types.Scenario) error {
	itemID, ok := r.scenarioItems[sc]
	if !ok {
		return fmt.Errorf("scenario %q was never started remotely", sc.Name())
	}

	end, has := sc.EndTime()
	if !has {
		end = time.Now()
	}
	if reason := sc.FailureReason(); reason != "" {
		_ = r.client.Log(r.launchID, itemID, reason, "error", end, "")
	}
	if err := r.client.FinishItem(r.launchID, itemID, remoteStatus(sc.Status()), end); err != nil {
		return fmt.Errorf("failed to finish scenario item: %w", err)
	}
	r.activeScenarioItem = ""
	r.currentItem = ""
	return nil
}

// StartStep implements Reporter.
func (r *RemoteReporter) StartStep(step *types.Step) error {
	parent := r.activeScenarioItem
	if parent == "" {
		return fmt.Errorf("no scenario item is active for step %q", step.Name())
	}

	name := step.Name()
	if step.Keyword() != "" {
		name = step.Keyword() + " " + name
	}
	itemID, err := r.client.StartItem(r.launchID, parent, name, itemTypeStep, step.StartTime())
	if err != nil {
		return fmt.Errorf("failed to start step item: %w", err)
	}
	r.stepItems[step] = itemID
	r.currentItem = itemID
	return nil
}

// EndStep implements Reporter.
func (r *RemoteReporter) EndStep(step *types.Step) error {
	itemID, ok := r.stepItems[step]
	if !ok {
		return fmt.Errorf("step %q was never started remotely", step.Name())
	}

	end, has := step.EndTime()
	if !has {
		end = time.Now()
	}
	if msg := step.ErrorMessage(); msg != "" {
		_ = r.client.Log(r.launchID, itemID, msg, "error", end, "")
	}
	if err := r.client.FinishItem(r.launchID, itemID, remoteStatus(step.Status()), end); err != nil {
		return fmt.Errorf("failed to finish step item: %w", err)
	}
	r.currentItem = r.activeScenarioItem
	return nil
}

// AttachFile implements Reporter: artifacts become log entries with inlined
// file payloads on the currently active item.
func (r *RemoteReporter) AttachFile(att types.Attachment) error {
	if r.launchID == "" {
		return fmt.Errorf("no remote launch is active")
	}
	message := att.Description
	if message == "" {
		message = string(att.Type)
	}
	return r.client.Log(r.launchID, r.currentItem, message, "info", time.Now(), att.Path)
}

// LogMessage implements Reporter.
func (r *RemoteReporter) LogMessage(message, level string) error {
	if r.launchID == "" {
		return fmt.Errorf("no remote launch is active")
	}
	return r.client.Log(r.launchID, r.currentItem, message, level, time.Now(), "")
}

// EndExecution implements Reporter: it closes the feature items but leaves
// the launch open. Closing the launch is the Finalization Protocol's job,
// which may run in a different process.
func (r *RemoteReporter) EndExecution(e *types.Execution) error {
	end, has := e.EndTime()
	if !has {
		end = time.Now()
	}

	status := "PASSED"
	if !e.IsSuccessful() {
		status = "FAILED"
	}
	for feature, itemID := range r.featureItems {
		if err := r.client.FinishItem(r.launchID, itemID, status, end); err != nil {
			return fmt.Errorf("failed to finish feature item %q: %w", feature, err)
		}
	}
	return nil
}

func (r *RemoteReporter) ensureFeatureItem(feature string, start time.Time) (string, error) {
	if feature == "" {
		return "", nil
	}
	if id, ok := r.featureItems[feature]; ok {
		return id, nil
	}
	id, err := r.client.StartItem(r.launchID, "", feature, itemTypeFeature, start)
	if err != nil {
		return "", fmt.Errorf("failed to start feature item: %w", err)
	}
	r.featureItems[feature] = id
	return id, nil
}

// remoteStatus maps internal statuses to the remote service's vocabulary.
func remoteStatus(s types.Status) string {
	switch s {
	case types.StatusPassed:
		return "PASSED"
	case types.StatusFailed:
		return "FAILED"
	case types.StatusSkipped:
		return "SKIPPED"
	default:
		return "STOPPED"
	}
}
