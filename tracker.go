// Package pagetrace wires the execution model, collectors, artifact service
// and reporting backends into lifecycle hooks a BDD engine calls around its
// run, scenarios and steps.
package pagetrace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/collectors"
	"github.com/pagetrace/pagetrace/metrics"
	"github.com/pagetrace/pagetrace/remote"
	"github.com/pagetrace/pagetrace/reporting"
	"github.com/pagetrace/pagetrace/service"
	"github.com/pagetrace/pagetrace/types"
)

// EnvExecutionID lets the surrounding harness pin the execution id, so that a
// separate finalize process can locate the same run directory.
const EnvExecutionID = "PAGETRACE_EXECUTION_ID"

// Tracker drives one execution through its lifecycle hooks. It is not safe
// for concurrent use; scenarios run one at a time, the way BDD engines
// execute them.
type Tracker struct {
	cfg *Config
	log *zap.SugaredLogger

	artifacts   *artifacts.Service
	coordinator *reporting.Coordinator
	remoteRep   *remote.RemoteReporter
	client      *remote.Client
	sidecar     *service.Service

	execution *types.Execution

	console     *collectors.ConsoleCollector
	network     *collectors.NetworkCollector
	performance *collectors.PerformanceCollector
	currentStep *types.Step

	now func() time.Time
}

// NewTracker assembles the pipeline: artifacts service, local reporter,
// optional remote reporter, and the coordinator fanning out to both.
func NewTracker(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	svc := artifacts.NewService(cfg.ReportsDir, cfg.Policy, log)

	var reporters []reporting.Reporter
	if cfg.Policy.LocalEnabled {
		local, err := reporting.NewLocalReporter(svc, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create local reporter: %w", err)
		}
		reporters = append(reporters, local)
	}

	t := &Tracker{
		cfg:       cfg,
		log:       log,
		artifacts: svc,
		now:       time.Now,
	}

	if cfg.RemoteEnabled() {
		client, err := remote.NewClient(remote.ClientConfig{
			Endpoint: cfg.RemoteEndpoint,
			Project:  cfg.RemoteProject,
			APIKey:   cfg.RemoteAPIKey,
			Log:      log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		t.client = client
		t.remoteRep = remote.NewRemoteReporter(client, cfg.ReportsDir, cfg.LaunchName, log)
		reporters = append(reporters, t.remoteRep)
	}

	t.coordinator = reporting.NewCoordinator(log, reporters...)
	return t, nil
}

// Coordinator exposes the reporting coordinator, for callers that attach
// files or log messages outside the standard hooks.
func (t *Tracker) Coordinator() *reporting.Coordinator { return t.coordinator }

// Execution returns the current execution, nil before BeforeAll.
func (t *Tracker) Execution() *types.Execution { return t.execution }

// BeforeAll creates the execution and announces it to every backend. The
// execution id comes from the config, then the environment, then is generated
// from the start time.
func (t *Tracker) BeforeAll(ctx context.Context) error {
	if t.execution != nil {
		return errors.New("execution already started")
	}

	id := t.cfg.ExecutionID
	if id == "" {
		id = os.Getenv(EnvExecutionID)
	}
	if id == "" {
		id = types.GenerateExecutionID(t.now())
	}

	exec, err := types.NewExecution(id)
	if err != nil {
		return NewRuntimeError(err)
	}
	for k, v := range t.cfg.Metadata {
		exec.SetMetadata(k, v)
	}
	t.execution = exec

	if t.cfg.Policy.LocalEnabled {
		if _, err := t.artifacts.EnsureLogsDir(id); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to prepare run directory: %w", err))
		}
	}

	if t.cfg.HealthzAddr != "" || t.cfg.MetricsAddr != "" {
		t.sidecar = service.New(service.Config{
			HealthzAddr: t.cfg.HealthzAddr,
			MetricsAddr: t.cfg.MetricsAddr,
			Log:         t.log,
		})
		t.sidecar.Start(ctx)
	}

	t.coordinator.StartExecution(exec)
	t.log.Infow("Execution started", "execution_id", id)
	return nil
}

// BeforeScenario registers a new scenario and starts the telemetry collectors
// against the page driver. A nil driver skips collection for the scenario.
func (t *Tracker) BeforeScenario(info types.ScenarioInfo, driver collectors.PageDriver) error {
	if t.execution == nil {
		return errors.New("BeforeAll must run before BeforeScenario")
	}
	if err := types.ValidateScenarioInfo(info); err != nil {
		return err
	}

	sc, err := t.execution.AddScenario(info.Name(), info.FeatureName(), info.Tags())
	if err != nil {
		return err
	}
	if err := sc.Start(); err != nil {
		return err
	}

	if driver != nil {
		t.console = collectors.NewConsoleCollector(driver, t.log)
		t.network = collectors.NewNetworkCollector(driver, t.cfg.NetworkURLFilter, t.log)
		t.performance = collectors.NewPerformanceCollector(driver, t.log)
		t.console.Start()
		t.network.Start()
		t.performance.Start()
	}

	t.coordinator.StartScenario(sc)
	return nil
}

// BeforeStep registers a step on the current scenario and moves it to running.
func (t *Tracker) BeforeStep(info types.StepInfo) error {
	sc := t.coordinator.CurrentScenario()
	if sc == nil {
		return errors.New("no scenario is active")
	}
	if err := types.ValidateStepInfo(info); err != nil {
		return err
	}

	step := sc.AddStep(info.Keyword(), info.Text())
	if err := step.Start(); err != nil {
		return err
	}
	t.currentStep = step
	t.coordinator.StartStep(step)
	return nil
}

// AfterStep completes the current step. A nil stepErr passes the step, any
// other value fails it with the error's message.
func (t *Tracker) AfterStep(stepErr error) error {
	step := t.currentStep
	if step == nil {
		return errors.New("no step is active")
	}
	t.currentStep = nil

	var err error
	if stepErr == nil {
		err = step.CompleteSuccessfully()
	} else {
		err = step.Fail(stepErr.Error())
	}
	if err != nil {
		return err
	}

	t.coordinator.EndStep(step)
	metrics.RecordStep(t.execution.ID(), step.Status())
	return nil
}

// AfterScenario closes out the current scenario: a final performance pull,
// collector buffers flushed to files and attached, collectors disposed, and
// the scenario's derived status announced. scenarioErr forces a failure even
// when every step passed.
func (t *Tracker) AfterScenario(ctx context.Context, scenarioErr error) error {
	sc := t.coordinator.CurrentScenario()
	if sc == nil {
		return errors.New("no scenario is active")
	}

	if t.performance != nil {
		if err := t.performance.Collect(ctx); err != nil {
			t.log.Warnw("Final performance collection failed", "scenario", sc.Name(), "error", err)
		}
	}

	t.stopCollectors()
	t.flushCollectors(sc)
	t.disposeCollectors()

	if scenarioErr != nil {
		sc.Fail(scenarioErr.Error())
	}
	status := sc.Complete()

	t.coordinator.EndScenario(sc)
	metrics.RecordScenario(t.execution.ID(), sc.FeatureName(), status)
	t.log.Infow("Scenario finished", "scenario", sc.Name(), "status", status)
	return nil
}

// AfterAll completes the execution, renders the console table, records
// metrics and runs the remote finalization. It returns a TestFailureError
// when any scenario failed, so the caller can map it to exit code 1.
func (t *Tracker) AfterAll(ctx context.Context) error {
	if t.execution == nil {
		return errors.New("no execution is active")
	}

	t.execution.Complete()
	t.coordinator.EndExecution(t.execution)

	PrintResultsTable(reporting.NewReportBuilder().BuildFromExecution(t.execution))

	stats := t.execution.Stats()
	metrics.RecordExecution(t.execution.ID(), t.execution.IsSuccessful(), stats, t.execution.Duration().Std())

	t.Finalize(ctx)

	if t.sidecar != nil {
		t.sidecar.Shutdown()
	}

	if !t.execution.IsSuccessful() {
		return NewTestFailureError(fmt.Sprintf("%d of %d scenarios failed", stats.Failed, stats.Total))
	}
	return nil
}

// Finalize runs the remote finalization protocol. Safe to call when remote
// reporting is disabled; it is a no-op without a recoverable launch.
func (t *Tracker) Finalize(ctx context.Context) {
	execID := t.cfg.ExecutionID
	if t.execution != nil {
		execID = t.execution.ID()
	}

	fin := remote.NewFinalizer(remote.FinalizeConfig{
		ReportsDir:   t.cfg.ReportsDir,
		ExecutionID:  execID,
		Endpoint:     t.cfg.RemoteEndpoint,
		Project:      t.cfg.RemoteProject,
		APIKey:       t.cfg.RemoteAPIKey,
		FlushTimeout: t.cfg.FlushTimeout,
		SettleDelay:  t.cfg.SettleDelay,
		Log:          t.log,
	})
	fin.Finalize(ctx, t.remoteRep)

	if t.client != nil {
		t.client.Close()
	}
}

func (t *Tracker) stopCollectors() {
	if t.console != nil {
		t.console.Stop()
	}
	if t.network != nil {
		t.network.Stop()
	}
	if t.performance != nil {
		t.performance.Stop()
	}
}

// flushCollectors persists each collector buffer and attaches the resulting
// files to the scenario. Per-file names are derived from the scenario name.
func (t *Tracker) flushCollectors(sc *types.Scenario) {
	execID := t.execution.ID()
	base := sanitizeName(sc.Name())

	if t.console != nil {
		if att, ok, err := t.console.SaveToFile(t.artifacts, execID, base+"_console.json"); err == nil && ok {
			t.coordinator.AttachFile(att)
		}
	}
	if t.network != nil {
		if att, ok, err := t.network.SaveToFile(t.artifacts, execID, base+"_network.json"); err == nil && ok {
			t.coordinator.AttachFile(att)
		}
	}
	if t.performance != nil {
		if att, ok, err := t.performance.SaveMetrics(t.artifacts, execID, base+"_performance.json"); err == nil && ok {
			t.coordinator.AttachFile(att)
		}
	}
}

func (t *Tracker) disposeCollectors() {
	if t.console != nil {
		t.console.Dispose()
		t.console = nil
	}
	if t.network != nil {
		t.network.Dispose()
		t.network = nil
	}
	if t.performance != nil {
		t.performance.Dispose()
		t.performance = nil
	}
}

// sanitizeName makes a scenario name safe as a filename fragment.
func sanitizeName(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if len(out) > 80 {
		out = out[:80]
	}
	return out
}
