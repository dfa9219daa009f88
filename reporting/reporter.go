// Package reporting routes execution lifecycle events to report backends and
// turns a finished execution into local report artifacts.
package reporting

import "github.com/pagetrace/pagetrace/types"

// Reporter is a single report backend: an independent sink that turns
// lifecycle events into a persisted report. Backends are best-effort; errors
// they return are isolated by the Coordinator and never abort the test run.
type Reporter interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	StartExecution(e *types.Execution) error
	EndExecution(e *types.Execution) error
	StartScenario(sc *types.Scenario) error
	EndScenario(sc *types.Scenario) error
	StartStep(step *types.Step) error
	EndStep(step *types.Step) error

	// AttachFile notifies the backend of a new artifact on disk.
	AttachFile(att types.Attachment) error
	// LogMessage records a free-form log line at the given level.
	LogMessage(message, level string) error
}
