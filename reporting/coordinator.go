package reporting

import (
	"os"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/metrics"
	"github.com/pagetrace/pagetrace/types"
)

// Coordinator fans lifecycle events out to every registered Reporter backend.
//
// For a single lifecycle event, backends are invoked synchronously in
// registration order before the call returns. A failure (or panic) in one
// backend is caught, logged and counted; the remaining backends still receive
// the same event and the caller never sees an error. Reporting is best-effort
// per backend, never all-or-nothing.
type Coordinator struct {
	log       *zap.SugaredLogger
	reporters []Reporter

	execution       *types.Execution
	currentScenario *types.Scenario
}

// NewCoordinator creates a coordinator over the given backends. A coordinator
// with zero backends is valid: the run still completes, with a warning.
func NewCoordinator(log *zap.SugaredLogger, reporters ...Reporter) *Coordinator {
	if len(reporters) == 0 {
		log.Warnw("No report backends registered, lifecycle events will not be reported")
	}
	return &Coordinator{log: log, reporters: reporters}
}

// Reporters returns the registered backends in invocation order.
func (c *Coordinator) Reporters() []Reporter {
	return append([]Reporter(nil), c.reporters...)
}

// CurrentExecution returns the execution most recently passed to
// StartExecution, or nil. Backends that need "current execution" context call
// this accessor instead of holding a back-pointer to the coordinator.
func (c *Coordinator) CurrentExecution() *types.Execution { return c.execution }

// CurrentScenario returns the scenario most recently passed to StartScenario
// and not yet ended, or nil.
func (c *Coordinator) CurrentScenario() *types.Scenario { return c.currentScenario }

// runIsolated invokes one backend operation, converting any error or panic
// into a logged, counted, suppressed failure.
func (c *Coordinator) runIsolated(op string, r Reporter, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Errorw("Reporter backend panicked", "reporter", r.Name(), "operation", op, "panic", rec)
			metrics.RecordReporterError(r.Name(), op)
		}
	}()
	if err := fn(); err != nil {
		c.log.Errorw("Reporter backend failed", "reporter", r.Name(), "operation", op, "error", err)
		metrics.RecordReporterError(r.Name(), op)
	}
}

// StartExecution notifies every backend that an execution has begun.
func (c *Coordinator) StartExecution(e *types.Execution) {
	c.execution = e
	for _, r := range c.reporters {
		r := r
		c.runIsolated("start_execution", r, func() error { return r.StartExecution(e) })
	}
}

// EndExecution notifies every backend that an execution has finished.
func (c *Coordinator) EndExecution(e *types.Execution) {
	for _, r := range c.reporters {
		r := r
		c.runIsolated("end_execution", r, func() error { return r.EndExecution(e) })
	}
}

// StartScenario notifies every backend that a scenario has begun.
func (c *Coordinator) StartScenario(sc *types.Scenario) {
	c.currentScenario = sc
	for _, r := range c.reporters {
		r := r
		c.runIsolated("start_scenario", r, func() error { return r.StartScenario(sc) })
	}
}

// EndScenario notifies every backend that a scenario has finished.
func (c *Coordinator) EndScenario(sc *types.Scenario) {
	for _, r := range c.reporters {
		r := r
		c.runIsolated("end_scenario", r, func() error { return r.EndScenario(sc) })
	}
	c.currentScenario = nil
}

// StartStep notifies every backend that a step has begun.
func (c *Coordinator) StartStep(step *types.Step) {
	for _, r := range c.reporters {
		r := r
		c.runIsolated("start_step", r, func() error { return r.StartStep(step) })
	}
}

// EndStep notifies every backend that a step has finished.
func (c *Coordinator) EndStep(step *types.Step) {
	for _, r := range c.reporters {
		r := r
		c.runIsolated("end_step", r, func() error { return r.EndStep(step) })
	}
}

// LogMessage forwards a log line to every backend.
func (c *Coordinator) LogMessage(message, level string) {
	for _, r := range c.reporters {
		r := r
		c.runIsolated("log_message", r, func() error { return r.LogMessage(message, level) })
	}
}

// AttachFile records the artifact on the current scenario, or on the
// execution itself when no scenario is active, and notifies every backend.
func (c *Coordinator) AttachFile(att types.Attachment) {
	if att.SizeBytes == 0 {
		if info, err := os.Stat(att.Path); err == nil {
			att.SizeBytes = info.Size()
		}
	}
	if c.currentScenario != nil {
		c.currentScenario.AddAttachment(att)
	} else if c.execution != nil {
		c.execution.AddAttachment(att)
	}
	for _, r := range c.reporters {
		r := r
		c.runIsolated("attach_file", r, func() error { return r.AttachFile(att) })
	}
}

// AttachScreenshot attaches a screenshot file.
func (c *Coordinator) AttachScreenshot(path, description string) {
	c.AttachFile(types.Attachment{Path: path, Type: types.AttachmentScreenshot, Description: description})
}

// AttachVideo attaches a video recording.
func (c *Coordinator) AttachVideo(path, description string) {
	c.AttachFile(types.Attachment{Path: path, Type: types.AttachmentVideo, Description: description})
}

// AttachTrace attaches a browser trace archive.
func (c *Coordinator) AttachTrace(path, description string) {
	c.AttachFile(types.Attachment{Path: path, Type: types.AttachmentTrace, Description: description})
}

// AttachMetrics attaches a metrics snapshot file.
func (c *Coordinator) AttachMetrics(path, description string) {
	c.AttachFile(types.Attachment{Path: path, Type: types.AttachmentMetrics, Description: description})
}
