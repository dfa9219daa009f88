package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/artifacts"
	"github.com/pagetrace/pagetrace/types"
)

// ExecutionLogFilename is the per-run log file under logs/.
const ExecutionLogFilename = "execution.log"

// Sink renders report data into one artifact inside the run's logs directory.
type Sink interface {
	Write(data *ReportData, logsDir string) error
}

// LocalReporter accumulates an execution's data in memory and materializes
// the local report artifacts when the execution ends. It implements Reporter.
type LocalReporter struct {
	log       *zap.SugaredLogger
	artifacts *artifacts.Service
	builder   *ReportBuilder
	sinks     []Sink

	logLines    []string
	attachments []types.Attachment
}

// NewLocalReporter creates a local reporter with the default JSON, HTML and
// text sinks.
func NewLocalReporter(svc *artifacts.Service, log *zap.SugaredLogger) (*LocalReporter, error) {
	htmlSink, err := NewHTMLSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTML sink: %w", err)
	}
	return &LocalReporter{
		log:       log,
		artifacts: svc,
		builder:   NewReportBuilder(),
		sinks:     []Sink{&JSONSink{}, htmlSink, &TextSink{}},
	}, nil
}

// Name implements Reporter.
func (r *LocalReporter) Name() string { return "local" }

// StartExecution implements Reporter. The logs directory is created eagerly
// so that a run always has somewhere to log, even with zero attachments.
func (r *LocalReporter) StartExecution(e *types.Execution) error {
	_, err := r.artifacts.EnsureLogsDir(e.ID())
	return err
}

// StartScenario implements Reporter.
func (r *LocalReporter) StartScenario(sc *types.Scenario) error {
	r.appendLog(fmt.Sprintf("scenario started: %s (%s)", sc.Name(), sc.FeatureName()), "info")
	return nil
}

// EndScenario implements Reporter.
func (r *LocalReporter) EndScenario(sc *types.Scenario) error {
	r.appendLog(fmt.Sprintf("scenario finished: %s status=%s", sc.Name(), sc.Status()), "info")
	return nil
}

// StartStep implements Reporter.
func (r *LocalReporter) StartStep(step *types.Step) error {
	r.appendLog(fmt.Sprintf("step started: %s %s", step.Keyword(), step.Name()), "debug")
	return nil
}

// EndStep implements Reporter.
func (r *LocalReporter) EndStep(step *types.Step) error {
	line := fmt.Sprintf("step finished: %s %s status=%s", step.Keyword(), step.Name(), step.Status())
	if msg := step.ErrorMessage(); msg != "" {
		line += " error=" + msg
	}
	r.appendLog(line, "debug")
	return nil
}

// AttachFile implements Reporter.
func (r *LocalReporter) AttachFile(att types.Attachment) error {
	r.attachments = append(r.attachments, att)
	r.appendLog(fmt.Sprintf("attachment: %s (%s, %d bytes)", att.Path, att.Type, att.SizeBytes), "info")
	return nil
}

// LogMessage implements Reporter.
func (r *LocalReporter) LogMessage(message, level string) error {
	r.appendLog(message, level)
	return nil
}

// EndExecution implements Reporter: it builds the report data and writes
// every sink plus the accumulated execution log.
func (r *LocalReporter) EndExecution(e *types.Execution) error {
	logsDir, err := r.artifacts.EnsureLogsDir(e.ID())
	if err != nil {
		return fmt.Errorf("failed to prepare logs directory: %w", err)
	}

	data := r.builder.BuildFromExecution(e)

	var sinkErrs []string
	for _, sink := range r.sinks {
		if err := sink.Write(data, logsDir); err != nil {
			r.log.Warnw("Local report sink failed", "error", err)
			sinkErrs = append(sinkErrs, err.Error())
		}
	}

	if err := r.flushLog(logsDir); err != nil {
		r.log.Warnw("Failed to write execution log", "error", err)
	}

	if len(sinkErrs) > 0 {
		return fmt.Errorf("local report sinks failed: %s", strings.Join(sinkErrs, "; "))
	}
	return nil
}

func (r *LocalReporter) appendLog(message, level string) {
	r.logLines = append(r.logLines, fmt.Sprintf("%s [%s] %s",
		time.Now().Format(time.RFC3339), strings.ToUpper(level), message))
}

func (r *LocalReporter) flushLog(logsDir string) error {
	if len(r.logLines) == 0 {
		return nil
	}
	path := filepath.Join(logsDir, ExecutionLogFilename)
	content := strings.Join(r.logLines, "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0644)
}
