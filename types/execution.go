package types

import (
	"fmt"
	"strings"
	"time"
)

// ExecutionIDPrefix is the prefix used for generated execution ids.
const ExecutionIDPrefix = "exec_"

// Execution is the aggregate root for one full test-suite run. It owns its
// scenarios; scenarios are created only through AddScenario and never removed.
type Execution struct {
	id          string
	startTime   time.Time
	endTime     *time.Time
	metadata    map[string]string
	scenarios   []*Scenario
	attachments []Attachment
	completed   bool

	now func() time.Time
}

// ExecutionStats aggregates scenario counts for an execution.
type ExecutionStats struct {
	Total   int
	Passed  int
	Failed  int
	Pending int
}

// NewExecution creates an Execution with the given id. The id is validated on
// construction and immutable afterwards: it names the run directory on disk,
// so it must not be empty or contain path separators or whitespace.
func NewExecution(id string) (*Execution, error) {
	return newExecution(id, time.Now)
}

func newExecution(id string, now func() time.Time) (*Execution, error) {
	if err := ValidateExecutionID(id); err != nil {
		return nil, err
	}
	return &Execution{
		id:        id,
		startTime: now(),
		metadata:  make(map[string]string),
		now:       now,
	}, nil
}

// GenerateExecutionID returns an id of the form exec_<date>_<time>.
func GenerateExecutionID(t time.Time) string {
	return ExecutionIDPrefix + t.Format("20060102_150405")
}

// ValidateExecutionID checks that an id is usable as a run identifier.
func ValidateExecutionID(id string) error {
	if id == "" {
		return fmt.Errorf("execution id cannot be empty")
	}
	if strings.ContainsAny(id, "/\\ \t\n") {
		return fmt.Errorf("execution id %q contains path separators or whitespace", id)
	}
	return nil
}

// AddScenario creates a new scenario owned by this execution. Adding a
// scenario after Complete has been called is an error.
func (e *Execution) AddScenario(name, featureName string, tags []string) (*Scenario, error) {
	if e.completed {
		return nil, NewInvalidStateError("execution", "add scenario to", Status("completed"))
	}
	sc := newScenario(name, featureName, tags, e.now)
	e.scenarios = append(e.scenarios, sc)
	return sc, nil
}

// Complete marks the execution finished and stamps the end time exactly once.
func (e *Execution) Complete() {
	if e.completed {
		return
	}
	e.completed = true
	t := e.now()
	e.endTime = &t
}

// Completed reports whether Complete has been called.
func (e *Execution) Completed() bool { return e.completed }

// IsSuccessful reports whether no owned scenario failed. It is computed on
// demand rather than cached so that a late-added failing scenario always
// flips the result.
func (e *Execution) IsSuccessful() bool {
	for _, sc := range e.scenarios {
		if !sc.IsSuccessful() {
			return false
		}
	}
	return true
}

// Stats returns aggregate scenario counts.
func (e *Execution) Stats() ExecutionStats {
	stats := ExecutionStats{Total: len(e.scenarios)}
	for _, sc := range e.scenarios {
		switch sc.Status() {
		case StatusPassed:
			stats.Passed++
		case StatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	return stats
}

// SetMetadata records a key/value pair on the execution. Keys are unique;
// setting an existing key overwrites it.
func (e *Execution) SetMetadata(key, value string) {
	e.metadata[key] = value
}

// Metadata returns a copy of the execution metadata.
func (e *Execution) Metadata() map[string]string {
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// ID returns the immutable execution id.
func (e *Execution) ID() string { return e.id }

// StartTime returns when the execution was created.
func (e *Execution) StartTime() time.Time { return e.startTime }

// EndTime returns the completion timestamp and whether Complete was called.
func (e *Execution) EndTime() (time.Time, bool) {
	if e.endTime == nil {
		return time.Time{}, false
	}
	return *e.endTime, true
}

// AddAttachment records an artifact captured while no scenario was active,
// such as a full-session video. Scenario-scoped artifacts belong on their
// scenario instead.
func (e *Execution) AddAttachment(a Attachment) {
	e.attachments = append(e.attachments, a)
}

// Attachments returns a copy of the execution-level attachments.
func (e *Execution) Attachments() []Attachment {
	return append([]Attachment(nil), e.attachments...)
}

// Scenarios returns a copy of the scenario list. The scenarios are shared.
func (e *Execution) Scenarios() []*Scenario {
	return append([]*Scenario(nil), e.scenarios...)
}

// Duration returns the elapsed time of the run so far, or the final duration
// once Complete has been called.
func (e *Execution) Duration() Duration {
	if e.endTime != nil {
		return DurationBetween(e.startTime, *e.endTime)
	}
	return DurationBetween(e.startTime, e.now())
}
