package reporting

import (
	"time"

	"github.com/pagetrace/pagetrace/types"
)

// ReportStats contains aggregated scenario statistics for a run.
type ReportStats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// ReportStep represents a single step in the report.
type ReportStep struct {
	Keyword      string       `json:"keyword"`
	Name         string       `json:"name"`
	Status       types.Status `json:"status"`
	DurationText string       `json:"duration"`
	Error        string       `json:"error,omitempty"`
}

// ReportScenario represents a single scenario entry in the report.
type ReportScenario struct {
	Name          string             `json:"name"`
	Feature       string             `json:"feature"`
	Tags          []string           `json:"tags,omitempty"`
	Status        types.Status       `json:"status"`
	DurationText  string             `json:"duration"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Steps         []ReportStep       `json:"steps"`
	Attachments   []types.Attachment `json:"attachments,omitempty"`
}

// ReportData contains all the structured data needed for any report format.
type ReportData struct {
	ExecutionID  string            `json:"execution_id"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	DurationText string            `json:"duration"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IsSuccessful bool              `json:"is_successful"`
	Stats        ReportStats       `json:"stats"`
	Scenarios    []ReportScenario  `json:"scenarios"`
	// Run-level artifacts captured while no scenario was active.
	Attachments []types.Attachment `json:"attachments,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`

	// Flat failure list for table-style outputs.
	FailedScenarioNames []string `json:"failed_scenarios,omitempty"`
}

// ReportBuilder constructs ReportData from a finished execution.
type ReportBuilder struct {
	includeSteps bool
}

// NewReportBuilder creates a builder that includes per-step detail.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{includeSteps: true}
}

// WithSteps controls whether step-level entries are included.
func (rb *ReportBuilder) WithSteps(enabled bool) *ReportBuilder {
	rb.includeSteps = enabled
	return rb
}

// BuildFromExecution creates report data from an execution and its owned
// scenarios. It reads the object graph without mutating it.
func (rb *ReportBuilder) BuildFromExecution(e *types.Execution) *ReportData {
	report := &ReportData{
		ExecutionID:  e.ID(),
		StartTime:    e.StartTime(),
		Metadata:     e.Metadata(),
		IsSuccessful: e.IsSuccessful(),
		DurationText: e.Duration().String(),
		Scenarios:    make([]ReportScenario, 0, len(e.Scenarios())),
		Attachments:  e.Attachments(),
		GeneratedAt:  time.Now(),
	}
	if end, ok := e.EndTime(); ok {
		report.EndTime = end
	}

	for _, sc := range e.Scenarios() {
		entry := ReportScenario{
			Name:          sc.Name(),
			Feature:       sc.FeatureName(),
			Tags:          sc.Tags(),
			Status:        sc.Status(),
			DurationText:  sc.Duration().String(),
			FailureReason: sc.FailureReason(),
			Steps:         make([]ReportStep, 0),
			Attachments:   sc.Attachments(),
		}

		if rb.includeSteps {
			for _, step := range sc.Steps() {
				entry.Steps = append(entry.Steps, ReportStep{
					Keyword:      step.Keyword(),
					Name:         step.Name(),
					Status:       step.Status(),
					DurationText: step.Duration().String(),
					Error:        step.ErrorMessage(),
				})
			}
		}

		report.Scenarios = append(report.Scenarios, entry)
		report.Stats.Total++
		switch sc.Status() {
		case types.StatusPassed:
			report.Stats.Passed++
		case types.StatusFailed:
			report.Stats.Failed++
			report.FailedScenarioNames = append(report.FailedScenarioNames, sc.Name())
		}
	}

	if report.Stats.Total > 0 {
		report.Stats.PassRate = float64(report.Stats.Passed) / float64(report.Stats.Total) * 100
	}

	return report
}
