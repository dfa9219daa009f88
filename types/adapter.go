package types

import "fmt"

// ScenarioInfo is the narrow surface a BDD engine must provide for a scenario
// about to run. Implementations wrap whatever scenario object the engine
// produces; missing required fields fail fast at this boundary instead of
// being probed defensively throughout the pipeline.
type ScenarioInfo interface {
	Name() string
	FeatureName() string
	Tags() []string
}

// StepInfo is the narrow surface a BDD engine must provide for a step.
type StepInfo interface {
	Keyword() string
	Text() string
}

// ValidateScenarioInfo rejects scenario descriptors without a name.
func ValidateScenarioInfo(info ScenarioInfo) error {
	if info == nil {
		return fmt.Errorf("scenario info is required")
	}
	if info.Name() == "" {
		return fmt.Errorf("scenario info is missing a name")
	}
	return nil
}

// ValidateStepInfo rejects step descriptors without text.
func ValidateStepInfo(info StepInfo) error {
	if info == nil {
		return fmt.Errorf("step info is required")
	}
	if info.Text() == "" {
		return fmt.Errorf("step info is missing text")
	}
	return nil
}

// ScenarioDescriptor is a plain-struct ScenarioInfo for callers that do not
// have an engine object to wrap.
type ScenarioDescriptor struct {
	ScenarioName string
	Feature      string
	ScenarioTags []string
}

func (d ScenarioDescriptor) Name() string        { return d.ScenarioName }
func (d ScenarioDescriptor) FeatureName() string { return d.Feature }
func (d ScenarioDescriptor) Tags() []string      { return d.ScenarioTags }

// StepDescriptor is a plain-struct StepInfo.
type StepDescriptor struct {
	StepKeyword string
	StepText    string
}

func (d StepDescriptor) Keyword() string { return d.StepKeyword }
func (d StepDescriptor) Text() string    { return d.StepText }
