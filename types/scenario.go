package types

import "time"

// Scenario records the runtime outcome of a single BDD scenario and owns its
// steps. Its final status is derived from its steps at completion time, unless
// Fail was called, which forces FAILED regardless of step outcomes.
type Scenario struct {
	name        string
	featureName string
	tags        []string
	status      Status
	startTime   *time.Time
	endTime     *time.Time
	steps       []*Step
	attachments []Attachment

	failureReason string
	failForced    bool

	now func() time.Time
}

// NewScenario creates a Scenario in the PENDING state.
func NewScenario(name, featureName string, tags []string) *Scenario {
	return newScenario(name, featureName, tags, time.Now)
}

func newScenario(name, featureName string, tags []string, now func() time.Time) *Scenario {
	return &Scenario{
		name:        name,
		featureName: featureName,
		tags:        append([]string(nil), tags...),
		status:      StatusPending,
		now:         now,
	}
}

// Start transitions the scenario from PENDING to RUNNING.
func (s *Scenario) Start() error {
	if s.status != StatusPending {
		return NewInvalidStateError("scenario", "start", s.status)
	}
	s.status = StatusRunning
	t := s.now()
	s.startTime = &t
	return nil
}

// AddStep creates a new PENDING step owned by this scenario.
func (s *Scenario) AddStep(keyword, name string) *Step {
	step := newStep(keyword, name, s.now)
	s.steps = append(s.steps, step)
	return step
}

// Fail forces the scenario to FAILED, bypassing step inspection, and stamps
// the end time. The override wins over step-derived status even if every step
// passed; callers that want derived status use Complete instead. The reason
// from the first Fail call is kept, later calls do not replace it.
func (s *Scenario) Fail(reason string) {
	s.status = StatusFailed
	if !s.failForced {
		s.failureReason = reason
	}
	s.failForced = true
	s.stampEnd()
}

// Complete derives the final status from the owned steps and stamps the end
// time. A prior Fail call is preserved. Returns the resulting status.
func (s *Scenario) Complete() Status {
	s.stampEnd()
	if s.failForced {
		s.status = StatusFailed
		return s.status
	}
	s.status = StatusPassed
	for _, step := range s.steps {
		if step.Status() == StatusFailed {
			s.status = StatusFailed
			break
		}
	}
	return s.status
}

// AddAttachment records an artifact captured while this scenario was current.
func (s *Scenario) AddAttachment(a Attachment) {
	s.attachments = append(s.attachments, a)
}

func (s *Scenario) stampEnd() {
	if s.endTime != nil {
		return
	}
	t := s.now()
	s.endTime = &t
}

// IsSuccessful reports whether the scenario did not fail.
func (s *Scenario) IsSuccessful() bool {
	return s.status != StatusFailed
}

// Name returns the scenario name.
func (s *Scenario) Name() string { return s.name }

// FeatureName returns the name of the feature the scenario belongs to.
func (s *Scenario) FeatureName() string { return s.featureName }

// Tags returns a copy of the scenario tags.
func (s *Scenario) Tags() []string { return append([]string(nil), s.tags...) }

// Status returns the current lifecycle state.
func (s *Scenario) Status() Status { return s.status }

// FailureReason returns the reason passed to Fail, if any.
func (s *Scenario) FailureReason() string { return s.failureReason }

// Steps returns a copy of the step list. The steps themselves are shared.
func (s *Scenario) Steps() []*Step { return append([]*Step(nil), s.steps...) }

// Attachments returns a copy of the recorded attachments.
func (s *Scenario) Attachments() []Attachment {
	return append([]Attachment(nil), s.attachments...)
}

// StartTime returns the start timestamp, or the zero time if never started.
func (s *Scenario) StartTime() time.Time {
	if s.startTime == nil {
		return time.Time{}
	}
	return *s.startTime
}

// EndTime returns the end timestamp and whether the scenario has finished.
func (s *Scenario) EndTime() (time.Time, bool) {
	if s.endTime == nil {
		return time.Time{}, false
	}
	return *s.endTime, true
}

// Duration returns the elapsed time between start and end.
func (s *Scenario) Duration() Duration {
	if s.startTime == nil || s.endTime == nil {
		return Duration{}
	}
	return DurationBetween(*s.startTime, *s.endTime)
}
