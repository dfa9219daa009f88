package types

import "time"

// Step records the outcome of a single BDD step.
//
// Steps follow a strict state machine:
//
//	PENDING -> RUNNING -> {PASSED | FAILED}
//	PENDING -> SKIPPED
//
// Any transition outside of that graph returns an *InvalidStateError.
type Step struct {
	keyword      string
	name         string
	status       Status
	startTime    *time.Time
	endTime      *time.Time
	errorMessage string

	now func() time.Time
}

// NewStep creates a Step in the PENDING state.
func NewStep(keyword, name string) *Step {
	return newStep(keyword, name, time.Now)
}

func newStep(keyword, name string, now func() time.Time) *Step {
	return &Step{
		keyword: keyword,
		name:    name,
		status:  StatusPending,
		now:     now,
	}
}

// Start transitions the step from PENDING to RUNNING and stamps its start time.
func (s *Step) Start() error {
	if s.status != StatusPending {
		return NewInvalidStateError("step", "start", s.status)
	}
	s.status = StatusRunning
	t := s.now()
	s.startTime = &t
	return nil
}

// CompleteSuccessfully transitions the step from RUNNING to PASSED.
func (s *Step) CompleteSuccessfully() error {
	if s.status != StatusRunning {
		return NewInvalidStateError("step", "complete", s.status)
	}
	s.status = StatusPassed
	s.stampEnd()
	return nil
}

// Fail transitions the step from RUNNING to FAILED and records the message.
func (s *Step) Fail(message string) error {
	if s.status != StatusRunning {
		return NewInvalidStateError("step", "fail", s.status)
	}
	s.status = StatusFailed
	s.errorMessage = message
	s.stampEnd()
	return nil
}

// Skip transitions the step from PENDING to SKIPPED.
func (s *Step) Skip() error {
	if s.status != StatusPending {
		return NewInvalidStateError("step", "skip", s.status)
	}
	s.status = StatusSkipped
	return nil
}

func (s *Step) stampEnd() {
	if s.endTime != nil {
		return
	}
	t := s.now()
	s.endTime = &t
}

// Keyword returns the step keyword (Given/When/Then/...).
func (s *Step) Keyword() string { return s.keyword }

// Name returns the step text.
func (s *Step) Name() string { return s.name }

// Status returns the current lifecycle state.
func (s *Step) Status() Status { return s.status }

// ErrorMessage returns the failure message, empty unless the step FAILED.
func (s *Step) ErrorMessage() string { return s.errorMessage }

// StartTime returns the start timestamp, or the zero time if never started.
func (s *Step) StartTime() time.Time {
	if s.startTime == nil {
		return time.Time{}
	}
	return *s.startTime
}

// EndTime returns the end timestamp and whether the step has finished.
func (s *Step) EndTime() (time.Time, bool) {
	if s.endTime == nil {
		return time.Time{}, false
	}
	return *s.endTime, true
}

// Duration returns the elapsed time between start and end. It is zero until
// the step has both started and finished.
func (s *Step) Duration() Duration {
	if s.startTime == nil || s.endTime == nil {
		return Duration{}
	}
	return DurationBetween(*s.startTime, *s.endTime)
}
