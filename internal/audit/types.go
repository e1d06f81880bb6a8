package audit

import (
	"fmt"
	"time"
)

// StepType classifies a planned step by the kind of action it describes.
type StepType string

const (
	StepNavigation  StepType = "navigation"
	StepInteraction StepType = "interaction"
	StepInput       StepType = "input"
	StepAssertion   StepType = "assertion"
	StepUnknown     StepType = "unknown"
)

// Step is one planned action from the agent's planning log. Ordering by
// StepNumber is the planned execution order and is authoritative.
type Step struct {
	StepNumber  int      `json:"step_number"`
	Description string   `json:"description"`
	Type        StepType `json:"step_type"`
	// Target is the element or URL the step acts on, when the planning log
	// makes one extractable. Informational only; the engine matches on
	// Description.
	Target string `json:"target,omitempty"`
}

// EventKind classifies a detected visual change.
type EventKind string

const (
	EventSceneChange  EventKind = "scene_change"
	EventUITransition EventKind = "ui_transition"
	EventUnclassified EventKind = "unclassified"
)

// VideoEvent is a discrete visual change detected in the recording, candidate
// evidence that some planned step was executed.
type VideoEvent struct {
	// Timestamp is the midpoint of the observation window, measured from the
	// start of the (concatenated) stream. Non-decreasing across an extraction
	// pass.
	Timestamp time.Duration `json:"timestamp"`
	Kind      EventKind     `json:"kind"`
	// Magnitude is the peak change score observed inside the window.
	Magnitude float64 `json:"magnitude"`
	// WindowStart and WindowEnd bound the half-open interval [start, end)
	// over which the change was observed.
	WindowStart time.Duration `json:"window_start"`
	WindowEnd   time.Duration `json:"window_end"`
	// Source names the video file the event came from.
	Source string `json:"source,omitempty"`
}

// Context renders the event as a short description suitable for semantic
// matching against a step description.
func (e VideoEvent) Context() string {
	return fmt.Sprintf("%s at %.2fs (magnitude %.1f, window %.2fs-%.2fs)",
		e.Kind, e.Timestamp.Seconds(), e.Magnitude,
		e.WindowStart.Seconds(), e.WindowEnd.Seconds())
}

// OutcomeStatus is the overall machine-readable result of the test run.
type OutcomeStatus string

const (
	OutcomePassed  OutcomeStatus = "passed"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeError   OutcomeStatus = "error"
	OutcomeUnknown OutcomeStatus = "unknown"
)

// AssertionResult is one per-assertion entry from a structured test report.
type AssertionResult struct {
	Name    string        `json:"name"`
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message,omitempty"`
}

// TestOutcome is the parsed result artifact of the run. The engine uses it
// only to corroborate terminal assertion steps, never to drive alignment.
type TestOutcome struct {
	Status     OutcomeStatus     `json:"status"`
	Name       string            `json:"name,omitempty"`
	Message    string            `json:"message,omitempty"`
	Assertions []AssertionResult `json:"assertions,omitempty"`
}

// DeviationReason codes why a step was flagged as a deviation.
type DeviationReason string

const (
	// ReasonNoEvidence: no candidate event existed in the step's window.
	ReasonNoEvidence DeviationReason = "no_evidence"
	// ReasonLowConfidence: a candidate existed but its combined confidence
	// fell below the configured threshold.
	ReasonLowConfidence DeviationReason = "low_confidence"
	// ReasonMatcherUnavailable: the semantic matcher failed or timed out for
	// this step and it degraded to zero confidence.
	ReasonMatcherUnavailable DeviationReason = "matcher_unavailable"
	// ReasonOutcomeFailed: an assertion step's confidence was capped because
	// the test outcome reports failure.
	ReasonOutcomeFailed DeviationReason = "outcome_failed"
)

// MatchResult is the engine's decision for one step: the event chosen as
// evidence (if any) and the confidence in that pairing.
type MatchResult struct {
	StepNumber  int    `json:"step_number"`
	Description string `json:"description"`
	// Event is nil when the step could not be corroborated. The pointer
	// references an entry in the extraction output; the engine never
	// mutates it.
	Event *VideoEvent `json:"matched_event,omitempty"`
	// Observed reports whether the step met the confidence threshold.
	Observed bool `json:"observed"`
	// Confidence is always in [0, 1]. For unobserved steps it holds the best
	// candidate's score, or 0 when no candidate existed.
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
	// Reason is set only when Observed is false.
	Reason DeviationReason `json:"reason,omitempty"`
}

// Deviation reports whether this result constitutes a deviation.
func (m MatchResult) Deviation() bool {
	return !m.Observed
}

// DeviationRecord is the deviation view over a MatchResult.
type DeviationRecord struct {
	StepNumber  int             `json:"step_number"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
	Evidence    string          `json:"evidence"`
	Reason      DeviationReason `json:"reason"`
}

// Deviations derives the deviation records from a result sequence, preserving
// step order.
func Deviations(results []MatchResult) []DeviationRecord {
	var out []DeviationRecord
	for _, r := range results {
		if !r.Deviation() {
			continue
		}
		out = append(out, DeviationRecord{
			StepNumber:  r.StepNumber,
			Description: r.Description,
			Confidence:  r.Confidence,
			Evidence:    r.Evidence,
			Reason:      r.Reason,
		})
	}
	return out
}

// Summary aggregates a completed run. Computed from the result sequence,
// never persisted independently of one.
type Summary struct {
	TotalSteps     int    `json:"total_steps"`
	ObservedSteps  int    `json:"observed_steps"`
	DeviationCount int    `json:"deviation_count"`
	Status         string `json:"status"`
}

// Summarize computes the aggregate view of a result sequence. Every step
// resolves to exactly one of observed or deviation, so
// ObservedSteps + DeviationCount == TotalSteps always holds.
func Summarize(results []MatchResult) Summary {
	s := Summary{TotalSteps: len(results)}
	for _, r := range results {
		if r.Observed {
			s.ObservedSteps++
		} else {
			s.DeviationCount++
		}
	}
	if s.DeviationCount == 0 {
		s.Status = "No deviations detected"
	} else {
		s.Status = fmt.Sprintf("%d deviation(s) found", s.DeviationCount)
	}
	return s
}

// ValidateSteps checks the invariants the engine assumes of a parsed step
// sequence: ascending order and no duplicate step numbers. Violations are
// loader bugs, not input conditions, and surface as InvariantViolation.
func ValidateSteps(steps []Step) error {
	seen := make(map[int]struct{}, len(steps))
	prev := 0
	for i, st := range steps {
		if st.StepNumber <= 0 {
			return &InvariantViolation{Detail: fmt.Sprintf("step at index %d has non-positive number %d", i, st.StepNumber)}
		}
		if _, dup := seen[st.StepNumber]; dup {
			return &InvariantViolation{Detail: fmt.Sprintf("duplicate step number %d", st.StepNumber)}
		}
		seen[st.StepNumber] = struct{}{}
		if st.StepNumber < prev {
			return &InvariantViolation{Detail: fmt.Sprintf("step numbers not ascending: %d after %d", st.StepNumber, prev)}
		}
		prev = st.StepNumber
	}
	return nil
}
