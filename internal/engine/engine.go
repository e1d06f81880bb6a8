package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
	"github.com/fyrsmithlabs/vidaudit/internal/config"
	"github.com/fyrsmithlabs/vidaudit/internal/semantic"
)

// Engine correlates planned steps with extracted video events.
type Engine struct {
	cfg     config.EngineConfig
	matcher semantic.Matcher
	logger  *zap.Logger
}

// New creates a correlation engine. The matcher is a capability; any backend
// satisfying the interface works, and tests pass a deterministic stub.
func New(cfg config.EngineConfig, matcher semantic.Matcher, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, matcher: matcher, logger: logger}
}

// candidate is one scored event inside a step's forward-looking window.
type candidate struct {
	index    int // position in the event sequence
	combined float64
	semantic float64
	temporal float64
}

// Correlate produces exactly one MatchResult per step, in step order, plus
// the aggregate summary.
//
// The event cursor only moves forward. A committed match consumes its event
// and advances the cursor past it; an unobserved step leaves the cursor in
// place so the next step may still reach the same window. Matcher failures
// degrade the affected step to zero confidence and the loop continues; only
// invariant violations (duplicate step numbers, out-of-range scores) abort
// the run.
func (e *Engine) Correlate(ctx context.Context, steps []audit.Step, events []audit.VideoEvent, outcome audit.TestOutcome) ([]audit.MatchResult, audit.Summary, error) {
	if err := audit.ValidateSteps(steps); err != nil {
		return nil, audit.Summary{}, err
	}

	results := make([]audit.MatchResult, 0, len(steps))
	cursor := 0

	// Strictly sequential: each iteration's cursor depends on the previous
	// iteration's outcome.
	for _, step := range steps {
		result, next, err := e.matchStep(ctx, step, events, cursor, outcome)
		if err != nil {
			return nil, audit.Summary{}, err
		}
		if next < cursor {
			return nil, audit.Summary{}, &audit.InvariantViolation{
				Detail: fmt.Sprintf("cursor moved backward: %d -> %d at step %d", cursor, next, step.StepNumber),
			}
		}
		cursor = next
		results = append(results, result)

		e.logger.Debug("matched step",
			zap.Int("step", step.StepNumber),
			zap.Bool("observed", result.Observed),
			zap.Float64("confidence", result.Confidence),
			zap.Int("cursor", cursor))
	}

	return results, audit.Summarize(results), nil
}

// matchStep scores the candidate window for one step and decides commit,
// low-confidence, or no-evidence. It returns the result and the new cursor.
func (e *Engine) matchStep(ctx context.Context, step audit.Step, events []audit.VideoEvent, cursor int, outcome audit.TestOutcome) (audit.MatchResult, int, error) {
	result := audit.MatchResult{
		StepNumber:  step.StepNumber,
		Description: step.Description,
	}

	window := events[min(cursor, len(events)):]
	if len(window) > e.cfg.MaxEventsPerStep {
		window = window[:e.cfg.MaxEventsPerStep]
	}

	if len(window) == 0 {
		result.Reason = audit.ReasonNoEvidence
		result.Evidence = "no video evidence available for this step"
		return result, cursor, nil
	}

	best := candidate{index: -1, combined: -1}
	for pos, event := range window {
		score, err := e.matcher.Score(ctx, step.Description, event.Context())
		if err != nil {
			// Recovered locally: this step degrades, the run continues.
			result.Reason = audit.ReasonMatcherUnavailable
			result.Evidence = fmt.Sprintf("unobserved - matcher unavailable: %v", err)
			return result, cursor, nil
		}
		if score < 0 || score > 1 {
			return audit.MatchResult{}, cursor, &audit.InvariantViolation{
				Detail: fmt.Sprintf("semantic score %g outside [0,1] for step %d", score, step.StepNumber),
			}
		}

		c := candidate{
			index:    cursor + pos,
			semantic: score,
			temporal: temporalWeight(pos, e.cfg.TemporalDecay),
		}
		c.combined = e.cfg.SemanticWeight*c.semantic + (1-e.cfg.SemanticWeight)*c.temporal
		if c.combined < 0 || c.combined > 1 {
			return audit.MatchResult{}, cursor, &audit.InvariantViolation{
				Detail: fmt.Sprintf("combined confidence %g outside [0,1] for step %d", c.combined, step.StepNumber),
			}
		}

		// Strict greater-than keeps the tie-break on the temporally earlier
		// event, which makes runs reproducible.
		if c.combined > best.combined {
			best = c
		}
	}

	if best.combined < e.cfg.ConfidenceThreshold {
		result.Confidence = best.combined
		result.Reason = audit.ReasonLowConfidence
		result.Evidence = fmt.Sprintf("best candidate %s scored %.3f, below threshold %.3f",
			events[best.index].Context(), best.combined, e.cfg.ConfidenceThreshold)
		// Cursor stays put: the next step may claim this window.
		return result, cursor, nil
	}

	// Commit: consume the event and advance past it.
	matched := events[best.index]
	result.Event = &matched
	result.Observed = true
	result.Confidence = best.combined
	result.Evidence = fmt.Sprintf("matched %s (semantic %.3f, temporal %.3f)",
		matched.Context(), best.semantic, best.temporal)
	next := best.index + 1

	// A passing visual event cannot overrule an unambiguous execution
	// failure: failed outcomes cap assertion steps under the threshold.
	if step.Type == audit.StepAssertion && outcome.Status == audit.OutcomeFailed {
		result.Observed = false
		result.Confidence = cappedConfidence(e.cfg.ConfidenceThreshold, result.Confidence)
		result.Reason = audit.ReasonOutcomeFailed
		result.Evidence = fmt.Sprintf("video match found but test outcome reports failure; confidence capped (was %.3f)", best.combined)
	}

	return result, next, nil
}

// assertionCapMargin is how far under the threshold a failed-outcome cap
// lands.
const assertionCapMargin = 0.05

// cappedConfidence caps an assertion step's confidence below the threshold
// when the test outcome contradicts the video evidence.
func cappedConfidence(threshold, confidence float64) float64 {
	limit := threshold - assertionCapMargin
	if limit < 0 {
		limit = 0
	}
	if confidence < limit {
		return confidence
	}
	return limit
}

// temporalWeight decays exponentially with the candidate's distance from the
// cursor: the event right at the cursor weighs 1, each position past it
// weighs e^-decay less. Decay 0 disables the temporal preference entirely.
func temporalWeight(position int, decay float64) float64 {
	return math.Exp(-decay * float64(position))
}
