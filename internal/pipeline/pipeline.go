package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vidaudit/internal/artifact"
	"github.com/fyrsmithlabs/vidaudit/internal/audit"
	"github.com/fyrsmithlabs/vidaudit/internal/video"
)

// State identifies a phase of a run.
type State string

const (
	StateInit           State = "INIT"
	StateParseArtifacts State = "PARSE_ARTIFACTS"
	StateExtractEvents  State = "EXTRACT_EVENTS"
	StateMatch          State = "MATCH"
	StateAggregate      State = "AGGREGATE"
	StateDone           State = "DONE"
	StateError          State = "ERROR"
)

// TransitionCallback receives state transitions during a run.
type TransitionCallback func(from, to State)

// Inputs names the artifacts of one audit run. TestOutput is optional; when
// empty the outcome is treated as unknown and assertion corroboration is
// skipped.
type Inputs struct {
	PlanningLog string
	VideoPath   string
	TestOutput  string
}

// RunResult is the complete output of a finished run.
type RunResult struct {
	Steps      []audit.Step
	Events     []audit.VideoEvent
	Outcome    audit.TestOutcome
	Results    []audit.MatchResult
	Deviations []audit.DeviationRecord
	Summary    audit.Summary
}

// EventExtractor produces the ordered event timeline from video files.
type EventExtractor interface {
	Extract(ctx context.Context, paths []string) ([]audit.VideoEvent, error)
}

// Correlator aligns steps against the event timeline.
type Correlator interface {
	Correlate(ctx context.Context, steps []audit.Step, events []audit.VideoEvent, outcome audit.TestOutcome) ([]audit.MatchResult, audit.Summary, error)
}

// Runner drives one run through the state machine. Not safe for concurrent
// use; create one Runner per run.
type Runner struct {
	extractor EventExtractor
	engine    Correlator
	logger    *zap.Logger

	state        State
	onTransition TransitionCallback

	// Seams for tests. Default to the real loaders.
	loadSteps   func(path string) ([]audit.Step, error)
	loadOutcome func(path string) (audit.TestOutcome, error)
	discover    func(path string) ([]string, error)
}

// NewRunner creates a runner over the given extractor and engine.
func NewRunner(extractor EventExtractor, engine Correlator, logger *zap.Logger) *Runner {
	return &Runner{
		extractor:   extractor,
		engine:      engine,
		logger:      logger,
		state:       StateInit,
		loadSteps:   artifact.LoadPlanningLog,
		loadOutcome: artifact.LoadTestOutcome,
		discover:    video.DiscoverSources,
	}
}

// OnTransition sets the transition callback.
func (r *Runner) OnTransition(cb TransitionCallback) {
	r.onTransition = cb
}

// State returns the runner's current state.
func (r *Runner) State() State {
	return r.state
}

// Run executes the full audit. On any error the runner lands in StateError
// and no result is returned, matching the rule that a failed run produces no
// report.
func (r *Runner) Run(ctx context.Context, in Inputs) (*RunResult, error) {
	if in.PlanningLog == "" || in.VideoPath == "" {
		return nil, r.fail(fmt.Errorf("planning log and video path are required"))
	}

	r.transition(StateParseArtifacts)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}
	steps, err := r.loadSteps(in.PlanningLog)
	if err != nil {
		return nil, r.fail(fmt.Errorf("parse planning log: %w", err))
	}
	r.logger.Info("planning log parsed",
		zap.String("path", in.PlanningLog),
		zap.Int("steps", len(steps)))

	outcome := audit.TestOutcome{Status: audit.OutcomeUnknown}
	if in.TestOutput != "" {
		outcome, err = r.loadOutcome(in.TestOutput)
		if err != nil {
			return nil, r.fail(fmt.Errorf("parse test output: %w", err))
		}
		r.logger.Info("test outcome parsed",
			zap.String("path", in.TestOutput),
			zap.String("status", string(outcome.Status)))
	}

	r.transition(StateExtractEvents)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}
	paths, err := r.discover(in.VideoPath)
	if err != nil {
		return nil, r.fail(fmt.Errorf("discover video sources: %w", err))
	}
	events, err := r.extractor.Extract(ctx, paths)
	if err != nil {
		return nil, r.fail(fmt.Errorf("extract events: %w", err))
	}
	r.logger.Info("events extracted",
		zap.Int("sources", len(paths)),
		zap.Int("events", len(events)))

	r.transition(StateMatch)
	results, summary, err := r.engine.Correlate(ctx, steps, events, outcome)
	if err != nil {
		return nil, r.fail(fmt.Errorf("correlate: %w", err))
	}

	r.transition(StateAggregate)
	out := &RunResult{
		Steps:      steps,
		Events:     events,
		Outcome:    outcome,
		Results:    results,
		Deviations: audit.Deviations(results),
		Summary:    summary,
	}

	r.transition(StateDone)
	r.logger.Info("run complete",
		zap.Int("total_steps", summary.TotalSteps),
		zap.Int("deviations", summary.DeviationCount))
	return out, nil
}

func (r *Runner) transition(to State) {
	from := r.state
	r.state = to
	r.logger.Debug("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	if r.onTransition != nil {
		r.onTransition(from, to)
	}
}

func (r *Runner) fail(err error) error {
	r.transition(StateError)
	return err
}
