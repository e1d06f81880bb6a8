package semantic

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vidaudit/internal/config"
)

// ErrMatcherUnavailable indicates the matcher backend failed or timed out for
// one call. The engine recovers locally: the affected step degrades to zero
// confidence and the run continues.
var ErrMatcherUnavailable = errors.New("semantic matcher unavailable")

// Matcher scores the plausibility that an observed event window is the visual
// trace of a planned step.
type Matcher interface {
	// Score returns a plausibility judgment in [0, 1]. Transport failures
	// and timeouts wrap ErrMatcherUnavailable.
	Score(ctx context.Context, stepDescription, eventContext string) (float64, error)
}

// NewMatcher builds the configured backend.
func NewMatcher(cfg config.MatcherConfig, logger *zap.Logger) (Matcher, error) {
	switch cfg.Backend {
	case "heuristic", "":
		return NewHeuristicMatcher(), nil
	case "anthropic":
		return NewAnthropicMatcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown matcher backend %q", cfg.Backend)
	}
}
