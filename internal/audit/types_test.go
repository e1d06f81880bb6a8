package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSteps(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{
			name: "ascending with gaps is legal",
			steps: []Step{
				{StepNumber: 1, Description: "open page"},
				{StepNumber: 3, Description: "click search"},
				{StepNumber: 7, Description: "verify results"},
			},
		},
		{
			name:  "empty sequence is legal",
			steps: nil,
		},
		{
			name: "duplicate step number",
			steps: []Step{
				{StepNumber: 1, Description: "open page"},
				{StepNumber: 1, Description: "open page again"},
			},
			wantErr: true,
		},
		{
			name: "descending order",
			steps: []Step{
				{StepNumber: 2, Description: "click"},
				{StepNumber: 1, Description: "open"},
			},
			wantErr: true,
		},
		{
			name: "non-positive step number",
			steps: []Step{
				{StepNumber: 0, Description: "open"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSteps(tt.steps)
			if tt.wantErr {
				require.Error(t, err)
				var iv *InvariantViolation
				assert.ErrorAs(t, err, &iv)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	results := []MatchResult{
		{StepNumber: 1, Observed: true, Confidence: 0.9},
		{StepNumber: 2, Observed: false, Confidence: 0.3, Reason: ReasonLowConfidence},
		{StepNumber: 3, Observed: true, Confidence: 0.8},
	}

	s := Summarize(results)
	assert.Equal(t, 3, s.TotalSteps)
	assert.Equal(t, 2, s.ObservedSteps)
	assert.Equal(t, 1, s.DeviationCount)
	assert.Equal(t, "1 deviation(s) found", s.Status)
	assert.Equal(t, s.TotalSteps, s.ObservedSteps+s.DeviationCount)

	clean := Summarize([]MatchResult{{StepNumber: 1, Observed: true}})
	assert.Equal(t, "No deviations detected", clean.Status)
}

func TestDeviations(t *testing.T) {
	results := []MatchResult{
		{StepNumber: 1, Observed: true, Confidence: 0.9},
		{StepNumber: 2, Description: "enter text", Observed: false, Confidence: 0.2, Evidence: "best candidate below threshold", Reason: ReasonLowConfidence},
		{StepNumber: 3, Description: "assert banner", Observed: false, Confidence: 0, Reason: ReasonNoEvidence},
	}

	devs := Deviations(results)
	require.Len(t, devs, 2)
	assert.Equal(t, 2, devs[0].StepNumber)
	assert.Equal(t, ReasonLowConfidence, devs[0].Reason)
	assert.Equal(t, 3, devs[1].StepNumber)
	assert.Equal(t, ReasonNoEvidence, devs[1].Reason)
}

func TestVideoEventContext(t *testing.T) {
	e := VideoEvent{
		Timestamp:   2500 * time.Millisecond,
		Kind:        EventSceneChange,
		Magnitude:   42.5,
		WindowStart: 2 * time.Second,
		WindowEnd:   3 * time.Second,
	}
	assert.Equal(t, "scene_change at 2.50s (magnitude 42.5, window 2.00s-3.00s)", e.Context())
}
