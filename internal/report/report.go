// Package report assembles the deviation report from a finished run and
// renders it as JSON and Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
	"github.com/fyrsmithlabs/vidaudit/internal/config"
	"github.com/fyrsmithlabs/vidaudit/internal/pipeline"
)

// Metadata identifies one report.
type Metadata struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	TestStatus  audit.OutcomeStatus `json:"test_status"`
	EventCount  int                 `json:"event_count"`
}

// Report is the assembled output of a run.
type Report struct {
	Summary  audit.Summary       `json:"summary"`
	Steps    []audit.MatchResult `json:"steps"`
	Metadata Metadata            `json:"metadata"`
}

// Assembler builds and renders reports.
type Assembler struct {
	cfg    config.ReportConfig
	logger *zap.Logger

	// Seams for deterministic rendering in tests.
	now   func() time.Time
	newID func() string
}

// NewAssembler creates an assembler.
func NewAssembler(cfg config.ReportConfig, logger *zap.Logger) *Assembler {
	return &Assembler{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Assemble builds a report from a completed run.
func (a *Assembler) Assemble(run *pipeline.RunResult) *Report {
	return &Report{
		Summary: run.Summary,
		Steps:   run.Results,
		Metadata: Metadata{
			RunID:       a.newID(),
			GeneratedAt: a.now().UTC(),
			TestStatus:  run.Outcome.Status,
			EventCount:  len(run.Events),
		},
	}
}

// RenderJSON renders the report as indented JSON.
func (a *Assembler) RenderJSON(r *Report) ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(out, '\n'), nil
}

// RenderMarkdown renders the human-readable deviation report.
func (a *Assembler) RenderMarkdown(r *Report) []byte {
	var b strings.Builder

	b.WriteString("# Test Execution Deviation Report\n\n")
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Steps**: %d\n", r.Summary.TotalSteps)
	fmt.Fprintf(&b, "- **Observed Steps**: %d\n", r.Summary.ObservedSteps)
	fmt.Fprintf(&b, "- **Deviations**: %d\n", r.Summary.DeviationCount)
	fmt.Fprintf(&b, "- **Status**: %s\n\n", r.Summary.Status)

	b.WriteString("## Detailed Results\n\n")
	b.WriteString("_Confidence Legend: 🟢 High (≥80%) | 🟡 Medium (60-79%) | 🔴 Low (<60%) | ⚪ N/A_\n\n")
	b.WriteString("| Step | Description | Result | Confidence | Evidence |\n")
	b.WriteString("|------|-------------|--------|------------|----------|\n")
	for _, step := range r.Steps {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			step.StepNumber,
			tableCell(step.Description, a.cfg.MaxDescriptionLen),
			resultMarker(step),
			confidenceMarker(step.Confidence),
			tableCell(step.Evidence, a.cfg.MaxDescriptionLen))
	}

	b.WriteString("\n## Test Output\n\n")
	fmt.Fprintf(&b, "- **Status**: %s\n", r.Metadata.TestStatus)

	b.WriteString("\n## Video Analysis\n\n")
	fmt.Fprintf(&b, "- **Events Detected**: %d\n", r.Metadata.EventCount)

	return []byte(b.String())
}

// Write renders both formats into dir as report.json and report.md.
func (a *Assembler) Write(dir string, r *Report) (jsonPath, mdPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	jsonPath = filepath.Join(dir, "report.json")
	data, err := a.RenderJSON(r)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", jsonPath, err)
	}

	mdPath = filepath.Join(dir, "report.md")
	if err := os.WriteFile(mdPath, a.RenderMarkdown(r), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", mdPath, err)
	}

	a.logger.Info("report written",
		zap.String("json", jsonPath),
		zap.String("markdown", mdPath),
		zap.String("run_id", r.Metadata.RunID))
	return jsonPath, mdPath, nil
}

// tableCell strips newlines and truncates long text so Markdown table rows
// stay on one line.
func tableCell(s string, limit int) string {
	s = strings.NewReplacer("\n", " ", "\r", " ", "|", "/").Replace(s)
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}

func resultMarker(step audit.MatchResult) string {
	if step.Observed {
		return "✅ Observed"
	}
	return "❌ Deviation"
}

func confidenceMarker(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return fmt.Sprintf("🟢 %.0f%%", confidence*100)
	case confidence >= 0.6:
		return fmt.Sprintf("🟡 %.0f%%", confidence*100)
	case confidence > 0:
		return fmt.Sprintf("🔴 %.0f%%", confidence*100)
	default:
		return "⚪ N/A"
	}
}
