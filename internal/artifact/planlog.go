package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fyrsmithlabs/vidaudit/internal/audit"
)

// ErrMalformed indicates an artifact that fails schema validation. Fatal to
// the run; no match results are produced after it.
var ErrMalformed = errors.New("malformed artifact")

// planningLogSchema accepts either a pre-structured steps array or the raw
// planner-agent message log the test agent writes.
const planningLogSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["step_number", "description"],
        "properties": {
          "step_number": {"type": "integer", "minimum": 1},
          "description": {"type": "string", "minLength": 1}
        }
      }
    },
    "planner_agent": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role"],
        "properties": {
          "role": {"type": "string"}
        }
      }
    }
  },
  "anyOf": [
    {"required": ["steps"]},
    {"required": ["planner_agent"]}
  ]
}`

var compiledPlanningLogSchema = jsonschema.MustCompileString("planning_log.schema.json", planningLogSchema)

// planningLog mirrors the planning log file layout.
type planningLog struct {
	Steps        []structuredStep `json:"steps"`
	PlannerAgent []plannerMessage `json:"planner_agent"`
}

// structuredStep is the pre-structured step form.
type structuredStep struct {
	StepNumber  int    `json:"step_number"`
	Description string `json:"description"`
}

// plannerMessage is one entry of the raw planner-agent message log. Content is
// either a plain string or an object carrying plan text and the next step.
type plannerMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// plannerContent is the object form of a planner message's content.
type plannerContent struct {
	Plan     string `json:"plan"`
	NextStep string `json:"next_step"`
}

// LoadPlanningLog reads and parses a planning log file into the planned step
// sequence.
func LoadPlanningLog(path string) ([]audit.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading planning log %s: %v", ErrMalformed, path, err)
	}
	return ParsePlanningLog(data)
}

// ParsePlanningLog validates raw planning log JSON and extracts the planned
// steps in order.
//
// Two layouts are accepted. A "steps" array is taken verbatim (descriptions
// are still classified into step types). Otherwise steps are mined from the
// "planner_agent" message log: assistant messages contribute the numbered or
// bulleted lines of their plan text plus any non-empty next_step, in message
// order, numbered sequentially from 1.
func ParsePlanningLog(data []byte) ([]audit.Step, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: planning log is not valid JSON: %v", ErrMalformed, err)
	}
	if err := compiledPlanningLogSchema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: planning log schema: %v", ErrMalformed, err)
	}

	var log planningLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("%w: planning log: %v", ErrMalformed, err)
	}

	var steps []audit.Step
	if len(log.Steps) > 0 {
		for _, s := range log.Steps {
			steps = append(steps, classifyStep(s.Description, s.StepNumber))
		}
	} else {
		steps = extractPlannerSteps(log.PlannerAgent)
	}

	if err := audit.ValidateSteps(steps); err != nil {
		// Duplicate or descending numbers can only come from the structured
		// form; treat them as a malformed artifact, not an engine defect.
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return steps, nil
}

// extractPlannerSteps mines plan lines and next_step entries out of the
// assistant messages.
func extractPlannerSteps(messages []plannerMessage) []audit.Step {
	var steps []audit.Step
	number := 1

	for _, msg := range messages {
		if msg.Role != "assistant" || len(msg.Content) == 0 {
			continue
		}
		var content plannerContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			// String contents carry no extractable plan.
			continue
		}

		for _, line := range strings.Split(content.Plan, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !isPlanLine(line) {
				continue
			}
			cleaned := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
			if cleaned == "" {
				continue
			}
			steps = append(steps, classifyStep(cleaned, number))
			number++
		}

		if next := strings.TrimSpace(content.NextStep); next != "" {
			steps = append(steps, classifyStep(next, number))
			number++
		}
	}
	return steps
}

// isPlanLine reports whether a plan text line looks like a step entry:
// numbered ("1. ...") or bulleted ("- ...").
func isPlanLine(line string) bool {
	return (line[0] >= '0' && line[0] <= '9') || strings.HasPrefix(line, "-")
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s]+`)
	quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// classifyStep derives the step type and target from a description.
func classifyStep(description string, number int) audit.Step {
	lower := strings.ToLower(description)
	step := audit.Step{
		StepNumber:  number,
		Description: description,
		Type:        audit.StepUnknown,
	}

	switch {
	case strings.Contains(lower, "navigate") || strings.Contains(lower, "go to") || strings.Contains(lower, "open"):
		step.Type = audit.StepNavigation
		if url := urlPattern.FindString(description); url != "" {
			step.Target = url
		}
	case strings.Contains(lower, "click"):
		step.Type = audit.StepInteraction
		if strings.Contains(lower, "search icon") {
			step.Target = "Search icon"
		} else if strings.Contains(lower, "button") {
			step.Target = "button"
		}
	case strings.Contains(lower, "enter") || strings.Contains(lower, "type") || strings.Contains(lower, "input"):
		step.Type = audit.StepInput
		step.Target = firstQuoted(description)
	case strings.Contains(lower, "filter") || strings.Contains(lower, "select"):
		step.Type = audit.StepInteraction
		step.Target = firstQuoted(description)
	case strings.Contains(lower, "assert") || strings.Contains(lower, "verify") ||
		strings.Contains(lower, "confirm") || strings.Contains(lower, "should see"):
		step.Type = audit.StepAssertion
	}
	return step
}

// firstQuoted returns the first single- or double-quoted span, if any.
func firstQuoted(s string) string {
	m := quotedPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
