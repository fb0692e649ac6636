package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// extractJSON pulls the JSON object out of an LLM response. Models wrap
// output in markdown fences or prose more often than not, so we locate the
// outermost braces and run the candidate through jsonrepair before giving up.
func extractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if fenced := stripCodeFence(trimmed); fenced != "" {
		trimmed = fenced
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	candidate := trimmed[start : end+1]

	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("repair JSON: %w", err)
	}
	return repaired, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return ""
	}
	body := strings.TrimPrefix(text, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// plannerEnvelope is the structured output expected from the planner prompt.
type plannerEnvelope struct {
	Intent struct {
		Goal          string         `json:"goal"`
		RequiredTools []string       `json:"required_tools"`
		RequiredInfo  map[string]any `json:"required_info"`
		Confidence    float64        `json:"confidence"`
	} `json:"intent"`
	Steps []struct {
		Title             string `json:"title"`
		Description       string `json:"description"`
		ToolName          string `json:"tool_name"`
		RequiresUserInput bool   `json:"requires_user_input"`
	} `json:"steps"`
}

func parsePlannerOutput(text string) (*plannerEnvelope, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var env plannerEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(env.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	return &env, nil
}

// paramSynthesis is the outcome of the executor's argument-synthesis prompt.
// Exactly one of the three variants applies:
//   - Args: a usable argument mapping (possibly empty on parse failure)
//   - NeedsUser: the model asked for human-provided configuration
//   - ParseFailure: the response was not JSON; callers proceed with empty args
type paramSynthesis struct {
	Args          map[string]any
	NeedsUser     bool
	MissingParams []string
	Reason        string
	ParseFailure  bool
}

func parseParamSynthesis(text string) paramSynthesis {
	raw, err := extractJSON(text)
	if err != nil {
		return paramSynthesis{Args: map[string]any{}, ParseFailure: true}
	}
	var probe struct {
		RequiresUserInput bool     `json:"requires_user_input"`
		MissingParams     []string `json:"missing_params"`
		Reason            string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err == nil && probe.RequiresUserInput {
		return paramSynthesis{
			NeedsUser:     true,
			MissingParams: probe.MissingParams,
			Reason:        probe.Reason,
		}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return paramSynthesis{Args: map[string]any{}, ParseFailure: true}
	}
	return paramSynthesis{Args: args}
}

// validationEnvelope is the structured output expected from the validator.
type validationEnvelope struct {
	IsSuccessful  bool     `json:"is_successful"`
	FailedStepID  string   `json:"failed_step_id"`
	FailureReason string   `json:"failure_reason"`
	StatusMessage string   `json:"status_message"`
	Suggestions   []string `json:"suggestions"`
}

// parseValidation decodes the validator verdict. Parse failures default to a
// successful verdict so a flaky judge cannot fail a completed run.
func parseValidation(text string) validationEnvelope {
	raw, err := extractJSON(text)
	if err != nil {
		return validationEnvelope{IsSuccessful: true}
	}
	var env validationEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return validationEnvelope{IsSuccessful: true}
	}
	return env
}
