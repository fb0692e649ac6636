package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentstation/internal/state"
	"agentstation/internal/tools"
)

const plannerSystemPrompt = `You are a task planner. Break the user's request into a sequence of atomic steps.

Available tools:
%s

Rules:
- Produce at most %d steps.
- A step that needs a tool names it in "tool_name"; a reasoning-only step leaves it empty.
- Set "requires_user_input" true when the step cannot run without information only the user has.
- Respond with a single JSON object and nothing else:
{
  "intent": {"goal": "...", "required_tools": ["..."], "required_info": {}, "confidence": 0.0},
  "steps": [{"title": "...", "description": "...", "tool_name": "", "requires_user_input": false}]
}`

func buildPlannerPrompt(schemas []tools.Schema, maxSteps int) string {
	var b strings.Builder
	for _, s := range schemas {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	if b.Len() == 0 {
		b.WriteString("(no tools registered)\n")
	}
	return fmt.Sprintf(plannerSystemPrompt, b.String(), maxSteps)
}

func buildPlannerUserPrompt(userInput string, retrievedDocs []string) string {
	if len(retrievedDocs) == 0 {
		return userInput
	}
	var b strings.Builder
	b.WriteString("Relevant knowledge:\n")
	for _, doc := range retrievedDocs {
		b.WriteString("- ")
		b.WriteString(doc)
		b.WriteString("\n")
	}
	b.WriteString("\nUser request: ")
	b.WriteString(userInput)
	return b.String()
}

const synthesisSystemPrompt = `You produce arguments for a tool invocation.

Tool: %s
Description: %s
Parameter schema:
%s

Respond with a single JSON object that is either:
1. an argument mapping conforming to the schema, or
2. {"requires_user_input": true, "missing_params": ["..."], "reason": "..."} when required values are unknowable from the context.

No prose, JSON only.`

func buildSynthesisPrompt(schema tools.Schema) string {
	params, err := json.MarshalIndent(schema.Parameters, "", "  ")
	if err != nil {
		params = []byte("{}")
	}
	return fmt.Sprintf(synthesisSystemPrompt, schema.Name, schema.Description, params)
}

func buildSynthesisContext(st *state.AgentState, step *state.TaskStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", st.UserInput)
	fmt.Fprintf(&b, "Current step: %s", step.Title)
	if step.Description != "" {
		fmt.Fprintf(&b, " (%s)", step.Description)
	}
	b.WriteString("\n")

	if len(st.StepResults) > 0 {
		b.WriteString("Previous results:\n")
		for _, r := range st.StepResults {
			data, err := json.Marshal(r.Result)
			if err != nil {
				data = []byte("null")
			}
			fmt.Fprintf(&b, "- %s: %s\n", r.StepTitle, data)
		}
	}
	if len(st.RetrievedDocs) > 0 {
		b.WriteString("Retrieved knowledge:\n")
		for _, doc := range st.RetrievedDocs {
			fmt.Fprintf(&b, "- %s\n", doc)
		}
	}
	return b.String()
}

const validatorSystemPrompt = `You judge whether a completed task plan satisfied the user's request.

Respond with a single JSON object:
{"is_successful": true, "failed_step_id": "", "failure_reason": "", "status_message": "...", "suggestions": []}

No prose, JSON only.`

func buildValidatorContext(st *state.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n\nSteps:\n", st.UserInput)
	for _, step := range st.TodoList {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", step.Status, step.Title, step.ID)
	}
	b.WriteString("\nResults:\n")
	for _, r := range st.StepResults {
		data, err := json.Marshal(r.Result)
		if err != nil {
			data = []byte("null")
		}
		fmt.Fprintf(&b, "- %s: %s\n", r.StepTitle, data)
	}
	return b.String()
}
