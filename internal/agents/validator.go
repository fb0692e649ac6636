package agents

import (
	"context"
	"fmt"

	"agentstation/internal/llm"
	"agentstation/internal/logging"
	"agentstation/internal/state"
)

// Validator confirms or downgrades the outcome of a finished plan.
type Validator struct {
	generator llm.Generator
	logger    logging.Logger
}

func NewValidator(generator llm.Generator, logger logging.Logger) *Validator {
	return &Validator{generator: generator, logger: logging.OrNop(logger)}
}

// Invoke inspects the terminated todo list. A failed step fails the run
// outright; otherwise the model judges whether the results satisfy the
// request. An unparseable verdict counts as success.
func (v *Validator) Invoke(ctx context.Context, st *state.AgentState) *state.AgentState {
	st.CurrentAgent = state.AgentValidator

	for _, step := range st.TodoList {
		if step.Status == state.StepFailed {
			st.Fail(fmt.Sprintf("step failed: %s: %s", step.Title, step.Error))
			return st
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: validatorSystemPrompt},
		{Role: llm.RoleUser, Content: buildValidatorContext(st)},
	}
	st.TokenCount += llm.CountTokens(messages)

	response, err := v.generator.Complete(ctx, messages)
	if err != nil {
		// The plan finished; a judge outage does not undo that.
		v.logger.Warn("validation call failed, accepting completed plan: %v", err)
		st.FinalStatus = state.StatusSuccess
		st.Touch()
		return st
	}

	verdict := parseValidation(response)
	if verdict.IsSuccessful {
		st.FinalStatus = state.StatusSuccess
		if verdict.StatusMessage != "" {
			st.Context["status_message"] = verdict.StatusMessage
		}
		st.Touch()
		return st
	}

	errInfo := verdict.FailureReason
	if errInfo == "" {
		errInfo = "validation failed"
	}
	if verdict.FailedStepID != "" {
		st.Context["failed_step_id"] = verdict.FailedStepID
	}
	if len(verdict.Suggestions) > 0 {
		st.Context["suggestions"] = verdict.Suggestions
	}
	st.Fail(errInfo)
	v.logger.Info("validator rejected conversation %s: %s", st.ConversationID, errInfo)
	return st
}
