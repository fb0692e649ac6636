package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentstation/internal/llm"
	"agentstation/internal/logging"
	"agentstation/internal/observability"
	"agentstation/internal/state"
	"agentstation/internal/tools"
)

// MaxRetryCount is the default bound on per-step retries, overridable per
// executor via SetMaxRetries (config key workflow.max_retry_count). A step
// is invoked at most that many times before the workflow fails terminally.
const MaxRetryCount = 3

// Executor advances the workflow by at most one step per invocation.
type Executor struct {
	generator  llm.Generator
	registry   *tools.Registry
	metrics    *observability.Metrics
	logger     logging.Logger
	maxRetries int
}

// NewExecutor constructs an executor. metrics may be nil.
func NewExecutor(generator llm.Generator, registry *tools.Registry, metrics *observability.Metrics, logger logging.Logger) *Executor {
	return &Executor{
		generator:  generator,
		registry:   registry,
		metrics:    metrics,
		logger:     logging.OrNop(logger),
		maxRetries: MaxRetryCount,
	}
}

// SetMaxRetries overrides the per-step retry bound. Non-positive values are
// ignored.
func (e *Executor) SetMaxRetries(n int) {
	if n > 0 {
		e.maxRetries = n
	}
}

// Invoke runs one step: synthesize arguments, invoke the tool, and either
// complete, suspend, re-enqueue for retry, or fail the workflow.
func (e *Executor) Invoke(ctx context.Context, st *state.AgentState) *state.AgentState {
	if st.CurrentStepIndex >= len(st.TodoList) {
		st.FinalStatus = state.StatusSuccess
		st.Touch()
		return st
	}

	step := st.TodoList[st.CurrentStepIndex]
	now := time.Now().UTC()
	step.Status = state.StepRunning
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	st.CurrentAgent = state.AgentExecutor

	var failure error
	if step.ToolName != "" {
		suspended, err := e.runToolStep(ctx, st, step)
		if suspended {
			return st
		}
		failure = err
	} else {
		// Reasoning-only step: nothing to invoke.
		done := time.Now().UTC()
		step.Status = state.StepCompleted
		step.CompletedAt = &done
	}

	if failure != nil {
		return e.failStep(st, step, failure)
	}

	st.StepResults = append(st.StepResults, state.StepResult{
		StepID:    step.ID,
		StepTitle: step.Title,
		Result:    step.ToolOutput,
	})
	st.CurrentStepIndex++
	st.Touch()
	return st
}

// runToolStep handles lookup, parameter synthesis, and invocation. The bool
// reports suspension; in that case the state already carries
// pending_user_input and must be returned as-is.
func (e *Executor) runToolStep(ctx context.Context, st *state.AgentState, step *state.TaskStep) (bool, error) {
	schema, invoker, err := e.registry.Get(step.ToolName)
	if err != nil {
		return false, err
	}

	if step.ToolInput == nil {
		synth := e.synthesizeParams(ctx, st, step, schema)
		if synth.NeedsUser {
			st.PendingUserInput = &state.PendingUserInput{
				StepID:        step.ID,
				ToolName:      step.ToolName,
				MissingParams: synth.MissingParams,
				Reason:        synth.Reason,
			}
			st.Touch()
			e.logger.Info("step %s suspended awaiting user input (%v)", step.ID, synth.MissingParams)
			return true, nil
		}
		step.ToolInput = synth.Args
	}

	result, err := tools.Invoke(ctx, schema, invoker, step.ToolInput)
	if e.metrics != nil {
		e.metrics.ObserveToolInvocation(step.ToolName, err)
	}
	if err != nil {
		return false, err
	}

	done := time.Now().UTC()
	step.ToolOutput = map[string]any{"success": true, "data": result}
	step.Status = state.StepCompleted
	step.CompletedAt = &done
	return false, nil
}

// synthesizeParams asks the model for an argument mapping. An unusable
// response degrades to empty arguments; the invocation decides whether the
// tool can live with that.
func (e *Executor) synthesizeParams(ctx context.Context, st *state.AgentState, step *state.TaskStep, schema tools.Schema) paramSynthesis {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildSynthesisPrompt(schema)},
		{Role: llm.RoleUser, Content: buildSynthesisContext(st, step)},
	}
	st.TokenCount += llm.CountTokens(messages)

	response, err := e.generator.Complete(ctx, messages)
	if err != nil {
		e.logger.Warn("parameter synthesis failed for step %s, invoking with empty args: %v", step.ID, err)
		return paramSynthesis{Args: map[string]any{}}
	}
	synth := parseParamSynthesis(response)
	if synth.ParseFailure {
		e.logger.Warn("unparseable synthesis output for step %s, invoking with empty args", step.ID)
	}
	return synth
}

func (e *Executor) failStep(st *state.AgentState, step *state.TaskStep, cause error) *state.AgentState {
	step.Status = state.StepFailed
	step.Error = errorMessage(cause)
	step.RetryCount++
	if e.metrics != nil {
		e.metrics.ObserveStepRetry(step.ToolName)
	}

	if step.RetryCount < e.maxRetries {
		step.Status = state.StepPending
		st.Touch()
		e.logger.Warn("step %s failed (attempt %d/%d): %v", step.ID, step.RetryCount, e.maxRetries, cause)
		return st
	}

	st.Fail(fmt.Sprintf("Step failed after %d retries: %s", step.RetryCount, step.Error))
	e.logger.Error("step %s failed terminally: %v", step.ID, cause)
	return st
}

// errorMessage keeps the stable registry error codes visible in step errors.
func errorMessage(err error) string {
	if errors.Is(err, tools.ErrNotFound) {
		return "Tool not found: " + strings.TrimPrefix(err.Error(), "tool not found: ")
	}
	return err.Error()
}
