package agents

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentstation/internal/llm"
	"agentstation/internal/state"
	"agentstation/internal/tools"
)

func stateWithStep(step *state.TaskStep) *state.AgentState {
	st := state.New("run it", "conv_1", "user_1")
	st.TodoList = []*state.TaskStep{step}
	return st
}

func TestExecutorReasoningOnlyStep(t *testing.T) {
	exec := NewExecutor(llm.NewMockGenerator(), tools.NewRegistry(nil), nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "say hi", Status: state.StepPending})

	st = exec.Invoke(context.Background(), st)

	step := st.TodoList[0]
	assert.Equal(t, state.StepCompleted, step.Status)
	assert.NotNil(t, step.CompletedAt)
	assert.Equal(t, 1, st.CurrentStepIndex)
	require.Len(t, st.StepResults, 1)
	assert.Equal(t, "say hi", st.StepResults[0].StepTitle)
	assert.Nil(t, st.StepResults[0].Result)
}

func TestExecutorToolSuccess(t *testing.T) {
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "calculator"},
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"result": 14.0, "expression": args["expression"]}, nil
		}))

	gen := llm.NewMockGenerator(`{"expression": "2 + 3 * 4"}`)
	exec := NewExecutor(gen, reg, nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "calc", ToolName: "calculator", Status: state.StepPending})

	st = exec.Invoke(context.Background(), st)

	step := st.TodoList[0]
	assert.Equal(t, state.StepCompleted, step.Status)
	assert.Equal(t, map[string]any{"expression": "2 + 3 * 4"}, step.ToolInput)
	output := step.ToolOutput.(map[string]any)
	assert.Equal(t, true, output["success"])
	assert.Equal(t, 14.0, output["data"].(map[string]any)["result"])
	assert.Equal(t, 1, st.CurrentStepIndex)
}

func TestExecutorSkipsSynthesisWhenInputPresent(t *testing.T) {
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "echo"},
		func(ctx context.Context, args map[string]any) (any, error) { return args, nil }))

	gen := llm.NewMockGenerator()
	exec := NewExecutor(gen, reg, nil, nil)
	st := stateWithStep(&state.TaskStep{
		ID: "step_1", Title: "echo", ToolName: "echo", Status: state.StepPending,
		ToolInput: map[string]any{"x": "preset"},
	})

	st = exec.Invoke(context.Background(), st)

	assert.Equal(t, state.StepCompleted, st.TodoList[0].Status)
	assert.Zero(t, gen.CallCount(), "synthesis must be skipped when tool_input is set")
}

func TestExecutorSuspendsOnSentinel(t *testing.T) {
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "send_email", RequiresUserConfig: true},
		func(ctx context.Context, args map[string]any) (any, error) { return "sent", nil }))

	gen := llm.NewMockGenerator(`{"requires_user_input": true, "missing_params": ["smtp_server"], "reason": "needs SMTP"}`)
	exec := NewExecutor(gen, reg, nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "mail", ToolName: "send_email", Status: state.StepPending})

	st = exec.Invoke(context.Background(), st)

	require.NotNil(t, st.PendingUserInput)
	assert.Equal(t, "step_1", st.PendingUserInput.StepID)
	assert.Equal(t, "send_email", st.PendingUserInput.ToolName)
	assert.Equal(t, []string{"smtp_server"}, st.PendingUserInput.MissingParams)
	assert.Equal(t, "needs SMTP", st.PendingUserInput.Reason)
	assert.Equal(t, state.StepRunning, st.TodoList[0].Status)
	assert.Equal(t, state.StatusPending, st.FinalStatus)
	assert.Zero(t, st.CurrentStepIndex)
	assert.Equal(t, NodeEnd, Route(st))
}

func TestExecutorUnparseableSynthesisInvokesWithEmptyArgs(t *testing.T) {
	var got map[string]any
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "probe"},
		func(ctx context.Context, args map[string]any) (any, error) {
			got = args
			return "ok", nil
		}))

	gen := llm.NewMockGenerator("no json here")
	exec := NewExecutor(gen, reg, nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "probe", ToolName: "probe", Status: state.StepPending})

	st = exec.Invoke(context.Background(), st)

	assert.Equal(t, state.StepCompleted, st.TodoList[0].Status)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExecutorRetryThenTerminalFailure(t *testing.T) {
	var calls atomic.Int32
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "flaky"},
		func(ctx context.Context, args map[string]any) (any, error) {
			calls.Add(1)
			return nil, errors.New("always broken")
		}))

	gen := llm.NewMockGenerator(`{}`)
	exec := NewExecutor(gen, reg, nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "flaky step", ToolName: "flaky", Status: state.StepPending})

	// First two failures re-enqueue the step.
	for attempt := 1; attempt < MaxRetryCount; attempt++ {
		st = exec.Invoke(context.Background(), st)
		step := st.TodoList[0]
		assert.Equal(t, state.StepPending, step.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, step.RetryCount)
		assert.Contains(t, step.Error, "always broken")
		assert.Equal(t, state.StatusPending, st.FinalStatus)
		assert.Zero(t, st.CurrentStepIndex)
		assert.Equal(t, NodeExecutor, Route(st))
	}

	// Third failure is terminal.
	st = exec.Invoke(context.Background(), st)
	step := st.TodoList[0]
	assert.Equal(t, state.StepFailed, step.Status)
	assert.Equal(t, MaxRetryCount, step.RetryCount)
	assert.Equal(t, state.StatusFailed, st.FinalStatus)
	assert.Contains(t, st.ErrorInfo, "Step failed after 3 retries")
	assert.Equal(t, int32(MaxRetryCount), calls.Load(), "tool must be invoked exactly MAX_RETRY_COUNT times")
}

func TestExecutorConfiguredRetryBound(t *testing.T) {
	var calls atomic.Int32
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "flaky"},
		func(ctx context.Context, args map[string]any) (any, error) {
			calls.Add(1)
			return nil, errors.New("always broken")
		}))

	exec := NewExecutor(llm.NewMockGenerator(`{}`), reg, nil, nil)
	exec.SetMaxRetries(2)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "flaky step", ToolName: "flaky", Status: state.StepPending})

	st = exec.Invoke(context.Background(), st)
	assert.Equal(t, state.StepPending, st.TodoList[0].Status)

	st = exec.Invoke(context.Background(), st)
	assert.Equal(t, state.StatusFailed, st.FinalStatus)
	assert.Contains(t, st.ErrorInfo, "Step failed after 2 retries")
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecutorTimeoutFlowsIntoRetry(t *testing.T) {
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.Register(tools.Schema{Name: "slow", TimeoutSeconds: 1},
		func(ctx context.Context, args map[string]any) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))

	gen := llm.NewMockGenerator(`{}`)
	exec := NewExecutor(gen, reg, nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "slow step", ToolName: "slow", Status: state.StepPending})

	st = exec.Invoke(context.Background(), st)

	step := st.TodoList[0]
	assert.Equal(t, state.StepPending, step.Status)
	assert.Equal(t, 1, step.RetryCount)
	assert.Contains(t, step.Error, "timeout")
}

func TestExecutorUnknownTool(t *testing.T) {
	gen := llm.NewMockGenerator(`{}`)
	exec := NewExecutor(gen, tools.NewRegistry(nil), nil, nil)
	st := stateWithStep(&state.TaskStep{ID: "step_1", Title: "ghost", ToolName: "nonexistent", Status: state.StepPending})

	for i := 0; i < MaxRetryCount; i++ {
		st = exec.Invoke(context.Background(), st)
	}

	assert.Equal(t, state.StatusFailed, st.FinalStatus)
	assert.Contains(t, st.ErrorInfo, "Tool not found")
	assert.Zero(t, gen.CallCount(), "lookup fails before synthesis")
}

func TestExecutorPastEndOfPlan(t *testing.T) {
	exec := NewExecutor(llm.NewMockGenerator(), tools.NewRegistry(nil), nil, nil)
	st := state.New("x", "c", "u")
	st.TodoList = []*state.TaskStep{{ID: "a", Status: state.StepCompleted}}
	st.CurrentStepIndex = 1

	st = exec.Invoke(context.Background(), st)
	assert.Equal(t, state.StatusSuccess, st.FinalStatus)
}
