package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	st := New("do the thing", "conv_1", "user_1")

	assert.Equal(t, "do the thing", st.UserInput)
	assert.Equal(t, "conv_1", st.ConversationID)
	assert.Equal(t, AgentSupervisor, st.CurrentAgent)
	assert.Equal(t, StatusPending, st.FinalStatus)
	assert.Empty(t, st.TodoList)
	assert.Zero(t, st.CurrentStepIndex)
	assert.NotEmpty(t, st.CreatedAt)
}

func TestCheckpointRoundTrip(t *testing.T) {
	st := New("plan a trip", "conv_2", "user_1")
	st.TodoList = []*TaskStep{
		{ID: "step_aa", Title: "look up weather", Status: StepCompleted, ToolName: "fetch_weather",
			ToolInput:  map[string]any{"city": "Tokyo"},
			ToolOutput: map[string]any{"success": true, "data": map[string]any{"temperature": 22.0}}},
		{ID: "step_bb", Title: "book hotel", Status: StepPending},
	}
	st.CurrentStepIndex = 1
	st.StepResults = []StepResult{{StepID: "step_aa", StepTitle: "look up weather", Result: map[string]any{"ok": true}}}
	st.ParsedIntent = &ParsedIntent{Goal: "trip", RequiredTools: []string{"fetch_weather"}, Confidence: 0.9}
	st.PendingUserInput = &PendingUserInput{StepID: "step_bb", ToolName: "book", MissingParams: []string{"dates"}}

	data, err := st.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, st.UserInput, restored.UserInput)
	assert.Equal(t, st.CurrentStepIndex, restored.CurrentStepIndex)
	require.Len(t, restored.TodoList, 2)
	assert.Equal(t, st.TodoList[0].ID, restored.TodoList[0].ID)
	assert.Equal(t, st.TodoList[0].ToolInput["city"], restored.TodoList[0].ToolInput["city"])
	require.NotNil(t, restored.PendingUserInput)
	assert.Equal(t, []string{"dates"}, restored.PendingUserInput.MissingParams)
	require.NotNil(t, restored.ParsedIntent)
	assert.Equal(t, "trip", restored.ParsedIntent.Goal)

	// A second round trip is byte-stable.
	data2, err := restored.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(data2))
}

func TestCurrentStep(t *testing.T) {
	st := New("x", "c", "u")
	assert.Nil(t, st.CurrentStep())

	st.TodoList = []*TaskStep{{ID: "step_1"}, {ID: "step_2"}}
	assert.Equal(t, "step_1", st.CurrentStep().ID)

	st.CurrentStepIndex = 2
	assert.Nil(t, st.CurrentStep())
}

func TestValidate(t *testing.T) {
	t.Run("fresh state is valid", func(t *testing.T) {
		assert.NoError(t, New("x", "c", "u").Validate(20, 3))
	})

	t.Run("index out of range", func(t *testing.T) {
		st := New("x", "c", "u")
		st.CurrentStepIndex = 1
		assert.Error(t, st.Validate(20, 3))
	})

	t.Run("index may equal plan length", func(t *testing.T) {
		st := New("x", "c", "u")
		st.TodoList = []*TaskStep{{ID: "a", Status: StepCompleted}}
		st.CurrentStepIndex = 1
		assert.NoError(t, st.Validate(20, 3))
	})

	t.Run("too many steps", func(t *testing.T) {
		st := New("x", "c", "u")
		for i := 0; i < 21; i++ {
			st.TodoList = append(st.TodoList, &TaskStep{ID: "s", Status: StepPending})
		}
		assert.Error(t, st.Validate(20, 3))
	})

	t.Run("retry count over cap", func(t *testing.T) {
		st := New("x", "c", "u")
		st.TodoList = []*TaskStep{{ID: "a", Status: StepPending, RetryCount: 4}}
		assert.Error(t, st.Validate(20, 3))
	})

	t.Run("two running steps", func(t *testing.T) {
		st := New("x", "c", "u")
		st.TodoList = []*TaskStep{
			{ID: "a", Status: StepRunning},
			{ID: "b", Status: StepRunning},
		}
		assert.Error(t, st.Validate(20, 3))
	})

	t.Run("failed step needs an error", func(t *testing.T) {
		st := New("x", "c", "u")
		st.TodoList = []*TaskStep{{ID: "a", Status: StepFailed}}
		assert.Error(t, st.Validate(20, 3))
	})

	t.Run("success requires all steps completed", func(t *testing.T) {
		st := New("x", "c", "u")
		st.TodoList = []*TaskStep{{ID: "a", Status: StepPending}}
		st.CurrentStepIndex = 1
		st.FinalStatus = StatusSuccess
		assert.Error(t, st.Validate(20, 3))
	})
}

func TestFail(t *testing.T) {
	st := New("x", "c", "u")
	st.Fail("boom")
	assert.Equal(t, StatusFailed, st.FinalStatus)
	assert.Equal(t, "boom", st.ErrorInfo)
	assert.True(t, st.FinalStatus.IsTerminal())
}
