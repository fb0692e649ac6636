package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentstation/internal/llm"
	"agentstation/internal/state"
	"agentstation/internal/tools"
)

type stubSearcher struct {
	docs    []string
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int) ([]string, error) {
	s.queries = append(s.queries, query)
	return s.docs, nil
}

const plannerResponse = `{
	"intent": {"goal": "compute 2+3*4", "required_tools": ["calculator"], "confidence": 0.95},
	"steps": [{"title": "evaluate expression", "tool_name": "calculator"}]
}`

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(nil)
	err := reg.Register(tools.Schema{Name: "calculator", Description: "evaluates arithmetic"},
		func(ctx context.Context, args map[string]any) (any, error) { return nil, nil })
	require.NoError(t, err)
	return reg
}

func TestPlannerProducesPlan(t *testing.T) {
	gen := llm.NewMockGenerator(plannerResponse)
	searcher := &stubSearcher{docs: []string{"arithmetic precedence notes"}}
	planner := NewPlanner(gen, newTestRegistry(t), searcher, nil)

	st := planner.Invoke(context.Background(), state.New("what is 2+3*4", "conv_1", "user_1"))

	assert.Equal(t, state.AgentPlanner, st.CurrentAgent)
	assert.Equal(t, state.StatusPending, st.FinalStatus)
	require.NotNil(t, st.ParsedIntent)
	assert.Equal(t, "compute 2+3*4", st.ParsedIntent.Goal)
	require.Len(t, st.TodoList, 1)
	assert.Equal(t, "evaluate expression", st.TodoList[0].Title)
	assert.Equal(t, "calculator", st.TodoList[0].ToolName)
	assert.Equal(t, state.StepPending, st.TodoList[0].Status)
	assert.NotEmpty(t, st.TodoList[0].ID)
	assert.Zero(t, st.CurrentStepIndex)
	assert.Equal(t, []string{"arithmetic precedence notes"}, st.RetrievedDocs)
	assert.Equal(t, []string{"what is 2+3*4"}, searcher.queries)
	assert.Positive(t, st.TokenCount)

	// The prompt advertises the registered tools.
	msgs := gen.LastCall()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "calculator")
	assert.Contains(t, msgs[1].Content, "arithmetic precedence notes")
}

func TestPlannerStepIDsAreUnique(t *testing.T) {
	response := `{"intent": {"goal": "g"}, "steps": [
		{"title": "one"}, {"title": "two"}, {"title": "three"}
	]}`
	planner := NewPlanner(llm.NewMockGenerator(response), newTestRegistry(t), nil, nil)
	st := planner.Invoke(context.Background(), state.New("x", "c", "u"))

	seen := map[string]bool{}
	for _, step := range st.TodoList {
		assert.False(t, seen[step.ID], "duplicate step id %s", step.ID)
		seen[step.ID] = true
	}
}

func TestPlannerTruncatesOversizedPlan(t *testing.T) {
	response := `{"intent": {"goal": "g"}, "steps": [`
	for i := 0; i < 25; i++ {
		if i > 0 {
			response += ","
		}
		response += `{"title": "step"}`
	}
	response += `]}`

	planner := NewPlanner(llm.NewMockGenerator(response), newTestRegistry(t), nil, nil)
	st := planner.Invoke(context.Background(), state.New("x", "c", "u"))

	assert.Len(t, st.TodoList, MaxTaskSteps)
	assert.NoError(t, st.Validate(MaxTaskSteps, MaxRetryCount))
}

func TestPlannerConfiguredStepCap(t *testing.T) {
	response := `{"intent": {"goal": "g"}, "steps": [
		{"title": "one"}, {"title": "two"}, {"title": "three"}, {"title": "four"}
	]}`
	gen := llm.NewMockGenerator(response)
	planner := NewPlanner(gen, newTestRegistry(t), nil, nil)
	planner.SetMaxSteps(2)

	st := planner.Invoke(context.Background(), state.New("x", "c", "u"))
	assert.Len(t, st.TodoList, 2)
	assert.Contains(t, gen.LastCall()[0].Content, "2", "the prompt advertises the configured cap")

	// Non-positive overrides are ignored.
	planner.SetMaxSteps(0)
	st = planner.Invoke(context.Background(), state.New("x", "c", "u"))
	assert.Len(t, st.TodoList, 2)
}

func TestPlannerParseFailure(t *testing.T) {
	planner := NewPlanner(llm.NewMockGenerator("I refuse to answer in JSON"), newTestRegistry(t), nil, nil)
	st := planner.Invoke(context.Background(), state.New("x", "c", "u"))

	assert.Equal(t, state.StatusFailed, st.FinalStatus)
	assert.Contains(t, st.ErrorInfo, "Planning error")
	assert.Empty(t, st.TodoList)
}

func TestPlannerGeneratorError(t *testing.T) {
	gen := llm.NewMockGenerator()
	planner := NewPlanner(gen, newTestRegistry(t), nil, nil)
	st := planner.Invoke(context.Background(), state.New("x", "c", "u"))

	assert.Equal(t, state.StatusFailed, st.FinalStatus)
	assert.Contains(t, st.ErrorInfo, "Planning error")
}
