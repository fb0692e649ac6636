package agents

import (
	"context"
	"fmt"

	"agentstation/internal/llm"
	"agentstation/internal/logging"
	"agentstation/internal/state"
	"agentstation/internal/tools"
	"agentstation/internal/utils/id"
)

// MaxTaskSteps is the default cap on plan length, overridable per planner
// via SetMaxSteps (config key workflow.max_task_steps).
const MaxTaskSteps = 20

// knowledgeTopK is how many documents the planner retrieves for context.
const knowledgeTopK = 3

// Planner turns a user utterance into a todo list.
type Planner struct {
	generator llm.Generator
	registry  *tools.Registry
	knowledge KnowledgeSearcher
	logger    logging.Logger
	maxSteps  int
}

// NewPlanner constructs a planner. knowledge may be nil, in which case no
// retrieval happens.
func NewPlanner(generator llm.Generator, registry *tools.Registry, knowledge KnowledgeSearcher, logger logging.Logger) *Planner {
	return &Planner{
		generator: generator,
		registry:  registry,
		knowledge: knowledge,
		logger:    logging.OrNop(logger),
		maxSteps:  MaxTaskSteps,
	}
}

// SetMaxSteps overrides the plan length cap. Non-positive values are ignored.
func (p *Planner) SetMaxSteps(n int) {
	if n > 0 {
		p.maxSteps = n
	}
}

// Invoke produces the plan. On LLM or parse failure the state is marked
// terminally failed with a "Planning error" message.
func (p *Planner) Invoke(ctx context.Context, st *state.AgentState) *state.AgentState {
	st.CurrentAgent = state.AgentPlanner

	if p.knowledge != nil {
		docs, err := p.knowledge.Search(ctx, st.UserInput, knowledgeTopK)
		if err != nil {
			p.logger.Warn("knowledge retrieval failed, planning without context: %v", err)
		} else {
			st.RetrievedDocs = docs
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildPlannerPrompt(p.registry.ListSchemas(), p.maxSteps)},
		{Role: llm.RoleUser, Content: buildPlannerUserPrompt(st.UserInput, st.RetrievedDocs)},
	}
	st.TokenCount += llm.CountTokens(messages)

	response, err := p.generator.Complete(ctx, messages)
	if err != nil {
		st.Fail(fmt.Sprintf("Planning error: %v", err))
		return st
	}

	env, err := parsePlannerOutput(response)
	if err != nil {
		st.Fail(fmt.Sprintf("Planning error: %v", err))
		return st
	}

	st.ParsedIntent = &state.ParsedIntent{
		Goal:          env.Intent.Goal,
		RequiredTools: env.Intent.RequiredTools,
		RequiredInfo:  env.Intent.RequiredInfo,
		Confidence:    env.Intent.Confidence,
	}

	steps := env.Steps
	if len(steps) > p.maxSteps {
		p.logger.Warn("plan truncated from %d to %d steps", len(steps), p.maxSteps)
		steps = steps[:p.maxSteps]
	}

	st.TodoList = make([]*state.TaskStep, 0, len(steps))
	for _, s := range steps {
		st.TodoList = append(st.TodoList, &state.TaskStep{
			ID:          id.NewStepID(),
			Title:       s.Title,
			Description: s.Description,
			ToolName:    s.ToolName,
			Status:      state.StepPending,
		})
	}
	st.CurrentStepIndex = 0
	st.Touch()

	p.logger.Info("planned %d steps for conversation %s", len(st.TodoList), st.ConversationID)
	return st
}
