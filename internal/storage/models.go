// Package storage holds the durable records behind the HTTP surface:
// conversations, tasks, and messages, backed by SQLite.
package storage

import (
	"agentstation/internal/state"
)

// Conversation groups tasks and messages under one thread of discussion.
type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Task is one user utterance and its workflow run. The plan fields mirror
// the agent state at the latest observed transition.
type Task struct {
	ID               string              `json:"id"`
	ConversationID   string              `json:"conversation_id"`
	UserID           string              `json:"user_id"`
	UserInput        string              `json:"user_input"`
	ParsedIntent     *state.ParsedIntent `json:"parsed_intent,omitempty"`
	TodoList         []*state.TaskStep   `json:"todo_list"`
	CurrentStepIndex int                 `json:"current_step_index"`
	Context          map[string]any      `json:"context,omitempty"`
	StepResults      []state.StepResult  `json:"step_results"`
	Status           state.FinalStatus   `json:"status"`
	ErrorInfo        string              `json:"error_info,omitempty"`
	CreatedAt        int64               `json:"created_at"`
	UpdatedAt        int64               `json:"updated_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one chat entry inside a conversation, optionally bound to the
// task that produced it.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	TaskID         string         `json:"task_id,omitempty"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      int64          `json:"created_at"`
}

// ApplyState refreshes the task's plan fields from a workflow snapshot.
func (t *Task) ApplyState(st *state.AgentState) {
	t.ParsedIntent = st.ParsedIntent
	t.TodoList = st.TodoList
	t.CurrentStepIndex = st.CurrentStepIndex
	t.Context = st.Context
	t.StepResults = st.StepResults
	t.Status = st.FinalStatus
	t.ErrorInfo = st.ErrorInfo
}
