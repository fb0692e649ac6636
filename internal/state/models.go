// Package state defines the agent workflow state model: the plan steps, the
// parsed intent, and the AgentState value that is threaded through the
// workflow and checkpointed after every node transition.
package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepStatus represents the lifecycle state of a single plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// FinalStatus represents the terminal disposition of a workflow.
type FinalStatus string

const (
	StatusPending FinalStatus = "pending"
	StatusSuccess FinalStatus = "success"
	StatusFailed  FinalStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s FinalStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// AgentName identifies a workflow node.
type AgentName string

const (
	AgentSupervisor AgentName = "supervisor"
	AgentPlanner    AgentName = "planner"
	AgentExecutor   AgentName = "executor"
	AgentValidator  AgentName = "validator"
)

// TaskStep is one atomic unit of work produced by the planner.
type TaskStep struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      StepStatus     `json:"status"`
	ToolName    string         `json:"tool_name,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`
	ToolOutput  any            `json:"tool_output,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ParsedIntent is the planner's reading of the user request.
type ParsedIntent struct {
	Goal          string         `json:"goal"`
	RequiredTools []string       `json:"required_tools"`
	RequiredInfo  map[string]any `json:"required_info"`
	Confidence    float64        `json:"confidence"`
}

// PendingUserInput marks a suspended step awaiting human-provided config.
type PendingUserInput struct {
	StepID        string   `json:"step_id"`
	ToolName      string   `json:"tool_name"`
	MissingParams []string `json:"missing_params,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	StepID    string `json:"step_id"`
	StepTitle string `json:"step_title"`
	Result    any    `json:"result"`
}

// AgentState is the single value threaded through the workflow. It is the
// checkpointed unit: the engine serialises the full state under the thread
// key after every node transition.
type AgentState struct {
	// Inputs
	UserInput      string `json:"user_input"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`

	// Plan
	ParsedIntent     *ParsedIntent `json:"parsed_intent,omitempty"`
	TodoList         []*TaskStep   `json:"todo_list"`
	CurrentStepIndex int           `json:"current_step_index"`

	// Execution
	StepResults   []StepResult   `json:"step_results"`
	Context       map[string]any `json:"context"`
	RetrievedDocs []string       `json:"retrieved_docs,omitempty"`

	// Human-in-the-loop
	PendingUserInput   *PendingUserInput `json:"pending_user_input,omitempty"`
	UserProvidedConfig map[string]any    `json:"user_provided_config,omitempty"`

	// Status
	CurrentAgent AgentName   `json:"current_agent"`
	FinalStatus  FinalStatus `json:"final_status"`
	ErrorInfo    string      `json:"error_info,omitempty"`

	// Metadata
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// Token management. CompressedHistory is reserved for a future
	// history-compaction pass.
	TokenCount        int      `json:"token_count"`
	CompressedHistory []string `json:"compressed_history"`
}

// New constructs the initial state for a fresh user utterance.
func New(userInput, conversationID, userID string) *AgentState {
	now := time.Now().UTC().Format(time.RFC3339)
	return &AgentState{
		UserInput:         userInput,
		ConversationID:    conversationID,
		UserID:            userID,
		TodoList:          []*TaskStep{},
		CurrentStepIndex:  0,
		StepResults:       []StepResult{},
		Context:           map[string]any{},
		CurrentAgent:      AgentSupervisor,
		FinalStatus:       StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		TokenCount:        0,
		CompressedHistory: []string{},
	}
}

// CurrentStep returns the step at CurrentStepIndex, or nil when the index is
// past the end of the plan.
func (s *AgentState) CurrentStep() *TaskStep {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.TodoList) {
		return nil
	}
	return s.TodoList[s.CurrentStepIndex]
}

// Touch stamps UpdatedAt with the current time.
func (s *AgentState) Touch() {
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Fail marks the workflow terminally failed.
func (s *AgentState) Fail(errInfo string) {
	s.FinalStatus = StatusFailed
	s.ErrorInfo = errInfo
	s.Touch()
}

// Marshal serialises the state for checkpointing or streaming.
func (s *AgentState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal restores a state from its checkpoint serialisation.
func Unmarshal(data []byte) (*AgentState, error) {
	var st AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode agent state: %w", err)
	}
	return &st, nil
}

// Validate checks the structural invariants every reachable state must hold.
// It is used by tests and by the engine's debug assertions.
func (s *AgentState) Validate(maxSteps, maxRetries int) error {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex > len(s.TodoList) {
		return fmt.Errorf("current_step_index %d out of range [0,%d]", s.CurrentStepIndex, len(s.TodoList))
	}
	if maxSteps > 0 && len(s.TodoList) > maxSteps {
		return fmt.Errorf("todo_list has %d steps, cap is %d", len(s.TodoList), maxSteps)
	}
	running := 0
	for _, step := range s.TodoList {
		if maxRetries > 0 && step.RetryCount > maxRetries {
			return fmt.Errorf("step %s retry_count %d exceeds %d", step.ID, step.RetryCount, maxRetries)
		}
		if step.Status == StepRunning {
			running++
		}
		if step.Status == StepFailed && step.Error == "" {
			return fmt.Errorf("step %s failed without an error message", step.ID)
		}
	}
	if running > 1 {
		return fmt.Errorf("%d steps running at once", running)
	}
	if s.FinalStatus == StatusSuccess {
		for _, step := range s.TodoList {
			if step.Status != StepCompleted {
				return fmt.Errorf("final_status success but step %s is %s", step.ID, step.Status)
			}
		}
	}
	return nil
}
