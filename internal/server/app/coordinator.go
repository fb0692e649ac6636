package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentstation/internal/checkpoint"
	"agentstation/internal/logging"
	"agentstation/internal/state"
	"agentstation/internal/storage"
	"agentstation/internal/utils/id"
	"agentstation/internal/workflow"
)

// Coordinator glues the workflow engine to the repositories and the
// broadcaster. One instance serves the whole process.
type Coordinator struct {
	engine      *workflow.Engine
	repo        *storage.Repository
	cache       *checkpoint.TaskStateCache
	broadcaster *Broadcaster
	logger      logging.Logger
}

func NewCoordinator(engine *workflow.Engine, repo *storage.Repository, cache *checkpoint.TaskStateCache, broadcaster *Broadcaster, logger logging.Logger) *Coordinator {
	return &Coordinator{
		engine:      engine,
		repo:        repo,
		cache:       cache,
		broadcaster: broadcaster,
		logger:      logging.OrNop(logger),
	}
}

// CreateTask persists the task and the user's message, and announces the
// task to subscribers. The workflow is not started yet.
func (c *Coordinator) CreateTask(ctx context.Context, conversationID, userID, userInput string) (storage.Task, error) {
	if _, err := c.repo.GetConversation(ctx, conversationID); err != nil {
		return storage.Task{}, err
	}

	now := time.Now().Unix()
	task := storage.Task{
		ID:             id.NewTaskID(),
		ConversationID: conversationID,
		UserID:         userID,
		UserInput:      userInput,
		Status:         state.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.repo.CreateTask(ctx, task); err != nil {
		return storage.Task{}, err
	}
	if err := c.repo.CreateMessage(ctx, storage.Message{
		ID:             id.NewMessageID(),
		ConversationID: conversationID,
		TaskID:         task.ID,
		Role:           storage.RoleUser,
		Content:        userInput,
		CreatedAt:      now,
	}); err != nil {
		return storage.Task{}, err
	}
	_ = c.repo.TouchConversation(ctx, conversationID)

	c.broadcaster.Emit(conversationID, StreamEvent{
		Type: EventTaskCreated,
		Data: map[string]any{
			"task_id":         task.ID,
			"conversation_id": conversationID,
			"user_input":      userInput,
		},
	})
	return task, nil
}

// RunTask drives the workflow for a created task to its next stopping point
// (terminal status or suspension), streaming every transition.
func (c *Coordinator) RunTask(ctx context.Context, task storage.Task) (*state.AgentState, error) {
	final, err := c.engine.Start(ctx, task.UserInput, task.ConversationID, task.UserID, c.emitter(ctx, task))
	if err != nil {
		c.emitError(task, err)
		return nil, err
	}
	c.finishRun(ctx, task, final)
	return final, nil
}

// StartTask is CreateTask plus a background RunTask. It returns as soon as
// the records exist; progress flows through the broadcaster.
func (c *Coordinator) StartTask(ctx context.Context, conversationID, userID, userInput string) (storage.Task, error) {
	task, err := c.CreateTask(ctx, conversationID, userID, userInput)
	if err != nil {
		return storage.Task{}, err
	}
	go func() {
		// The run outlives the request that created it.
		if _, err := c.RunTask(context.Background(), task); err != nil {
			c.logger.Error("task %s run failed: %v", task.ID, err)
		}
	}()
	return task, nil
}

// ResumeTask re-enters a suspended task with user-provided configuration
// and drives it to its next stopping point.
func (c *Coordinator) ResumeTask(ctx context.Context, taskID string, userConfig map[string]any) (*state.AgentState, error) {
	task, err := c.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	final, err := c.engine.Resume(ctx, task.ConversationID, userConfig, c.emitter(ctx, task))
	if err != nil {
		c.emitError(task, err)
		return nil, err
	}

	c.broadcaster.Emit(task.ConversationID, StreamEvent{
		Type: EventTaskResumed,
		Data: map[string]any{"task_id": task.ID},
	})
	c.finishRun(ctx, task, final)
	return final, nil
}

// GetTaskState serves status polls: cache first, then the task record.
func (c *Coordinator) GetTaskState(ctx context.Context, taskID string) (storage.Task, error) {
	task, err := c.repo.GetTask(ctx, taskID)
	if err != nil {
		return storage.Task{}, err
	}
	if st, ok := c.cache.Get(taskID); ok {
		task.ApplyState(st)
	}
	return task, nil
}

// emitter persists each transition on the task record and streams it.
func (c *Coordinator) emitter(ctx context.Context, task storage.Task) workflow.EmitFunc {
	return func(ev workflow.Event) {
		st := ev.State
		c.cache.Set(task.ID, st)

		task.ApplyState(st)
		if err := c.repo.UpdateTask(ctx, task); err != nil {
			c.logger.Error("update task %s after %s: %v", task.ID, ev.Node, err)
		}

		c.broadcaster.Emit(task.ConversationID, StreamEvent{
			Type:  EventStateUpdate,
			Data:  stateUpdatePayload(task.ID, ev.Node, st),
			Final: ev.Node == "end",
		})
	}
}

// finishRun records the assistant message once a run reaches a terminal
// status. Suspended runs produce no message; they are still in flight.
func (c *Coordinator) finishRun(ctx context.Context, task storage.Task, final *state.AgentState) {
	if final == nil || !final.FinalStatus.IsTerminal() {
		return
	}
	content := assistantSummary(final)
	err := c.repo.CreateMessage(ctx, storage.Message{
		ID:             id.NewMessageID(),
		ConversationID: task.ConversationID,
		TaskID:         task.ID,
		Role:           storage.RoleAssistant,
		Content:        content,
		Metadata:       map[string]any{"final_status": string(final.FinalStatus)},
		CreatedAt:      time.Now().Unix(),
	})
	if err != nil {
		c.logger.Error("record assistant message for task %s: %v", task.ID, err)
	}
}

func (c *Coordinator) emitError(task storage.Task, err error) {
	c.broadcaster.Emit(task.ConversationID, StreamEvent{
		Type: EventTaskError,
		Data: map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		},
	})
}

func stateUpdatePayload(taskID, node string, st *state.AgentState) map[string]any {
	// Round-trip through JSON so the payload matches the checkpoint shape.
	var snapshot map[string]any
	if data, err := st.Marshal(); err == nil {
		_ = json.Unmarshal(data, &snapshot)
	}
	return map[string]any{
		"task_id": taskID,
		"node":    node,
		"state":   snapshot,
	}
}

func assistantSummary(st *state.AgentState) string {
	if st.FinalStatus == state.StatusFailed {
		return fmt.Sprintf("Task failed: %s", st.ErrorInfo)
	}
	if msg, ok := st.Context["status_message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("Task completed: %d of %d steps finished.", len(st.StepResults), len(st.TodoList))
}
