// Package workflow drives the plan-and-execute loop: the supervisor picks
// the next node, the node transforms the state, the engine checkpoints the
// result and emits it to the caller.
package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"agentstation/internal/agents"
	"agentstation/internal/checkpoint"
	"agentstation/internal/logging"
	"agentstation/internal/observability"
	"agentstation/internal/state"
)

// maxIterations is a circuit breaker on the routing loop. A well-formed run
// finishes far below this (plan + 20 steps * 3 retries + validation).
const maxIterations = 200

// Event is one observed transition: the node that just ran and the state it
// produced. Node "end" carries the final state.
type Event struct {
	Node  string
	State *state.AgentState
}

// EmitFunc receives transition events. Called synchronously from the loop.
type EmitFunc func(Event)

// Node transforms a state. Planner, Executor, and Validator satisfy this.
type Node interface {
	Invoke(ctx context.Context, st *state.AgentState) *state.AgentState
}

// Engine owns the routing loop, checkpointing, and per-thread serialization.
type Engine struct {
	planner   Node
	executor  Node
	validator Node
	store     checkpoint.Store
	metrics   *observability.Metrics
	logger    logging.Logger

	// One mutex per thread id. Concurrent runs on distinct threads proceed
	// in parallel; a start and a resume on the same thread serialize.
	threadLocks sync.Map
}

// New constructs an engine. metrics may be nil.
func New(planner, executor, validator Node, store checkpoint.Store, metrics *observability.Metrics, logger logging.Logger) *Engine {
	return &Engine{
		planner:   planner,
		executor:  executor,
		validator: validator,
		store:     store,
		metrics:   metrics,
		logger:    logging.OrNop(logger),
	}
}

func (e *Engine) lockThread(threadID string) func() {
	muIface, _ := e.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Start begins a fresh workflow for a user utterance. The thread id is the
// conversation id; a new run on an existing thread overwrites its checkpoint.
func (e *Engine) Start(ctx context.Context, userInput, conversationID, userID string, emit EmitFunc) (*state.AgentState, error) {
	unlock := e.lockThread(conversationID)
	defer unlock()

	st := state.New(userInput, conversationID, userID)
	if err := e.store.Put(ctx, conversationID, st); err != nil {
		return nil, fmt.Errorf("checkpoint initial state: %w", err)
	}
	return e.run(ctx, conversationID, st, emit)
}

// Resume continues a suspended thread. The user-provided config is merged
// into the running step's tool input, user values winning over synthesised
// ones, and pending_user_input is cleared before the loop re-enters.
// Resuming a thread without a checkpoint fails with ErrThreadNotFound.
func (e *Engine) Resume(ctx context.Context, threadID string, userConfig map[string]any, emit EmitFunc) (*state.AgentState, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	st, err := e.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if st.PendingUserInput != nil {
		step := st.CurrentStep()
		if step != nil {
			if step.ToolInput == nil {
				step.ToolInput = map[string]any{}
			}
			for k, v := range userConfig {
				step.ToolInput[k] = v
			}
		}
		st.PendingUserInput = nil
		st.UserProvidedConfig = userConfig
		st.Touch()
		if err := e.store.Put(ctx, threadID, st); err != nil {
			return nil, fmt.Errorf("checkpoint resumed state: %w", err)
		}
		e.logger.Info("thread %s resumed with %d config values", threadID, len(userConfig))
	}
	// Re-entering a thread whose suspension was already cleared is a no-op
	// resume: the loop picks up wherever the checkpoint left off.

	return e.run(ctx, threadID, st, emit)
}

func (e *Engine) run(ctx context.Context, threadID string, st *state.AgentState, emit EmitFunc) (*state.AgentState, error) {
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		next := agents.Route(st)
		if next == agents.NodeEnd {
			break
		}

		st = e.invokeNode(ctx, next, st)
		e.metrics.ObserveNodeTransition(string(next))

		if err := e.store.Put(ctx, threadID, st); err != nil {
			return st, fmt.Errorf("checkpoint after %s: %w", next, err)
		}
		if emit != nil {
			emit(Event{Node: string(next), State: st})
		}
	}

	if agents.Route(st) != agents.NodeEnd {
		st.Fail(fmt.Sprintf("workflow exceeded %d transitions", maxIterations))
		if err := e.store.Put(ctx, threadID, st); err != nil {
			e.logger.Error("checkpoint after circuit break failed for thread %s: %v", threadID, err)
		}
	}

	if st.FinalStatus.IsTerminal() {
		e.metrics.ObserveWorkflowRun(string(st.FinalStatus))
	}
	if emit != nil {
		emit(Event{Node: "end", State: st})
	}
	e.logger.Info("thread %s stopped: status=%s suspended=%t", threadID, st.FinalStatus, st.PendingUserInput != nil)
	return st, nil
}

// invokeNode runs one node, converting a panic into a terminal failure so a
// buggy tool or prompt cannot take the server down.
func (e *Engine) invokeNode(ctx context.Context, label agents.NodeLabel, st *state.AgentState) (out *state.AgentState) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("node %s panicked: %v\n%s", label, r, debug.Stack())
			st.Fail(fmt.Sprintf("internal error in %s: %v", label, r))
			out = st
		}
	}()

	switch label {
	case agents.NodePlanner:
		return e.planner.Invoke(ctx, st)
	case agents.NodeExecutor:
		return e.executor.Invoke(ctx, st)
	case agents.NodeValidator:
		return e.validator.Invoke(ctx, st)
	default:
		return st
	}
}

// Load returns the current checkpoint for a thread.
func (e *Engine) Load(ctx context.Context, threadID string) (*state.AgentState, error) {
	return e.store.Get(ctx, threadID)
}
