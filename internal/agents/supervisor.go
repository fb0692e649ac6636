package agents

import "agentstation/internal/state"

// NodeLabel is the supervisor's routing decision.
type NodeLabel string

const (
	NodePlanner   NodeLabel = "planner"
	NodeExecutor  NodeLabel = "executor"
	NodeValidator NodeLabel = "validator"
	NodeEnd       NodeLabel = "end"
)

// Route is the supervisor: a pure function from state to the next node.
// Rules apply in order; the first match wins.
func Route(st *state.AgentState) NodeLabel {
	switch {
	case st.FinalStatus.IsTerminal():
		return NodeEnd
	case st.PendingUserInput != nil:
		return NodeEnd
	case len(st.TodoList) == 0:
		return NodePlanner
	case st.CurrentStepIndex < len(st.TodoList):
		return NodeExecutor
	default:
		return NodeValidator
	}
}
