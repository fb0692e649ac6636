// Package agents implements the workflow nodes: planner, executor, validator,
// and the supervisor router. Each node is a function from state to state with
// no side effects beyond the returned value; the engine owns persistence and
// streaming.
package agents

import (
	"context"
)

// KnowledgeSearcher retrieves documents relevant to a query.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}
