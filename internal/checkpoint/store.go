// Package checkpoint persists agent state keyed by thread id, one full
// snapshot per thread. The engine writes a checkpoint after every node
// transition, so a crashed or suspended workflow resumes from its last
// observed state.
package checkpoint

import (
	"context"
	"errors"

	"agentstation/internal/state"
)

// ErrThreadNotFound is returned when no checkpoint exists for a thread.
var ErrThreadNotFound = errors.New("thread not found")

// Store is the durable checkpoint interface.
type Store interface {
	// Put overwrites the checkpoint for a thread.
	Put(ctx context.Context, threadID string, st *state.AgentState) error
	// Get loads the checkpoint, or ErrThreadNotFound.
	Get(ctx context.Context, threadID string) (*state.AgentState, error)
	// Delete removes a checkpoint. Deleting an absent thread is a no-op.
	Delete(ctx context.Context, threadID string) error
	// Close releases the store.
	Close() error
}

// threadKey builds the storage key for a thread.
func threadKey(threadID string) string {
	return "thread:" + threadID
}
