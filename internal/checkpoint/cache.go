package checkpoint

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"agentstation/internal/state"
)

// TaskStateCacheTTL bounds how long a task snapshot stays hot.
const TaskStateCacheTTL = 3600 * time.Second

// taskStateCacheSize caps the number of cached tasks.
const taskStateCacheSize = 1024

// TaskStateCache is a read-through TTL cache of the latest state per task,
// keyed by task id. It serves task status polls without hitting the
// checkpoint store; entries expire after TaskStateCacheTTL.
type TaskStateCache struct {
	cache *lru.LRU[string, *state.AgentState]
}

func NewTaskStateCache() *TaskStateCache {
	return &TaskStateCache{
		cache: lru.NewLRU[string, *state.AgentState](taskStateCacheSize, nil, TaskStateCacheTTL),
	}
}

func taskKey(taskID string) string {
	return "task_state:" + taskID
}

// Set stores the latest snapshot for a task.
func (c *TaskStateCache) Set(taskID string, st *state.AgentState) {
	c.cache.Add(taskKey(taskID), st)
}

// Get returns the cached snapshot, if present and unexpired.
func (c *TaskStateCache) Get(taskID string) (*state.AgentState, bool) {
	return c.cache.Get(taskKey(taskID))
}

// Remove drops a task from the cache.
func (c *TaskStateCache) Remove(taskID string) {
	c.cache.Remove(taskKey(taskID))
}

// Len reports the number of live entries.
func (c *TaskStateCache) Len() int {
	return c.cache.Len()
}
