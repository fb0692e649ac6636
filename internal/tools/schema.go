// Package tools implements the process-wide tool registry: schemas, invokers,
// and the deadline-bounded invocation helper used by the executor.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout applies when a schema omits timeout_seconds. Overridable at
// startup via SetDefaultTimeout (config key tools.default_timeout).
var DefaultTimeout = 60 * time.Second

// SetDefaultTimeout replaces the fallback invocation deadline. Call before
// serving traffic; the value is read without synchronization afterwards.
// Non-positive durations are ignored.
func SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		DefaultTimeout = d
	}
}

// Schema describes a registered tool. The schema is authoritative: the
// invoker accepts whatever argument mapping the schema declares, and schema
// mismatches surface as invocation failures.
type Schema struct {
	Name               string         `json:"name" yaml:"name"`
	Description        string         `json:"description" yaml:"description"`
	Parameters         map[string]any `json:"parameters" yaml:"parameters"`
	Returns            map[string]any `json:"returns,omitempty" yaml:"returns"`
	RequiresAuth       bool           `json:"requires_auth" yaml:"requires_auth"`
	RequiresUserConfig bool           `json:"requires_user_config" yaml:"requires_user_config"`
	ConfigSchema       map[string]any `json:"config_schema,omitempty" yaml:"config_schema"`
	TimeoutSeconds     int            `json:"timeout_seconds" yaml:"timeout_seconds"`
	Tags               []string       `json:"tags,omitempty" yaml:"tags"`
}

// Timeout returns the invocation deadline for the tool.
func (s Schema) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// HasTag reports whether the schema carries the given tag.
func (s Schema) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Invoker executes a tool with an argument mapping and returns its result
// value. Long-running invokers must honour ctx, which carries the schema's
// deadline when called through Invoke.
type Invoker func(ctx context.Context, args map[string]any) (any, error)

// Registry errors, surfaced to callers as stable codes.
var (
	// ErrDuplicateTool is returned when registering a name that already exists.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrNotFound is returned when resolving an unknown tool name.
	ErrNotFound = errors.New("tool not found")
	// ErrTimeout is returned when an invocation exceeds the schema deadline.
	ErrTimeout = errors.New("tool execution timeout")
	// ErrFailed wraps an error raised by the invoker itself.
	ErrFailed = errors.New("tool execution failed")
)

// Invoke runs the invoker under the schema's deadline. A deadline overrun
// maps to ErrTimeout, an invoker error to ErrFailed; both are retryable from
// the executor's point of view.
func Invoke(ctx context.Context, schema Schema, invoker Invoker, args map[string]any) (any, error) {
	timeout := schema.Timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := invoker(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailed, out.err)
		}
		return out.result, nil
	}
}
