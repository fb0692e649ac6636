package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoInvoker(ctx context.Context, args map[string]any) (any, error) {
	return args, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil)

	require.NoError(t, reg.Register(Schema{Name: "echo", Description: "echoes"}, echoInvoker))
	assert.Equal(t, 1, reg.Len())

	schema, invoker, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", schema.Name)
	assert.NotNil(t, invoker)
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Schema{Name: "echo"}, echoInvoker))

	err := reg.Register(Schema{Name: "echo"}, echoInvoker)
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry(nil)
	_, _, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Schema{Name: "echo"}, echoInvoker))

	assert.True(t, reg.Unregister("echo"))
	assert.False(t, reg.Unregister("echo"))
	assert.Zero(t, reg.Len())
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(Schema{Name: name}, echoInvoker))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.ListNames())

	schemas := reg.ListSchemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "alpha", schemas[0].Name)
}

func TestRegistrySearchByTag(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Schema{Name: "calc", Tags: []string{"math"}}, echoInvoker))
	require.NoError(t, reg.Register(Schema{Name: "mail", Tags: []string{"comm"}}, echoInvoker))

	assert.Equal(t, []string{"calc"}, reg.SearchByTag("math"))
	assert.Empty(t, reg.SearchByTag("nope"))
}

func TestInvokeSuccess(t *testing.T) {
	result, err := Invoke(context.Background(), Schema{Name: "echo"}, echoInvoker, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, result)
}

func TestInvokeTimeout(t *testing.T) {
	slow := func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	start := time.Now()
	_, err := Invoke(context.Background(), Schema{Name: "slow", TimeoutSeconds: 1}, slow, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestInvokeFailure(t *testing.T) {
	failing := func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("boom")
	}
	_, err := Invoke(context.Background(), Schema{Name: "bad"}, failing, nil)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestSchemaTimeoutDefault(t *testing.T) {
	assert.Equal(t, DefaultTimeout, Schema{}.Timeout())
	assert.Equal(t, 5*time.Second, Schema{TimeoutSeconds: 5}.Timeout())
}

func TestSetDefaultTimeout(t *testing.T) {
	orig := DefaultTimeout
	defer SetDefaultTimeout(orig)

	SetDefaultTimeout(30 * time.Second)
	assert.Equal(t, 30*time.Second, Schema{}.Timeout())

	// Explicit schema timeouts are unaffected.
	assert.Equal(t, 5*time.Second, Schema{TimeoutSeconds: 5}.Timeout())

	// Non-positive overrides are ignored.
	SetDefaultTimeout(0)
	assert.Equal(t, 30*time.Second, Schema{}.Timeout())
}
