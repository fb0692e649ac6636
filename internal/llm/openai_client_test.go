package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(completionResponse("hello there"))
	}))
	defer ts.Close()

	client, err := NewOpenAIClient(Config{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: ts.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Model())

	out, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "greet me"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "gpt-4o-mini", gotReq["model"])
	assert.Equal(t, false, gotReq["stream"])
	assert.Len(t, gotReq["messages"], 2)
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse("recovered"))
	}))
	defer ts.Close()

	client, err := NewOpenAIClient(Config{Model: "m", BaseURL: ts.URL, MaxRetries: 2}, nil)
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIClientDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	client, err := NewOpenAIClient(Config{Model: "m", BaseURL: ts.URL, MaxRetries: 3}, nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClientSurfacesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "model frozen"},
		})
	}))
	defer ts.Close()

	client, err := NewOpenAIClient(Config{Model: "m", BaseURL: ts.URL}, nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model frozen")
}

func TestOpenAIClientRequiresModel(t *testing.T) {
	_, err := NewOpenAIClient(Config{}, nil)
	assert.Error(t, err)
}

func TestMockGeneratorScript(t *testing.T) {
	gen := NewMockGenerator("first", "second")
	ctx := context.Background()

	out, err := gen.Complete(ctx, []Message{{Role: RoleUser, Content: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = gen.Complete(ctx, []Message{{Role: RoleUser, Content: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	// The last response repeats once the script is exhausted.
	out, err = gen.Complete(ctx, []Message{{Role: RoleUser, Content: "c"}})
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	assert.Equal(t, 3, gen.CallCount())
	assert.Equal(t, "c", gen.LastCall()[0].Content)
}

func TestMockGeneratorQueuedError(t *testing.T) {
	gen := NewMockGenerator("after the error")
	gen.QueueError(errors.New("synthetic outage"))

	_, err := gen.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	assert.EqualError(t, err, "synthetic outage")

	out, err := gen.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "after the error", out)
}

func TestCountTokens(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "You are a planner."},
		{Role: RoleUser, Content: "Summarize the quarterly report and email it to the team."},
	}
	n := CountTokens(msgs)
	assert.Positive(t, n)

	// More content never counts fewer tokens.
	longer := append(msgs, Message{Role: RoleAssistant, Content: "Step one: fetch the report."})
	assert.Greater(t, CountTokens(longer), n)

	assert.Zero(t, CountTokens(nil))
}
