// Package llm provides the chat-completion client used by the agent nodes.
package llm

import "context"

// Message roles, matching the chat completions wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds connection settings for an OpenAI-compatible endpoint.
type Config struct {
	Model       string            `mapstructure:"model"`
	APIKey      string            `mapstructure:"api_key"`
	BaseURL     string            `mapstructure:"base_url"`
	Temperature float64           `mapstructure:"temperature"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Timeout     int               `mapstructure:"timeout"`
	MaxRetries  int               `mapstructure:"max_retries"`
	Headers     map[string]string `mapstructure:"headers"`
}

// Generator is the completion interface the agent nodes depend on.
type Generator interface {
	// Complete sends the conversation and returns the assistant text.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Model returns the model name used by this client.
	Model() string
}
