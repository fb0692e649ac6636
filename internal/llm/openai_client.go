package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"agentstation/internal/logging"
)

const defaultBaseURL = "https://api.openai.com/v1"

// openaiClient speaks the OpenAI-compatible chat completions API.
type openaiClient struct {
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
	headers     map[string]string
	httpClient  *http.Client
	logger      logging.Logger
}

// NewOpenAIClient constructs a Generator for an OpenAI-compatible endpoint.
func NewOpenAIClient(config Config, logger logging.Logger) (Generator, error) {
	if config.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &openaiClient{
		model:       config.Model,
		apiKey:      config.APIKey,
		baseURL:     baseURL,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		maxRetries:  maxRetries,
		headers:     config.Headers,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.OrNop(logger),
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
	}
	if c.temperature > 0 {
		req["temperature"] = c.temperature
	}
	if c.maxTokens > 0 {
		req["max_tokens"] = c.maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<attempt))*time.Millisecond +
				time.Duration(rand.Intn(250))*time.Millisecond
			c.logger.Warn("completion retry %d/%d after %v: %v", attempt, c.maxRetries, backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		content, retryable, err := c.doComplete(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

// doComplete performs a single request. The bool reports whether the failure
// is worth retrying (transport errors, 429, 5xx).
func (c *openaiClient) doComplete(ctx context.Context, body []byte) (string, bool, error) {
	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("POST %s model=%s", endpoint, c.model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("llm request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("llm status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		return "", false, fmt.Errorf("llm error: %s", oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return "", true, errors.New("llm returned no choices")
	}

	c.logger.Debug("completion finish=%s tokens=%d", oaiResp.Choices[0].FinishReason, oaiResp.Usage.TotalTokens)
	return oaiResp.Choices[0].Message.Content, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
