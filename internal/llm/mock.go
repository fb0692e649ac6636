package llm

import (
	"context"
	"errors"
	"sync"
)

// MockGenerator replays a scripted sequence of responses. Used by tests and
// by the offline demo mode.
type MockGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     [][]Message
	index     int

	// Handler, when set, overrides the scripted responses entirely.
	Handler func(ctx context.Context, messages []Message) (string, error)
}

// NewMockGenerator builds a mock that returns the given responses in order.
// After the script is exhausted the last response repeats.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

// QueueError makes the next call fail with err instead of producing text.
func (m *MockGenerator) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

func (m *MockGenerator) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Handler != nil {
		return m.Handler(ctx, messages)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	if len(m.responses) == 0 {
		return "", errors.New("mock generator has no responses")
	}
	resp := m.responses[m.index]
	if m.index < len(m.responses)-1 {
		m.index++
	}
	return resp, nil
}

func (m *MockGenerator) Model() string { return "mock" }

// CallCount returns how many completions were requested.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the messages of the most recent completion, or nil.
func (m *MockGenerator) LastCall() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
