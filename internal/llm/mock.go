package llm

import (
	"context"
	"sync"
)

// Mock is a deterministic Client implementation for testing.
// Responses are served in order; the last one repeats once exhausted.
type Mock struct {
	mu sync.Mutex

	// Responses are returned by successive Generate calls.
	Responses []string

	// Err, if set, is returned by Generate instead of a response.
	Err error

	// Prompts stores every prompt passed to Generate.
	Prompts []string

	// ModelName is reported by Model.
	ModelName string

	calls int
}

// NewMock creates a mock client returning the given responses in order.
func NewMock(responses ...string) *Mock {
	return &Mock{Responses: responses, ModelName: "mock-model"}
}

// NewMockWithError creates a mock client that always fails.
func NewMockWithError(err error) *Mock {
	return &Mock{Err: err, ModelName: "mock-model"}
}

// Model returns the mock model name.
func (m *Mock) Model() string {
	return m.ModelName
}

// Generate records the prompt and returns the next configured response.
func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	return m.Responses[idx], nil
}

// Calls returns how many times Generate was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent prompt, or "" if none.
func (m *Mock) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}
