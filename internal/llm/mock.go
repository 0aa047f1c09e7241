package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockCall records one completion request the mock received.
type MockCall struct {
	System string
	User   string
}

// MockResponse scripts one reply from the mock: either text or an error.
type MockResponse struct {
	Text string
	Err  error
}

// MockClient is a scripted test implementation of the Client interface.
// Responses are consumed in order; once the script runs out the last
// response repeats.
type MockClient struct {
	calls     []MockCall
	responses []MockResponse
	mu        sync.Mutex
}

// NewMockClient creates a mock that replays the given responses in order.
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

// Complete replays the next scripted response.
func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{System: req.System, User: req.User})

	if len(m.responses) == 0 {
		return CompletionResponse{}, fmt.Errorf("mock has no scripted responses")
	}

	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	resp := m.responses[idx]
	if resp.Err != nil {
		return CompletionResponse{}, resp.Err
	}
	return CompletionResponse{Text: resp.Text}, nil
}

// Calls returns a copy of the requests the mock has received.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many completions were requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
