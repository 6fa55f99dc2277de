package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a mock implementation of the Provider interface for
// testing and graceful degradation scenarios.
type MockProvider struct {
	mu            sync.Mutex
	responses     []string       // Pre-defined text responses (rotates through them)
	script        []ChatResponse // Scripted full responses, consumed in order
	scriptIndex   int
	responseIndex int
	mode          MockMode
	errorAfter    int // Number of successful calls before returning errors
	callCount     int
}

// MockMode defines the operation mode of the mock provider.
type MockMode int

const (
	// MockModeEcho returns the user's message (echo mode)
	MockModeEcho MockMode = iota

	// MockModeFixed returns a fixed response
	MockModeFixed

	// MockModeFixtures returns pre-defined responses in rotation
	MockModeFixtures

	// MockModeScript returns scripted ChatResponses in order, including
	// tool calls. The script running out is an error.
	MockModeScript

	// MockModeError always returns an error
	MockModeError
)

// MockConfig holds configuration for the mock provider.
type MockConfig struct {
	Mode       MockMode
	Responses  []string
	Script     []ChatResponse
	ErrorAfter int
}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	return &MockProvider{
		mode:       cfg.Mode,
		responses:  cfg.Responses,
		script:     cfg.Script,
		errorAfter: cfg.ErrorAfter,
	}
}

// NewEchoProvider creates a mock provider that echoes user messages.
func NewEchoProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeEcho})
}

// NewFixedProvider creates a mock provider that always returns a fixed response.
func NewFixedProvider(response string) *MockProvider {
	return NewMockProvider(MockConfig{
		Mode:      MockModeFixed,
		Responses: []string{response},
	})
}

// NewScriptProvider creates a mock provider that plays back the given
// responses in order. Used to drive tool-calling loops in tests.
func NewScriptProvider(script ...ChatResponse) *MockProvider {
	return NewMockProvider(MockConfig{
		Mode:   MockModeScript,
		Script: script,
	})
}

// NewErrorProvider creates a mock provider that always returns errors.
func NewErrorProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeError})
}

// Chat implements the Provider interface.
func (m *MockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	if m.errorAfter > 0 && m.callCount > m.errorAfter {
		return nil, fmt.Errorf("mock provider error after %d calls", m.errorAfter)
	}

	if m.mode == MockModeError {
		return nil, fmt.Errorf("mock provider error")
	}

	if m.mode == MockModeScript {
		if m.scriptIndex >= len(m.script) {
			return nil, fmt.Errorf("mock script exhausted after %d responses", len(m.script))
		}
		resp := m.script[m.scriptIndex]
		m.scriptIndex++
		if resp.Model == "" {
			resp.Model = req.Model
		}
		return &resp, nil
	}

	var userMessage string
	if len(req.Messages) > 0 {
		lastMsg := req.Messages[len(req.Messages)-1]
		if lastMsg.Role == RoleUser {
			userMessage = lastMsg.Content
		}
	}

	var response string
	switch m.mode {
	case MockModeEcho:
		if userMessage != "" {
			response = fmt.Sprintf("Echo: %s", userMessage)
		} else {
			response = "Echo: (no user message)"
		}
	case MockModeFixed:
		if len(m.responses) > 0 {
			response = m.responses[0]
		} else {
			response = "Fixed response: no responses configured"
		}
	case MockModeFixtures:
		if len(m.responses) > 0 {
			response = m.responses[m.responseIndex]
			m.responseIndex = (m.responseIndex + 1) % len(m.responses)
		} else {
			response = "Fixtures: no responses configured"
		}
	default:
		response = "Unknown mock mode"
	}

	return &ChatResponse{
		Content:      response,
		Model:        req.Model,
		FinishReason: FinishReasonStop,
		Usage: Usage{
			PromptTokens:     len(userMessage),
			CompletionTokens: len(response),
			TotalTokens:      len(userMessage) + len(response),
		},
	}, nil
}

// SupportsToolCalling implements the Provider interface. Scripted mocks
// claim tool calling so loop tests exercise the full path.
func (m *MockProvider) SupportsToolCalling() bool {
	return m.mode == MockModeScript
}

// GetDefaultModel implements the Provider interface.
func (m *MockProvider) GetDefaultModel() string {
	return "mock-model"
}

// GetCallCount returns the number of Chat() calls made to this provider.
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// SetErrorAfter configures the provider to return errors after N calls.
func (m *MockProvider) SetErrorAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorAfter = n
}
