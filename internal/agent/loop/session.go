package loop

import (
	"sync"
	"time"

	"github.com/aatumaykin/goclaw/internal/llm"
)

// RunState is the lifecycle state of one agent run.
type RunState string

const (
	StateStarting         RunState = "STARTING"
	StateAwaitingModel    RunState = "AWAITING_MODEL"
	StateToolRequested    RunState = "TOOL_REQUESTED"
	StateAwaitingApproval RunState = "AWAITING_APPROVAL"
	StateExecutingTool    RunState = "EXECUTING_TOOL"
	StateDone             RunState = "DONE"
	StateFailed           RunState = "FAILED"
	StateCancelled        RunState = "CANCELLED"
)

// Terminal reports whether the state is final.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// AgentRunSession holds the in-memory conversation of a single run. The
// message list is append-only; messages are never edited or removed once
// added.
type AgentRunSession struct {
	mu          sync.Mutex
	executionID string
	agentID     string
	state       RunState
	messages    []llm.Message
	startedAt   time.Time
	updatedAt   time.Time
}

// NewSession creates a session in the STARTING state.
func NewSession(executionID, agentID string) *AgentRunSession {
	now := time.Now()
	return &AgentRunSession{
		executionID: executionID,
		agentID:     agentID,
		state:       StateStarting,
		startedAt:   now,
		updatedAt:   now,
	}
}

// ExecutionID returns the execution this session belongs to.
func (s *AgentRunSession) ExecutionID() string {
	return s.executionID
}

// AgentID returns the agent running this session.
func (s *AgentRunSession) AgentID() string {
	return s.agentID
}

// State returns the current run state.
func (s *AgentRunSession) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the run to a new state. Transitions out of a
// terminal state are ignored.
func (s *AgentRunSession) SetState(state RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.updatedAt = time.Now()
}

// Append adds a message to the conversation.
func (s *AgentRunSession) Append(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.updatedAt = time.Now()
}

// Messages returns a copy of the conversation history in order.
func (s *AgentRunSession) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// StartedAt returns when the session was created.
func (s *AgentRunSession) StartedAt() time.Time {
	return s.startedAt
}
