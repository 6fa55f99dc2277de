package loop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/goclaw/internal/approval"
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/llm"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/tools"
)

// staticTool is a registry entry whose behavior is configured per test.
type staticTool struct {
	name           string
	result         tools.Result
	calls          int
	nonRecoverable bool
}

func (s *staticTool) Name() string                       { return s.name }
func (s *staticTool) Description() string                { return "static test tool" }
func (s *staticTool) InputSchema() map[string]any        { return map[string]any{"type": "object"} }
func (s *staticTool) OutputSchema() map[string]any       { return map[string]any{"type": "object"} }
func (s *staticTool) RiskProfiles() []domain.RiskProfile { return nil }
func (s *staticTool) Execute(context.Context, string, tools.Stream) (tools.Result, error) {
	s.calls++
	if s.nonRecoverable {
		return tools.Result{Error: "broken beyond repair", NonRecoverable: true}, nil
	}
	return s.result, nil
}

type loopFixture struct {
	loop      *Loop
	approvals *approval.Broker
	tool      *staticTool
	provider  *llm.MockProvider
}

func newLoopFixture(t *testing.T, provider *llm.MockProvider, cfg Config) *loopFixture {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	registry := tools.NewRegistry()
	tool := &staticTool{name: "test_tool", result: tools.Ok("tool output")}
	require.NoError(t, registry.Register(tool))

	approvals := approval.NewBroker(log)

	cfg.Provider = provider
	cfg.Registry = registry
	cfg.Gate = tools.NewGate(registry, log)
	cfg.Approvals = approvals
	cfg.Logger = log

	l, err := NewLoop(cfg)
	require.NoError(t, err)

	return &loopFixture{loop: l, approvals: approvals, tool: tool, provider: provider}
}

func toolCallResponse(name string) llm.ChatResponse {
	return llm.ChatResponse{
		FinishReason: llm.FinishReasonToolCalls,
		ToolCalls:    []llm.ToolCall{{ID: "call-1", Name: name, Arguments: "{}"}},
	}
}

func finalResponse(content string) llm.ChatResponse {
	return llm.ChatResponse{Content: content, FinishReason: llm.FinishReasonStop}
}

func runInput(policy domain.ToolPolicy) RunInput {
	return RunInput{
		ExecutionID:  "exec-1",
		AgentID:      "agent-1",
		SystemPrompt: "You are a scheduled agent.",
		Prompt:       "Do the work.",
		Policy:       policy,
	}
}

func TestRun_HappyPathWithToolCall(t *testing.T) {
	provider := llm.NewScriptProvider(
		toolCallResponse("test_tool"),
		finalResponse("all done"),
	)
	f := newLoopFixture(t, provider, Config{})

	result, err := f.loop.Run(context.Background(), runInput(domain.AllowAll()))
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, "all done", result.Response)
	assert.Equal(t, "all done", result.Summary)
	assert.Equal(t, 1, f.tool.calls)

	// Conversation carries the full request/result pairing: system, user,
	// assistant with tool calls, tool result, final assistant answer.
	messages := result.Session.Messages()
	require.Len(t, messages, 5)
	assert.Equal(t, llm.RoleAssistant, messages[2].Role)
	require.Len(t, messages[2].ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, messages[3].Role)
	assert.Equal(t, "tool output", messages[3].Content)
	assert.Equal(t, "call-1", messages[3].ToolCallID)
}

func TestRun_DeniedToolFeedsErrorBack(t *testing.T) {
	provider := llm.NewScriptProvider(
		toolCallResponse("test_tool"),
		finalResponse("worked around it"),
	)
	f := newLoopFixture(t, provider, Config{})

	policy := domain.ToolPolicy{AllowList: []string{"*"}, DenyList: []string{"test_tool"}}
	result, err := f.loop.Run(context.Background(), runInput(policy))
	require.NoError(t, err)

	// The denial becomes a tool-error message and the run continues.
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 0, f.tool.calls)

	messages := result.Session.Messages()
	toolMsg := messages[3]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "denied by policy")
}

func TestRun_ApprovalGranted(t *testing.T) {
	provider := llm.NewScriptProvider(
		toolCallResponse("test_tool"),
		finalResponse("approved and done"),
	)
	f := newLoopFixture(t, provider, Config{ApprovalTimeout: 5 * time.Second})

	policy := domain.ToolPolicy{
		AllowList:         []string{"*"},
		ApprovalOverrides: map[string]domain.ApprovalMode{"test_tool": domain.ApprovalRequireApproval},
	}

	// Approve as soon as the request shows up.
	go func() {
		for i := 0; i < 200; i++ {
			pending := f.approvals.List()
			if len(pending) > 0 {
				_ = f.approvals.Respond(pending[0].ID, true, "go ahead")
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	result, err := f.loop.Run(context.Background(), runInput(policy))
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 1, f.tool.calls)
}

func TestRun_ApprovalTimeoutContinuesRun(t *testing.T) {
	provider := llm.NewScriptProvider(
		toolCallResponse("test_tool"),
		finalResponse("gave up on the tool"),
	)
	f := newLoopFixture(t, provider, Config{ApprovalTimeout: 30 * time.Millisecond})

	policy := domain.ToolPolicy{
		AllowList:         []string{"*"},
		ApprovalOverrides: map[string]domain.ApprovalMode{"test_tool": domain.ApprovalRequireApproval},
	}

	result, err := f.loop.Run(context.Background(), runInput(policy))
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 0, f.tool.calls)

	toolMsg := result.Session.Messages()[3]
	assert.Contains(t, toolMsg.Content, "not approved")
	assert.Contains(t, toolMsg.Content, "timed out")
}

func TestRun_NonRecoverableToolAborts(t *testing.T) {
	provider := llm.NewScriptProvider(
		toolCallResponse("test_tool"),
		finalResponse("never reached"),
	)
	f := newLoopFixture(t, provider, Config{})
	f.tool.nonRecoverable = true

	result, err := f.loop.Run(context.Background(), runInput(domain.AllowAll()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-recoverably")
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestRun_IterationBound(t *testing.T) {
	// Three scripted tool-call rounds against a two-iteration budget.
	provider := llm.NewScriptProvider(
		toolCallResponse("test_tool"),
		toolCallResponse("test_tool"),
		toolCallResponse("test_tool"),
	)
	f := newLoopFixture(t, provider, Config{MaxToolIterations: 2})

	result, err := f.loop.Run(context.Background(), runInput(domain.AllowAll()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum tool call iterations (2)")
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 2, f.tool.calls)
}

func TestRun_ModelErrorFailsRun(t *testing.T) {
	f := newLoopFixture(t, llm.NewErrorProvider(), Config{})

	result, err := f.loop.Run(context.Background(), runInput(domain.AllowAll()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model call failed")
	assert.Equal(t, StateFailed, result.State)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	provider := llm.NewScriptProvider(finalResponse("unused"))
	f := newLoopFixture(t, provider, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.loop.Run(ctx, runInput(domain.AllowAll()))
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, 0, provider.GetCallCount())
}

func TestNewLoop_Validation(t *testing.T) {
	_, err := NewLoop(Config{})
	assert.ErrorContains(t, err, "provider cannot be nil")
}

func TestSummarize(t *testing.T) {
	short := "a short answer"
	assert.Equal(t, short, Summarize(short))

	long := strings.Repeat("x", maxSummaryLen+100)
	summary := Summarize(long)
	assert.Len(t, []rune(summary), maxSummaryLen)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestSession_StateTransitions(t *testing.T) {
	session := NewSession("exec-1", "agent-1")
	assert.Equal(t, StateStarting, session.State())
	assert.False(t, session.State().Terminal())

	session.SetState(StateAwaitingModel)
	assert.Equal(t, StateAwaitingModel, session.State())

	session.SetState(StateDone)
	assert.True(t, session.State().Terminal())

	// Terminal states are sticky.
	session.SetState(StateAwaitingModel)
	assert.Equal(t, StateDone, session.State())
}
