// Package loop implements the run executor: the bounded tool-calling loop
// that drives a single agent run from prompt to terminal state. Every tool
// call passes the risk gate; calls requiring approval suspend the run on
// the approval broker.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/goclaw/internal/approval"
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/llm"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/metrics"
	"github.com/aatumaykin/goclaw/internal/tools"
)

const (
	defaultMaxToolIterations = 10
	defaultToolTimeout       = 60 * time.Second
	defaultApprovalTimeout   = 5 * time.Minute

	// maxSummaryLen bounds the response summary stored in the archive.
	maxSummaryLen = 2000
)

// Config holds configuration for the run executor.
type Config struct {
	Provider          llm.Provider
	Registry          *tools.Registry
	Gate              *tools.Gate
	Approvals         *approval.Broker
	Logger            *logger.Logger
	Metrics           metrics.Sink
	Model             string
	MaxTokens         int
	Temperature       float64
	MaxToolIterations int
	ToolTimeout       time.Duration
	ApprovalTimeout   time.Duration
}

// Loop executes agent runs.
type Loop struct {
	provider  llm.Provider
	registry  *tools.Registry
	gate      *tools.Gate
	approvals *approval.Broker
	logger    *logger.Logger
	sink      metrics.Sink
	config    Config
}

// RunInput describes one run to execute.
type RunInput struct {
	ExecutionID  string
	AgentID      string
	SystemPrompt string
	Prompt       string
	Policy       domain.ToolPolicy
	Stream       tools.Stream
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	State    RunState
	Response string
	Summary  string
	Session  *AgentRunSession
}

// NewLoop creates a new run executor.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("LLM provider cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry cannot be nil")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("risk gate cannot be nil")
	}
	if cfg.Approvals == nil {
		return nil, fmt.Errorf("approval broker cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = defaultMaxToolIterations
	}
	if cfg.ToolTimeout == 0 {
		cfg.ToolTimeout = defaultToolTimeout
	}
	if cfg.ApprovalTimeout == 0 {
		cfg.ApprovalTimeout = defaultApprovalTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopSink()
	}

	return &Loop{
		provider:  cfg.Provider,
		registry:  cfg.Registry,
		gate:      cfg.Gate,
		approvals: cfg.Approvals,
		logger:    cfg.Logger,
		sink:      cfg.Metrics,
		config:    cfg,
	}, nil
}

// Run executes a single agent run to a terminal state. Cancellation is
// cooperative: the context is checked before each model call, before each
// tool execution and while suspended on approval, never mid-tool.
func (l *Loop) Run(ctx context.Context, in RunInput) (RunResult, error) {
	session := NewSession(in.ExecutionID, in.AgentID)
	stream := in.Stream
	if stream == nil {
		stream = tools.NopStream{}
	}

	if in.SystemPrompt != "" {
		session.Append(llm.Message{Role: llm.RoleSystem, Content: in.SystemPrompt})
	}
	session.Append(llm.Message{Role: llm.RoleUser, Content: in.Prompt})

	l.logger.InfoCtx(ctx, "run started",
		logger.Field{Key: "execution_id", Value: in.ExecutionID},
		logger.Field{Key: "agent_id", Value: in.AgentID})

	for iteration := 0; iteration < l.config.MaxToolIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return l.cancelled(session), nil
		}

		session.SetState(StateAwaitingModel)
		resp, err := l.callModel(ctx, session)
		if err != nil {
			if ctx.Err() != nil {
				return l.cancelled(session), nil
			}
			session.SetState(StateFailed)
			return RunResult{State: StateFailed, Session: session}, fmt.Errorf("model call failed: %w", err)
		}

		if resp.FinishReason == llm.FinishReasonToolCalls && len(resp.ToolCalls) > 0 {
			session.SetState(StateToolRequested)
			session.Append(llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})

			for _, call := range resp.ToolCalls {
				if err := ctx.Err(); err != nil {
					return l.cancelled(session), nil
				}

				result := l.executeCall(ctx, session, in, call, stream)

				content := result.Output
				if !result.Success() {
					content = fmt.Sprintf("Error: %s", result.Error)
				}
				session.Append(llm.Message{
					Role:       llm.RoleTool,
					Content:    content,
					ToolCallID: call.ID,
				})

				if result.NonRecoverable {
					session.SetState(StateFailed)
					return RunResult{State: StateFailed, Session: session},
						fmt.Errorf("tool %s failed non-recoverably: %s", call.Name, result.Error)
				}
			}
			continue
		}

		// Final answer.
		session.Append(llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		session.SetState(StateDone)

		l.logger.InfoCtx(ctx, "run completed",
			logger.Field{Key: "execution_id", Value: in.ExecutionID},
			logger.Field{Key: "iterations", Value: iteration + 1})

		return RunResult{
			State:    StateDone,
			Response: resp.Content,
			Summary:  Summarize(resp.Content),
			Session:  session,
		}, nil
	}

	session.SetState(StateFailed)
	return RunResult{State: StateFailed, Session: session},
		fmt.Errorf("reached maximum tool call iterations (%d)", l.config.MaxToolIterations)
}

// callModel sends the current conversation to the provider, attaching tool
// definitions when supported.
func (l *Loop) callModel(ctx context.Context, session *AgentRunSession) (*llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Messages:    session.Messages(),
		Model:       l.config.Model,
		Temperature: l.config.Temperature,
		MaxTokens:   l.config.MaxTokens,
	}

	if l.provider.SupportsToolCalling() {
		descriptors := l.registry.Descriptors()
		if len(descriptors) > 0 {
			req.Tools = make([]llm.ToolDefinition, len(descriptors))
			for i, d := range descriptors {
				req.Tools[i] = llm.ToolDefinition{
					Name:        d.Name,
					Description: d.Description,
					Parameters:  d.InputSchema,
				}
			}
		}
	}

	return l.provider.Chat(ctx, req)
}

// executeCall gates and executes one tool call. Denials, approval timeouts
// and tool failures all come back as failed results that feed the model a
// tool-error message; only NonRecoverable aborts the run.
func (l *Loop) executeCall(ctx context.Context, session *AgentRunSession, in RunInput, call llm.ToolCall, stream tools.Stream) tools.Result {
	mode := l.gate.Authorize(in.Policy, call.Name)

	switch mode {
	case domain.ApprovalDeny:
		l.logger.InfoCtx(ctx, "tool call denied by policy",
			logger.Field{Key: "execution_id", Value: in.ExecutionID},
			logger.Field{Key: "tool", Value: call.Name})
		l.sink.ToolCallCompleted(call.Name, metrics.ToolOutcomeDenied, 0)
		return tools.Fail(fmt.Sprintf("tool %s denied by policy", call.Name))

	case domain.ApprovalRequireApproval:
		session.SetState(StateAwaitingApproval)

		var profiles []domain.RiskProfile
		if tool, ok := l.registry.Resolve(call.Name); ok {
			profiles = tool.RiskProfiles()
		}
		req := l.approvals.Create(in.ExecutionID, in.AgentID, call.Name, call.Arguments, profiles)
		decision := l.approvals.Wait(ctx, req.ID, l.config.ApprovalTimeout)
		switch {
		case decision.Approved:
			l.sink.ApprovalOutcome(metrics.ApprovalApproved)
		case decision.TimedOut:
			l.sink.ApprovalOutcome(metrics.ApprovalTimedOut)
		default:
			l.sink.ApprovalOutcome(metrics.ApprovalDenied)
		}
		if !decision.Approved {
			reason := decision.Reason
			if reason == "" {
				reason = "denied by operator"
			}
			l.sink.ToolCallCompleted(call.Name, metrics.ToolOutcomeDenied, 0)
			return tools.Fail(fmt.Sprintf("tool %s not approved: %s", call.Name, reason))
		}
	}

	session.SetState(StateExecutingTool)
	start := time.Now()
	result := l.registry.Execute(ctx, call.Name, call.Arguments, stream, l.config.ToolTimeout)

	outcome := metrics.ToolOutcomeSuccess
	if !result.Success() {
		outcome = metrics.ToolOutcomeError
	}
	l.sink.ToolCallCompleted(call.Name, outcome, time.Since(start))

	l.logger.DebugCtx(ctx, "tool executed",
		logger.Field{Key: "execution_id", Value: in.ExecutionID},
		logger.Field{Key: "tool", Value: call.Name},
		logger.Field{Key: "success", Value: result.Success()})

	return result
}

func (l *Loop) cancelled(session *AgentRunSession) RunResult {
	session.SetState(StateCancelled)
	l.logger.Info("run cancelled",
		logger.Field{Key: "execution_id", Value: session.ExecutionID()})
	return RunResult{State: StateCancelled, Session: session}
}

// Summarize truncates a response for archival. Truncation is rune-safe.
func Summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= maxSummaryLen {
		return content
	}
	return string(runes[:maxSummaryLen-3]) + "..."
}
