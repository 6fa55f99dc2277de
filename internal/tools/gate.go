package tools

import (
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
)

// Gate enforces the tool policy before any tool executes. Risk profiles are
// logged for audit but do not change the decision; the policy's explicit
// lists and overrides are authoritative.
type Gate struct {
	registry *Registry
	logger   *logger.Logger
}

// NewGate creates a risk gate over the given registry.
func NewGate(registry *Registry, log *logger.Logger) *Gate {
	return &Gate{registry: registry, logger: log}
}

// Authorize resolves the approval mode for one tool call. It is evaluated
// on every invocation; decisions are never cached across calls.
func (g *Gate) Authorize(policy domain.ToolPolicy, toolName string) domain.ApprovalMode {
	mode := policy.Resolve(toolName)

	var profiles []domain.RiskProfile
	if tool, ok := g.registry.Resolve(toolName); ok {
		profiles = tool.RiskProfiles()
	}
	g.logger.Debug("tool call authorized",
		logger.Field{Key: "tool", Value: toolName},
		logger.Field{Key: "mode", Value: string(mode)},
		logger.Field{Key: "risk_profiles", Value: profiles})

	return mode
}
