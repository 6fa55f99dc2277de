package domain

import "strings"

// RiskProfile is a capability tag describing what a tool may touch. Profiles
// are descriptive metadata for policy authors and logs; the policy's explicit
// lists and overrides are authoritative.
type RiskProfile string

const (
	RiskReadOnly       RiskProfile = "READ_ONLY"
	RiskWriteFiles     RiskProfile = "WRITE_FILES"
	RiskExecShell      RiskProfile = "EXEC_SHELL"
	RiskNetworkCalls   RiskProfile = "NETWORK_CALLS"
	RiskBrowserControl RiskProfile = "BROWSER_CONTROL"
	RiskAgentInternal  RiskProfile = "AGENT_INTERNAL"
)

// ApprovalMode is the gating decision applied to a single tool call.
type ApprovalMode string

const (
	ApprovalAutoApprove     ApprovalMode = "AUTO_APPROVE"
	ApprovalRequireApproval ApprovalMode = "REQUIRE_APPROVAL"
	ApprovalDeny            ApprovalMode = "DENY"
)

// ToolPolicy governs which tools an agent run may use. It is loaded once at
// run start and re-evaluated for every tool call.
type ToolPolicy struct {
	AllowList         []string                `json:"allowList" yaml:"allow_list"`
	DenyList          []string                `json:"denyList" yaml:"deny_list"`
	ApprovalOverrides map[string]ApprovalMode `json:"approvalOverrides" yaml:"approval_overrides"`
}

// AllowAll returns the permissive default policy.
func AllowAll() ToolPolicy {
	return ToolPolicy{AllowList: []string{"*"}}
}

// Resolve computes the approval mode for a tool name. Resolution order:
// deny list, explicit override, allow list, default deny. The deny list
// always wins, even over an explicit override and a wildcard allow.
func (p ToolPolicy) Resolve(toolName string) ApprovalMode {
	for _, pattern := range p.DenyList {
		if matchPattern(pattern, toolName) {
			return ApprovalDeny
		}
	}
	if mode, ok := p.ApprovalOverrides[toolName]; ok {
		return mode
	}
	for _, pattern := range p.AllowList {
		if matchPattern(pattern, toolName) {
			return ApprovalAutoApprove
		}
	}
	return ApprovalDeny
}

// matchPattern supports exact names, the "*" wildcard and a single trailing
// "*" for prefix matches (e.g. "git_*").
func matchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}
