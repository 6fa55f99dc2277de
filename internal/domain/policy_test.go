package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolPolicy_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		policy ToolPolicy
		tool   string
		want   ApprovalMode
	}{
		{
			name:   "wildcard allow auto approves",
			policy: AllowAll(),
			tool:   "sys_time",
			want:   ApprovalAutoApprove,
		},
		{
			name:   "empty policy denies by default",
			policy: ToolPolicy{},
			tool:   "sys_time",
			want:   ApprovalDeny,
		},
		{
			name: "deny list wins over wildcard allow",
			policy: ToolPolicy{
				AllowList: []string{"*"},
				DenyList:  []string{"shell_exec"},
			},
			tool: "shell_exec",
			want: ApprovalDeny,
		},
		{
			name: "deny list wins over explicit override",
			policy: ToolPolicy{
				AllowList:         []string{"*"},
				DenyList:          []string{"shell_exec"},
				ApprovalOverrides: map[string]ApprovalMode{"shell_exec": ApprovalAutoApprove},
			},
			tool: "shell_exec",
			want: ApprovalDeny,
		},
		{
			name: "override wins over allow list",
			policy: ToolPolicy{
				AllowList:         []string{"*"},
				ApprovalOverrides: map[string]ApprovalMode{"write_file": ApprovalRequireApproval},
			},
			tool: "write_file",
			want: ApprovalRequireApproval,
		},
		{
			name: "override applies even when tool is not allow-listed",
			policy: ToolPolicy{
				AllowList:         []string{"read_file"},
				ApprovalOverrides: map[string]ApprovalMode{"fetch": ApprovalRequireApproval},
			},
			tool: "fetch",
			want: ApprovalRequireApproval,
		},
		{
			name: "exact allow match",
			policy: ToolPolicy{
				AllowList: []string{"read_file"},
			},
			tool: "read_file",
			want: ApprovalAutoApprove,
		},
		{
			name: "prefix pattern in allow list",
			policy: ToolPolicy{
				AllowList: []string{"git_*"},
			},
			tool: "git_status",
			want: ApprovalAutoApprove,
		},
		{
			name: "prefix pattern in deny list",
			policy: ToolPolicy{
				AllowList: []string{"*"},
				DenyList:  []string{"shell_*"},
			},
			tool: "shell_exec",
			want: ApprovalDeny,
		},
		{
			name: "unlisted tool denied",
			policy: ToolPolicy{
				AllowList: []string{"read_file"},
			},
			tool: "write_file",
			want: ApprovalDeny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Resolve(tt.tool))
		})
	}
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, matchPattern("*", "anything"))
	assert.True(t, matchPattern("git_*", "git_log"))
	assert.True(t, matchPattern("git_*", "git_"))
	assert.False(t, matchPattern("git_*", "svn_log"))
	assert.True(t, matchPattern("fetch", "fetch"))
	assert.False(t, matchPattern("fetch", "fetcher"))
}
