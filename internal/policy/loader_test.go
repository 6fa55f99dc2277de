package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/goclaw/internal/domain"
)

func writePolicyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_MissingDirectoryFailsClosed(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)

	// No default file means the zero-value policy, which denies everything.
	assert.Equal(t, domain.ApprovalDeny, set.ForAgent("agent-1").Resolve("sys_time"))
}

func TestLoad_DefaultAndPerAgent(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "default.yaml", `
allow_list:
  - read_file
  - list_dir
approval_overrides:
  write_file: REQUIRE_APPROVAL
`)
	writePolicyFile(t, dir, "reporter.yaml", `
allow_list:
  - "*"
deny_list:
  - shell_exec
`)
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	set, err := Load(dir)
	require.NoError(t, err)

	// Agent without its own file falls back to the default.
	def := set.ForAgent("unknown-agent")
	assert.Equal(t, domain.ApprovalAutoApprove, def.Resolve("read_file"))
	assert.Equal(t, domain.ApprovalRequireApproval, def.Resolve("write_file"))
	assert.Equal(t, domain.ApprovalDeny, def.Resolve("shell_exec"))

	reporter := set.ForAgent("reporter")
	assert.Equal(t, domain.ApprovalAutoApprove, reporter.Resolve("fetch"))
	assert.Equal(t, domain.ApprovalDeny, reporter.Resolve("shell_exec"))
}

func TestLoad_YmlExtension(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "default.yml", `
allow_list:
  - "*"
`)
	writePolicyFile(t, dir, "scout.yml", `
allow_list:
  - fetch
`)

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalAutoApprove, set.Default().Resolve("anything"))
	assert.Equal(t, domain.ApprovalDeny, set.ForAgent("scout").Resolve("write_file"))
	assert.Equal(t, domain.ApprovalAutoApprove, set.ForAgent("scout").Resolve("fetch"))
}

func TestLoad_InvalidApprovalMode(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "default.yaml", `
approval_overrides:
  shell_exec: MAYBE
`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid approval mode")
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "default.yaml", "allow_list: [unterminated")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse policy file")
}

func TestSet_SetAgent(t *testing.T) {
	set := NewSet(domain.AllowAll())
	assert.Equal(t, domain.ApprovalAutoApprove, set.ForAgent("agent-1").Resolve("sys_time"))

	set.SetAgent("agent-1", domain.ToolPolicy{DenyList: []string{"*"}})
	assert.Equal(t, domain.ApprovalDeny, set.ForAgent("agent-1").Resolve("sys_time"))
	assert.Equal(t, domain.ApprovalAutoApprove, set.ForAgent("agent-2").Resolve("sys_time"))
}
