package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
)

// ShellOptions configures the shell_exec tool.
type ShellOptions struct {
	Enabled         bool
	WorkDir         string
	DenyCommands    []string
	AllowedCommands []string
}

// ShellExecTool executes shell commands inside the workspace with an
// allow-list validator. The command timeout is enforced by the registry,
// which cancels the context this tool hands to exec.
type ShellExecTool struct {
	opts      ShellOptions
	logger    *logger.Logger
	validator *ShellValidator
}

// ShellExecArgs represents the arguments for the shell_exec tool.
type ShellExecArgs struct {
	Command string `json:"command"` // Shell command to execute
}

// NewShellExecTool creates a new ShellExecTool instance.
func NewShellExecTool(opts ShellOptions, log *logger.Logger) *ShellExecTool {
	return &ShellExecTool{
		opts:      opts,
		logger:    log,
		validator: NewShellValidator(opts.DenyCommands, opts.AllowedCommands),
	}
}

// Name returns the tool name.
func (t *ShellExecTool) Name() string {
	return "shell_exec"
}

// Description returns a description of what the tool does.
func (t *ShellExecTool) Description() string {
	return "Execute shell commands in the workspace with security restrictions (allow list, timeout, logging)."
}

// InputSchema returns the JSON Schema for the tool's input.
func (t *ShellExecTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute. Examples: ls -la, pwd, df -h",
			},
		},
		"required": []string{"command"},
	}
}

// OutputSchema returns the JSON Schema for the tool's output.
func (t *ShellExecTool) OutputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"output":    map[string]any{"type": "string"},
			"exit_code": map[string]any{"type": "integer"},
		},
	}
}

// RiskProfiles returns the capability tags for this tool.
func (t *ShellExecTool) RiskProfiles() []domain.RiskProfile {
	return []domain.RiskProfile{domain.RiskExecShell}
}

// Execute validates and runs a shell command, streaming combined output.
func (t *ShellExecTool) Execute(ctx context.Context, args string, stream Stream) (Result, error) {
	var shellArgs ShellExecArgs
	if err := ParseArgs(args, &shellArgs); err != nil {
		return Fail(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	shellArgs.Command = strings.TrimSpace(shellArgs.Command)
	if shellArgs.Command == "" {
		return Fail("command is required"), nil
	}

	if !t.opts.Enabled {
		return Fail("shell_exec tool is disabled in configuration"), nil
	}

	if err := t.validator.Validate(shellArgs.Command); err != nil {
		return Fail(fmt.Sprintf("command validation failed: %v", err)), nil
	}

	t.logger.InfoCtx(ctx, "executing shell command",
		logger.Field{Key: "command", Value: shellArgs.Command})

	output, exitCode, err := t.runCommand(ctx, shellArgs.Command, stream)

	result := fmt.Sprintf("# Command: %s\n", shellArgs.Command)
	result += fmt.Sprintf("# Exit code: %d\n", exitCode)
	result += "# Output:\n"
	result += output

	if err != nil {
		t.logger.ErrorCtx(ctx, "shell command failed", err,
			logger.Field{Key: "command", Value: shellArgs.Command})
		result += fmt.Sprintf("\n# Error: %v", err)
		return Result{Output: result, Error: err.Error()}, nil
	}

	return Ok(result), nil
}

// runCommand executes the command via sh -c in the workspace directory,
// forwarding stdout and stderr to the stream as they arrive.
func (t *ShellExecTool) runCommand(ctx context.Context, command string, stream Stream) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.opts.WorkDir

	var combined strings.Builder
	cmd.Stdout = &streamWriter{sink: stream.Stdout, buf: &combined}
	cmd.Stderr = &streamWriter{sink: stream.Stderr, buf: &combined}

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return combined.String(), exitCode, err
}

// streamWriter tees writes into a buffer and a stream callback.
type streamWriter struct {
	sink func(string)
	buf  *strings.Builder
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.sink != nil {
		w.sink(string(p))
	}
	return len(p), nil
}
