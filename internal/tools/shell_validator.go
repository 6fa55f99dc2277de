package tools

import (
	"fmt"
	"strings"
)

// ShellValidator validates shell commands against deny and allow lists
// before execution. It rejects shell injection vectors outright; approval
// for risky-but-allowed commands is the risk gate's job, not the
// validator's.
type ShellValidator struct {
	denyCommands    []string
	allowedCommands []string
}

// NewShellValidator creates a new ShellValidator with the given command lists.
func NewShellValidator(denyCommands, allowedCommands []string) *ShellValidator {
	return &ShellValidator{
		denyCommands:    denyCommands,
		allowedCommands: allowedCommands,
	}
}

// Validate validates a command. Order: injection check, path traversal
// check, deny list, allow list.
func (v *ShellValidator) Validate(command string) error {
	if err := v.checkShellInjection(command); err != nil {
		return err
	}

	cmdName, args, err := parseCommandArgs(command)
	if err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}

	for _, arg := range append([]string{cmdName}, args...) {
		if strings.Contains(arg, "..") {
			return fmt.Errorf("argument contains path traversal: %s", arg)
		}
	}

	for _, denyPattern := range v.denyCommands {
		if v.MatchPattern(command, denyPattern) {
			return fmt.Errorf("command denied by deny list")
		}
	}

	// Empty allow list with an empty deny list means fail-open.
	if len(v.allowedCommands) == 0 {
		return nil
	}

	for _, allowedPattern := range v.allowedCommands {
		if v.MatchPattern(command, allowedPattern) {
			return nil
		}
	}

	return fmt.Errorf("command not in allow list")
}

// MatchPattern checks if a command matches a given pattern.
// Pattern types:
//   - Exact match: "echo hello" matches "echo hello"
//   - Base command: "echo hello" matches "echo"
//   - Trailing wildcard: "git status" matches "git *"
//   - Full wildcard: "echo hello" matches "*"
func (v *ShellValidator) MatchPattern(command, pattern string) bool {
	command = strings.TrimSpace(command)
	pattern = strings.TrimSpace(pattern)

	if pattern == "*" {
		return true
	}
	if command == "" && pattern == "" {
		return false
	}
	if command == pattern {
		return true
	}

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return false
	}
	if pattern == parts[0] {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSpace(strings.TrimSuffix(pattern, "*"))
		// Unsafe pattern characters would open an injection hole.
		if prefix != "" && strings.ContainsAny(prefix, "|&;<>`$()") {
			return false
		}
		if prefix != "" && strings.HasPrefix(command, prefix) {
			remaining := strings.TrimPrefix(command, prefix)
			return remaining == "" || strings.HasPrefix(remaining, " ")
		}
	}

	return false
}

// checkShellInjection rejects command chaining, substitution and
// redirection so the allow list cannot be bypassed with a compound command.
func (v *ShellValidator) checkShellInjection(command string) error {
	dangerousPatterns := []string{
		"&&", "||", "|", ";",
		"$(", ")",
		"`",
		">>", ">",
		"<<", "<",
		"&",
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(command, pattern) {
			return fmt.Errorf("command contains shell injection vector: %s", pattern)
		}
	}

	return nil
}

// parseCommandArgs splits a command into name and arguments, honoring
// single and double quotes. Escapes are not handled; this is for
// validation only, not execution.
func parseCommandArgs(command string) (string, []string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", nil, fmt.Errorf("empty command")
	}

	var args []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false

	for _, r := range command {
		switch r {
		case '\'':
			if inSingleQuote {
				inSingleQuote = false
			} else if !inDoubleQuote {
				inSingleQuote = true
			} else {
				current.WriteRune(r)
			}

		case '"':
			if inDoubleQuote {
				inDoubleQuote = false
			} else if !inSingleQuote {
				inDoubleQuote = true
			} else {
				current.WriteRune(r)
			}

		case ' ', '\t':
			if !inSingleQuote && !inDoubleQuote {
				if current.Len() > 0 {
					args = append(args, current.String())
					current.Reset()
				}
				continue
			}
			current.WriteRune(r)

		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if len(args) == 0 {
		return "", nil, fmt.Errorf("no command found")
	}

	return args[0], args[1:], nil
}
