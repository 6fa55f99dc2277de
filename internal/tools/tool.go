// Package tools holds the tool capability contract, the registry and the
// risk gate that authorizes every tool call against the active policy.
package tools

import (
	"context"

	"github.com/aatumaykin/goclaw/internal/domain"
)

// Tool is the capability contract every tool implements. The engine depends
// only on this contract, never on tool internals.
type Tool interface {
	// Name returns the unique tool name used in function calling and policy
	// lists.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's input.
	InputSchema() map[string]any

	// OutputSchema returns a JSON Schema object describing the tool's output.
	OutputSchema() map[string]any

	// RiskProfiles returns the capability tags for this tool. They are
	// surfaced to policy authors and logs.
	RiskProfiles() []domain.RiskProfile

	// Execute runs the tool. args is a JSON-encoded string. Incremental
	// output goes to stream as it occurs; the final outcome is the Result.
	Execute(ctx context.Context, args string, stream Stream) (Result, error)
}

// Result is the outcome of one tool execution. A failed Result is fed back
// to the model as a tool-error message so the agent can adapt; only
// NonRecoverable failures terminate the run.
type Result struct {
	Output         string `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
	NonRecoverable bool   `json:"nonRecoverable,omitempty"`
}

// Success reports whether the execution produced a usable output.
func (r Result) Success() bool {
	return r.Error == ""
}

// Ok builds a successful result.
func Ok(output string) Result {
	return Result{Output: output}
}

// Fail builds a recoverable failure result.
func Fail(msg string) Result {
	return Result{Error: msg}
}

// Stream receives incremental tool output as it occurs, rather than
// buffering until completion.
type Stream interface {
	Stdout(delta string)
	Stderr(delta string)
	Progress(percent int)
	Artifact(name string)
}

// NopStream discards all stream events.
type NopStream struct{}

func (NopStream) Stdout(string)   {}
func (NopStream) Stderr(string)   {}
func (NopStream) Progress(int)    {}
func (NopStream) Artifact(string) {}

// Descriptor is the externally visible description of a registered tool.
type Descriptor struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	InputSchema  map[string]any       `json:"inputSchema"`
	OutputSchema map[string]any       `json:"outputSchema"`
	RiskProfiles []domain.RiskProfile `json:"riskProfiles"`
}

// textOutputSchema is shared by tools whose output is a single text blob.
func textOutputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"output": map[string]any{"type": "string"},
		},
	}
}
