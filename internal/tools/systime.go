package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/goclaw/internal/domain"
)

// SysTimeArgs represents the arguments for the sys_time tool.
type SysTimeArgs struct {
	Timezone string `json:"timezone,omitempty"` // IANA timezone name, defaults to UTC
}

// SysTimeTool reports the current time, optionally in a given timezone.
type SysTimeTool struct {
	clock func() time.Time
}

// NewSysTimeTool creates a new SysTimeTool instance.
func NewSysTimeTool() *SysTimeTool {
	return &SysTimeTool{clock: time.Now}
}

// Name returns the tool name.
func (t *SysTimeTool) Name() string {
	return "sys_time"
}

// Description returns a description of what the tool does.
func (t *SysTimeTool) Description() string {
	return "Returns the current date and time. Accepts an optional IANA timezone name (e.g. Europe/Berlin); defaults to UTC."
}

// InputSchema returns the JSON Schema for the tool's input.
func (t *SysTimeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name. Defaults to UTC.",
			},
		},
		"required": []string{},
	}
}

// OutputSchema returns the JSON Schema for the tool's output.
func (t *SysTimeTool) OutputSchema() map[string]any {
	return textOutputSchema()
}

// RiskProfiles returns the capability tags for this tool.
func (t *SysTimeTool) RiskProfiles() []domain.RiskProfile {
	return []domain.RiskProfile{domain.RiskReadOnly}
}

// Execute returns the current time formatted for the model.
func (t *SysTimeTool) Execute(_ context.Context, args string, _ Stream) (Result, error) {
	var timeArgs SysTimeArgs
	if err := ParseArgs(args, &timeArgs); err != nil {
		return Fail(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	loc := time.UTC
	if timeArgs.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(timeArgs.Timezone)
		if err != nil {
			return Fail(fmt.Sprintf("unknown timezone: %s", timeArgs.Timezone)), nil
		}
	}

	now := t.clock().In(loc)
	output := fmt.Sprintf("RFC3339: %s\n", now.Format(time.RFC3339))
	output += fmt.Sprintf("Human readable: %s", now.Format("Monday, 02 January 2006, 15:04:05 MST"))

	return Ok(output), nil
}
