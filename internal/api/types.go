package api

import (
	"time"

	"github.com/aatumaykin/goclaw/internal/domain"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScheduleRequest carries the mutable fields of a schedule for create and
// update.
type ScheduleRequest struct {
	AgentID         string   `json:"agentId"`
	Enabled         *bool    `json:"enabled"`
	Timezone        string   `json:"timezone"`
	ScheduleType    string   `json:"scheduleType"`
	CronExpr        string   `json:"cronExpr"`
	TimesOfDay      []string `json:"timesOfDay"`
	IntervalMinutes int      `json:"intervalMinutes"`
	Scope           string   `json:"scope"`
	ProjectID       string   `json:"projectId"`
}

// ScheduleResponse is a schedule plus its computed next fire time.
// NextExecutionAt is null when the schedule is disabled or can never fire.
type ScheduleResponse struct {
	domain.AgentSchedule
	NextExecutionAt *time.Time `json:"nextExecutionAt"`
}

// ListSchedulesResponse wraps the schedule collection.
type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
}

// ListExecutionsResponse wraps the execution collection.
type ListExecutionsResponse struct {
	Executions []domain.FutureExecution `json:"executions"`
}

// ListHistoryResponse wraps the archive collection.
type ListHistoryResponse struct {
	History []domain.PastExecution `json:"history"`
}

// TriggerRequest optionally scopes an ad hoc run to a project.
type TriggerRequest struct {
	ProjectID string `json:"projectId"`
}

// InvokeToolRequest carries a manual tool invocation. AgentID selects the
// policy evaluated before execution; empty means the default policy.
type InvokeToolRequest struct {
	AgentID string `json:"agentId"`
	Args    string `json:"args"`
}

// InvokeToolResponse is the outcome of a manual tool invocation.
type InvokeToolResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RespondApprovalRequest resolves a pending approval.
type RespondApprovalRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}
