package domain

import "time"

// ExecStatus is the lifecycle state of a FutureExecution. SUCCESS, FAILED
// and CANCELLED are terminal; a terminal record is immutable.
type ExecStatus string

const (
	ExecStatusPending   ExecStatus = "PENDING"
	ExecStatusRunning   ExecStatus = "RUNNING"
	ExecStatusSuccess   ExecStatus = "SUCCESS"
	ExecStatusFailed    ExecStatus = "FAILED"
	ExecStatusCancelled ExecStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s ExecStatus) Terminal() bool {
	return s == ExecStatusSuccess || s == ExecStatusFailed || s == ExecStatusCancelled
}

// DateKeyFormat is the day-partition layout used on FutureExecution records.
const DateKeyFormat = "2006-01-02"

// DateKey derives the day partition for a scheduled time in the given
// location.
func DateKey(scheduledAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return scheduledAt.In(loc).Format(DateKeyFormat)
}

// FutureExecution is one concrete, not-yet-finished occurrence of a schedule
// (or an ad hoc immediate run, in which case ScheduleID is empty).
//
// Exactly one worker may hold a non-empty LockOwner while the status is
// RUNNING; the conditional claim in the store is the only lock.
type FutureExecution struct {
	ID            string     `json:"executionId"`
	ScheduleID    string     `json:"scheduleId,omitempty"`
	AgentID       string     `json:"agentId"`
	ProjectID     string     `json:"projectId,omitempty"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	DateKey       string     `json:"dateKey"`
	Immediate     bool       `json:"immediate"`
	Status        ExecStatus `json:"execStatus"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"maxAttempts"`
	LockOwner     string     `json:"lockOwner,omitempty"`
	LeaseUntil    *time.Time `json:"leaseUntil,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`
}

// ResultStatus records the outcome of a finished run in the archive.
type ResultStatus string

const (
	ResultSuccess   ResultStatus = "SUCCESS"
	ResultFailed    ResultStatus = "FAILED"
	ResultCancelled ResultStatus = "CANCELLED"
)

// PastExecution is the append-only audit record written exactly once per
// terminal FutureExecution. It is never mutated after creation.
type PastExecution struct {
	ID              string       `json:"pastExecutionId"`
	ExecutionID     string       `json:"executionId"`
	AgentID         string       `json:"agentId"`
	ProjectID       string       `json:"projectId,omitempty"`
	ScheduledAt     time.Time    `json:"scheduledAt"`
	StartedAt       time.Time    `json:"startedAt"`
	EndedAt         time.Time    `json:"endedAt"`
	DurationMs      int64        `json:"durationMs"`
	ResultStatus    ResultStatus `json:"resultStatus"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	ResponseSummary string       `json:"responseSummary,omitempty"`
	Attempt         int          `json:"attempt"`
	CreatedAt       time.Time    `json:"createdAt"`
}
