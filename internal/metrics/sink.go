// Package metrics defines the instrumentation sink for the scheduling
// engine. Consumers depend on the Sink interface; the Prometheus
// implementation is wired in at composition time and a no-op stands in
// when metrics are disabled.
package metrics

import "time"

// Sink receives instrumentation events. Implementations must be
// non-blocking and safe for concurrent use.
type Sink interface {
	// Dispatcher tick metrics
	TickStarted()
	TickCompleted(duration time.Duration, materialized int, err error)

	// Execution metrics
	ClaimAttempt(won bool)
	ExecutionOutcome(outcome string)
	ExecutionDuration(d time.Duration)
	PendingExecutionsUpdate(count int)

	// Run metrics
	ToolCallCompleted(tool, outcome string, d time.Duration)
	ApprovalOutcome(outcome string)

	// Lease recovery metrics
	LeaseRecovered(action string)
}

// Outcome constants for ExecutionOutcome.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRequeued  = "requeued"
)

// Outcome constants for ToolCallCompleted.
const (
	ToolOutcomeSuccess = "success"
	ToolOutcomeError   = "error"
	ToolOutcomeDenied  = "denied"
)

// Outcome constants for ApprovalOutcome.
const (
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
	ApprovalTimedOut = "timed_out"
)

// Action constants for LeaseRecovered.
const (
	LeaseActionRequeued = "requeued"
	LeaseActionFailed   = "failed"
)
