package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                            {}
func (n *NoopSink) TickCompleted(duration time.Duration, m int, err error)  {}
func (n *NoopSink) ClaimAttempt(won bool)                                   {}
func (n *NoopSink) ExecutionOutcome(outcome string)                         {}
func (n *NoopSink) ExecutionDuration(d time.Duration)                       {}
func (n *NoopSink) PendingExecutionsUpdate(count int)                       {}
func (n *NoopSink) ToolCallCompleted(tool, outcome string, d time.Duration) {}
func (n *NoopSink) ApprovalOutcome(outcome string)                          {}
func (n *NoopSink) LeaseRecovered(action string)                            {}

// Verify NoopSink implements Sink interface.
var _ Sink = (*NoopSink)(nil)
