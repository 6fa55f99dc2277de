package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.TickStarted()
	sink.TickStarted()
	sink.TickCompleted(50*time.Millisecond, 3, nil)
	sink.TickCompleted(10*time.Millisecond, 0, errors.New("tick failed"))

	sink.ClaimAttempt(true)
	sink.ClaimAttempt(false)
	sink.ClaimAttempt(false)

	sink.ExecutionOutcome(OutcomeSuccess)
	sink.ExecutionOutcome(OutcomeRequeued)
	sink.ExecutionDuration(2 * time.Second)
	sink.PendingExecutionsUpdate(7)

	sink.ToolCallCompleted("shell_exec", ToolOutcomeSuccess, 30*time.Millisecond)
	sink.ToolCallCompleted("shell_exec", ToolOutcomeDenied, 0)
	sink.ApprovalOutcome(ApprovalTimedOut)
	sink.LeaseRecovered(LeaseActionRequeued)

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.ticksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.tickErrorsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.materializedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.claimAttemptsTotal.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.claimAttemptsTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.outcomesTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.outcomesTotal.WithLabelValues(OutcomeRequeued)))
	assert.Equal(t, 7.0, testutil.ToFloat64(sink.pendingExecutions))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.toolCallsTotal.WithLabelValues("shell_exec", ToolOutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.toolCallsTotal.WithLabelValues("shell_exec", ToolOutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.approvalsTotal.WithLabelValues(ApprovalTimedOut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.leaseRecoveredTotal.WithLabelValues(LeaseActionRequeued)))
}

func TestPrometheusSink_DoubleRegistrationIsSwallowed(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusSink(reg)
	require.NotNil(t, first)

	// A second sink on the same registry collides; construction still works.
	second := NewPrometheusSink(reg)
	require.NotNil(t, second)
	second.TickStarted()
}
