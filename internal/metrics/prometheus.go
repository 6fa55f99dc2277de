package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget. Registration errors
// are logged but never propagated.
type PrometheusSink struct {
	// Dispatcher tick metrics
	ticksTotal        prometheus.Counter
	tickErrorsTotal   prometheus.Counter
	materializedTotal prometheus.Counter
	tickDuration      prometheus.Histogram

	// Execution metrics
	claimAttemptsTotal *prometheus.CounterVec
	outcomesTotal      *prometheus.CounterVec
	executionDuration  prometheus.Histogram
	pendingExecutions  prometheus.Gauge

	// Run metrics
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration prometheus.Histogram
	approvalsTotal   *prometheus.CounterVec

	// Lease recovery metrics
	leaseRecoveredTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink registered on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}

	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goclaw_dispatcher_ticks_total",
		Help: "Total number of dispatcher ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goclaw_dispatcher_tick_errors_total",
		Help: "Total number of dispatcher tick errors.",
	})
	s.materializedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goclaw_executions_materialized_total",
		Help: "Total number of future executions materialized.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "goclaw_dispatcher_tick_duration_seconds",
		Help:    "Duration of dispatcher ticks.",
		Buckets: prometheus.DefBuckets,
	})

	s.claimAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goclaw_claim_attempts_total",
		Help: "Claim attempts partitioned by whether the claim was won.",
	}, []string{"won"})
	s.outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goclaw_execution_outcomes_total",
		Help: "Terminal and requeue outcomes of executions.",
	}, []string{"outcome"})
	s.executionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "goclaw_execution_duration_seconds",
		Help:    "Wall-clock duration of agent executions.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
	s.pendingExecutions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goclaw_pending_executions",
		Help: "Number of pending future executions.",
	})

	s.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goclaw_tool_calls_total",
		Help: "Tool calls partitioned by tool and outcome.",
	}, []string{"tool", "outcome"})
	s.toolCallDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "goclaw_tool_call_duration_seconds",
		Help:    "Duration of tool executions.",
		Buckets: prometheus.DefBuckets,
	})
	s.approvalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goclaw_approvals_total",
		Help: "Approval request outcomes.",
	}, []string{"outcome"})

	s.leaseRecoveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goclaw_lease_recovered_total",
		Help: "Executions recovered from expired leases, by action taken.",
	}, []string{"action"})

	s.register(reg, s.ticksTotal, "goclaw_dispatcher_ticks_total")
	s.register(reg, s.tickErrorsTotal, "goclaw_dispatcher_tick_errors_total")
	s.register(reg, s.materializedTotal, "goclaw_executions_materialized_total")
	s.register(reg, s.tickDuration, "goclaw_dispatcher_tick_duration_seconds")
	s.register(reg, s.claimAttemptsTotal, "goclaw_claim_attempts_total")
	s.register(reg, s.outcomesTotal, "goclaw_execution_outcomes_total")
	s.register(reg, s.executionDuration, "goclaw_execution_duration_seconds")
	s.register(reg, s.pendingExecutions, "goclaw_pending_executions")
	s.register(reg, s.toolCallsTotal, "goclaw_tool_calls_total")
	s.register(reg, s.toolCallDuration, "goclaw_tool_call_duration_seconds")
	s.register(reg, s.approvalsTotal, "goclaw_approvals_total")
	s.register(reg, s.leaseRecoveredTotal, "goclaw_lease_recovered_total")

	return s
}

// register attempts to register a collector, logging errors without
// propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, materialized int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.materializedTotal.Add(float64(materialized))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) ClaimAttempt(won bool) {
	label := "false"
	if won {
		label = "true"
	}
	s.claimAttemptsTotal.WithLabelValues(label).Inc()
}

func (s *PrometheusSink) ExecutionOutcome(outcome string) {
	s.outcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) ExecutionDuration(d time.Duration) {
	s.executionDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) PendingExecutionsUpdate(count int) {
	s.pendingExecutions.Set(float64(count))
}

func (s *PrometheusSink) ToolCallCompleted(tool, outcome string, d time.Duration) {
	s.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	s.toolCallDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) ApprovalOutcome(outcome string) {
	s.approvalsTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) LeaseRecovered(action string) {
	s.leaseRecoveredTotal.WithLabelValues(action).Inc()
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
