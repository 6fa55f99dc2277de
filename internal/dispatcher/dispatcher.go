// Package dispatcher drives the execution lifecycle: it materializes due
// schedule occurrences into pending executions, claims them with an atomic
// conditional update, runs them through the agent loop on a worker pool,
// and finalizes each one with exactly one archive record.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/goclaw/internal/agent/loop"
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/metrics"
	"github.com/aatumaykin/goclaw/internal/planner"
	"github.com/aatumaykin/goclaw/internal/policy"
	"github.com/aatumaykin/goclaw/internal/retry"
	"github.com/aatumaykin/goclaw/internal/store/sqlite"
	"github.com/aatumaykin/goclaw/internal/workers"
)

// Default dispatcher configuration.
const (
	DefaultTickInterval       = 15 * time.Second
	DefaultClaimLimit         = 32
	DefaultLeaseDuration      = 90 * time.Second
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultMaxAttempts        = 3
	DefaultMaterializeHorizon = 24 * time.Hour

	// finalizeTimeout bounds the terminal store writes, which run on a
	// context detached from pool shutdown.
	finalizeTimeout = 10 * time.Second
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	ListEnabledSchedules(ctx context.Context) ([]domain.AgentSchedule, error)
	LastScheduledAt(ctx context.Context, scheduleID string) (*time.Time, error)
	InsertExecution(ctx context.Context, exec domain.FutureExecution) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.FutureExecution, error)
	Claim(ctx context.Context, id, owner string, leaseUntil time.Time) error
	RenewLease(ctx context.Context, id, owner string, leaseUntil time.Time) error
	Finalize(ctx context.Context, id, owner string, status domain.ExecStatus, past domain.PastExecution) error
	Requeue(ctx context.Context, id, owner string) error
	ListExpiredLeases(ctx context.Context, now time.Time) ([]domain.FutureExecution, error)
	RequeueExpired(ctx context.Context, id string, now time.Time) error
	FailExpired(ctx context.Context, id string, now time.Time, past domain.PastExecution) error
	PurgeDay(ctx context.Context, dateKey string) (int64, error)
}

// Runner executes one agent run to a terminal state.
type Runner interface {
	Run(ctx context.Context, in loop.RunInput) (loop.RunResult, error)
}

// Config holds dispatcher configuration.
type Config struct {
	Owner              string // worker identity recorded as lock_owner
	TickInterval       time.Duration
	ClaimLimit         int
	LeaseDuration      time.Duration
	HeartbeatInterval  time.Duration
	MaxAttempts        int
	MaterializeHorizon time.Duration
	Workers            int
	QueueSize          int
	SystemPrompt       string
}

// Dispatcher owns the tick loop and the execution workers.
type Dispatcher struct {
	store    Store
	runner   Runner
	policies *policy.Set
	sink     metrics.Sink
	logger   *logger.Logger
	cfg      Config
	pool     *workers.Pool
	clock    func() time.Time

	mu          sync.Mutex
	lastDateKey string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a dispatcher. Defaults are applied for any zero config value.
func New(store Store, runner Runner, policies *policy.Set, sink metrics.Sink, log *logger.Logger, cfg Config) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy set cannot be nil")
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if cfg.Owner == "" {
		cfg.Owner = "dispatcher-" + uuid.NewString()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = DefaultClaimLimit
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaterializeHorizon <= 0 {
		cfg.MaterializeHorizon = DefaultMaterializeHorizon
	}

	d := &Dispatcher{
		store:    store,
		runner:   runner,
		policies: policies,
		sink:     sink,
		logger:   log,
		cfg:      cfg,
		clock:    time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	d.pool = workers.NewPool(cfg.Workers, cfg.QueueSize, d.handleExecution, log)

	return d, nil
}

// Start launches the worker pool and the tick loop.
func (d *Dispatcher) Start() {
	d.pool.Start()
	go d.run()

	d.logger.Info("dispatcher started",
		logger.Field{Key: "owner", Value: d.cfg.Owner},
		logger.Field{Key: "tick_interval", Value: d.cfg.TickInterval.String()})
}

// Stop shuts down the tick loop and waits for in-flight runs.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.pool.Stop()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	// Run one tick immediately so restarts pick up due work without delay.
	d.Tick(context.Background())

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Tick(context.Background())
		}
	}
}

// Tick runs one full dispatcher cycle: day rollover, lease recovery,
// materialization and claiming. Exported for the trigger-now path and
// for tests.
func (d *Dispatcher) Tick(ctx context.Context) {
	start := d.clock()
	d.sink.TickStarted()

	d.rolloverDay(ctx, start)
	d.recoverExpiredLeases(ctx, start)
	materialized, err := d.materialize(ctx, start)
	if dispatchErr := d.dispatchDue(ctx, start); dispatchErr != nil && err == nil {
		err = dispatchErr
	}

	d.sink.TickCompleted(d.clock().Sub(start), materialized, err)
	if err != nil {
		d.logger.Error("dispatcher tick finished with errors", err)
	}
}

// rolloverDay purges yesterday's pending and cancelled leftovers when the
// date changes; the following materialization pass regenerates today's
// plan from the schedules.
func (d *Dispatcher) rolloverDay(ctx context.Context, now time.Time) {
	dateKey := domain.DateKey(now, time.UTC)

	d.mu.Lock()
	previous := d.lastDateKey
	d.lastDateKey = dateKey
	d.mu.Unlock()

	if previous == "" || previous == dateKey {
		return
	}

	purged, err := d.store.PurgeDay(ctx, previous)
	if err != nil {
		d.logger.Error("day rollover purge failed", err,
			logger.Field{Key: "date_key", Value: previous})
		return
	}
	d.logger.Info("day plan rolled over",
		logger.Field{Key: "purged_date_key", Value: previous},
		logger.Field{Key: "purged", Value: purged})
}

// materialize inserts a pending execution for every enabled schedule whose
// next fire time falls within the horizon. The unique occurrence index
// makes repeated materialization idempotent.
func (d *Dispatcher) materialize(ctx context.Context, now time.Time) (int, error) {
	schedules, err := d.store.ListEnabledSchedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list schedules: %w", err)
	}

	var firstErr error
	materialized := 0

	for _, sched := range schedules {
		lastFired, err := d.store.LastScheduledAt(ctx, sched.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		next, ok := planner.NextFireTime(sched, now, lastFired)
		if !ok || next.After(now.Add(d.cfg.MaterializeHorizon)) {
			continue
		}

		loc, err := sched.Location()
		if err != nil {
			loc = time.UTC
		}

		exec := domain.FutureExecution{
			ID:            uuid.NewString(),
			ScheduleID:    sched.ID,
			AgentID:       sched.AgentID,
			ProjectID:     sched.ProjectID,
			ScheduledAt:   next.UTC(),
			DateKey:       domain.DateKey(next, loc),
			Status:        domain.ExecStatusPending,
			Attempt:       1,
			MaxAttempts:   d.cfg.MaxAttempts,
			CreatedAt:     now.UTC(),
			LastUpdatedAt: now.UTC(),
		}

		if err := d.store.InsertExecution(ctx, exec); err != nil {
			if errors.Is(err, sqlite.ErrDuplicateExecution) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		materialized++
		d.logger.Debug("occurrence materialized",
			logger.Field{Key: "schedule_id", Value: sched.ID},
			logger.Field{Key: "execution_id", Value: exec.ID},
			logger.Field{Key: "scheduled_at", Value: next.UTC().Format(time.RFC3339)})
	}

	return materialized, firstErr
}

// dispatchDue submits due pending executions to the worker pool.
func (d *Dispatcher) dispatchDue(ctx context.Context, now time.Time) error {
	due, err := d.store.ListDue(ctx, now, d.cfg.ClaimLimit)
	if err != nil {
		return fmt.Errorf("failed to list due executions: %w", err)
	}

	d.sink.PendingExecutionsUpdate(len(due))

	for _, exec := range due {
		d.pool.Submit(exec)
	}
	return nil
}

// handleExecution claims and runs one due execution. Losing the claim race
// is a silent skip; the winner renews its lease until the run finishes.
func (d *Dispatcher) handleExecution(ctx context.Context, exec domain.FutureExecution) {
	now := d.clock()

	if err := d.store.Claim(ctx, exec.ID, d.cfg.Owner, now.Add(d.cfg.LeaseDuration)); err != nil {
		if errors.Is(err, sqlite.ErrClaimLost) {
			d.sink.ClaimAttempt(false)
			d.logger.Debug("claim lost",
				logger.Field{Key: "execution_id", Value: exec.ID})
			return
		}
		d.logger.Error("claim failed", err,
			logger.Field{Key: "execution_id", Value: exec.ID})
		return
	}
	d.sink.ClaimAttempt(true)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go d.heartbeat(heartbeatCtx, exec.ID)
	defer stopHeartbeat()

	startedAt := d.clock()
	result, runErr := d.runner.Run(ctx, loop.RunInput{
		ExecutionID:  exec.ID,
		AgentID:      exec.AgentID,
		SystemPrompt: d.cfg.SystemPrompt,
		Prompt:       d.seedScheduledPrompt(exec),
		Policy:       d.policies.ForAgent(exec.AgentID),
		Stream:       newLogStream(d.logger, exec.ID),
	})
	endedAt := d.clock()
	d.sink.ExecutionDuration(endedAt.Sub(startedAt))

	d.finalize(ctx, exec, result, runErr, startedAt, endedAt)
}

// heartbeat renews the lease while the run is in flight.
func (d *Dispatcher) heartbeat(ctx context.Context, executionID string) {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leaseUntil := d.clock().Add(d.cfg.LeaseDuration)
			if err := d.store.RenewLease(ctx, executionID, d.cfg.Owner, leaseUntil); err != nil {
				d.logger.Warn("lease renewal failed",
					logger.Field{Key: "execution_id", Value: executionID},
					logger.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}

// finalize writes the terminal state and exactly one archive record, or
// requeues the same record for a transient failure with attempts left.
// Pool shutdown cancels the run's context while handlers are mid-flight;
// these store writes must still land or a finished run would be stranded
// RUNNING and later re-executed by the lease reaper.
func (d *Dispatcher) finalize(ctx context.Context, exec domain.FutureExecution, result loop.RunResult, runErr error, startedAt, endedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	past := domain.PastExecution{
		ID:          uuid.NewString(),
		ExecutionID: exec.ID,
		AgentID:     exec.AgentID,
		ProjectID:   exec.ProjectID,
		ScheduledAt: exec.ScheduledAt,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		DurationMs:  endedAt.Sub(startedAt).Milliseconds(),
		Attempt:     exec.Attempt,
		CreatedAt:   endedAt.UTC(),
	}

	switch {
	case runErr == nil && result.State == loop.StateDone:
		past.ResultStatus = domain.ResultSuccess
		past.ResponseSummary = result.Summary
		if err := d.store.Finalize(ctx, exec.ID, d.cfg.Owner, domain.ExecStatusSuccess, past); err != nil {
			d.logger.Error("finalize failed", err,
				logger.Field{Key: "execution_id", Value: exec.ID})
			return
		}
		d.sink.ExecutionOutcome(metrics.OutcomeSuccess)
		d.logger.Info("execution succeeded",
			logger.Field{Key: "execution_id", Value: exec.ID},
			logger.Field{Key: "duration_ms", Value: past.DurationMs})

	case runErr == nil && result.State == loop.StateCancelled:
		// Shutdown interrupted the run mid-flight. The record is still
		// RUNNING, so requeue it for another worker rather than losing it.
		d.requeueOrFail(ctx, exec, past, "run interrupted by shutdown")

	default:
		msg := "run failed"
		if runErr != nil {
			msg = runErr.Error()
		}
		if runErr != nil && retry.IsRetryable(runErr) && exec.Attempt < exec.MaxAttempts {
			d.logger.Warn("transient failure, requeueing",
				logger.Field{Key: "execution_id", Value: exec.ID},
				logger.Field{Key: "attempt", Value: exec.Attempt},
				logger.Field{Key: "error", Value: msg})
			if err := d.store.Requeue(ctx, exec.ID, d.cfg.Owner); err != nil {
				d.logger.Error("requeue failed", err,
					logger.Field{Key: "execution_id", Value: exec.ID})
				return
			}
			d.sink.ExecutionOutcome(metrics.OutcomeRequeued)
			return
		}

		past.ResultStatus = domain.ResultFailed
		past.ErrorMessage = msg
		if err := d.store.Finalize(ctx, exec.ID, d.cfg.Owner, domain.ExecStatusFailed, past); err != nil {
			d.logger.Error("finalize failed", err,
				logger.Field{Key: "execution_id", Value: exec.ID})
			return
		}
		d.sink.ExecutionOutcome(metrics.OutcomeFailed)
		d.logger.Warn("execution failed",
			logger.Field{Key: "execution_id", Value: exec.ID},
			logger.Field{Key: "error", Value: msg})
	}
}

// requeueOrFail requeues an interrupted run while attempts remain,
// otherwise records a failure.
func (d *Dispatcher) requeueOrFail(ctx context.Context, exec domain.FutureExecution, past domain.PastExecution, reason string) {
	if exec.Attempt < exec.MaxAttempts {
		if err := d.store.Requeue(ctx, exec.ID, d.cfg.Owner); err != nil {
			d.logger.Error("requeue failed", err,
				logger.Field{Key: "execution_id", Value: exec.ID})
			return
		}
		d.sink.ExecutionOutcome(metrics.OutcomeRequeued)
		return
	}

	past.ResultStatus = domain.ResultFailed
	past.ErrorMessage = reason
	if err := d.store.Finalize(ctx, exec.ID, d.cfg.Owner, domain.ExecStatusFailed, past); err != nil {
		d.logger.Error("finalize failed", err,
			logger.Field{Key: "execution_id", Value: exec.ID})
		return
	}
	d.sink.ExecutionOutcome(metrics.OutcomeFailed)
}

// recoverExpiredLeases requeues RUNNING executions whose lease expired
// (the owning worker crashed or lost connectivity), counting the attempt.
// Executions out of attempts are failed with an archive record.
func (d *Dispatcher) recoverExpiredLeases(ctx context.Context, now time.Time) {
	expired, err := d.store.ListExpiredLeases(ctx, now)
	if err != nil {
		d.logger.Error("failed to list expired leases", err)
		return
	}

	for _, exec := range expired {
		if exec.Attempt < exec.MaxAttempts {
			if err := d.store.RequeueExpired(ctx, exec.ID, now); err != nil {
				d.logger.Error("failed to requeue expired lease", err,
					logger.Field{Key: "execution_id", Value: exec.ID})
				continue
			}
			d.sink.LeaseRecovered(metrics.LeaseActionRequeued)
			d.logger.Warn("expired lease requeued",
				logger.Field{Key: "execution_id", Value: exec.ID},
				logger.Field{Key: "previous_owner", Value: exec.LockOwner})
			continue
		}

		past := domain.PastExecution{
			ID:           uuid.NewString(),
			ExecutionID:  exec.ID,
			AgentID:      exec.AgentID,
			ProjectID:    exec.ProjectID,
			ScheduledAt:  exec.ScheduledAt,
			StartedAt:    now,
			EndedAt:      now,
			ResultStatus: domain.ResultFailed,
			ErrorMessage: "lease expired with no attempts remaining",
			Attempt:      exec.Attempt,
			CreatedAt:    now.UTC(),
		}
		if err := d.store.FailExpired(ctx, exec.ID, now, past); err != nil {
			d.logger.Error("failed to fail expired lease", err,
				logger.Field{Key: "execution_id", Value: exec.ID})
			continue
		}
		d.sink.LeaseRecovered(metrics.LeaseActionFailed)
		d.logger.Warn("expired lease failed",
			logger.Field{Key: "execution_id", Value: exec.ID},
			logger.Field{Key: "previous_owner", Value: exec.LockOwner})
	}
}

// TriggerNow inserts an ad hoc immediate execution for an agent, outside
// any schedule. It becomes due instantly and is picked up on the next tick.
func (d *Dispatcher) TriggerNow(ctx context.Context, agentID, projectID string) (domain.FutureExecution, error) {
	now := d.clock()
	exec := domain.FutureExecution{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		ProjectID:     projectID,
		ScheduledAt:   now.UTC(),
		DateKey:       domain.DateKey(now, time.UTC),
		Immediate:     true,
		Status:        domain.ExecStatusPending,
		Attempt:       1,
		MaxAttempts:   d.cfg.MaxAttempts,
		CreatedAt:     now.UTC(),
		LastUpdatedAt: now.UTC(),
	}

	if err := d.store.InsertExecution(ctx, exec); err != nil {
		return domain.FutureExecution{}, fmt.Errorf("failed to insert immediate execution: %w", err)
	}

	d.logger.Info("immediate execution triggered",
		logger.Field{Key: "execution_id", Value: exec.ID},
		logger.Field{Key: "agent_id", Value: agentID})

	return exec, nil
}

// MaterializeImmediate inserts the single occurrence of an IMMEDIATE
// schedule at creation time.
func (d *Dispatcher) MaterializeImmediate(ctx context.Context, sched domain.AgentSchedule) (domain.FutureExecution, error) {
	now := d.clock()
	exec := domain.FutureExecution{
		ID:            uuid.NewString(),
		ScheduleID:    sched.ID,
		AgentID:       sched.AgentID,
		ProjectID:     sched.ProjectID,
		ScheduledAt:   now.UTC(),
		DateKey:       domain.DateKey(now, time.UTC),
		Immediate:     true,
		Status:        domain.ExecStatusPending,
		Attempt:       1,
		MaxAttempts:   d.cfg.MaxAttempts,
		CreatedAt:     now.UTC(),
		LastUpdatedAt: now.UTC(),
	}

	if err := d.store.InsertExecution(ctx, exec); err != nil {
		return domain.FutureExecution{}, fmt.Errorf("failed to materialize immediate schedule: %w", err)
	}
	return exec, nil
}

// seedScheduledPrompt builds the initial user prompt for a scheduled run.
func (d *Dispatcher) seedScheduledPrompt(exec domain.FutureExecution) string {
	scope := "your global responsibilities"
	if exec.ProjectID != "" {
		scope = fmt.Sprintf("project %s", exec.ProjectID)
	}
	kind := "scheduled run"
	if exec.Immediate {
		kind = "on-demand run"
	}
	return fmt.Sprintf(
		"This is a %s for agent %s covering %s, planned for %s. Review your standing instructions and carry out the work due for this run. Report a concise summary of what you did.",
		kind, exec.AgentID, scope, exec.ScheduledAt.UTC().Format(time.RFC3339))
}
