// Package sqlite persists schedules, future executions and the past
// execution archive. The conditional-update claim on future_executions is
// the engine's single point of mutual exclusion; everything else is plain
// reads and writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aatumaykin/goclaw/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateExecution is returned when an occurrence for the same
	// schedule and fire time already exists. Materialization treats it as
	// "already planned".
	ErrDuplicateExecution = errors.New("execution already exists")
	// ErrClaimLost is returned when a conditional claim matched no row.
	// Losing the race is not an error condition for the caller; it skips.
	ErrClaimLost = errors.New("claim lost")
	// ErrExecutionRunning is returned when cancelling a RUNNING execution.
	ErrExecutionRunning = errors.New("execution is running")
	// ErrAlreadyTerminal is returned for operations on finished executions.
	ErrAlreadyTerminal = errors.New("execution already terminal")
)

// Store wraps a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. WAL mode plus a busy
// timeout keeps concurrent dispatcher workers from tripping over writes.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- schedules ---

// CreateSchedule inserts a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, sched domain.AgentSchedule) error {
	_, err := s.db.ExecContext(ctx, queryInsertSchedule,
		sched.ID, sched.AgentID, sched.Enabled, sched.Timezone, string(sched.ScheduleType),
		sched.CronExpr, strings.Join(sched.TimesOfDay, ","), sched.IntervalMinutes,
		string(sched.Scope), sched.ProjectID, sched.Version, sched.CreatedAt, sched.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule returns a schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (domain.AgentSchedule, error) {
	row := s.db.QueryRowContext(ctx, querySelectSchedule+" WHERE id = ?", id)
	return scanSchedule(row)
}

// ListSchedules returns all schedules ordered by creation time.
func (s *Store) ListSchedules(ctx context.Context) ([]domain.AgentSchedule, error) {
	return s.querySchedules(ctx, querySelectSchedule+" ORDER BY created_at")
}

// ListEnabledSchedules returns schedules the planner should consider.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]domain.AgentSchedule, error) {
	return s.querySchedules(ctx, querySelectSchedule+" WHERE enabled = 1 ORDER BY created_at")
}

// UpdateSchedule rewrites a schedule in place and bumps its version.
func (s *Store) UpdateSchedule(ctx context.Context, sched domain.AgentSchedule) error {
	res, err := s.db.ExecContext(ctx, queryUpdateSchedule,
		sched.AgentID, sched.Enabled, sched.Timezone, string(sched.ScheduleType),
		sched.CronExpr, strings.Join(sched.TimesOfDay, ","), sched.IntervalMinutes,
		string(sched.Scope), sched.ProjectID, time.Now().UTC(), sched.ID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireRow(res)
}

// DeleteSchedule removes a schedule and cancels its non-running executions
// in one transaction.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryCancelPendingBySchedule, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("cancel pending: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// --- future executions ---

// InsertExecution creates a PENDING execution. Returns
// ErrDuplicateExecution when the (schedule, scheduledAt) occurrence is
// already materialized.
func (s *Store) InsertExecution(ctx context.Context, exec domain.FutureExecution) error {
	_, err := s.db.ExecContext(ctx, queryInsertExecution,
		exec.ID, exec.ScheduleID, exec.AgentID, exec.ProjectID,
		exec.ScheduledAt.UTC(), exec.DateKey, exec.Immediate,
		exec.MaxAttempts, exec.CreatedAt, exec.LastUpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExecution
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution returns an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (domain.FutureExecution, error) {
	row := s.db.QueryRowContext(ctx, querySelectExecution+" WHERE id = ?", id)
	return scanExecution(row)
}

// ListDue returns PENDING executions whose scheduled time has arrived,
// oldest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.FutureExecution, error) {
	return s.queryExecutions(ctx,
		querySelectExecution+" WHERE status = 'PENDING' AND scheduled_at <= ? ORDER BY scheduled_at LIMIT ?",
		now.UTC(), limit)
}

// ListExecutions filters by agent, day partition and/or status. Empty
// filters are ignored.
func (s *Store) ListExecutions(ctx context.Context, agentID, dateKey string, status domain.ExecStatus) ([]domain.FutureExecution, error) {
	q := querySelectExecution + " WHERE 1=1"
	args := []any{}
	if agentID != "" {
		q += " AND agent_id = ?"
		args = append(args, agentID)
	}
	if dateKey != "" {
		q += " AND date_key = ?"
		args = append(args, dateKey)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, string(status))
	}
	q += " ORDER BY scheduled_at"
	return s.queryExecutions(ctx, q, args...)
}

// LastScheduledAt returns the most recent materialized fire time for a
// schedule, or nil when it has never fired. INTERVAL planning keys off it.
func (s *Store) LastScheduledAt(ctx context.Context, scheduleID string) (*time.Time, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(scheduled_at) FROM future_executions WHERE schedule_id = ?", scheduleID).Scan(&ts)
	if err != nil {
		return nil, err
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time.UTC()
	return &t, nil
}

// Claim atomically transitions PENDING -> RUNNING for the given owner.
// Returns ErrClaimLost when another worker won the race (or the record is
// no longer claimable); the caller skips silently.
func (s *Store) Claim(ctx context.Context, id, owner string, leaseUntil time.Time) error {
	res, err := s.db.ExecContext(ctx, queryClaimExecution, owner, leaseUntil.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

// RenewLease extends the owner's lease on a RUNNING execution.
func (s *Store) RenewLease(ctx context.Context, id, owner string, leaseUntil time.Time) error {
	res, err := s.db.ExecContext(ctx, queryRenewLease, leaseUntil.UTC(), time.Now().UTC(), id, owner)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	return requireRow(res)
}

// Cancel transitions a PENDING execution to CANCELLED. Cancelling a RUNNING
// execution returns ErrExecutionRunning; a run must reach a terminal state
// on its own. Terminal executions return ErrAlreadyTerminal.
func (s *Store) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, queryCancelPending, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case exec.Status == domain.ExecStatusRunning:
		return ErrExecutionRunning
	case exec.Status.Terminal():
		return ErrAlreadyTerminal
	default:
		return ErrNotFound
	}
}

// Finalize writes the PastExecution record and moves the owned RUNNING
// execution to its terminal status in a single transaction, so every
// terminal FutureExecution corresponds to exactly one archive row.
func (s *Store) Finalize(ctx context.Context, id, owner string, status domain.ExecStatus, past domain.PastExecution) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize with non-terminal status %s", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryFinalizeExecution, string(status), time.Now().UTC(), id, owner)
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, queryInsertPast,
		past.ID, past.ExecutionID, past.AgentID, past.ProjectID,
		past.ScheduledAt.UTC(), past.StartedAt.UTC(), past.EndedAt.UTC(), past.DurationMs,
		string(past.ResultStatus), past.ErrorMessage, past.ResponseSummary,
		past.Attempt, past.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert past execution: %w", err)
	}
	return tx.Commit()
}

// Requeue resets an owned RUNNING execution to PENDING for retry,
// incrementing the attempt counter on the same record.
func (s *Store) Requeue(ctx context.Context, id, owner string) error {
	res, err := s.db.ExecContext(ctx, queryRequeueExecution, time.Now().UTC(), id, owner)
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	return requireRow(res)
}

// ListExpiredLeases returns RUNNING executions whose lease ran out, i.e.
// whose owner is presumed dead.
func (s *Store) ListExpiredLeases(ctx context.Context, now time.Time) ([]domain.FutureExecution, error) {
	return s.queryExecutions(ctx, querySelectExpiredLeases, now.UTC())
}

// RequeueExpired returns an expired-lease execution to PENDING. The lease
// guard in the WHERE clause keeps a still-live owner from being preempted.
func (s *Store) RequeueExpired(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, queryRequeueExpired, now.UTC(), id, now.UTC())
	if err != nil {
		return fmt.Errorf("requeue expired: %w", err)
	}
	return requireRow(res)
}

// FailExpired marks an expired-lease execution FAILED when its attempts are
// exhausted.
func (s *Store) FailExpired(ctx context.Context, id string, now time.Time, past domain.PastExecution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryFailExpired, now.UTC(), id, now.UTC())
	if err != nil {
		return fmt.Errorf("fail expired: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, queryInsertPast,
		past.ID, past.ExecutionID, past.AgentID, past.ProjectID,
		past.ScheduledAt.UTC(), past.StartedAt.UTC(), past.EndedAt.UTC(), past.DurationMs,
		string(past.ResultStatus), past.ErrorMessage, past.ResponseSummary,
		past.Attempt, past.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert past execution: %w", err)
	}
	return tx.Commit()
}

// PurgeDay deletes a day partition's leftover PENDING and CANCELLED rows.
// Used by the midnight rebuild; terminal SUCCESS/FAILED rows stay as
// history.
func (s *Store) PurgeDay(ctx context.Context, dateKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryPurgeDay, dateKey)
	if err != nil {
		return 0, fmt.Errorf("purge day: %w", err)
	}
	return res.RowsAffected()
}

// --- past executions ---

// ListPastByAgent returns archive rows for an agent, newest first.
func (s *Store) ListPastByAgent(ctx context.Context, agentID string, limit, offset int) ([]domain.PastExecution, error) {
	return s.queryPast(ctx,
		querySelectPast+" WHERE agent_id = ? ORDER BY ended_at DESC LIMIT ? OFFSET ?",
		agentID, limit, offset)
}

// ListPastByProject returns archive rows for a project, newest first.
func (s *Store) ListPastByProject(ctx context.Context, projectID string, limit, offset int) ([]domain.PastExecution, error) {
	return s.queryPast(ctx,
		querySelectPast+" WHERE project_id = ? ORDER BY ended_at DESC LIMIT ? OFFSET ?",
		projectID, limit, offset)
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (domain.AgentSchedule, error) {
	var sched domain.AgentSchedule
	var schedType, scope, timesOfDay string
	err := row.Scan(&sched.ID, &sched.AgentID, &sched.Enabled, &sched.Timezone,
		&schedType, &sched.CronExpr, &timesOfDay, &sched.IntervalMinutes,
		&scope, &sched.ProjectID, &sched.Version, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AgentSchedule{}, ErrNotFound
		}
		return domain.AgentSchedule{}, err
	}
	sched.ScheduleType = domain.ScheduleType(schedType)
	sched.Scope = domain.ScheduleScope(scope)
	if timesOfDay != "" {
		sched.TimesOfDay = strings.Split(timesOfDay, ",")
	}
	return sched, nil
}

func scanExecution(row rowScanner) (domain.FutureExecution, error) {
	var exec domain.FutureExecution
	var status string
	var lease sql.NullTime
	err := row.Scan(&exec.ID, &exec.ScheduleID, &exec.AgentID, &exec.ProjectID,
		&exec.ScheduledAt, &exec.DateKey, &exec.Immediate, &status,
		&exec.Attempt, &exec.MaxAttempts, &exec.LockOwner, &lease,
		&exec.CreatedAt, &exec.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FutureExecution{}, ErrNotFound
		}
		return domain.FutureExecution{}, err
	}
	exec.Status = domain.ExecStatus(status)
	if lease.Valid {
		t := lease.Time.UTC()
		exec.LeaseUntil = &t
	}
	exec.ScheduledAt = exec.ScheduledAt.UTC()
	return exec, nil
}

func scanPast(row rowScanner) (domain.PastExecution, error) {
	var past domain.PastExecution
	var result string
	err := row.Scan(&past.ID, &past.ExecutionID, &past.AgentID, &past.ProjectID,
		&past.ScheduledAt, &past.StartedAt, &past.EndedAt, &past.DurationMs,
		&result, &past.ErrorMessage, &past.ResponseSummary, &past.Attempt, &past.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PastExecution{}, ErrNotFound
		}
		return domain.PastExecution{}, err
	}
	past.ResultStatus = domain.ResultStatus(result)
	return past, nil
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]domain.AgentSchedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sched)
	}
	return result, rows.Err()
}

func (s *Store) queryExecutions(ctx context.Context, query string, args ...any) ([]domain.FutureExecution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FutureExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, exec)
	}
	return result, rows.Err()
}

func (s *Store) queryPast(ctx context.Context, query string, args ...any) ([]domain.PastExecution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PastExecution
	for rows.Next() {
		past, err := scanPast(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, past)
	}
	return result, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
