package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	schedule_type TEXT NOT NULL,
	cron_expr TEXT NOT NULL DEFAULT '',
	times_of_day TEXT NOT NULL DEFAULT '',
	interval_minutes INTEGER NOT NULL DEFAULT 0,
	scope TEXT NOT NULL DEFAULT 'GLOBAL',
	project_id TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS future_executions (
	id TEXT PRIMARY KEY,
	schedule_id TEXT NOT NULL DEFAULT '',
	agent_id TEXT NOT NULL,
	project_id TEXT NOT NULL DEFAULT '',
	scheduled_at DATETIME NOT NULL,
	date_key TEXT NOT NULL,
	immediate INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'PENDING',
	attempt INTEGER NOT NULL DEFAULT 1,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	lock_owner TEXT NOT NULL DEFAULT '',
	lease_until DATETIME,
	created_at DATETIME NOT NULL,
	last_updated_at DATETIME NOT NULL
);

-- Dedupe scheduled occurrences: one row per (schedule, fire time). Ad hoc
-- runs have an empty schedule_id and are exempt.
CREATE UNIQUE INDEX IF NOT EXISTS idx_future_schedule_occurrence
	ON future_executions(schedule_id, scheduled_at) WHERE schedule_id <> '';
CREATE INDEX IF NOT EXISTS idx_future_status_due ON future_executions(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_future_agent_date ON future_executions(agent_id, date_key);

CREATE TABLE IF NOT EXISTS past_executions (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL UNIQUE,
	agent_id TEXT NOT NULL,
	project_id TEXT NOT NULL DEFAULT '',
	scheduled_at DATETIME NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	result_status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	response_summary TEXT NOT NULL DEFAULT '',
	attempt INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_past_agent ON past_executions(agent_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_past_project ON past_executions(project_id, ended_at DESC);
`

const queryInsertSchedule = `
INSERT INTO schedules (id, agent_id, enabled, timezone, schedule_type, cron_expr, times_of_day, interval_minutes, scope, project_id, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const querySelectSchedule = `
SELECT id, agent_id, enabled, timezone, schedule_type, cron_expr, times_of_day, interval_minutes, scope, project_id, version, created_at, updated_at
FROM schedules
`

const queryUpdateSchedule = `
UPDATE schedules
SET agent_id = ?, enabled = ?, timezone = ?, schedule_type = ?, cron_expr = ?,
    times_of_day = ?, interval_minutes = ?, scope = ?, project_id = ?,
    version = version + 1, updated_at = ?
WHERE id = ?
`

const queryInsertExecution = `
INSERT INTO future_executions (id, schedule_id, agent_id, project_id, scheduled_at, date_key, immediate, status, attempt, max_attempts, created_at, last_updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 'PENDING', 1, ?, ?, ?)
`

const querySelectExecution = `
SELECT id, schedule_id, agent_id, project_id, scheduled_at, date_key, immediate,
       status, attempt, max_attempts, lock_owner, lease_until, created_at, last_updated_at
FROM future_executions
`

// Claim is the sole mechanism preventing double execution: the WHERE clause
// only matches an unowned PENDING row, so concurrent claimers race on a
// single atomic update and at most one wins.
const queryClaimExecution = `
UPDATE future_executions
SET status = 'RUNNING', lock_owner = ?, lease_until = ?, last_updated_at = ?
WHERE id = ? AND status = 'PENDING' AND lock_owner = ''
`

const queryRenewLease = `
UPDATE future_executions
SET lease_until = ?, last_updated_at = ?
WHERE id = ? AND status = 'RUNNING' AND lock_owner = ?
`

const queryCancelPending = `
UPDATE future_executions
SET status = 'CANCELLED', last_updated_at = ?
WHERE id = ? AND status = 'PENDING'
`

const queryCancelPendingBySchedule = `
UPDATE future_executions
SET status = 'CANCELLED', last_updated_at = ?
WHERE schedule_id = ? AND status = 'PENDING'
`

const queryFinalizeExecution = `
UPDATE future_executions
SET status = ?, lock_owner = '', lease_until = NULL, last_updated_at = ?
WHERE id = ? AND status = 'RUNNING' AND lock_owner = ?
`

const queryRequeueExecution = `
UPDATE future_executions
SET status = 'PENDING', lock_owner = '', lease_until = NULL, attempt = attempt + 1, last_updated_at = ?
WHERE id = ? AND status = 'RUNNING' AND lock_owner = ?
`

const querySelectExpiredLeases = querySelectExecution + `
WHERE status = 'RUNNING' AND lease_until IS NOT NULL AND lease_until < ?
`

const queryRequeueExpired = `
UPDATE future_executions
SET status = 'PENDING', lock_owner = '', lease_until = NULL, attempt = attempt + 1, last_updated_at = ?
WHERE id = ? AND status = 'RUNNING' AND lease_until IS NOT NULL AND lease_until < ?
`

const queryFailExpired = `
UPDATE future_executions
SET status = 'FAILED', lock_owner = '', lease_until = NULL, last_updated_at = ?
WHERE id = ? AND status = 'RUNNING' AND lease_until IS NOT NULL AND lease_until < ?
`

const queryPurgeDay = `
DELETE FROM future_executions
WHERE date_key = ? AND status IN ('PENDING', 'CANCELLED')
`

const queryInsertPast = `
INSERT INTO past_executions (id, execution_id, agent_id, project_id, scheduled_at, started_at, ended_at, duration_ms, result_status, error_message, response_summary, attempt, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const querySelectPast = `
SELECT id, execution_id, agent_id, project_id, scheduled_at, started_at, ended_at,
       duration_ms, result_status, error_message, response_summary, attempt, created_at
FROM past_executions
`
