package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/goclaw/internal/approval"
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/policy"
	"github.com/aatumaykin/goclaw/internal/store/sqlite"
	"github.com/aatumaykin/goclaw/internal/tools"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	schedules  map[string]domain.AgentSchedule
	executions map[string]domain.FutureExecution
	past       []domain.PastExecution

	cancelErr error
}

func newMemStore() *memStore {
	return &memStore{
		schedules:  make(map[string]domain.AgentSchedule),
		executions: make(map[string]domain.FutureExecution),
	}
}

func (m *memStore) CreateSchedule(_ context.Context, sched domain.AgentSchedule) error {
	m.schedules[sched.ID] = sched
	return nil
}

func (m *memStore) GetSchedule(_ context.Context, id string) (domain.AgentSchedule, error) {
	sched, ok := m.schedules[id]
	if !ok {
		return domain.AgentSchedule{}, sqlite.ErrNotFound
	}
	return sched, nil
}

func (m *memStore) ListSchedules(context.Context) ([]domain.AgentSchedule, error) {
	out := make([]domain.AgentSchedule, 0, len(m.schedules))
	for _, sched := range m.schedules {
		out = append(out, sched)
	}
	return out, nil
}

func (m *memStore) UpdateSchedule(_ context.Context, sched domain.AgentSchedule) error {
	if _, ok := m.schedules[sched.ID]; !ok {
		return sqlite.ErrNotFound
	}
	m.schedules[sched.ID] = sched
	return nil
}

func (m *memStore) DeleteSchedule(_ context.Context, id string) error {
	if _, ok := m.schedules[id]; !ok {
		return sqlite.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *memStore) LastScheduledAt(context.Context, string) (*time.Time, error) {
	return nil, nil
}

func (m *memStore) GetExecution(_ context.Context, id string) (domain.FutureExecution, error) {
	exec, ok := m.executions[id]
	if !ok {
		return domain.FutureExecution{}, sqlite.ErrNotFound
	}
	return exec, nil
}

func (m *memStore) ListExecutions(_ context.Context, agentID, dateKey string, status domain.ExecStatus) ([]domain.FutureExecution, error) {
	out := []domain.FutureExecution{}
	for _, exec := range m.executions {
		if agentID != "" && exec.AgentID != agentID {
			continue
		}
		if dateKey != "" && exec.DateKey != dateKey {
			continue
		}
		if status != "" && exec.Status != status {
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}

func (m *memStore) Cancel(_ context.Context, id string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	exec, ok := m.executions[id]
	if !ok {
		return sqlite.ErrNotFound
	}
	exec.Status = domain.ExecStatusCancelled
	m.executions[id] = exec
	return nil
}

func (m *memStore) ListPastByAgent(_ context.Context, agentID string, limit, offset int) ([]domain.PastExecution, error) {
	out := []domain.PastExecution{}
	for _, p := range m.past {
		if p.AgentID == agentID {
			out = append(out, p)
		}
	}
	return paginate(out, limit, offset), nil
}

func (m *memStore) ListPastByProject(_ context.Context, projectID string, limit, offset int) ([]domain.PastExecution, error) {
	out := []domain.PastExecution{}
	for _, p := range m.past {
		if p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return paginate(out, limit, offset), nil
}

func paginate(in []domain.PastExecution, limit, offset int) []domain.PastExecution {
	if offset >= len(in) {
		return []domain.PastExecution{}
	}
	in = in[offset:]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}

// memTrigger records trigger calls.
type memTrigger struct {
	triggered    []string
	materialized []string
}

func (m *memTrigger) TriggerNow(_ context.Context, agentID, projectID string) (domain.FutureExecution, error) {
	m.triggered = append(m.triggered, agentID)
	return domain.FutureExecution{
		ID:        "exec-" + agentID,
		AgentID:   agentID,
		ProjectID: projectID,
		Immediate: true,
		Status:    domain.ExecStatusPending,
	}, nil
}

func (m *memTrigger) MaterializeImmediate(_ context.Context, sched domain.AgentSchedule) (domain.FutureExecution, error) {
	m.materialized = append(m.materialized, sched.ID)
	return domain.FutureExecution{ID: "exec-" + sched.ID, ScheduleID: sched.ID, Immediate: true}, nil
}

type apiFixture struct {
	server    *Server
	store     *memStore
	trigger   *memTrigger
	approvals *approval.Broker
	policies  *policy.Set
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.NewSysTimeTool()))

	store := newMemStore()
	trigger := &memTrigger{}
	approvals := approval.NewBroker(log)
	policies := policy.NewSet(domain.AllowAll())

	server := NewServer(Config{InvokeTimeout: 5 * time.Second}, store, trigger,
		registry, tools.NewGate(registry, log), approvals, policies, nil, log)

	return &apiFixture{server: server, store: store, trigger: trigger, approvals: approvals, policies: policies}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSchedule(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/schedules", ScheduleRequest{
		AgentID:      "agent-1",
		ScheduleType: "CRON",
		CronExpr:     "0 9 * * 1-5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[ScheduleResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "agent-1", resp.AgentID)
	assert.True(t, resp.Enabled)
	assert.Equal(t, domain.ScopeGlobal, resp.Scope)
	assert.Equal(t, int64(1), resp.Version)
	require.NotNil(t, resp.NextExecutionAt)
	assert.Len(t, f.store.schedules, 1)
	assert.Empty(t, f.trigger.materialized)
}

func TestCreateSchedule_Validation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr string
	}{
		{
			name:    "missing agent id",
			req:     ScheduleRequest{ScheduleType: "CRON", CronExpr: "* * * * *"},
			wantErr: "agentId is required",
		},
		{
			name:    "bad cron expression",
			req:     ScheduleRequest{AgentID: "a", ScheduleType: "CRON", CronExpr: "not a cron"},
			wantErr: "invalid cronExpr",
		},
		{
			name:    "unknown type",
			req:     ScheduleRequest{AgentID: "a", ScheduleType: "WHENEVER"},
			wantErr: "unknown scheduleType",
		},
		{
			name:    "project scope without project",
			req:     ScheduleRequest{AgentID: "a", ScheduleType: "IMMEDIATE", Scope: "PROJECT"},
			wantErr: "projectId is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/schedules", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

func TestCreateSchedule_ImmediateMaterializes(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/schedules", ScheduleRequest{
		AgentID:      "agent-1",
		ScheduleType: "IMMEDIATE",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, f.trigger.materialized, 1)
}

func TestGetSchedule_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/schedules/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSchedule(t *testing.T) {
	f := newAPIFixture(t)
	staleUpdatedAt := time.Now().UTC().Add(-time.Hour)
	f.store.schedules["sched-1"] = domain.AgentSchedule{
		ID: "sched-1", AgentID: "agent-1", Enabled: true,
		ScheduleType: domain.ScheduleTypeCron, CronExpr: "0 9 * * *",
		Scope: domain.ScopeGlobal, Version: 1, UpdatedAt: staleUpdatedAt,
	}

	disabled := false
	rec := f.do(t, http.MethodPut, "/api/schedules/sched-1", ScheduleRequest{
		Enabled:         &disabled,
		ScheduleType:    "INTERVAL",
		IntervalMinutes: 15,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ScheduleResponse](t, rec)
	assert.False(t, resp.Enabled)
	assert.Equal(t, domain.ScheduleTypeInterval, resp.ScheduleType)
	assert.Equal(t, 15, resp.IntervalMinutes)
	// Switching the type replaces the whole trigger spec.
	assert.Empty(t, resp.CronExpr)
	assert.Equal(t, int64(2), resp.Version)
	assert.True(t, resp.UpdatedAt.After(staleUpdatedAt))
	assert.Nil(t, resp.NextExecutionAt)
}

func TestDeleteSchedule(t *testing.T) {
	f := newAPIFixture(t)
	f.store.schedules["sched-1"] = domain.AgentSchedule{ID: "sched-1", AgentID: "agent-1"}

	rec := f.do(t, http.MethodDelete, "/api/schedules/sched-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.store.schedules)

	rec = f.do(t, http.MethodDelete, "/api/schedules/sched-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListExecutions_Filters(t *testing.T) {
	f := newAPIFixture(t)
	f.store.executions["e1"] = domain.FutureExecution{ID: "e1", AgentID: "agent-1", DateKey: "2025-03-10", Status: domain.ExecStatusPending}
	f.store.executions["e2"] = domain.FutureExecution{ID: "e2", AgentID: "agent-2", DateKey: "2025-03-10", Status: domain.ExecStatusSuccess}

	rec := f.do(t, http.MethodGet, "/api/executions?agentId=agent-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListExecutionsResponse](t, rec)
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, "e1", resp.Executions[0].ID)

	rec = f.do(t, http.MethodGet, "/api/executions?status=SUCCESS", nil)
	resp = decode[ListExecutionsResponse](t, rec)
	require.Len(t, resp.Executions, 1)
	assert.Equal(t, "e2", resp.Executions[0].ID)
}

func TestCancelExecution(t *testing.T) {
	f := newAPIFixture(t)
	f.store.executions["e1"] = domain.FutureExecution{ID: "e1", Status: domain.ExecStatusPending}

	rec := f.do(t, http.MethodPost, "/api/executions/e1/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, domain.ExecStatusCancelled, f.store.executions["e1"].Status)
}

func TestCancelExecution_Conflicts(t *testing.T) {
	f := newAPIFixture(t)

	f.store.cancelErr = sqlite.ErrExecutionRunning
	rec := f.do(t, http.MethodPost, "/api/executions/e1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "running")

	f.store.cancelErr = sqlite.ErrAlreadyTerminal
	rec = f.do(t, http.MethodPost, "/api/executions/e1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "finished")

	f.store.cancelErr = sqlite.ErrNotFound
	rec = f.do(t, http.MethodPost, "/api/executions/e1/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerAgent(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/agents/agent-1/trigger", TriggerRequest{ProjectID: "proj-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	exec := decode[domain.FutureExecution](t, rec)
	assert.Equal(t, "agent-1", exec.AgentID)
	assert.Equal(t, "proj-1", exec.ProjectID)
	assert.True(t, exec.Immediate)
	assert.Equal(t, []string{"agent-1"}, f.trigger.triggered)
}

func TestListHistory(t *testing.T) {
	f := newAPIFixture(t)
	f.store.past = []domain.PastExecution{
		{ID: "p1", AgentID: "agent-1", ResultStatus: domain.ResultSuccess},
		{ID: "p2", AgentID: "agent-2", ProjectID: "proj-1", ResultStatus: domain.ResultFailed},
	}

	rec := f.do(t, http.MethodGet, "/api/history?agentId=agent-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ListHistoryResponse](t, rec)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "p1", resp.History[0].ID)

	rec = f.do(t, http.MethodGet, "/api/history?projectId=proj-1", nil)
	resp = decode[ListHistoryResponse](t, rec)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "p2", resp.History[0].ID)
}

func TestListHistory_RequiresExactlyOneScope(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/history", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/history?agentId=a&projectId=p", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "exactly one")
}

func TestListHistory_PaginationValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/history?agentId=a&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/history?agentId=a&limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "maximum")

	rec = f.do(t, http.MethodGet, "/api/history?agentId=a&offset=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTools(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sys_time")
}

func TestInvokeTool(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tools/sys_time/invoke", InvokeToolRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[InvokeToolResponse](t, rec)
	assert.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.Output)
}

func TestInvokeTool_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/tools/nope/invoke", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvokeTool_DeniedByPolicy(t *testing.T) {
	f := newAPIFixture(t)
	f.policies.SetAgent("restricted", domain.ToolPolicy{DenyList: []string{"*"}})

	rec := f.do(t, http.MethodPost, "/api/tools/sys_time/invoke", InvokeToolRequest{AgentID: "restricted"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "denied by policy")
}

func TestApprovals_ListAndRespond(t *testing.T) {
	f := newAPIFixture(t)
	req := f.approvals.Create("exec-1", "agent-1", "shell_exec", "{}", nil)

	rec := f.do(t, http.MethodGet, "/api/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), req.ID)

	rec = f.do(t, http.MethodPost, "/api/approvals/"+req.ID+"/respond", RespondApprovalRequest{Approved: true, Reason: "ok"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/approvals/unknown/respond", RespondApprovalRequest{Approved: false})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
