package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/planner"
	"github.com/aatumaykin/goclaw/internal/store/sqlite"
)

func (s *Server) createSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	now := time.Now().UTC()
	sched := domain.AgentSchedule{
		ID:              uuid.NewString(),
		AgentID:         req.AgentID,
		Enabled:         true,
		Timezone:        req.Timezone,
		ScheduleType:    domain.ScheduleType(req.ScheduleType),
		CronExpr:        req.CronExpr,
		TimesOfDay:      req.TimesOfDay,
		IntervalMinutes: req.IntervalMinutes,
		Scope:           domain.ScheduleScope(req.Scope),
		ProjectID:       req.ProjectID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}
	if sched.Scope == "" {
		sched.Scope = domain.ScopeGlobal
	}

	if err := validateSchedule(sched); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateSchedule(c.Request.Context(), sched); err != nil {
		s.logger.Error("failed to create schedule", err)
		abortError(c, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	// IMMEDIATE schedules fire exactly once, right now.
	if sched.ScheduleType == domain.ScheduleTypeImmediate {
		if _, err := s.trigger.MaterializeImmediate(c.Request.Context(), sched); err != nil {
			s.logger.Error("failed to materialize immediate schedule", err,
				logger.Field{Key: "schedule_id", Value: sched.ID})
			abortError(c, http.StatusInternalServerError, "failed to materialize execution")
			return
		}
	}

	c.JSON(http.StatusCreated, s.scheduleResponse(c, sched))
}

func (s *Server) listSchedules(c *gin.Context) {
	schedules, err := s.store.ListSchedules(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list schedules", err)
		abortError(c, http.StatusInternalServerError, "failed to list schedules")
		return
	}

	resp := ListSchedulesResponse{Schedules: make([]ScheduleResponse, len(schedules))}
	for i, sched := range schedules {
		resp.Schedules[i] = s.scheduleResponse(c, sched)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSchedule(c *gin.Context) {
	sched, err := s.store.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			abortError(c, http.StatusNotFound, "schedule not found")
			return
		}
		s.logger.Error("failed to get schedule", err)
		abortError(c, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	c.JSON(http.StatusOK, s.scheduleResponse(c, sched))
}

func (s *Server) updateSchedule(c *gin.Context) {
	existing, err := s.store.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			abortError(c, http.StatusNotFound, "schedule not found")
			return
		}
		s.logger.Error("failed to get schedule", err)
		abortError(c, http.StatusInternalServerError, "failed to get schedule")
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	updated := applyScheduleRequest(existing, req)
	if err := validateSchedule(updated); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateSchedule(c.Request.Context(), updated); err != nil {
		s.logger.Error("failed to update schedule", err)
		abortError(c, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	// Mirror what the store just wrote: version bump and a fresh UpdatedAt.
	updated.Version = existing.Version + 1
	updated.UpdatedAt = time.Now().UTC()
	c.JSON(http.StatusOK, s.scheduleResponse(c, updated))
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.store.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			abortError(c, http.StatusNotFound, "schedule not found")
			return
		}
		s.logger.Error("failed to delete schedule", err)
		abortError(c, http.StatusInternalServerError, "failed to delete schedule")
		return
	}
	c.Status(http.StatusNoContent)
}

// scheduleResponse decorates a schedule with its next computed fire time.
func (s *Server) scheduleResponse(c *gin.Context, sched domain.AgentSchedule) ScheduleResponse {
	resp := ScheduleResponse{AgentSchedule: sched}
	if !sched.Enabled {
		return resp
	}

	lastFired, err := s.store.LastScheduledAt(c.Request.Context(), sched.ID)
	if err != nil {
		lastFired = nil
	}
	if next, ok := planner.NextFireTime(sched, time.Now().UTC(), lastFired); ok {
		next = next.UTC()
		resp.NextExecutionAt = &next
	}
	return resp
}

// applyScheduleRequest overlays request fields onto an existing schedule.
// Zero-valued trigger fields are only meaningful for the requested type, so
// the full trigger spec is replaced when scheduleType is present.
func applyScheduleRequest(sched domain.AgentSchedule, req ScheduleRequest) domain.AgentSchedule {
	if req.AgentID != "" {
		sched.AgentID = req.AgentID
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}
	if req.Timezone != "" {
		sched.Timezone = req.Timezone
	}
	if req.ScheduleType != "" {
		sched.ScheduleType = domain.ScheduleType(req.ScheduleType)
		sched.CronExpr = req.CronExpr
		sched.TimesOfDay = req.TimesOfDay
		sched.IntervalMinutes = req.IntervalMinutes
	}
	if req.Scope != "" {
		sched.Scope = domain.ScheduleScope(req.Scope)
	}
	if req.ProjectID != "" {
		sched.ProjectID = req.ProjectID
	}
	return sched
}

// validateSchedule runs domain validation plus cron syntax checking, so a
// schedule that parses here is guaranteed plannable by the dispatcher.
func validateSchedule(sched domain.AgentSchedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	if sched.ScheduleType == domain.ScheduleTypeCron {
		if err := planner.ValidateCron(sched.CronExpr); err != nil {
			return fmt.Errorf("invalid cronExpr: %w", err)
		}
	}
	return nil
}
