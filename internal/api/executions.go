package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/store/sqlite"
)

func (s *Server) listExecutions(c *gin.Context) {
	agentID := c.Query("agentId")
	dateKey := c.Query("dateKey")
	status := domain.ExecStatus(c.Query("status"))

	executions, err := s.store.ListExecutions(c.Request.Context(), agentID, dateKey, status)
	if err != nil {
		s.logger.Error("failed to list executions", err)
		abortError(c, http.StatusInternalServerError, "failed to list executions")
		return
	}
	c.JSON(http.StatusOK, ListExecutionsResponse{Executions: executions})
}

func (s *Server) getExecution(c *gin.Context) {
	exec, err := s.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			abortError(c, http.StatusNotFound, "execution not found")
			return
		}
		s.logger.Error("failed to get execution", err)
		abortError(c, http.StatusInternalServerError, "failed to get execution")
		return
	}
	c.JSON(http.StatusOK, exec)
}

// cancelExecution cancels a PENDING execution. A RUNNING execution cannot be
// cancelled from the outside and yields 409; terminal executions yield 409
// as well since their state can no longer change.
func (s *Server) cancelExecution(c *gin.Context) {
	id := c.Param("id")
	err := s.store.Cancel(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, sqlite.ErrExecutionRunning):
		abortError(c, http.StatusConflict, "execution is running and cannot be cancelled")
	case errors.Is(err, sqlite.ErrAlreadyTerminal):
		abortError(c, http.StatusConflict, "execution already finished")
	case errors.Is(err, sqlite.ErrNotFound):
		abortError(c, http.StatusNotFound, "execution not found")
	default:
		s.logger.Error("failed to cancel execution", err,
			logger.Field{Key: "execution_id", Value: id})
		abortError(c, http.StatusInternalServerError, "failed to cancel execution")
	}
}

// triggerAgent inserts an ad hoc immediate execution for the agent.
func (s *Server) triggerAgent(c *gin.Context) {
	agentID := c.Param("id")
	if agentID == "" {
		abortError(c, http.StatusBadRequest, "agent id is required")
		return
	}

	var req TriggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
	}

	exec, err := s.trigger.TriggerNow(c.Request.Context(), agentID, req.ProjectID)
	if err != nil {
		s.logger.Error("failed to trigger agent", err,
			logger.Field{Key: "agent_id", Value: agentID})
		abortError(c, http.StatusInternalServerError, "failed to trigger agent")
		return
	}
	c.JSON(http.StatusAccepted, exec)
}

// listHistory reads the append-only archive by agent or project, newest
// first.
func (s *Server) listHistory(c *gin.Context) {
	agentID := c.Query("agentId")
	projectID := c.Query("projectId")
	if (agentID == "") == (projectID == "") {
		abortError(c, http.StatusBadRequest, "exactly one of agentId or projectId is required")
		return
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	var history []domain.PastExecution
	if agentID != "" {
		history, err = s.store.ListPastByAgent(c.Request.Context(), agentID, limit, offset)
	} else {
		history, err = s.store.ListPastByProject(c.Request.Context(), projectID, limit, offset)
	}
	if err != nil {
		s.logger.Error("failed to list history", err)
		abortError(c, http.StatusInternalServerError, "failed to list history")
		return
	}
	c.JSON(http.StatusOK, ListHistoryResponse{History: history})
}

// parsePagination extracts and bounds limit/offset query parameters.
func parsePagination(c *gin.Context) (limit, offset int, err error) {
	limit = DefaultLimit

	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
		if limit > MaxLimit {
			return 0, 0, errors.New("limit exceeds maximum of " + strconv.Itoa(MaxLimit))
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}

	return limit, offset, nil
}
