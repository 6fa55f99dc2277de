package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/tools"
)

func (s *Server) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.registry.Descriptors()})
}

// invokeTool runs a tool on behalf of an operator. The policy is still
// evaluated: DENY blocks the call, but REQUIRE_APPROVAL is satisfied by the
// request itself since the operator is the approver.
func (s *Server) invokeTool(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Resolve(name); !ok {
		abortError(c, http.StatusNotFound, "tool not found")
		return
	}

	var req InvokeToolRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
	}

	pol := s.policies.Default()
	if req.AgentID != "" {
		pol = s.policies.ForAgent(req.AgentID)
	}
	if s.gate.Authorize(pol, name) == domain.ApprovalDeny {
		abortError(c, http.StatusForbidden, "tool denied by policy")
		return
	}

	result := s.registry.Execute(c.Request.Context(), name, req.Args, tools.NopStream{}, s.cfg.InvokeTimeout)
	s.logger.Info("tool invoked manually",
		logger.Field{Key: "tool", Value: name},
		logger.Field{Key: "success", Value: result.Success()})

	c.JSON(http.StatusOK, InvokeToolResponse{Output: result.Output, Error: result.Error})
}

func (s *Server) listApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"approvals": s.approvals.List()})
}

// respondApproval resolves one pending approval request; the blocked run
// resumes with the decision.
func (s *Server) respondApproval(c *gin.Context) {
	var req RespondApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	id := c.Param("id")
	if err := s.approvals.Respond(id, req.Approved, req.Reason); err != nil {
		abortError(c, http.StatusNotFound, err.Error())
		return
	}

	s.logger.Info("approval resolved",
		logger.Field{Key: "request_id", Value: id},
		logger.Field{Key: "approved", Value: req.Approved})
	c.Status(http.StatusNoContent)
}
