// Package api exposes the management surface of the scheduling engine over
// HTTP: schedule CRUD, execution inspection and cancellation, manual agent
// triggering, the execution archive, tool invocation and pending approvals.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aatumaykin/goclaw/internal/approval"
	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/policy"
	"github.com/aatumaykin/goclaw/internal/tools"
)

// Pagination defaults and limits for list endpoints.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store is the persistence surface the API needs.
type Store interface {
	CreateSchedule(ctx context.Context, sched domain.AgentSchedule) error
	GetSchedule(ctx context.Context, id string) (domain.AgentSchedule, error)
	ListSchedules(ctx context.Context) ([]domain.AgentSchedule, error)
	UpdateSchedule(ctx context.Context, sched domain.AgentSchedule) error
	DeleteSchedule(ctx context.Context, id string) error
	LastScheduledAt(ctx context.Context, scheduleID string) (*time.Time, error)
	GetExecution(ctx context.Context, id string) (domain.FutureExecution, error)
	ListExecutions(ctx context.Context, agentID, dateKey string, status domain.ExecStatus) ([]domain.FutureExecution, error)
	Cancel(ctx context.Context, id string) error
	ListPastByAgent(ctx context.Context, agentID string, limit, offset int) ([]domain.PastExecution, error)
	ListPastByProject(ctx context.Context, projectID string, limit, offset int) ([]domain.PastExecution, error)
}

// Trigger starts executions outside the regular materialization cycle.
type Trigger interface {
	TriggerNow(ctx context.Context, agentID, projectID string) (domain.FutureExecution, error)
	MaterializeImmediate(ctx context.Context, sched domain.AgentSchedule) (domain.FutureExecution, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr          string
	InvokeTimeout time.Duration // per manual tool invocation
}

// Server is the HTTP management API.
type Server struct {
	store     Store
	trigger   Trigger
	registry  *tools.Registry
	gate      *tools.Gate
	approvals *approval.Broker
	policies  *policy.Set
	metrics   http.Handler
	logger    *logger.Logger
	cfg       Config

	httpServer *http.Server
}

// NewServer assembles the API server. metricsHandler may be nil when metrics
// are disabled.
func NewServer(cfg Config, store Store, trigger Trigger, registry *tools.Registry, gate *tools.Gate, approvals *approval.Broker, policies *policy.Set, metricsHandler http.Handler, log *logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = 60 * time.Second
	}

	s := &Server{
		store:     store,
		trigger:   trigger,
		registry:  registry,
		gate:      gate,
		approvals: approvals,
		policies:  policies,
		metrics:   metricsHandler,
		logger:    log,
		cfg:       cfg,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	{
		api.POST("/schedules", s.createSchedule)
		api.GET("/schedules", s.listSchedules)
		api.GET("/schedules/:id", s.getSchedule)
		api.PUT("/schedules/:id", s.updateSchedule)
		api.DELETE("/schedules/:id", s.deleteSchedule)

		api.GET("/executions", s.listExecutions)
		api.GET("/executions/:id", s.getExecution)
		api.POST("/executions/:id/cancel", s.cancelExecution)

		api.POST("/agents/:id/trigger", s.triggerAgent)

		api.GET("/history", s.listHistory)

		api.GET("/tools", s.listTools)
		api.POST("/tools/:name/invoke", s.invokeTool)

		api.GET("/approvals", s.listApprovals)
		api.POST("/approvals/:id/respond", s.respondApproval)
	}

	return r
}

// Start begins serving in the background. The returned channel delivers the
// terminal server error, if any.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening",
			logger.Field{Key: "addr", Value: s.cfg.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			logger.Field{Key: "method", Value: c.Request.Method},
			logger.Field{Key: "path", Value: c.Request.URL.Path},
			logger.Field{Key: "status", Value: c.Writer.Status()},
			logger.Field{Key: "duration", Value: time.Since(start).String()})
	}
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
