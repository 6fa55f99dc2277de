// Package approval implements the human-in-the-loop gate for tool calls
// whose policy resolves to REQUIRE_APPROVAL. A run suspends on a pending
// request until an operator responds or the wait times out; timeout is
// treated as denial.
package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
)

// Decision is the outcome of one approval request.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// Request is a pending approval visible to operators.
type Request struct {
	ID           string               `json:"id"`
	ExecutionID  string               `json:"executionId"`
	AgentID      string               `json:"agentId"`
	ToolName     string               `json:"toolName"`
	Args         string               `json:"args"`
	RiskProfiles []domain.RiskProfile `json:"riskProfiles"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// pending pairs a request with its response channel. The channel is
// buffered so Respond never blocks on a waiter that already gave up.
type pending struct {
	request Request
	done    chan Decision
}

// Broker tracks in-flight approval requests.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*pending
	logger  *logger.Logger
	clock   func() time.Time
}

// NewBroker creates an approval broker.
func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		pending: make(map[string]*pending),
		logger:  log,
		clock:   time.Now,
	}
}

// Create registers a new approval request and returns it.
func (b *Broker) Create(executionID, agentID, toolName, args string, profiles []domain.RiskProfile) Request {
	req := Request{
		ID:           uuid.NewString(),
		ExecutionID:  executionID,
		AgentID:      agentID,
		ToolName:     toolName,
		Args:         args,
		RiskProfiles: profiles,
		CreatedAt:    b.clock(),
	}

	b.mu.Lock()
	b.pending[req.ID] = &pending{
		request: req,
		done:    make(chan Decision, 1),
	}
	b.mu.Unlock()

	b.logger.Info("approval requested",
		logger.Field{Key: "approval_id", Value: req.ID},
		logger.Field{Key: "execution_id", Value: executionID},
		logger.Field{Key: "tool", Value: toolName})

	return req
}

// Wait blocks until the request is answered, the timeout passes, or ctx is
// cancelled. Timeout and cancellation both surface as denial so the run
// can report a tool error instead of hanging.
func (b *Broker) Wait(ctx context.Context, requestID string, timeout time.Duration) Decision {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	b.mu.Unlock()
	if !ok {
		return Decision{Approved: false, Reason: "approval request not found"}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var decision Decision
	select {
	case decision = <-p.done:
	case <-timer.C:
		decision = Decision{Approved: false, Reason: fmt.Sprintf("approval timed out after %s", timeout), TimedOut: true}
	case <-ctx.Done():
		decision = Decision{Approved: false, Reason: "run cancelled while awaiting approval"}
	}

	b.mu.Lock()
	delete(b.pending, requestID)
	b.mu.Unlock()

	return decision
}

// Respond answers a pending request. Responding to an unknown or already
// answered request is an error.
func (b *Broker) Respond(requestID string, approved bool, reason string) error {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("approval request not found: %s", requestID)
	}

	select {
	case p.done <- Decision{Approved: approved, Reason: reason}:
	default:
		return fmt.Errorf("approval request already answered: %s", requestID)
	}

	b.logger.Info("approval answered",
		logger.Field{Key: "approval_id", Value: requestID},
		logger.Field{Key: "approved", Value: approved})

	return nil
}

// List returns the pending requests ordered by creation time.
func (b *Broker) List() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	requests := make([]Request, 0, len(b.pending))
	for _, p := range b.pending {
		requests = append(requests, p.request)
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests
}
