package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return NewBroker(log)
}

func TestBroker_CreateAndList(t *testing.T) {
	b := newTestBroker(t)

	first := b.Create("exec-1", "agent-1", "shell_exec", `{"command":"ls"}`, []domain.RiskProfile{domain.RiskExecShell})
	second := b.Create("exec-2", "agent-1", "write_file", `{"path":"out.txt"}`, nil)

	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)

	pending := b.List()
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, "shell_exec", pending[0].ToolName)
}

func TestBroker_RespondResolvesWait(t *testing.T) {
	b := newTestBroker(t)
	req := b.Create("exec-1", "agent-1", "shell_exec", "{}", nil)

	decisionCh := make(chan Decision, 1)
	go func() {
		decisionCh <- b.Wait(context.Background(), req.ID, 5*time.Second)
	}()

	// Give the waiter a moment to park on the channel.
	require.Eventually(t, func() bool { return len(b.List()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Respond(req.ID, true, "looks safe"))

	select {
	case decision := <-decisionCh:
		assert.True(t, decision.Approved)
		assert.Equal(t, "looks safe", decision.Reason)
		assert.False(t, decision.TimedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not receive decision")
	}

	assert.Empty(t, b.List())
}

func TestBroker_WaitTimeout(t *testing.T) {
	b := newTestBroker(t)
	req := b.Create("exec-1", "agent-1", "shell_exec", "{}", nil)

	decision := b.Wait(context.Background(), req.ID, 20*time.Millisecond)
	assert.False(t, decision.Approved)
	assert.True(t, decision.TimedOut)
	assert.Contains(t, decision.Reason, "timed out")

	// The request is gone; a late response errors.
	assert.Error(t, b.Respond(req.ID, true, ""))
}

func TestBroker_WaitContextCancelled(t *testing.T) {
	b := newTestBroker(t)
	req := b.Create("exec-1", "agent-1", "shell_exec", "{}", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision := b.Wait(ctx, req.ID, time.Minute)
	assert.False(t, decision.Approved)
	assert.False(t, decision.TimedOut)
	assert.Contains(t, decision.Reason, "cancelled")
}

func TestBroker_WaitUnknownRequest(t *testing.T) {
	b := newTestBroker(t)

	decision := b.Wait(context.Background(), "missing", time.Minute)
	assert.False(t, decision.Approved)
	assert.Contains(t, decision.Reason, "not found")
}

func TestBroker_RespondErrors(t *testing.T) {
	b := newTestBroker(t)

	err := b.Respond("missing", true, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	req := b.Create("exec-1", "agent-1", "shell_exec", "{}", nil)
	require.NoError(t, b.Respond(req.ID, false, "too risky"))

	// The buffered decision was never consumed, so a second answer fails.
	err = b.Respond(req.ID, true, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already answered")
}
