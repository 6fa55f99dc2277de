package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/goclaw/internal/domain"
)

// mockTool is a minimal Tool implementation for registry tests.
type mockTool struct {
	name        string
	profiles    []domain.RiskProfile
	executeFunc func(ctx context.Context, args string, stream Stream) (Result, error)
}

func (m *mockTool) Name() string                { return m.name }
func (m *mockTool) Description() string         { return "mock tool" }
func (m *mockTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (m *mockTool) OutputSchema() map[string]any {
	return map[string]any{"type": "object"}
}
func (m *mockTool) RiskProfiles() []domain.RiskProfile { return m.profiles }
func (m *mockTool) Execute(ctx context.Context, args string, stream Stream) (Result, error) {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, args, stream)
	}
	return Ok("mock result"), nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&mockTool{name: "test_tool"}))

	tool, ok := registry.Resolve("test_tool")
	require.True(t, ok)
	assert.Equal(t, "test_tool", tool.Name())

	_, ok = registry.Resolve("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&mockTool{name: ""}))
}

func TestRegistry_ListSorted(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&mockTool{name: "zeta"}))
	require.NoError(t, registry.Register(&mockTool{name: "alpha"}))
	require.NoError(t, registry.Register(&mockTool{name: "mid"}))

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name())
	assert.Equal(t, "mid", list[1].Name())
	assert.Equal(t, "zeta", list[2].Name())
}

func TestRegistry_Descriptors(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&mockTool{
		name:     "test_tool",
		profiles: []domain.RiskProfile{domain.RiskReadOnly},
	}))

	descriptors := registry.Descriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, "test_tool", descriptors[0].Name)
	assert.Equal(t, "mock tool", descriptors[0].Description)
	assert.Equal(t, []domain.RiskProfile{domain.RiskReadOnly}, descriptors[0].RiskProfiles)
}

func TestRegistry_Execute(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&mockTool{name: "ok_tool"}))
	require.NoError(t, registry.Register(&mockTool{
		name: "err_tool",
		executeFunc: func(context.Context, string, Stream) (Result, error) {
			return Result{}, errors.New("boom")
		},
	}))

	result := registry.Execute(context.Background(), "ok_tool", "{}", nil, time.Second)
	assert.True(t, result.Success())
	assert.Equal(t, "mock result", result.Output)

	result = registry.Execute(context.Background(), "err_tool", "{}", nil, time.Second)
	assert.False(t, result.Success())
	assert.Equal(t, "boom", result.Error)

	result = registry.Execute(context.Background(), "missing", "{}", nil, time.Second)
	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "tool not found")
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&mockTool{
		name: "slow_tool",
		executeFunc: func(ctx context.Context, _ string, _ Stream) (Result, error) {
			<-ctx.Done()
			return Ok("too late"), nil
		},
	}))

	result := registry.Execute(context.Background(), "slow_tool", "{}", nil, 20*time.Millisecond)
	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "timed out")
}

func TestRegistry_ExecuteCancelled(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&mockTool{
		name: "blocked_tool",
		executeFunc: func(ctx context.Context, _ string, _ Stream) (Result, error) {
			<-ctx.Done()
			return Ok(""), nil
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := registry.Execute(ctx, "blocked_tool", "{}", nil, time.Minute)
	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "cancelled")
}

func TestRegistry_ExecutePanicRecovered(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&mockTool{
		name: "panic_tool",
		executeFunc: func(context.Context, string, Stream) (Result, error) {
			panic("unexpected state")
		},
	}))

	result := registry.Execute(context.Background(), "panic_tool", "{}", nil, time.Second)
	assert.False(t, result.Success())
	assert.Contains(t, result.Error, "tool panicked")
}
