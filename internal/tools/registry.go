package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry manages the collection of available tools. It provides
// thread-safe operations for registering and resolving tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. A tool with the same name replaces
// the previous registration.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Resolve retrieves a tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Descriptors returns the external descriptions of all registered tools.
func (r *Registry) Descriptors() []Descriptor {
	list := r.List()
	descriptors := make([]Descriptor, 0, len(list))
	for _, tool := range list {
		descriptors = append(descriptors, Descriptor{
			Name:         tool.Name(),
			Description:  tool.Description(),
			InputSchema:  tool.InputSchema(),
			OutputSchema: tool.OutputSchema(),
			RiskProfiles: tool.RiskProfiles(),
		})
	}
	return descriptors
}

// Execute runs a registered tool under a timeout. The tool runs in its own
// goroutine; on expiry the context is cancelled and a timeout failure is
// returned, but the goroutine is never preempted mid-write.
func (r *Registry) Execute(ctx context.Context, name, args string, stream Stream, timeout time.Duration) Result {
	tool, ok := r.Resolve(name)
	if !ok {
		return Fail(fmt.Sprintf("tool not found: %s", name))
	}
	if stream == nil {
		stream = NopStream{}
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{result: Fail(fmt.Sprintf("tool panicked: %v", rec))}
			}
		}()
		result, err := tool.Execute(execCtx, args, stream)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Fail(out.err.Error())
		}
		return out.result
	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			return Fail(fmt.Sprintf("tool %s timed out after %s", name, timeout))
		}
		return Fail(fmt.Sprintf("tool %s cancelled: %v", name, execCtx.Err()))
	}
}
