// Package policy loads tool policies from YAML files. A directory holds
// one default.yaml plus optional per-agent files named <agent_id>.yaml;
// agents without their own file fall back to the default.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/goclaw/internal/domain"
)

// DefaultFileName is the policy file applied to agents without their own.
const DefaultFileName = "default.yaml"

// Set holds the loaded policies keyed by agent ID.
type Set struct {
	mu         sync.RWMutex
	defaultPol domain.ToolPolicy
	byAgent    map[string]domain.ToolPolicy
	sourceDir  string
}

// NewSet creates a Set with the given default policy and no per-agent
// overrides. Useful for tests and for running without a policy directory.
func NewSet(def domain.ToolPolicy) *Set {
	return &Set{
		defaultPol: def,
		byAgent:    make(map[string]domain.ToolPolicy),
	}
}

// Load reads all policy files from dir. A missing directory yields a Set
// with a deny-all default so a misconfigured path fails closed.
func Load(dir string) (*Set, error) {
	set := &Set{
		byAgent:   make(map[string]domain.ToolPolicy),
		sourceDir: dir,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to read policy directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		pol, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		if name == DefaultFileName || name == "default.yml" {
			set.defaultPol = pol
			continue
		}

		agentID := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		set.byAgent[agentID] = pol
	}

	return set, nil
}

// loadFile parses a single policy YAML file.
func loadFile(path string) (domain.ToolPolicy, error) {
	var pol domain.ToolPolicy

	data, err := os.ReadFile(path)
	if err != nil {
		return pol, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &pol); err != nil {
		return pol, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	for tool, mode := range pol.ApprovalOverrides {
		switch mode {
		case domain.ApprovalAutoApprove, domain.ApprovalRequireApproval, domain.ApprovalDeny:
		default:
			return pol, fmt.Errorf("policy file %s: invalid approval mode %q for tool %q", path, mode, tool)
		}
	}

	return pol, nil
}

// ForAgent returns the policy for an agent, falling back to the default
// when the agent has no dedicated policy file.
func (s *Set) ForAgent(agentID string) domain.ToolPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pol, ok := s.byAgent[agentID]; ok {
		return pol
	}
	return s.defaultPol
}

// SetAgent installs or replaces the policy for one agent.
func (s *Set) SetAgent(agentID string, pol domain.ToolPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAgent[agentID] = pol
}

// Default returns the fallback policy.
func (s *Set) Default() domain.ToolPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultPol
}
