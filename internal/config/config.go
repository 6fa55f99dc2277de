package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML configuration file, applying defaults and
// expanding environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate checks the configuration and returns every problem found, so the
// operator can fix all of them in one pass.
func (c *Config) Validate() []error {
	var errs []error

	if c.Workspace.Path == "" {
		errs = append(errs, fmt.Errorf("workspace.path is required"))
	} else if err := validatePath(c.Workspace.Path, "workspace.path"); err != nil {
		errs = append(errs, err)
	}

	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}

	switch c.Agent.Provider {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.openai.api_key is required when provider is 'openai'"))
		} else if err := validateAPIKey(c.LLM.OpenAI.APIKey, "llm.openai.api_key"); err != nil {
			errs = append(errs, err)
		}
	case "mock":
		// No credentials needed.
	default:
		errs = append(errs, fmt.Errorf("invalid agent.provider: %s (expected: openai, mock)", c.Agent.Provider))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}
	if c.Logging.Output == "" {
		errs = append(errs, fmt.Errorf("logging.output is required"))
	}

	if c.Tools.Shell.Enabled {
		if len(c.Tools.Shell.AllowedCommands) == 0 {
			errs = append(errs, fmt.Errorf("tools.shell.allowed_commands cannot be empty when shell tool is enabled"))
		}
		for _, cmd := range c.Tools.Shell.AllowedCommands {
			if cmd == "" {
				errs = append(errs, fmt.Errorf("tools.shell.allowed_commands contains empty command"))
			}
		}
		if c.Tools.Shell.WorkingDir != "" {
			if err := validatePath(c.Tools.Shell.WorkingDir, "tools.shell.working_dir"); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if c.Dispatcher.LeaseSeconds > 0 && c.Dispatcher.HeartbeatSeconds >= c.Dispatcher.LeaseSeconds {
		errs = append(errs, fmt.Errorf("dispatcher.heartbeat_seconds must be less than dispatcher.lease_seconds"))
	}
	if c.Dispatcher.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.max_attempts must be >= 1"))
	}

	return errs
}

func validateAPIKey(key, fieldName string) error {
	if len(key) < 10 {
		return fmt.Errorf("%s is too short (minimum 10 characters, got %d)", fieldName, len(key))
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if strings.HasPrefix(path, "~") {
		return nil
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Workspace.Path == "" {
		c.Workspace.Path = "~/.goclaw"
	}
	if c.Store.Path == "" {
		c.Store.Path = "~/.goclaw/goclaw.db"
	}
	if c.Policies.Dir == "" {
		c.Policies.Dir = "~/.goclaw/policies"
	}

	if c.Agent.Provider == "" {
		c.Agent.Provider = "openai"
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "gpt-4o-mini"
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 4096
	}
	if c.Agent.MaxToolIterations == 0 {
		c.Agent.MaxToolIterations = 10
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.7
	}
	if c.Agent.ToolTimeoutSeconds == 0 {
		c.Agent.ToolTimeoutSeconds = 60
	}
	if c.Agent.ApprovalTimeoutSeconds == 0 {
		c.Agent.ApprovalTimeoutSeconds = 300
	}

	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.OpenAI.TimeoutSeconds == 0 {
		c.LLM.OpenAI.TimeoutSeconds = 60
	}
	if c.LLM.OpenAI.MaxRetries == 0 {
		c.LLM.OpenAI.MaxRetries = 3
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Tools.Shell.TimeoutSeconds == 0 {
		c.Tools.Shell.TimeoutSeconds = 30
	}
	if c.Tools.Fetch.TimeoutSeconds == 0 {
		c.Tools.Fetch.TimeoutSeconds = 30
	}

	if c.Dispatcher.TickIntervalSeconds == 0 {
		c.Dispatcher.TickIntervalSeconds = 15
	}
	if c.Dispatcher.ClaimLimit == 0 {
		c.Dispatcher.ClaimLimit = 32
	}
	if c.Dispatcher.LeaseSeconds == 0 {
		c.Dispatcher.LeaseSeconds = 90
	}
	if c.Dispatcher.HeartbeatSeconds == 0 {
		c.Dispatcher.HeartbeatSeconds = 30
	}
	if c.Dispatcher.MaxAttempts == 0 {
		c.Dispatcher.MaxAttempts = 3
	}
	if c.Dispatcher.MaterializeHorizonHours == 0 {
		c.Dispatcher.MaterializeHorizonHours = 24
	}

	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 64
	}

	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.API.InvokeTimeoutSeconds == 0 {
		c.API.InvokeTimeoutSeconds = 60
	}
}

func expandEnvVars(c *Config) {
	c.LLM.OpenAI.APIKey = expandEnv(c.LLM.OpenAI.APIKey)

	c.Workspace.Path = expandHome(expandEnv(c.Workspace.Path))
	c.Store.Path = expandHome(expandEnv(c.Store.Path))
	c.Policies.Dir = expandHome(expandEnv(c.Policies.Dir))
	c.Tools.Shell.WorkingDir = expandHome(expandEnv(c.Tools.Shell.WorkingDir))
}

// expandEnv resolves a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}
	return os.Getenv(content)
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
