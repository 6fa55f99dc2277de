// Package config provides configuration loading and validation for the
// scheduling engine. It supports TOML configuration files with environment
// variable expansion, default values, and validation.
//
// Configuration structure:
//   - [workspace]: Agent workspace directory
//   - [store]: SQLite database location
//   - [logging]: Logging level, format, and output
//   - [policies]: Tool policy directory
//   - [agent]: Model and run loop behavior
//   - [llm]: LLM provider configuration
//   - [tools]: Tool configurations (shell, fetch)
//   - [dispatcher]: Tick, lease, and retry settings
//   - [workers]: Worker pool sizing
//   - [api]: HTTP management API
//   - [metrics]: Prometheus metrics
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: api_key = "${OPENAI_API_KEY}"
package config

// Config represents the main application configuration.
type Config struct {
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Store      StoreConfig      `toml:"store"`
	Logging    LoggingConfig    `toml:"logging"`
	Policies   PoliciesConfig   `toml:"policies"`
	Agent      AgentConfig      `toml:"agent"`
	LLM        LLMConfig        `toml:"llm"`
	Tools      ToolsConfig      `toml:"tools"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Workers    WorkersConfig    `toml:"workers"`
	API        APIConfig        `toml:"api"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// WorkspaceConfig locates the directory agents may read and write.
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// StoreConfig locates the SQLite database file.
type StoreConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// PoliciesConfig locates the per-agent tool policy files.
type PoliciesConfig struct {
	Dir string `toml:"dir"`
}

// AgentConfig controls the model and the bounded tool-calling loop.
type AgentConfig struct {
	Provider               string  `toml:"provider"`
	Model                  string  `toml:"model"`
	MaxTokens              int     `toml:"max_tokens"`
	MaxToolIterations      int     `toml:"max_tool_iterations"`
	Temperature            float64 `toml:"temperature"`
	ToolTimeoutSeconds     int     `toml:"tool_timeout_seconds"`
	ApprovalTimeoutSeconds int     `toml:"approval_timeout_seconds"`
	SystemPrompt           string  `toml:"system_prompt"`
}

// LLMConfig holds provider credentials and transport settings.
type LLMConfig struct {
	OpenAI OpenAIConfig `toml:"openai"`
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxRetries        int    `toml:"max_retries"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// ToolsConfig groups per-tool settings.
type ToolsConfig struct {
	Shell ShellToolConfig `toml:"shell"`
	Fetch FetchToolConfig `toml:"fetch"`
}

// ShellToolConfig configures the shell execution tool.
type ShellToolConfig struct {
	Enabled         bool     `toml:"enabled"`
	AllowedCommands []string `toml:"allowed_commands"`
	DenyCommands    []string `toml:"deny_commands"`
	WorkingDir      string   `toml:"working_dir"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// FetchToolConfig configures the HTTP fetch tool.
type FetchToolConfig struct {
	Enabled         bool   `toml:"enabled"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxResponseSize int64  `toml:"max_response_size"`
	UserAgent       string `toml:"user_agent"`
}

// DispatcherConfig controls materialization, claiming, and retries.
type DispatcherConfig struct {
	TickIntervalSeconds     int `toml:"tick_interval_seconds"`
	ClaimLimit              int `toml:"claim_limit"`
	LeaseSeconds            int `toml:"lease_seconds"`
	HeartbeatSeconds        int `toml:"heartbeat_seconds"`
	MaxAttempts             int `toml:"max_attempts"`
	MaterializeHorizonHours int `toml:"materialize_horizon_hours"`
}

// WorkersConfig sizes the execution worker pool.
type WorkersConfig struct {
	PoolSize  int `toml:"pool_size"`
	QueueSize int `toml:"queue_size"`
}

// APIConfig controls the HTTP management API.
type APIConfig struct {
	Enabled              bool   `toml:"enabled"`
	Addr                 string `toml:"addr"`
	InvokeTimeoutSeconds int    `toml:"invoke_timeout_seconds"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}
