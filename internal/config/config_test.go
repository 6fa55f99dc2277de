package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[workspace]
path = "/tmp/goclaw-test"

[store]
path = "/tmp/goclaw-test/goclaw.db"

[agent]
provider = "mock"
model = "mock-model"

[dispatcher]
tick_interval_seconds = 5
max_attempts = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/goclaw-test", cfg.Workspace.Path)
	assert.Equal(t, "mock", cfg.Agent.Provider)
	assert.Equal(t, "mock-model", cfg.Agent.Model)
	assert.Equal(t, 5, cfg.Dispatcher.TickIntervalSeconds)
	assert.Equal(t, 2, cfg.Dispatcher.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, `[workspace`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Agent.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Agent.Model)
	assert.Equal(t, 10, cfg.Agent.MaxToolIterations)
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	assert.Equal(t, 300, cfg.Agent.ApprovalTimeoutSeconds)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.OpenAI.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 15, cfg.Dispatcher.TickIntervalSeconds)
	assert.Equal(t, 32, cfg.Dispatcher.ClaimLimit)
	assert.Equal(t, 90, cfg.Dispatcher.LeaseSeconds)
	assert.Equal(t, 30, cfg.Dispatcher.HeartbeatSeconds)
	assert.Equal(t, 3, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, 24, cfg.Dispatcher.MaterializeHorizonHours)
	assert.Equal(t, 4, cfg.Workers.PoolSize)
	assert.Equal(t, 64, cfg.Workers.QueueSize)
	assert.Equal(t, ":8080", cfg.API.Addr)

	// Tilde paths are expanded against the home directory.
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".goclaw"), cfg.Workspace.Path)
	assert.Equal(t, filepath.Join(home, ".goclaw", "goclaw.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(home, ".goclaw", "policies"), cfg.Policies.Dir)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("GOCLAW_TEST_KEY", "sk-test-1234567890")

	cfg, err := Load(writeConfig(t, `
[llm.openai]
api_key = "${GOCLAW_TEST_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", cfg.LLM.OpenAI.APIKey)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GOCLAW_SET", "from-env")
	os.Unsetenv("GOCLAW_UNSET")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain value untouched", in: "plain", want: "plain"},
		{name: "set variable", in: "${GOCLAW_SET}", want: "from-env"},
		{name: "unset variable", in: "${GOCLAW_UNSET}", want: ""},
		{name: "unset with default", in: "${GOCLAW_UNSET:fallback}", want: "fallback"},
		{name: "set wins over default", in: "${GOCLAW_SET:fallback}", want: "from-env"},
		{name: "unterminated reference", in: "${GOCLAW_SET", want: "${GOCLAW_SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		cfg.Agent.Provider = "mock"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing workspace path",
			mutate:  func(c *Config) { c.Workspace.Path = "" },
			wantErr: "workspace.path is required",
		},
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path is required",
		},
		{
			name:    "openai without api key",
			mutate:  func(c *Config) { c.Agent.Provider = "openai" },
			wantErr: "llm.openai.api_key is required",
		},
		{
			name: "openai api key too short",
			mutate: func(c *Config) {
				c.Agent.Provider = "openai"
				c.LLM.OpenAI.APIKey = "short"
			},
			wantErr: "too short",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Agent.Provider = "oracle" },
			wantErr: "invalid agent.provider",
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid logging.level",
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid logging.format",
		},
		{
			name: "shell enabled with no allowed commands",
			mutate: func(c *Config) {
				c.Tools.Shell.Enabled = true
			},
			wantErr: "allowed_commands cannot be empty",
		},
		{
			name: "path traversal in workspace",
			mutate: func(c *Config) {
				c.Workspace.Path = "/data/../etc"
			},
			wantErr: "path traversal",
		},
		{
			name: "heartbeat not below lease",
			mutate: func(c *Config) {
				c.Dispatcher.LeaseSeconds = 30
				c.Dispatcher.HeartbeatSeconds = 30
			},
			wantErr: "heartbeat_seconds must be less than",
		},
		{
			name:    "max attempts below one",
			mutate:  func(c *Config) { c.Dispatcher.MaxAttempts = 0 },
			wantErr: "max_attempts must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			errs := cfg.Validate()

			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}

			require.NotEmpty(t, errs)
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.wantErr) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.wantErr, errs)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Agent.Provider = "mock"
	cfg.Workspace.Path = ""
	cfg.Store.Path = ""
	cfg.Logging.Level = "silent"

	errs := cfg.Validate()
	assert.Len(t, errs, 3)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "GOCLAW_ENV_A=alpha\n# a comment\n\nGOCLAW_ENV_B = beta\nmalformed line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("GOCLAW_ENV_A", "")
	t.Setenv("GOCLAW_ENV_B", "")
	require.NoError(t, LoadEnv(path))

	assert.Equal(t, "alpha", os.Getenv("GOCLAW_ENV_A"))
	assert.Equal(t, "beta", os.Getenv("GOCLAW_ENV_B"))
}

func TestLoadEnvOptional_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadEnvOptional(filepath.Join(t.TempDir(), "absent.env")))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "empty", secret: "", want: ""},
		{name: "short secret fully masked", secret: "abc", want: "***"},
		{name: "long secret keeps edges", secret: "sk-abcdefghij1234", want: "sk-a*********1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskSecret(tt.secret))
		})
	}
}
