package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/goclaw/internal/agent/loop"
	"github.com/aatumaykin/goclaw/internal/api"
	"github.com/aatumaykin/goclaw/internal/approval"
	"github.com/aatumaykin/goclaw/internal/config"
	"github.com/aatumaykin/goclaw/internal/dispatcher"
	"github.com/aatumaykin/goclaw/internal/llm"
	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/metrics"
	"github.com/aatumaykin/goclaw/internal/policy"
	"github.com/aatumaykin/goclaw/internal/store/sqlite"
	"github.com/aatumaykin/goclaw/internal/tools"
	"github.com/aatumaykin/goclaw/internal/tools/fetch"
	"github.com/aatumaykin/goclaw/internal/workspace"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduling engine (main command)",
	Long: `Start the scheduling engine with the specified configuration.
This initializes all components (store, tools, dispatcher, HTTP API) and
handles graceful shutdown.

The serve command is the main entry point for running Goclaw.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional("./.env"); err != nil {
		fmt.Printf("Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if errors := cfg.Validate(); len(errors) > 0 {
		fmt.Printf("Configuration validation failed:\n")
		for _, e := range errors {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting goclaw",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "workspace", Value: cfg.Workspace.Path},
		logger.Field{Key: "provider", Value: cfg.Agent.Provider})

	ws := workspace.New(cfg.Workspace.Path)
	if err := ws.EnsureDir(); err != nil {
		log.Error("failed to create workspace directory", err)
		os.Exit(1)
	}
	if err := ws.EnsureSubpath(workspace.SubdirArtifacts); err != nil {
		log.Error("failed to create artifacts directory", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		log.Error("failed to create store directory", err)
		os.Exit(1)
	}
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		log.Error("failed to open store", err)
		os.Exit(1)
	}
	defer store.Close()

	policies, err := policy.Load(cfg.Policies.Dir)
	if err != nil {
		log.Error("failed to load tool policies", err)
		os.Exit(1)
	}

	var provider llm.Provider
	switch cfg.Agent.Provider {
	case "openai":
		provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL:           cfg.LLM.OpenAI.BaseURL,
			APIKey:            cfg.LLM.OpenAI.APIKey,
			Model:             cfg.Agent.Model,
			TimeoutSeconds:    cfg.LLM.OpenAI.TimeoutSeconds,
			MaxRetries:        cfg.LLM.OpenAI.MaxRetries,
			RequestsPerMinute: cfg.LLM.OpenAI.RequestsPerMinute,
		}, log)
		log.Info("openai provider initialized",
			logger.Field{Key: "base_url", Value: cfg.LLM.OpenAI.BaseURL},
			logger.Field{Key: "api_key", Value: config.MaskSecret(cfg.LLM.OpenAI.APIKey)})
	case "mock":
		provider = llm.NewEchoProvider()
		log.Warn("mock provider initialized, no real model calls will be made")
	default:
		log.Error("unsupported provider", nil,
			logger.Field{Key: "provider", Value: cfg.Agent.Provider})
		os.Exit(1)
	}

	registry := tools.NewRegistry()
	mustRegister := func(tool tools.Tool) {
		if err := registry.Register(tool); err != nil {
			log.Error("failed to register tool", err)
			os.Exit(1)
		}
	}
	mustRegister(tools.NewSysTimeTool())
	mustRegister(tools.NewReadFileTool(ws))
	mustRegister(tools.NewWriteFileTool(ws))
	mustRegister(tools.NewListDirTool(ws))
	if cfg.Tools.Shell.Enabled {
		workDir := cfg.Tools.Shell.WorkingDir
		if workDir == "" {
			workDir = ws.Path()
		}
		mustRegister(tools.NewShellExecTool(tools.ShellOptions{
			Enabled:         true,
			WorkDir:         workDir,
			DenyCommands:    cfg.Tools.Shell.DenyCommands,
			AllowedCommands: cfg.Tools.Shell.AllowedCommands,
		}, log))
	}
	if cfg.Tools.Fetch.Enabled {
		mustRegister(fetch.NewFetchTool(fetch.Options{
			Enabled:         true,
			TimeoutSeconds:  cfg.Tools.Fetch.TimeoutSeconds,
			MaxResponseSize: cfg.Tools.Fetch.MaxResponseSize,
			UserAgent:       cfg.Tools.Fetch.UserAgent,
		}, log))
	}
	log.Info("tools registered",
		logger.Field{Key: "count", Value: len(registry.List())})

	gate := tools.NewGate(registry, log)
	approvals := approval.NewBroker(log)

	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		sink = metrics.NewPrometheusSink(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		log.Info("prometheus metrics enabled")
	}

	runLoop, err := loop.NewLoop(loop.Config{
		Provider:          provider,
		Registry:          registry,
		Gate:              gate,
		Approvals:         approvals,
		Logger:            log,
		Metrics:           sink,
		Model:             cfg.Agent.Model,
		MaxTokens:         cfg.Agent.MaxTokens,
		Temperature:       cfg.Agent.Temperature,
		MaxToolIterations: cfg.Agent.MaxToolIterations,
		ToolTimeout:       time.Duration(cfg.Agent.ToolTimeoutSeconds) * time.Second,
		ApprovalTimeout:   time.Duration(cfg.Agent.ApprovalTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Error("failed to initialize run executor", err)
		os.Exit(1)
	}

	disp, err := dispatcher.New(store, runLoop, policies, sink, log, dispatcher.Config{
		TickInterval:       time.Duration(cfg.Dispatcher.TickIntervalSeconds) * time.Second,
		ClaimLimit:         cfg.Dispatcher.ClaimLimit,
		LeaseDuration:      time.Duration(cfg.Dispatcher.LeaseSeconds) * time.Second,
		HeartbeatInterval:  time.Duration(cfg.Dispatcher.HeartbeatSeconds) * time.Second,
		MaxAttempts:        cfg.Dispatcher.MaxAttempts,
		MaterializeHorizon: time.Duration(cfg.Dispatcher.MaterializeHorizonHours) * time.Hour,
		Workers:            cfg.Workers.PoolSize,
		QueueSize:          cfg.Workers.QueueSize,
		SystemPrompt:       cfg.Agent.SystemPrompt,
	})
	if err != nil {
		log.Error("failed to initialize dispatcher", err)
		os.Exit(1)
	}
	disp.Start()

	var srv *api.Server
	var srvErr <-chan error
	if cfg.API.Enabled {
		srv = api.NewServer(api.Config{
			Addr:          cfg.API.Addr,
			InvokeTimeout: time.Duration(cfg.API.InvokeTimeoutSeconds) * time.Second,
		}, store, disp, registry, gate, approvals, policies, metricsHandler, log)
		srvErr = srv.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal",
			logger.Field{Key: "signal", Value: sig.String()})
	case err := <-srvErr:
		if err != nil {
			log.Error("api server failed", err)
		}
	}

	log.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("api shutdown failed", err)
		}
		cancel()
	}
	disp.Stop()

	log.Info("goclaw stopped gracefully")
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
