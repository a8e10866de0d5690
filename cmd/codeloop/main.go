// Command codeloop is an interactive assistant that can run JavaScript in
// a sandbox to answer questions.
//
// Configuration is read from a YAML file (-config, CODELOOP_CONFIG or
// ./codeloop.yaml) and the environment:
//
//	OPENAI_API_KEY           - API key of the Chat Completions backend (required)
//	OPENAI_BASE_URL          - Backend URL (default: https://api.openai.com)
//	OPENAI_MODEL             - Model name (default: gpt-3.5-turbo)
//	CODELOOP_TIMEOUT         - Execution timeout, e.g. 5s or 5000 (ms)
//	CODELOOP_MEMORY_LIMIT_MB - Heap limit per execution (default: 128)
//	CODELOOP_POOL_SIZE       - Sandbox workers (default: number of CPUs)
//	CODELOOP_ISOLATION       - "process" (default) or "inprocess"
//	CODELOOP_REMOTE_URL      - Run javascript on this codeloop-mcp endpoint instead
//	CODELOOP_METRICS_ADDR    - Serve Prometheus metrics on this address
//	DEBUG                    - "true" enables debug logging to codeloop.log
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rhuss/codeloop/pkg/config"
	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/engine"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/provider/openai"
	"github.com/rhuss/codeloop/pkg/repl"
	"github.com/rhuss/codeloop/pkg/sandbox"
	"github.com/rhuss/codeloop/pkg/sandbox/pool"
	"github.com/rhuss/codeloop/pkg/sandbox/procworker"
	"github.com/rhuss/codeloop/pkg/tools"
	toolsmcp "github.com/rhuss/codeloop/pkg/tools/mcp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == procworker.WorkerCommand {
		if err := runWorker(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "codeloop: %v\n", err)
		os.Exit(1)
	}
}

// runWorker serves sandbox requests on stdin/stdout for a parent pool.
func runWorker() error {
	debug.Init("", "")
	return procworker.Serve(context.Background(), os.Stdin, os.Stdout, sandbox.Defaults())
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logFile, err := initLogging(cfg.Logging)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	executor, closeExecutor, err := newExecutor(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeExecutor()

	// Model provider.
	prov, err := openai.New(openai.Config{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	// Engine.
	feed := repl.NewFeed()
	eng, err := engine.New(prov, engine.NewSession(cfg.Model.SystemPrompt), engine.Config{
		Model:         cfg.Model.Name,
		MaxToolRounds: cfg.Model.MaxToolRounds,
		Executors:     []tools.ToolExecutor{executor},
		Observer:      feed.Observe,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	slog.Info("session started", "session", eng.Session().ID(), "model", cfg.Model.Name)

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics)
		defer srv.Close()
	}

	title := fmt.Sprintf("codeloop · %s", cfg.Model.Name)
	err = repl.Run(ctx, eng, feed, title, tea.WithContext(ctx))
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// initLogging keeps log output away from the terminal UI: logs go to the
// configured file, or to codeloop.log when debugging, or nowhere.
func initLogging(cfg config.LoggingConfig) (*os.File, error) {
	path := cfg.File
	if path == "" && (cfg.Debug || cfg.Categories != "") {
		path = "codeloop.log"
	}
	if path == "" {
		debug.InitWriter(io.Discard, cfg.DebugCategories(), cfg.LogLevel())
		return nil, nil
	}

	f, err := tea.LogToFile(path, "codeloop")
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	debug.InitWriter(f, cfg.DebugCategories(), cfg.LogLevel())
	return f, nil
}

func workerFactory(cfg config.SandboxConfig) (sandbox.WorkerFactory, error) {
	if cfg.Isolation == config.IsolationInProcess {
		return sandbox.InProcessFactory(cfg.Limits()), nil
	}
	return procworker.SelfFactory(cfg.Limits())
}

func startMetricsServer(cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, observability.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		slog.Info("metrics server starting", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// newExecutor returns the javascript tool with logging and panic recovery.
// It runs code on the remote MCP server when one is configured and on a
// local sandbox pool otherwise. The returned func releases the backend.
func newExecutor(ctx context.Context, cfg *config.Config) (tools.ToolExecutor, func(), error) {
	if cfg.MCP.RemoteURL != "" {
		client := toolsmcp.NewMCPClient(toolsmcp.ServerConfig{
			Name:    "remote",
			URL:     cfg.MCP.RemoteURL,
			Headers: cfg.MCP.RemoteHeaders,
		})
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		remote := toolsmcp.NewMCPExecutor(client)
		if err := remote.Discover(ctx); err != nil {
			remote.Close()
			return nil, nil, fmt.Errorf("remote sandbox %s: %w", cfg.MCP.RemoteURL, err)
		}
		if !remote.CanExecute(tools.JavaScriptToolName) {
			remote.Close()
			return nil, nil, fmt.Errorf("remote sandbox %s does not provide the %s tool", cfg.MCP.RemoteURL, tools.JavaScriptToolName)
		}
		slog.Info("using remote sandbox", "url", cfg.MCP.RemoteURL)
		return tools.Wrap(remote, tools.Logging(nil), tools.Recovery()), func() { remote.Close() }, nil
	}

	factory, err := workerFactory(cfg.Sandbox)
	if err != nil {
		return nil, nil, err
	}
	sandboxPool := pool.New(pool.Config{
		Size:    cfg.Sandbox.PoolSize,
		Sandbox: cfg.Sandbox.Limits(),
	}, factory)
	slog.Info("sandbox pool started", "size", sandboxPool.Size(), "isolation", cfg.Sandbox.Isolation)

	closePool := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sandboxPool.Close(closeCtx); err != nil {
			slog.Warn("closing sandbox pool", "error", err)
		}
	}
	return tools.Wrap(tools.NewJavaScriptExecutor(sandboxPool), tools.Logging(nil), tools.Recovery()), closePool, nil
}
