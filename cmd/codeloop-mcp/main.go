// Command codeloop-mcp serves the javascript tool over MCP streamable HTTP
// on /mcp, backed by the same sandbox pool as the interactive CLI.
//
// Configuration is read like codeloop's; model settings are not needed.
//
//	CODELOOP_MCP_ADDR     - Listen address (default: :8090)
//	CODELOOP_METRICS_ADDR - Any non-empty value serves /metrics on the MCP listener
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/codeloop/pkg/config"
	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/mcpserver"
	"github.com/rhuss/codeloop/pkg/sandbox"
	"github.com/rhuss/codeloop/pkg/sandbox/pool"
	"github.com/rhuss/codeloop/pkg/sandbox/procworker"
	"github.com/rhuss/codeloop/pkg/tools"
)

// version is set at build time.
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == procworker.WorkerCommand {
		debug.Init("", "")
		if err := procworker.Serve(context.Background(), os.Stdin, os.Stdout, sandbox.Defaults()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadSandbox(*configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.DebugCategories(), cfg.Logging.LogLevel())

	var factory sandbox.WorkerFactory
	if cfg.Sandbox.Isolation == config.IsolationInProcess {
		factory = sandbox.InProcessFactory(cfg.Sandbox.Limits())
	} else {
		factory, err = procworker.SelfFactory(cfg.Sandbox.Limits())
		if err != nil {
			return err
		}
	}
	sandboxPool := pool.New(pool.Config{
		Size:    cfg.Sandbox.PoolSize,
		Sandbox: cfg.Sandbox.Limits(),
	}, factory)

	metricsPath := ""
	if cfg.Metrics.Addr != "" {
		metricsPath = cfg.Metrics.Path
	}
	server := mcpserver.New(newExecutor(sandboxPool), version)
	srv := &http.Server{
		Addr:    cfg.MCP.Addr,
		Handler: server.Handler(metricsPath),
	}

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("MCP server starting", "addr", cfg.MCP.Addr, "pool_size", sandboxPool.Size(), "isolation", cfg.Sandbox.Isolation)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, srv.Shutdown(shutdownCtx), sandboxPool.Close(shutdownCtx))
}

// newExecutor returns the javascript tool with logging and panic recovery.
func newExecutor(p *pool.Pool) tools.ToolExecutor {
	return tools.Wrap(tools.NewJavaScriptExecutor(p), tools.Logging(nil), tools.Recovery())
}
