package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/tools"
)

// MCPExecutor implements tools.ToolExecutor for MCP server tools.
// It manages connections to one or more MCP servers, discovers their tools,
// and routes tool calls to the appropriate server.
type MCPExecutor struct {
	mu sync.RWMutex

	// clients maps server name to MCPClient.
	clients map[string]*MCPClient

	// order keeps server names in registration order for stable
	// tool definitions.
	order []string

	// toolToServer maps tool name to the server name that provides it.
	toolToServer map[string]string

	// definitions are the discovered tools, first provider wins.
	definitions []tools.Definition

	discovered bool
}

var (
	_ tools.ToolExecutor      = (*MCPExecutor)(nil)
	_ tools.ArgumentValidator = (*MCPExecutor)(nil)
)

// NewMCPExecutor creates a new MCPExecutor with the given connected clients.
func NewMCPExecutor(clients ...*MCPClient) *MCPExecutor {
	e := &MCPExecutor{
		clients:      make(map[string]*MCPClient, len(clients)),
		toolToServer: make(map[string]string),
	}
	for _, c := range clients {
		e.clients[c.Name()] = c
		e.order = append(e.order, c.Name())
	}
	return e
}

// Discover lists the tools of all servers. It is safe to call more than
// once; only the first call talks to the servers. Servers that fail are
// logged and skipped, but an error is returned when no tool was found.
func (e *MCPExecutor) Discover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discovered {
		return nil
	}

	var errs []error
	for _, name := range e.order {
		defs, err := e.clients[name].DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server", "server", name, "error", err)
			errs = append(errs, err)
			continue
		}

		for _, def := range defs {
			if _, exists := e.toolToServer[def.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider", "tool", def.Name, "server", name)
				continue
			}
			e.toolToServer[def.Name] = name
			e.definitions = append(e.definitions, def)
		}

		slog.Info("discovered MCP tools", "server", name, "count", len(defs))
	}

	e.discovered = true
	if len(e.definitions) == 0 {
		if len(errs) == 0 {
			return errors.New("no tools discovered")
		}
		return fmt.Errorf("no tools discovered: %w", errors.Join(errs...))
	}
	return nil
}

// Definitions returns the discovered tools.
func (e *MCPExecutor) Definitions() []tools.Definition {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]tools.Definition(nil), e.definitions...)
}

// CanExecute returns true if any connected MCP server provides the named tool.
func (e *MCPExecutor) CanExecute(toolName string) bool {
	e.ensureDiscovered()

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToServer[toolName]
	return ok
}

// ValidateArguments applies the local javascript argument rules to remote
// javascript calls, so that malformed calls end the tool loop exactly as
// they do with a local sandbox. Other tools only need a JSON object.
func (e *MCPExecutor) ValidateArguments(call api.ToolCall) error {
	if call.Name == tools.JavaScriptToolName {
		_, err := tools.DecodeJavaScriptArgs(call.Arguments)
		return err
	}
	if call.Arguments == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &obj); err != nil {
		return &api.ParseError{Arguments: call.Arguments, Err: err}
	}
	return nil
}

// Execute routes the tool call to the correct MCP server and returns the
// result. A failing server becomes an error result for the model.
func (e *MCPExecutor) Execute(ctx context.Context, call api.ToolCall) (*tools.ToolResult, error) {
	e.ensureDiscovered()

	e.mu.RLock()
	serverName, ok := e.toolToServer[call.Name]
	client := e.clients[serverName]
	e.mu.RUnlock()
	if !ok {
		observability.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return tools.UnknownToolResult(call), nil
	}

	res, err := client.CallTool(ctx, call)
	switch {
	case errors.Is(err, errRemoteFailure):
		slog.Warn("remote tool call failed", "tool", call.Name, "server", serverName, "error", err)
		observability.ToolCallsTotal.WithLabelValues(call.Name, "worker_failure").Inc()
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  tools.FormatToolOutput("Error: remote sandbox failed: "+err.Error(), ""),
			IsError: true,
		}, nil
	case err != nil:
		observability.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return nil, err
	}

	status := "success"
	if res.IsError {
		status = "remote_error"
	}
	observability.ToolCallsTotal.WithLabelValues(call.Name, status).Inc()
	return res, nil
}

// Close closes all MCP client connections.
func (e *MCPExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensureDiscovered triggers tool discovery if it hasn't been done yet.
func (e *MCPExecutor) ensureDiscovered() {
	e.mu.RLock()
	done := e.discovered
	e.mu.RUnlock()
	if done {
		return
	}
	if err := e.Discover(context.Background()); err != nil {
		slog.Warn("MCP tool discovery incomplete", "error", err)
	}
}
