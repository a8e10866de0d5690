// Package mcpserver exposes the javascript tool over the Model Context
// Protocol, so MCP clients can run code in the same sandbox pool the
// conversational engine uses.
package mcpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/tools"
)

// Name is the implementation name reported to MCP clients.
const Name = "codeloop"

// Server serves the executor's tools to MCP clients.
type Server struct {
	server   *mcp.Server
	executor tools.ToolExecutor
}

// New creates a server that registers every tool of executor.
func New(executor tools.ToolExecutor, version string) *Server {
	s := &Server{
		server:   mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil),
		executor: executor,
	}
	for _, def := range executor.Definitions() {
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}, s.callHandler(def.Name))
	}
	return s
}

// MCP returns the underlying MCP server, e.g. to run it on a custom
// transport.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Handler returns the HTTP surface: streamable HTTP on /mcp, a health
// check on /healthz and, when metricsPath is not empty, Prometheus
// metrics. Requests are counted by the metrics middleware.
func (s *Server) Handler(metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	if metricsPath != "" {
		mux.Handle(metricsPath, observability.Handler())
	}
	return observability.MetricsMiddleware(mux)
}

// callHandler adapts the executor to an MCP tool handler. Rejected
// arguments become error results so the client can correct the call;
// only cancellation and a closed pool fail the request itself.
func (s *Server) callHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}
		call := api.ToolCall{ID: api.NewCallID(), Name: name, Arguments: args}
		debug.Log("mcp", "tool call", "tool", name, "call_id", call.ID, "arguments", debug.Truncate(args, 200))

		result, err := s.executor.Execute(ctx, call)
		if err != nil {
			var parseErr *api.ParseError
			var missingErr *api.MissingCodeError
			if errors.As(err, &parseErr) || errors.As(err, &missingErr) {
				return errorResult(err.Error()), nil
			}
			return nil, err
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.Output}},
			IsError: result.IsError,
		}, nil
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
