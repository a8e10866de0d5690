package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/mcpserver"
	"github.com/rhuss/codeloop/pkg/sandbox"
	"github.com/rhuss/codeloop/pkg/sandbox/pool"
	"github.com/rhuss/codeloop/pkg/tools"
)

// setupSandboxServer starts a codeloop MCP server backed by an in-process
// pool and connects a client to it via in-memory transports.
func setupSandboxServer(t *testing.T) *MCPClient {
	t.Helper()

	p := pool.New(pool.Config{Size: 1}, sandbox.InProcessFactory(sandbox.Defaults()))
	t.Cleanup(func() { p.Close(context.Background()) })
	server := mcpserver.New(tools.NewJavaScriptExecutor(p), "test")

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = server.MCP().Run(ctx, serverTransport)
	}()

	client := NewMCPClient(ServerConfig{Name: "sandbox"})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestMCPExecutor_DiscoverJavaScript(t *testing.T) {
	executor := NewMCPExecutor(setupSandboxServer(t))

	if err := executor.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	defs := executor.Definitions()
	if len(defs) != 1 || defs[0].Name != tools.JavaScriptToolName {
		t.Fatalf("definitions = %+v", defs)
	}
	if defs[0].Description != tools.JavaScriptDescription {
		t.Errorf("description = %q", defs[0].Description)
	}
	if defs[0].Parameters == nil || defs[0].Parameters.Properties["code"] == nil {
		t.Errorf("schema lost the code property: %+v", defs[0].Parameters)
	}
	if !executor.CanExecute(tools.JavaScriptToolName) || executor.CanExecute("other") {
		t.Error("CanExecute does not follow the discovered tools")
	}
}

func TestMCPExecutor_Execute(t *testing.T) {
	executor := NewMCPExecutor(setupSandboxServer(t))

	res, err := executor.Execute(context.Background(), api.ToolCall{
		ID:        "call_1",
		Name:      tools.JavaScriptToolName,
		Arguments: `{"code":"log('x'); 1 + 1","minified":false}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError || res.CallID != "call_1" {
		t.Errorf("result = %+v", res)
	}
	if want := `{"result":"2","stdout":"x\n"}`; res.Output != want {
		t.Errorf("Output = %s, want %s", res.Output, want)
	}
}

func TestMCPExecutor_RuntimeError(t *testing.T) {
	executor := NewMCPExecutor(setupSandboxServer(t))

	res, err := executor.Execute(context.Background(), api.ToolCall{
		ID:        "call_1",
		Name:      tools.JavaScriptToolName,
		Arguments: `{"code":"throw new Error('boom')","minified":false}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Output, "Error: boom") {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPExecutor_UnknownTool(t *testing.T) {
	executor := NewMCPExecutor(setupSandboxServer(t))

	res, err := executor.Execute(context.Background(), api.ToolCall{ID: "c", Name: "python", Arguments: `{}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Output, "unknown tool python") {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPExecutor_ClosedSessionIsErrorResult(t *testing.T) {
	client := setupSandboxServer(t)
	executor := NewMCPExecutor(client)
	if err := executor.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	client.Close()

	res, err := executor.Execute(context.Background(), api.ToolCall{
		ID:        "c",
		Name:      tools.JavaScriptToolName,
		Arguments: `{"code":"1","minified":false}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Output, "remote sandbox failed") {
		t.Errorf("result = %+v", res)
	}
}

func TestMCPExecutor_ValidateArguments(t *testing.T) {
	executor := NewMCPExecutor()

	var parseErr *api.ParseError
	if err := executor.ValidateArguments(api.ToolCall{Name: tools.JavaScriptToolName, Arguments: `{not valid`}); !errors.As(err, &parseErr) {
		t.Errorf("malformed javascript args: got %v, want *api.ParseError", err)
	}

	var missing *api.MissingCodeError
	if err := executor.ValidateArguments(api.ToolCall{Name: tools.JavaScriptToolName, Arguments: `{"minified":true}`}); !errors.As(err, &missing) {
		t.Errorf("missing code: got %v, want *api.MissingCodeError", err)
	}

	if err := executor.ValidateArguments(api.ToolCall{Name: "other", Arguments: `[1]`}); !errors.As(err, &parseErr) {
		t.Errorf("non-object args: got %v, want *api.ParseError", err)
	}
	if err := executor.ValidateArguments(api.ToolCall{Name: "other", Arguments: `{"a":1}`}); err != nil {
		t.Errorf("valid args: %v", err)
	}
}

func TestMCPExecutor_DiscoverWithoutServers(t *testing.T) {
	if err := NewMCPExecutor().Discover(context.Background()); err == nil {
		t.Error("expected error when no tools are found")
	}
}

func TestHeaderTransport(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerTransport{
		base:    http.DefaultTransport,
		headers: map[string]string{"Authorization": "Bearer secret"},
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestCreateTransport(t *testing.T) {
	for _, kind := range []string{"", "streamable-http", "sse"} {
		c := NewMCPClient(ServerConfig{Name: "s", Transport: kind, URL: "http://localhost/mcp"})
		if _, err := c.createTransport(); err != nil {
			t.Errorf("transport %q: %v", kind, err)
		}
	}
	c := NewMCPClient(ServerConfig{Name: "s", Transport: "stdio"})
	if _, err := c.createTransport(); err == nil {
		t.Error("expected error for unsupported transport")
	}
}
