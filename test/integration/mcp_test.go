package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectMCP(t *testing.T) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "integration", Version: "1.0.0"}, nil)
	transport := &mcp.StreamableClientTransport{Endpoint: testEnv.MCPServer.URL + "/mcp"}
	session, err := client.Connect(context.Background(), transport, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callJavaScript(t *testing.T, session *mcp.ClientSession, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "javascript", Arguments: args})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text, res.IsError
}

func TestMCP_CallJavaScriptOverHTTP(t *testing.T) {
	session := connectMCP(t)

	text, isErr := callJavaScript(t, session, map[string]any{"code": "[1, 2].map(x => x * 2)", "minified": false})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if want := `{"result":"[ 2, 4 ]","stdout":""}`; text != want {
		t.Errorf("text = %s, want %s", text, want)
	}
}

func TestMCP_RuntimeErrorIsToolError(t *testing.T) {
	session := connectMCP(t)

	text, isErr := callJavaScript(t, session, map[string]any{"code": "throw new TypeError('boom')", "minified": false})
	if !isErr {
		t.Errorf("IsError = false for a thrown error, text %s", text)
	}
	if !strings.Contains(text, "TypeError: boom") {
		t.Errorf("text = %s, want the error name and message", text)
	}
}

func TestMCP_MissingCode(t *testing.T) {
	session := connectMCP(t)

	_, isErr := callJavaScript(t, session, map[string]any{"minified": false})
	if !isErr {
		t.Error("IsError = false for missing code")
	}
}
