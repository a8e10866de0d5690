package tools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rhuss/codeloop/pkg/api"
)

// Definition describes a tool as advertised to the model and to MCP
// clients.
type Definition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ToolExecutor executes tool calls.
type ToolExecutor interface {
	// Definitions returns the tools this executor serves.
	Definitions() []Definition

	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result to feed back to the
	// model. A non-nil error means the call could not be attempted at all
	// (malformed arguments, canceled context) and ends the tool loop.
	Execute(ctx context.Context, call api.ToolCall) (*ToolResult, error)
}

// ArgumentValidator is implemented by executors that can reject a call's
// arguments before anything runs. The engine validates every call of a
// model response up front so a malformed call never leaves a partial
// round in the conversation log.
type ArgumentValidator interface {
	ValidateArguments(call api.ToolCall) error
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the tool message content.
	Output string

	// IsError indicates that the output describes a failure.
	IsError bool
}

// toolOutput is the JSON shape of a tool message.
type toolOutput struct {
	Result string `json:"result"`
	Stdout string `json:"stdout"`
}

// FormatToolOutput encodes a result or error text and the captured output
// as the tool message content: {"result": ..., "stdout": ...}.
func FormatToolOutput(result, stdout string) string {
	data, _ := json.Marshal(toolOutput{Result: result, Stdout: stdout})
	return string(data)
}

// UnknownToolResult is fed back to the model when it calls a tool that no
// executor serves.
func UnknownToolResult(call api.ToolCall) *ToolResult {
	return &ToolResult{
		CallID:  call.ID,
		Output:  FormatToolOutput("Error: unknown tool "+call.Name, ""),
		IsError: true,
	}
}

// Lookup returns the first executor that can handle name, or nil.
func Lookup(executors []ToolExecutor, name string) ToolExecutor {
	for _, ex := range executors {
		if ex.CanExecute(name) {
			return ex
		}
	}
	return nil
}
