package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/observability"
	"github.com/rhuss/codeloop/pkg/sandbox"
	"github.com/rhuss/codeloop/pkg/sandbox/pool"
)

const (
	// JavaScriptToolName is the name the model uses to call the sandbox.
	JavaScriptToolName = "javascript"

	// JavaScriptDescription tells the model how the tool behaves.
	JavaScriptDescription = "Runs JavaScript code in a sandbox. The value of the last expression is returned. Use log() instead of console.log()."
)

// JavaScriptArgs are the decoded and validated arguments of a javascript
// tool call.
type JavaScriptArgs struct {
	Code     string `json:"code"`
	Minified bool   `json:"minified"`
}

// javascriptSchema returns the parameter schema advertised to the model.
func javascriptSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"code": {
				Type:        "string",
				Description: "The JavaScript code to run.",
			},
			"minified": {
				Type:        "boolean",
				Description: "Whether the code is minified.",
			},
		},
		Required: []string{"code", "minified"},
	}
}

// validationSchema is the advertised schema with only "code" required:
// models routinely omit "minified", and nothing depends on it.
var validationSchema = func() *jsonschema.Resolved {
	s := javascriptSchema()
	s.Required = []string{"code"}
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("tools: resolving javascript schema: %v", err))
	}
	return resolved
}()

// JavaScriptDefinition returns the fixed definition of the javascript tool.
func JavaScriptDefinition() Definition {
	return Definition{
		Name:        JavaScriptToolName,
		Description: JavaScriptDescription,
		Parameters:  javascriptSchema(),
	}
}

// DecodeJavaScriptArgs parses raw tool arguments. It returns
// *api.ParseError when raw is not a JSON object or violates the schema,
// and *api.MissingCodeError when "code" is absent, empty or not a string.
func DecodeJavaScriptArgs(raw string) (JavaScriptArgs, error) {
	var instance map[string]any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return JavaScriptArgs{}, &api.ParseError{Arguments: raw, Err: err}
	}
	if instance == nil {
		return JavaScriptArgs{}, &api.ParseError{Arguments: raw, Err: errors.New("arguments are not a JSON object")}
	}

	code, ok := instance["code"].(string)
	if !ok || code == "" {
		return JavaScriptArgs{}, &api.MissingCodeError{Arguments: raw}
	}

	if err := validationSchema.Validate(instance); err != nil {
		return JavaScriptArgs{}, &api.ParseError{Arguments: raw, Err: err}
	}

	minified, _ := instance["minified"].(bool)
	return JavaScriptArgs{Code: code, Minified: minified}, nil
}

// Submitter runs code in the sandbox. *pool.Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, code string) (sandbox.Result, error)
}

// JavaScriptExecutor serves the javascript tool from a sandbox pool.
type JavaScriptExecutor struct {
	sandbox Submitter
}

// Ensure JavaScriptExecutor implements the executor interfaces at compile time.
var (
	_ ToolExecutor      = (*JavaScriptExecutor)(nil)
	_ ArgumentValidator = (*JavaScriptExecutor)(nil)
)

// NewJavaScriptExecutor creates an executor that submits code to s.
func NewJavaScriptExecutor(s Submitter) *JavaScriptExecutor {
	return &JavaScriptExecutor{sandbox: s}
}

// Definitions returns the javascript tool definition.
func (e *JavaScriptExecutor) Definitions() []Definition {
	return []Definition{JavaScriptDefinition()}
}

// CanExecute reports whether name is the javascript tool.
func (e *JavaScriptExecutor) CanExecute(name string) bool {
	return name == JavaScriptToolName
}

// ValidateArguments decodes the call's arguments without running them.
func (e *JavaScriptExecutor) ValidateArguments(call api.ToolCall) error {
	_, err := DecodeJavaScriptArgs(call.Arguments)
	return err
}

// Execute decodes the arguments and runs the code. Execution failures and
// worker failures become error results for the model; argument errors,
// a closed pool and context cancellation are returned as errors.
func (e *JavaScriptExecutor) Execute(ctx context.Context, call api.ToolCall) (*ToolResult, error) {
	args, err := DecodeJavaScriptArgs(call.Arguments)
	if err != nil {
		observability.ToolCallsTotal.WithLabelValues(JavaScriptToolName, "rejected").Inc()
		return nil, err
	}

	debug.Log("tools", "javascript call", "call_id", call.ID, "minified", args.Minified,
		"code", debug.Truncate(args.Code, 200))

	res, err := e.sandbox.Submit(ctx, args.Code)
	if err != nil {
		if ctx.Err() != nil || !isWorkerFailure(err) {
			observability.ToolCallsTotal.WithLabelValues(JavaScriptToolName, "error").Inc()
			return nil, err
		}
		observability.ToolCallsTotal.WithLabelValues(JavaScriptToolName, "worker_failure").Inc()
		return &ToolResult{
			CallID:  call.ID,
			Output:  FormatToolOutput("Error: worker failed: "+err.Error(), ""),
			IsError: true,
		}, nil
	}

	observability.ToolCallsTotal.WithLabelValues(JavaScriptToolName, res.Outcome()).Inc()

	return &ToolResult{
		CallID:  call.ID,
		Output:  FormatToolOutput(res.Text(), res.Stdout),
		IsError: res.Failed(),
	}, nil
}

func isWorkerFailure(err error) bool {
	var wf *pool.WorkerFailure
	return errors.As(err, &wf)
}
