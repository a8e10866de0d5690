package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rhuss/codeloop/pkg/api"
)

// stubExecutor serves a fixed set of tool names.
type stubExecutor struct {
	names []string
}

func (s *stubExecutor) Definitions() []Definition {
	defs := make([]Definition, len(s.names))
	for i, n := range s.names {
		defs[i] = Definition{Name: n}
	}
	return defs
}

func (s *stubExecutor) CanExecute(name string) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

func (s *stubExecutor) Execute(_ context.Context, call api.ToolCall) (*ToolResult, error) {
	return &ToolResult{CallID: call.ID, Output: call.Name}, nil
}

var _ ToolExecutor = (*stubExecutor)(nil)

func TestFormatToolOutput(t *testing.T) {
	got := FormatToolOutput("2", "hi\n")

	var decoded map[string]string
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["result"] != "2" {
		t.Errorf("result = %q, want %q", decoded["result"], "2")
	}
	if decoded["stdout"] != "hi\n" {
		t.Errorf("stdout = %q, want %q", decoded["stdout"], "hi\n")
	}
}

func TestFormatToolOutput_EmptyStdoutIsPresent(t *testing.T) {
	got := FormatToolOutput("undefined", "")
	if got != `{"result":"undefined","stdout":""}` {
		t.Errorf("got %s", got)
	}
}

func TestUnknownToolResult(t *testing.T) {
	res := UnknownToolResult(api.ToolCall{ID: "call_1", Name: "python"})
	if res.CallID != "call_1" {
		t.Errorf("CallID = %q, want call_1", res.CallID)
	}
	if !res.IsError {
		t.Error("expected IsError")
	}
	if res.Output != `{"result":"Error: unknown tool python","stdout":""}` {
		t.Errorf("Output = %s", res.Output)
	}
}

func TestLookup(t *testing.T) {
	a := &stubExecutor{names: []string{"javascript"}}
	b := &stubExecutor{names: []string{"javascript", "search"}}
	executors := []ToolExecutor{a, b}

	if got := Lookup(executors, "javascript"); got != a {
		t.Error("expected first matching executor")
	}
	if got := Lookup(executors, "search"); got != b {
		t.Error("expected b for search")
	}
	if got := Lookup(executors, "python"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := Lookup(nil, "javascript"); got != nil {
		t.Errorf("expected nil for no executors, got %v", got)
	}
}
