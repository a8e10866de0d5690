package engine

import "github.com/rhuss/codeloop/pkg/api"

// EventType identifies a step of a turn.
type EventType string

const (
	// EventModelRequest is emitted before each provider call.
	EventModelRequest EventType = "model_request"

	// EventAssistantText carries text the model produced alongside tool
	// calls. The final reply is returned in TurnResult instead.
	EventAssistantText EventType = "assistant_text"

	// EventToolCall is emitted before a tool call is executed.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries the output fed back to the model.
	EventToolResult EventType = "tool_result"

	// EventToolError reports a tool call that was rejected before
	// execution, ending the loop.
	EventToolError EventType = "tool_error"
)

// Event describes progress within RunTurn.
type Event struct {
	Type EventType

	// Round is the 1-based provider call number within the turn.
	Round int

	// Text is set for EventAssistantText.
	Text string

	// Call is set for EventToolCall, EventToolResult and EventToolError.
	Call *api.ToolCall

	// Output and IsError are set for EventToolResult.
	Output  string
	IsError bool

	// Err is set for EventToolError.
	Err error
}

// Observer receives events synchronously on the goroutine running the
// turn. It must not block.
type Observer func(Event)

func (e *Engine) emit(ev Event) {
	if e.cfg.Observer != nil {
		e.cfg.Observer(ev)
	}
}
