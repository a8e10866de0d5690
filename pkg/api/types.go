package api

// Role identifies the author of a message in the conversation log.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation log. Messages are never mutated
// after they have been appended to a log.
type Message struct {
	Role Role `json:"role"`

	// Content is nil when the model returned no text (typically alongside
	// a tool call).
	Content *string `json:"content"`

	// ToolCall is set on assistant messages that request a tool invocation.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolCallID links a tool message to the ToolCall it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool messages.
	Name string `json:"name,omitempty"`
}

// ToolCall is a model request to invoke a named tool. Arguments is the
// raw serialized structure produced by the model and must be treated as
// untrusted until decoded and validated.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Text returns the message content, or "" when content is nil.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasToolCall reports whether the message requests a tool invocation.
func (m Message) HasToolCall() bool {
	return m.ToolCall != nil
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: StringPtr(text)}
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: StringPtr(text)}
}

// NewAssistantMessage creates a terminal assistant message without a tool call.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: StringPtr(text)}
}

// NewToolCallMessage creates an assistant message carrying a tool call.
// content may be nil.
func NewToolCallMessage(content *string, call ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCall: &call}
}

// NewToolResultMessage creates a tool message answering the given call.
func NewToolResultMessage(call ToolCall, output string) Message {
	return Message{
		Role:       RoleTool,
		Content:    StringPtr(output),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
