// Package engine runs a conversation with the model. An Engine owns one
// Session, sends the full conversation log and the tool definitions to the
// provider on every call, and runs the tool loop: tool calls are executed
// through tools.ToolExecutor and their results fed back until the model
// answers without a tool call.
package engine
