// Package api defines the core conversation types for codeloop.
//
// The conversation log is an ordered, append-only list of [Message] values
// that is replayed to the model on every call. Assistant messages may carry
// a [ToolCall]; tool messages carry the result for the call they answer.
//
// The package also defines the error taxonomy shared by the engine and the
// model adapters:
//   - [ParseError]: tool-call arguments that cannot be decoded
//   - [MissingCodeError]: decoded arguments without usable code
//   - [APIError]: structured model collaborator failure
//
// The package has no external dependencies and performs no I/O.
package api
