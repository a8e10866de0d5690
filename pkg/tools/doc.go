// Package tools defines the tool executor interface used by the engine's
// tool loop and the "javascript" tool that codeloop advertises to the
// model.
//
// Tool arguments arrive as an untrusted JSON string. DecodeJavaScriptArgs
// validates them against the advertised JSON schema before any field is
// trusted.
package tools
