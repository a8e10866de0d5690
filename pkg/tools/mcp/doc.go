// Package mcp runs tool calls on remote MCP servers. The interactive CLI
// uses it to execute javascript on a codeloop-mcp server instead of a
// local sandbox pool.
//
// The package wraps the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk)
// and implements tools.ToolExecutor, so remote tools plug into the engine
// like local ones. Tool definitions are discovered from the servers.
package mcp
