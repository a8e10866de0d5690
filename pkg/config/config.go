// Package config provides unified configuration for codeloop.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/codeloop/pkg/sandbox"
)

// Isolation modes for sandbox workers.
const (
	IsolationProcess   = "process"
	IsolationInProcess = "inprocess"
)

// Config holds all configuration for codeloop.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// ModelConfig holds the chat completions backend and conversation settings.
type ModelConfig struct {
	BaseURL       string        `yaml:"base_url"`        // default: https://api.openai.com
	APIKey        string        `yaml:"api_key"`         // required
	APIKeyFile    string        `yaml:"api_key_file"`    // _file variant for api_key
	Name          string        `yaml:"name"`            // default: gpt-3.5-turbo
	Timeout       time.Duration `yaml:"timeout"`         // default: 120s
	SystemPrompt  string        `yaml:"system_prompt"`   // default: "You are a helpful assistant."
	MaxToolRounds int           `yaml:"max_tool_rounds"` // default: 10
}

// SandboxConfig holds the execution limits and the pool shape.
type SandboxConfig struct {
	MemoryLimitMB    int           `yaml:"memory_limit_mb"`     // default: 128
	Timeout          time.Duration `yaml:"timeout"`             // default: 5s
	MaxCallStackSize int           `yaml:"max_call_stack_size"` // default: 10000
	PoolSize         int           `yaml:"pool_size"`           // 0 = number of CPUs
	Isolation        string        `yaml:"isolation"`           // "process" or "inprocess", default: "process"
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Debug      bool   `yaml:"debug"`      // all categories at DEBUG level
	Level      string `yaml:"level"`      // default: INFO
	Categories string `yaml:"categories"` // comma-separated debug categories
	File       string `yaml:"file"`       // log destination of the interactive CLI
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
	Path string `yaml:"path"` // default: "/metrics"
}

// MCPConfig holds the codeloop-mcp listen address and, for the
// interactive CLI, an optional remote sandbox. When RemoteURL is set the
// CLI runs javascript calls on that MCP server instead of a local pool.
type MCPConfig struct {
	Addr          string            `yaml:"addr"`           // default: ":8090"
	RemoteURL     string            `yaml:"remote_url"`     // streamable HTTP endpoint, e.g. http://host:8090/mcp
	RemoteHeaders map[string]string `yaml:"remote_headers"` // sent with every request to RemoteURL
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Model: ModelConfig{
			BaseURL:       "https://api.openai.com",
			Name:          "gpt-3.5-turbo",
			Timeout:       120 * time.Second,
			SystemPrompt:  "You are a helpful assistant.",
			MaxToolRounds: 10,
		},
		Sandbox: SandboxConfig{
			MemoryLimitMB:    sandbox.DefaultMemoryLimitMB,
			Timeout:          sandbox.DefaultTimeout,
			MaxCallStackSize: sandbox.DefaultMaxCallStackSize,
			Isolation:        IsolationProcess,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		MCP: MCPConfig{
			Addr: ":8090",
		},
	}
}

// Limits returns the per-execution limits for the sandbox.
func (c SandboxConfig) Limits() sandbox.Config {
	return sandbox.Config{
		MemoryLimitMB:    c.MemoryLimitMB,
		Timeout:          c.Timeout,
		MaxCallStackSize: c.MaxCallStackSize,
	}
}

// DebugCategories returns the debug categories to enable, honoring the
// debug shorthand.
func (c LoggingConfig) DebugCategories() string {
	if c.Debug && c.Categories == "" {
		return "all"
	}
	return c.Categories
}

// LogLevel returns the effective log level.
func (c LoggingConfig) LogLevel() string {
	if c.Debug && (c.Level == "" || c.Level == "INFO") {
		return "DEBUG"
	}
	return c.Level
}
