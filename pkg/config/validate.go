package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rhuss/codeloop/pkg/debug"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	return errors.Join(c.validateModel(), c.ValidateSandbox())
}

func (c *Config) validateModel() error {
	var errs []error

	// model.api_key is required.
	if c.Model.APIKey == "" {
		errs = append(errs, fmt.Errorf("model.api_key is required (set OPENAI_API_KEY)"))
	}

	if u, err := url.Parse(c.Model.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("model.base_url must be an absolute URL, got %q", c.Model.BaseURL))
	}

	if c.Model.Name == "" {
		errs = append(errs, fmt.Errorf("model.name is required"))
	}

	if c.Model.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("model.timeout must be > 0, got %v", c.Model.Timeout))
	}

	if c.Model.MaxToolRounds <= 0 {
		errs = append(errs, fmt.Errorf("model.max_tool_rounds must be > 0, got %d", c.Model.MaxToolRounds))
	}

	if c.MCP.RemoteURL != "" {
		if u, err := url.Parse(c.MCP.RemoteURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("mcp.remote_url must be an http(s) URL, got %q", c.MCP.RemoteURL))
		}
	}

	return errors.Join(errs...)
}

// ValidateSandbox checks everything except the model settings.
func (c *Config) ValidateSandbox() error {
	var errs []error

	if c.Sandbox.MemoryLimitMB <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.memory_limit_mb must be > 0, got %d", c.Sandbox.MemoryLimitMB))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be > 0, got %v", c.Sandbox.Timeout))
	}
	if c.Sandbox.MaxCallStackSize <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.max_call_stack_size must be > 0, got %d", c.Sandbox.MaxCallStackSize))
	}
	if c.Sandbox.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("sandbox.pool_size must be >= 0, got %d", c.Sandbox.PoolSize))
	}

	// sandbox.isolation must be a known value.
	switch c.Sandbox.Isolation {
	case IsolationProcess, IsolationInProcess:
		// valid
	default:
		errs = append(errs, fmt.Errorf("sandbox.isolation must be %q or %q, got %q", IsolationProcess, IsolationInProcess, c.Sandbox.Isolation))
	}

	switch strings.ToUpper(strings.TrimSpace(c.Logging.Level)) {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of TRACE, DEBUG, INFO, WARN, ERROR, got %q", c.Logging.Level))
	}

	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with \"/\", got %q", c.Metrics.Path))
	}

	if err := debug.ValidateCategories(c.Logging.Categories); err != nil {
		errs = append(errs, fmt.Errorf("logging.categories: %w", err))
	}

	return errors.Join(errs...)
}
