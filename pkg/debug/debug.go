// Package debug provides category-based debug logging for codeloop.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): controlled via CODELOOP_DEBUG env or config
//   - Levels (HOW MUCH detail): controlled via CODELOOP_LOG_LEVEL env or config
//
// DEBUG=true is a shorthand for all categories at DEBUG level.
//
// Usage:
//
//	debug.Log("providers", "request", "method", "POST", "url", url)
//	if debug.Enabled("providers") { /* expensive formatting */ }
//
// Categories: providers, engine, tools, sandbox, pool, mcp, repl, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full untruncated request/response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// knownCategories lists the categories accepted by ValidateCategories.
var knownCategories = []string{"providers", "engine", "tools", "sandbox", "pool", "mcp", "repl", "config", "all"}

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

// output is where Raw writes. It follows the writer passed to InitWriter.
var output io.Writer = os.Stderr

func init() {
	// Initialize from environment for immediate availability.
	// Can be re-initialized later via Init() with config values.
	categories = parseCategories(envCategories())
}

// Init configures the debug system to log to stderr. Called at startup
// with values from config and/or environment. Environment overrides config.
func Init(configCategories string, configLevel string) {
	InitWriter(os.Stderr, configCategories, configLevel)
}

// InitWriter is Init with an explicit destination. The REPL uses it to keep
// log lines out of the terminal UI.
func InitWriter(w io.Writer, configCategories string, configLevel string) {
	// Environment takes precedence over config.
	cats := envCategories()
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)
	output = w

	// Configure slog level.
	level := os.Getenv("CODELOOP_LOG_LEVEL")
	if level == "" && debugToggle() {
		level = "DEBUG"
	}
	if level == "" {
		level = configLevel
	}
	if level == "" {
		level = "INFO"
	}

	slogLevel := ParseLevel(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slogLevel,
	})))
}

func envCategories() string {
	if cats := os.Getenv("CODELOOP_DEBUG"); cats != "" {
		return cats
	}
	if debugToggle() {
		return "all"
	}
	return ""
}

// debugToggle reports whether DEBUG is set to a true value.
func debugToggle() bool {
	on, err := strconv.ParseBool(os.Getenv("DEBUG"))
	return err == nil && on
}

// Enabled reports whether debug output is active for the given category.
// This is a constant-time map lookup with zero allocation.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op (zero overhead).
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when CODELOOP_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(nil, LevelTrace)
}

// Raw writes plain text to the log output without any slog formatting.
// Use this for copy-paste-ready output (full HTTP bodies, headers).
// Only emitted when category is enabled AND level is TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(output, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the list of enabled categories (for health/status reporting).
func Categories() []string {
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	return result
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ValidateCategories reports unknown names in a comma-separated category
// list.
func ValidateCategories(s string) error {
	var unknown []string
	for cat := range parseCategories(s) {
		if !slices.Contains(knownCategories, cat) {
			unknown = append(unknown, cat)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("unknown debug categories %s (known: %s)",
		strings.Join(unknown, ", "), strings.Join(knownCategories, ", "))
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
