package engine

import "github.com/rhuss/codeloop/pkg/tools"

// DefaultSystemPrompt opens every new session unless configured otherwise.
const DefaultSystemPrompt = "You are a helpful assistant."

// Config holds configuration for the engine.
type Config struct {
	// Model is sent with every provider request.
	Model string

	// MaxToolRounds is the maximum number of model responses with tool
	// calls in one turn. Zero or negative means use the default of 10.
	MaxToolRounds int

	// Temperature is forwarded to the provider when set.
	Temperature *float64

	// Executors serve the tools advertised to the model.
	Executors []tools.ToolExecutor

	// Observer receives progress events. May be nil.
	Observer Observer
}

// maxRounds returns the effective max rounds value, defaulting to 10.
func (c Config) maxRounds() int {
	if c.MaxToolRounds <= 0 {
		return 10
	}
	return c.MaxToolRounds
}
