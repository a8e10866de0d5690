package openai

import "time"

// DefaultBaseURL is the public OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Config holds configuration for the OpenAI provider adapter.
type Config struct {
	// BaseURL is the API root (e.g., "https://api.openai.com"). A trailing
	// "/v1" is accepted.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Timeout: 120 * time.Second,
	}
}
