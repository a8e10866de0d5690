package provider

import (
	"context"
)

// Provider abstracts a chat model backend that supports tool calling.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
