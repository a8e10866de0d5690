package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/codeloop/pkg/provider"
	"github.com/rhuss/codeloop/pkg/provider/openaicompat"
)

// OpenAIProvider implements provider.Provider for Chat Completions backends.
type OpenAIProvider struct {
	cfg    Config
	client *openaicompat.Client
}

// Ensure OpenAIProvider implements provider.Provider at compile time.
var _ provider.Provider = (*OpenAIProvider)(nil)

// New creates a new OpenAIProvider with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: BaseURL is required")
	}

	// Apply default timeout if not set.
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &OpenAIProvider{
		cfg:    cfg,
		client: openaicompat.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (p *OpenAIProvider) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return p.client.Complete(ctx, req)
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error {
	return p.client.Close()
}
