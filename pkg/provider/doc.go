// Package provider defines the protocol-agnostic interface for the model
// backend. Adapters (e.g., openai) handle their own wire protocol
// internally. The interface operates on codeloop's own types
// (ProviderRequest, ProviderResponse), keeping backend protocol details
// invisible to the engine.
package provider
