// Package openai implements the Provider interface for OpenAI and any
// server exposing the same Chat Completions API. All HTTP communication is
// delegated to the shared openaicompat.Client.
package openai
