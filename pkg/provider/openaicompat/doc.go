// Package openaicompat provides shared code for any OpenAI-compatible Chat
// Completions backend. It handles request serialization, response parsing,
// and error mapping.
//
// Provider adapters embed the Client from this package and delegate their
// Complete calls to it.
package openaicompat
