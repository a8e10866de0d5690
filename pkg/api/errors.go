package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorType represents the category of an APIError.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeAuthentication  ErrorType = "authentication_error"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// APIError is a structured failure reported by the model collaborator.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewAuthenticationError creates an APIError for rejected credentials.
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeAuthentication,
		Message: message,
	}
}

// NewServerError creates an APIError for backend or transport failures.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewModelError creates an APIError for model-related errors.
func NewModelError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeModelError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// ParseError reports tool-call arguments that are not decodable as the
// expected structure. It aborts the current tool loop and is never sent
// to the model.
type ParseError struct {
	// Arguments is the raw argument string as produced by the model.
	Arguments string

	// Err is the underlying decode or schema validation error.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse tool arguments as JSON: %v: %s", e.Err, preview(e.Arguments))
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingCodeError reports decoded tool-call arguments without a usable
// code field. Same abort semantics as ParseError.
type MissingCodeError struct {
	Arguments string
}

func (e *MissingCodeError) Error() string {
	return fmt.Sprintf("code not found in tool arguments: %s", preview(e.Arguments))
}

const maxPreview = 200

// preview trims s to at most maxPreview bytes without splitting a rune.
func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxPreview {
		return s
	}
	cut := maxPreview
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
