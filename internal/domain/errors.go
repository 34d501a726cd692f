// Package domain holds the handover record types, the collaborator
// interfaces and the canonical error type shared by the capabilities.
package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyNote is returned when a request carries no handover note text.
var ErrEmptyNote = errors.New("no patient note provided")

// ErrorType represents the category of a collaborator failure.
type ErrorType string

const (
	// ErrorTypeNotConfigured indicates missing credentials or endpoint.
	ErrorTypeNotConfigured ErrorType = "not_configured"

	// ErrorTypeInvalidRequest indicates the collaborator rejected the request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates the credentials were refused.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeNotFound indicates the collaborator had no data for the query.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer indicates a collaborator-side failure.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeMalformedReply indicates a reply that could not be decoded.
	ErrorTypeMalformedReply ErrorType = "malformed_reply"

	// ErrorTypeContextLength indicates the prompt exceeded the token budget.
	ErrorTypeContextLength ErrorType = "context_length"
)

// CollaboratorError is the canonical error returned by the external service
// clients. Capabilities turn it into their fallback value.
type CollaboratorError struct {
	// Collaborator names the external service (e.g. "azure-openai", "openfda").
	Collaborator string

	// Type is the category of error
	Type ErrorType

	// Message is the human-readable error message
	Message string

	// StatusCode is the upstream HTTP status, zero when no response was received
	StatusCode int
}

// Error implements the error interface.
func (e *CollaboratorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Collaborator, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Collaborator, e.Type, e.Message)
}

// NewCollaboratorError creates a new collaborator error.
func NewCollaboratorError(collaborator string, errType ErrorType, message string) *CollaboratorError {
	return &CollaboratorError{
		Collaborator: collaborator,
		Type:         errType,
		Message:      message,
	}
}

// WithStatusCode records the upstream HTTP status.
func (e *CollaboratorError) WithStatusCode(code int) *CollaboratorError {
	e.StatusCode = code
	return e
}

// ErrorTypeForStatus maps an upstream HTTP status to an error category.
func ErrorTypeForStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuthentication
	case status == 404:
		return ErrorTypeNotFound
	case status == 429:
		return ErrorTypeRateLimit
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeServer
	}
}

// IsType reports whether err is a CollaboratorError of the given type.
func IsType(err error, errType ErrorType) bool {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}
	return false
}
