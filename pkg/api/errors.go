package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an engine error.
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation_error"
	ErrorTypeInvalidDescriptor   ErrorType = "invalid_descriptor"
	ErrorTypeUnsupportedFormat   ErrorType = "unsupported_format"
	ErrorTypeResolution          ErrorType = "resolution_error"
	ErrorTypeProvider            ErrorType = "provider_error"
	ErrorTypeBlobMaterialization ErrorType = "blob_materialization_error"
	ErrorTypeLoopDetected        ErrorType = "loop_detected"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeAuthentication      ErrorType = "authentication_error"
	ErrorTypeRateLimit           ErrorType = "rate_limit_exceeded"
	ErrorTypeServerError         ErrorType = "server_error"
)

// CodeEnvironmentRequired is the code carried by resolution errors when no
// environment could be determined for a query.
const CodeEnvironmentRequired = "environment_required"

// APIError represents a structured error with type, code, param, and message.
// Err optionally carries the underlying cause.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error payload.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewValidationError creates an APIError for a missing or invalid query field.
func NewValidationError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeValidation,
		Param:   param,
		Message: message,
	}
}

// NewInvalidDescriptorError creates an APIError for a malformed function descriptor.
func NewInvalidDescriptorError(name, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidDescriptor,
		Param:   name,
		Message: message,
	}
}

// NewUnsupportedFormatError creates an APIError for an unsupported response format.
func NewUnsupportedFormatError(format string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnsupportedFormat,
		Param:   "responseFormat",
		Message: fmt.Sprintf("the response format can only be empty or json, got %q", format),
	}
}

// NewEnvironmentRequiredError creates the resolution error returned when no
// environment or model can be determined.
func NewEnvironmentRequiredError() *APIError {
	return &APIError{
		Type:    ErrorTypeResolution,
		Code:    CodeEnvironmentRequired,
		Param:   "envId",
		Message: "The environment is required.",
	}
}

// NewResolutionError creates an APIError for other environment/model resolution failures.
func NewResolutionError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeResolution,
		Param:   param,
		Message: message,
	}
}

// NewProviderError creates an APIError for a failed outbound provider call.
func NewProviderError(code, message string, cause error) *APIError {
	return &APIError{
		Type:    ErrorTypeProvider,
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// NewBlobMaterializationError creates an APIError for a binary result that
// could not be persisted by the blob store.
func NewBlobMaterializationError(cause error) *APIError {
	msg := "could not store generated binary content"
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &APIError{
		Type:    ErrorTypeBlobMaterialization,
		Message: msg,
		Err:     cause,
	}
}

// NewLoopDetectedError creates an APIError for a feedback loop that repeats
// the same function calls.
func NewLoopDetectedError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeLoopDetected,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewAuthenticationError creates an APIError for missing or rejected
// credentials.
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeAuthentication,
		Message: message,
	}
}

// NewRateLimitError creates an APIError for callers over their request
// budget.
func NewRateLimitError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeRateLimit,
		Message: message,
	}
}

// NewServerError creates an APIError for internal errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// IsType reports whether err (or any error it wraps) is an *APIError of type t.
func IsType(err error, t ErrorType) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type == t
	}
	return false
}

// AsAPIError converts err into an *APIError. Errors that are not already
// APIErrors are wrapped as server errors.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: err.Error(),
		Err:     err,
	}
}
