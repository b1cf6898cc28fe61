package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brubru/aiengine/pkg/api"
)

// Provider error codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeAuthentication = "authentication_failed"
	CodeNotFound       = "not_found"
	CodeRateLimited    = "rate_limited"
	CodeServerError    = "server_error"
	CodeUnexpected     = "unexpected_status"
	CodeConnection     = "connection_error"
	CodeBadResponse    = "bad_response"
)

// MapHTTPError converts an HTTP response with a non-2xx status code into
// a provider error. It attempts to parse the response body as a
// ChatErrorResponse to extract a descriptive message.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "invalid request to backend"
		}
		return api.NewProviderError(CodeInvalidRequest, message, nil)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		return api.NewProviderError(CodeAuthentication, message, nil)

	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "backend resource not found"
		}
		return api.NewProviderError(CodeNotFound, message, nil)

	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewProviderError(CodeRateLimited, message, nil)

	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		}
		return api.NewProviderError(CodeServerError, message, nil)

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
		return api.NewProviderError(CodeUnexpected, message, nil)
	}
}

// MapNetworkError converts a network-level error (connection refused, timeout,
// DNS resolution failure) into a provider error.
func MapNetworkError(err error) *api.APIError {
	return api.NewProviderError(CodeConnection, fmt.Sprintf("backend connection error: %s", err.Error()), err)
}

// ExtractErrorMessage tries to parse the response body as a ChatErrorResponse
// and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
