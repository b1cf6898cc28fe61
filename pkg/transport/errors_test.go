package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brubru/aiengine/pkg/api"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		errType    api.ErrorType
		wantStatus int
	}{
		{api.ErrorTypeValidation, http.StatusBadRequest},
		{api.ErrorTypeInvalidDescriptor, http.StatusBadRequest},
		{api.ErrorTypeUnsupportedFormat, http.StatusBadRequest},
		{api.ErrorTypeResolution, http.StatusBadRequest},
		{api.ErrorTypeNotFound, http.StatusNotFound},
		{api.ErrorTypeLoopDetected, http.StatusUnprocessableEntity},
		{api.ErrorTypeAuthentication, http.StatusUnauthorized},
		{api.ErrorTypeRateLimit, http.StatusTooManyRequests},
		{api.ErrorTypeProvider, http.StatusBadGateway},
		{api.ErrorTypeBlobMaterialization, http.StatusInternalServerError},
		{api.ErrorTypeServerError, http.StatusInternalServerError},
		{api.ErrorType("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			got := HTTPStatusFromError(&api.APIError{Type: tt.errType, Message: "test"})
			if got != tt.wantStatus {
				t.Errorf("HTTPStatusFromError(%q) = %d, want %d", tt.errType, got, tt.wantStatus)
			}
		})
	}
}

func TestWriteAPIError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAPIError(rec, api.NewEnvironmentRequiredError())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Error.Type != api.ErrorTypeResolution || resp.Error.Code != api.CodeEnvironmentRequired || resp.Error.Param != "envId" {
		t.Errorf("error = %+v", resp.Error)
	}
}
