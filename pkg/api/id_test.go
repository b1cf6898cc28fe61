package api

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewCallID(t *testing.T) {
	id := NewCallID()
	if !ValidateCallID(id) {
		t.Errorf("NewCallID() = %q, want valid call ID", id)
	}
	if NewCallID() == id {
		t.Error("two consecutive call IDs should differ")
	}
}

func TestValidateCallID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "call_abcdefghijklmnopqrstuvwx", true},
		{"valid digits", "call_123456789012345678901234", true},
		{"wrong prefix", "resp_abcdefghijklmnopqrstuvwx", false},
		{"too short", "call_abc", false},
		{"special chars", "call_abcdefghijklmnopqrstuv!@", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCallID(tt.id); got != tt.want {
				t.Errorf("ValidateCallID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("NewSessionID() = %q is not a UUID: %v", id, err)
	}
}
