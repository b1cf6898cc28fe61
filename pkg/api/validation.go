package api

import (
	"fmt"
	"math"
	"strings"
)

// ReasoningLevels are the accepted values for a text query's reasoning effort.
var ReasoningLevels = []string{"minimal", "low", "medium", "high"}

// VerbosityLevels are the accepted values for a text query's verbosity.
var VerbosityLevels = []string{"low", "medium", "high"}

// ValidateReasoning checks a reasoning effort value.
func ValidateReasoning(level string) *APIError {
	if !contains(ReasoningLevels, level) {
		return NewValidationError("reasoning",
			fmt.Sprintf("invalid reasoning level %q, must be one of: %s", level, strings.Join(ReasoningLevels, ", ")))
	}
	return nil
}

// ValidateVerbosity checks a verbosity value.
func ValidateVerbosity(level string) *APIError {
	if !contains(VerbosityLevels, level) {
		return NewValidationError("verbosity",
			fmt.Sprintf("invalid verbosity level %q, must be one of: %s", level, strings.Join(VerbosityLevels, ", ")))
	}
	return nil
}

// ValidateResponseFormat accepts only the empty format and "json".
func ValidateResponseFormat(format string) *APIError {
	if format != "" && format != "json" {
		return NewUnsupportedFormatError(format)
	}
	return nil
}

// NormalizeTemperature clamps t to [0, 1] and rounds it to two decimals.
func NormalizeTemperature(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return math.Round(t*100) / 100
}

// ValidateMaxTokens rejects non-positive token limits.
func ValidateMaxTokens(n int) *APIError {
	if n <= 0 {
		return NewValidationError("maxTokens", "maxTokens must be positive")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
