package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
)

// CheckStreamError inspects a raw stream payload (with or without its
// "data:" prefix) for a JSON error object and returns it as a provider
// error. Three shapes are recognized:
//
//	{"error": {"message": ..., "code": ..., "type": ...}}
//	[{"error": {"message": ..., "status": ...}}]
//	{"type": "error", "message": ...}
//
// Payloads that are not JSON or carry no error return nil.
func CheckStreamError(data string) error {
	if !strings.Contains(data, "error") {
		return nil
	}
	payload := strings.TrimSpace(data)
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		payload = strings.TrimSpace(rest)
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil
	}

	var errVal any
	switch v := doc.(type) {
	case map[string]any:
		if e, ok := v["error"]; ok && e != nil {
			errVal = e
		} else if v["type"] == "error" {
			errVal = v
		}
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok && m["error"] != nil {
				errVal = m["error"]
				break
			}
		}
	}
	if errVal == nil {
		return nil
	}

	var message, code, typ string
	switch e := errVal.(type) {
	case string:
		message = e
	case map[string]any:
		message = stringField(e, "message")
		code = stringField(e, "code")
		typ = stringField(e, "type")
		if typ == "" {
			typ = stringField(e, "status")
		}
	}
	if message == "" {
		return api.NewProviderError("stream_error", "Unknown error in stream.", nil)
	}

	msg := "Error: " + message
	if code != "" {
		msg += " (" + code + ")"
	}
	if typ != "" {
		msg += " (" + typ + ")"
	}
	return api.NewProviderError(firstNonEmpty(code, "stream_error"), msg, nil)
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
