package provider

import (
	"github.com/brubru/aiengine/pkg/api"
)

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps Capabilities, req *Request) *api.APIError {
	if req.Stream && !caps.Streaming {
		return api.NewValidationError("stream",
			"the configured provider does not support streaming responses")
	}

	if hasFunctionTools(req.Tools) && !caps.ToolCalling {
		return api.NewValidationError("functions",
			"the configured provider does not support function calling")
	}

	if !caps.Vision {
		for _, m := range req.Messages {
			if hasImagePart(m.Content) {
				return api.NewValidationError("file",
					"the configured provider does not support image inputs")
			}
		}
		for _, it := range req.Input {
			if hasImagePart(it.Content) {
				return api.NewValidationError("file",
					"the configured provider does not support image inputs")
			}
		}
	}

	return nil
}

func hasFunctionTools(tools []Tool) bool {
	for _, t := range tools {
		if t.Function != nil {
			return true
		}
	}
	return false
}

func hasImagePart(content any) bool {
	parts, ok := content.([]ContentPart)
	if !ok {
		return false
	}
	for _, p := range parts {
		if p.Type == "image_url" || p.Type == "input_image" {
			return true
		}
	}
	return false
}
