package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/provider"
	"github.com/brubru/aiengine/pkg/provider/openaicompat"
	"github.com/brubru/aiengine/pkg/provider/responses"
)

// Factory creates the provider serving one environment.
type Factory func(env config.Environment, s Settings) (provider.Provider, error)

// Settings are the engine-wide values a Factory may need.
type Settings struct {
	Timeout time.Duration

	// ResponsesAPI selects the Responses protocol for OpenAI environments.
	ResponsesAPI bool
}

// Environment types with a built-in factory.
const (
	EnvOpenAI     = "openai"
	EnvAzure      = "azure"
	EnvOpenRouter = "openrouter"
	EnvMistral    = "mistral"
	EnvPerplexity = "perplexity"
	EnvCustom     = "custom"
)

// builtinFactories maps each environment type to its provider factory.
func builtinFactories() map[string]Factory {
	return map[string]Factory{
		EnvOpenAI:     newOpenAI,
		EnvAzure:      newAzure,
		EnvOpenRouter: compatible("https://openrouter.ai/api/v1"),
		EnvMistral:    compatible("https://api.mistral.ai/v1"),
		EnvPerplexity: compatible("https://api.perplexity.ai"),
		EnvCustom:     newCustom,
	}
}

// EnvironmentTypes lists the environment types an engine can serve.
func (e *Engine) EnvironmentTypes() []string {
	return slices.Sorted(maps.Keys(e.factories))
}

func newOpenAI(env config.Environment, s Settings) (provider.Provider, error) {
	baseURL := endpoint(env, "https://api.openai.com/v1")
	if !s.ResponsesAPI {
		return newCompat(env, baseURL, s, "")
	}
	p, err := responses.New(responses.Config{
		Name:    env.Type,
		BaseURL: baseURL,
		APIKey:  env.APIKey,
		Timeout: s.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newAzure(env config.Environment, s Settings) (provider.Provider, error) {
	if env.Endpoint == "" {
		return nil, fmt.Errorf("environment %s: azure requires an endpoint", env.ID)
	}
	return newCompat(env, strings.TrimRight(env.Endpoint, "/")+"/openai/v1", s, "api-key")
}

func newCustom(env config.Environment, s Settings) (provider.Provider, error) {
	if env.Endpoint == "" {
		return nil, fmt.Errorf("environment %s: custom requires an endpoint", env.ID)
	}
	return newCompat(env, env.Endpoint, s, "")
}

// compatible returns a factory for Chat Completions backends living at a
// well-known address. The environment endpoint, when set, wins.
func compatible(baseURL string) Factory {
	return func(env config.Environment, s Settings) (provider.Provider, error) {
		return newCompat(env, endpoint(env, baseURL), s, "")
	}
}

func newCompat(env config.Environment, baseURL string, s Settings, authHeader string) (provider.Provider, error) {
	p, err := openaicompat.New(openaicompat.Config{
		Name:       env.Type,
		BaseURL:    baseURL,
		APIKey:     env.APIKey,
		AuthHeader: authHeader,
		Timeout:    s.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func endpoint(env config.Environment, def string) string {
	if env.Endpoint != "" {
		return env.Endpoint
	}
	return def
}
