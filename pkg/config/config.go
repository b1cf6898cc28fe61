// Package config provides unified configuration for aiengine.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. Config file, YAML or TOML (discovered or explicitly specified)
//  3. Environment variable overrides (AIENGINE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// A loaded Config also serves the option-key interface ([Options]) used by
// the query, reply, message and dispatch layers.
package config

import (
	"time"

	"github.com/brubru/aiengine/pkg/api"
)

// Config holds all configuration for aiengine.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Engine        EngineConfig        `yaml:"engine" toml:"engine"`
	Environments  []Environment       `yaml:"environments" toml:"environments"`
	Models        []CustomModel       `yaml:"models" toml:"models"`
	Images        ImagesConfig        `yaml:"images" toml:"images"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	MCP           MCPConfig           `yaml:"mcp" toml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Debug         DebugConfig         `yaml:"debug" toml:"debug"`

	// Options holds free-form option keys not covered by the typed sections.
	Options map[string]any `yaml:"options" toml:"options"`
}

// ServerConfig holds HTTP server settings of the serve command.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`                         // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size" toml:"max_body_size"`       // default: 10 MB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"` // default: 30s
}

// EngineConfig holds the default environment/model pairs per feature and
// the dispatch settings.
type EngineConfig struct {
	DefaultEnv         string        `yaml:"default_env" toml:"default_env"`
	DefaultModel       string        `yaml:"default_model" toml:"default_model"`
	FastDefaultEnv     string        `yaml:"fast_default_env" toml:"fast_default_env"`
	FastDefaultModel   string        `yaml:"fast_default_model" toml:"fast_default_model"`
	VisionDefaultEnv   string        `yaml:"vision_default_env" toml:"vision_default_env"`
	VisionDefaultModel string        `yaml:"vision_default_model" toml:"vision_default_model"`
	JSONDefaultEnv     string        `yaml:"json_default_env" toml:"json_default_env"`
	JSONDefaultModel   string        `yaml:"json_default_model" toml:"json_default_model"`
	ImagesDefaultEnv   string        `yaml:"images_default_env" toml:"images_default_env"`
	ImagesDefaultModel string        `yaml:"images_default_model" toml:"images_default_model"`
	AudioDefaultEnv    string        `yaml:"audio_default_env" toml:"audio_default_env"`
	ResponsesAPI       bool          `yaml:"responses_api" toml:"responses_api"`           // default: true
	MaxFeedbackDepth   int           `yaml:"max_feedback_depth" toml:"max_feedback_depth"` // default: 5
	Timeout            time.Duration `yaml:"timeout" toml:"timeout"`                       // default: 120s
}

// Environment is one configured AI backend account.
type Environment struct {
	ID         string          `yaml:"id" toml:"id"`
	Name       string          `yaml:"name" toml:"name"`
	Type       string          `yaml:"type" toml:"type"` // "openai", "openrouter", "custom", ...
	APIKey     string          `yaml:"api_key" toml:"api_key"`
	APIKeyFile string          `yaml:"api_key_file" toml:"api_key_file"` // _file variant for api_key
	Endpoint   string          `yaml:"endpoint" toml:"endpoint"`
	Models     []api.ModelInfo `yaml:"models" toml:"models"`
}

// HasModel reports whether the environment lists the given model.
func (e Environment) HasModel(model string) bool {
	_, ok := e.Model(model)
	return ok
}

// Model returns the model description for model, if listed.
func (e Environment) Model(model string) (api.ModelInfo, bool) {
	for _, m := range e.Models {
		if m.Model == model {
			return m, true
		}
	}
	return api.ModelInfo{}, false
}

// CustomModel is an ad-hoc model registration bound to one environment.
type CustomModel struct {
	api.ModelInfo `yaml:",inline"`
	EnvID         string `yaml:"env_id" toml:"env_id"`
}

// ImagesConfig holds settings for image attachments and generated images.
type ImagesConfig struct {
	RemoteUpload    string `yaml:"remote_upload" toml:"remote_upload"`       // "url" or "data", default: "data"
	LocalDownload   string `yaml:"local_download" toml:"local_download"`     // "uploads" or "library", default: "uploads"
	ExpiresDownload int    `yaml:"expires_download" toml:"expires_download"` // seconds, default: 3600
}

// StorageConfig holds persistence settings for discussions, usage and blobs.
type StorageConfig struct {
	Type     string         `yaml:"type" toml:"type"`         // "memory", "postgres", "sqlite" or "none", default: "memory"
	MaxSize  int            `yaml:"max_size" toml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite" toml:"sqlite"`
	Blob     BlobConfig     `yaml:"blob" toml:"blob"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" toml:"dsn"`
	DSNFile        string `yaml:"dsn_file" toml:"dsn_file"`                 // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns" toml:"max_conns"`               // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start" toml:"migrate_on_start"` // default: false
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"` // default: "aiengine.db"
}

// BlobConfig holds settings for the local blob store.
type BlobConfig struct {
	Dir     string `yaml:"dir" toml:"dir"`           // default: "uploads"
	BaseURL string `yaml:"base_url" toml:"base_url"` // public URL prefix of Dir
}

// AuthConfig holds authentication settings of the serve command.
type AuthConfig struct {
	Type      string          `yaml:"type" toml:"type"`         // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys" toml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt" toml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry. Scope selects the
// storage scope of every request made with the key.
type APIKeyConfig struct {
	Key         string `yaml:"key" toml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" toml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" toml:"subject" json:"subject"`
	Scope       string `yaml:"scope" toml:"scope" json:"scope"`
	ServiceTier string `yaml:"service_tier" toml:"service_tier" json:"service_tier"`
}

// JWTConfig holds settings of the JWT bearer token authenticator.
type JWTConfig struct {
	Issuer     string        `yaml:"issuer" toml:"issuer"`
	Audience   string        `yaml:"audience" toml:"audience"`
	JWKSURL    string        `yaml:"jwks_url" toml:"jwks_url"`
	UserClaim  string        `yaml:"user_claim" toml:"user_claim"`   // default: "sub"
	ScopeClaim string        `yaml:"scope_claim" toml:"scope_claim"` // default: "scope_id"
	TierClaim  string        `yaml:"tier_claim" toml:"tier_claim"`   // default: "tier"
	CacheTTL   time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`     // default: 1h
}

// RateLimitConfig holds per-tier request budgets. Zero disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm" toml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers" toml:"tiers"` // requests per minute by service tier
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers" toml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" toml:"name" json:"name"`
	Transport string            `yaml:"transport" toml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" toml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" toml:"headers" json:"headers,omitempty"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // default: true
	Path    string `yaml:"path" toml:"path"`       // default: "/metrics"
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	Categories string `yaml:"categories" toml:"categories"`
	Level      string `yaml:"level" toml:"level"`     // default: "INFO"
	Format     string `yaml:"format" toml:"format"`   // "text" or "json"
	Queries    bool   `yaml:"queries" toml:"queries"` // queries_debug_mode
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			ResponsesAPI:     true,
			MaxFeedbackDepth: 5,
			Timeout:          120 * time.Second,
		},
		Images: ImagesConfig{
			RemoteUpload:    "data",
			LocalDownload:   "uploads",
			ExpiresDownload: 3600,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			SQLite: SQLiteConfig{
				Path: "aiengine.db",
			},
			Blob: BlobConfig{
				Dir: "uploads",
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Debug: DebugConfig{
			Level: "INFO",
		},
	}
}

// Environment returns the environment with the given ID.
func (c *Config) Environment(id string) (Environment, bool) {
	for _, env := range c.Environments {
		if env.ID == id {
			return env, true
		}
	}
	return Environment{}, false
}
