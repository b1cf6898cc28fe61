package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, AIENGINE_CONFIG env, ./config.yaml,
//     ./config.toml, /etc/aiengine/config.yaml)
//  3. AIENGINE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. AIENGINE_CONFIG environment variable
// 3. ./config.yaml, ./config.toml in the current directory
// 4. /etc/aiengine/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("AIENGINE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"config.toml",
		"/etc/aiengine/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadFile reads a YAML or TOML file (chosen by extension) into cfg.
// Fields not present in the file retain their current (default) values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnvOverrides maps AIENGINE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) error {
	stringVars := map[string]*string{
		"AIENGINE_DEFAULT_ENV":          &cfg.Engine.DefaultEnv,
		"AIENGINE_DEFAULT_MODEL":        &cfg.Engine.DefaultModel,
		"AIENGINE_FAST_DEFAULT_ENV":     &cfg.Engine.FastDefaultEnv,
		"AIENGINE_FAST_DEFAULT_MODEL":   &cfg.Engine.FastDefaultModel,
		"AIENGINE_VISION_DEFAULT_ENV":   &cfg.Engine.VisionDefaultEnv,
		"AIENGINE_VISION_DEFAULT_MODEL": &cfg.Engine.VisionDefaultModel,
		"AIENGINE_JSON_DEFAULT_ENV":     &cfg.Engine.JSONDefaultEnv,
		"AIENGINE_JSON_DEFAULT_MODEL":   &cfg.Engine.JSONDefaultModel,
		"AIENGINE_IMAGES_DEFAULT_ENV":   &cfg.Engine.ImagesDefaultEnv,
		"AIENGINE_IMAGES_DEFAULT_MODEL": &cfg.Engine.ImagesDefaultModel,
		"AIENGINE_AUDIO_DEFAULT_ENV":    &cfg.Engine.AudioDefaultEnv,
		"AIENGINE_STORAGE":              &cfg.Storage.Type,
		"AIENGINE_POSTGRES_DSN":         &cfg.Storage.Postgres.DSN,
		"AIENGINE_SQLITE_PATH":          &cfg.Storage.SQLite.Path,
		"AIENGINE_BLOB_DIR":             &cfg.Storage.Blob.Dir,
		"AIENGINE_BLOB_BASE_URL":        &cfg.Storage.Blob.BaseURL,
		"AIENGINE_AUTH_TYPE":            &cfg.Auth.Type,
		"AIENGINE_JWKS_URL":             &cfg.Auth.JWT.JWKSURL,
		"AIENGINE_DEBUG":                &cfg.Debug.Categories,
		"AIENGINE_LOG_LEVEL":            &cfg.Debug.Level,
		"AIENGINE_LOG_FORMAT":           &cfg.Debug.Format,
	}
	for name, field := range stringVars {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("AIENGINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AIENGINE_STORAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("AIENGINE_MAX_FEEDBACK_DEPTH"); v != "" {
		if depth, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxFeedbackDepth = depth
		}
	}
	if v := os.Getenv("AIENGINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.Timeout = d
		}
	}
	if v := os.Getenv("AIENGINE_RESPONSES_API"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.ResponsesAPI = b
		}
	}

	// AIENGINE_ENVIRONMENTS: JSON array of environments.
	if v := os.Getenv("AIENGINE_ENVIRONMENTS"); v != "" {
		var envs []Environment
		if err := json.Unmarshal([]byte(v), &envs); err != nil {
			return fmt.Errorf("parsing AIENGINE_ENVIRONMENTS: %w", err)
		}
		cfg.Environments = envs
	}

	// AIENGINE_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("AIENGINE_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing AIENGINE_API_KEYS: %w", err)
		}
		cfg.Auth.APIKeys = keys
	}

	// AIENGINE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("AIENGINE_MCP_SERVERS"); v != "" {
		var servers []MCPServerConfig
		if err := json.Unmarshal([]byte(v), &servers); err != nil {
			return fmt.Errorf("parsing AIENGINE_MCP_SERVERS: %w", err)
		}
		cfg.MCP.Servers = servers
	}

	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// The file field only applies when the value field is empty.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Environments {
		env := &cfg.Environments[i]
		if env.APIKeyFile != "" && env.APIKey == "" {
			val, err := readSecretFile(env.APIKeyFile)
			if err != nil {
				return fmt.Errorf("environments[%d].api_key_file: %w", i, err)
			}
			env.APIKey = val
		}
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
