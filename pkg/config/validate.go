package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Environments))
	for i, env := range c.Environments {
		if env.ID == "" {
			errs = append(errs, fmt.Errorf("environments[%d].id is required", i))
			continue
		}
		if seen[env.ID] {
			errs = append(errs, fmt.Errorf("environments[%d].id %q is duplicated", i, env.ID))
		}
		seen[env.ID] = true
		if env.Type == "" {
			errs = append(errs, fmt.Errorf("environments[%d].type is required", i))
		}
		if env.Type == "custom" && env.Endpoint == "" {
			errs = append(errs, fmt.Errorf("environments[%d].endpoint is required for custom environments", i))
		}
	}

	for i, m := range c.Models {
		if m.Model == "" {
			errs = append(errs, fmt.Errorf("models[%d].model is required", i))
		}
		if m.EnvID != "" && !seen[m.EnvID] {
			errs = append(errs, fmt.Errorf("models[%d].env_id %q does not match any environment", i, m.EnvID))
		}
	}

	if c.Engine.DefaultEnv != "" && len(c.Environments) > 0 && !seen[c.Engine.DefaultEnv] {
		errs = append(errs, fmt.Errorf("engine.default_env %q does not match any environment", c.Engine.DefaultEnv))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Engine.MaxFeedbackDepth <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_feedback_depth must be > 0, got %d", c.Engine.MaxFeedbackDepth))
	}

	switch c.Images.RemoteUpload {
	case "url", "data":
	default:
		errs = append(errs, fmt.Errorf("images.remote_upload must be \"url\" or \"data\", got %q", c.Images.RemoteUpload))
	}
	switch c.Images.LocalDownload {
	case "uploads", "library":
	default:
		errs = append(errs, fmt.Errorf("images.local_download must be \"uploads\" or \"library\", got %q", c.Images.LocalDownload))
	}

	switch c.Storage.Type {
	case "memory", "postgres", "sqlite", "none":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", \"sqlite\" or \"none\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" {
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	switch c.Debug.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("debug.format must be \"text\" or \"json\", got %q", c.Debug.Format))
	}

	for i, s := range c.MCP.Servers {
		switch s.Transport {
		case "sse", "streamable-http":
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
	}

	return errors.Join(errs...)
}
