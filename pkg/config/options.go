package config

import (
	"strconv"
)

// Option keys understood by the engine.
const (
	KeyDefaultEnv         = "ai_default_env"
	KeyDefaultModel       = "ai_default_model"
	KeyFastDefaultEnv     = "ai_fast_default_env"
	KeyFastDefaultModel   = "ai_fast_default_model"
	KeyVisionDefaultEnv   = "ai_vision_default_env"
	KeyVisionDefaultModel = "ai_vision_default_model"
	KeyJSONDefaultEnv     = "ai_json_default_env"
	KeyJSONDefaultModel   = "ai_json_default_model"
	KeyImagesDefaultEnv   = "ai_images_default_env"
	KeyImagesDefaultModel = "ai_images_default_model"
	KeyAudioDefaultEnv    = "ai_audio_default_env"
	KeyEnvs               = "ai_envs"
	KeyModels             = "ai_models"
	KeyResponsesAPI       = "ai_responses_api"
	KeyImageRemoteUpload  = "image_remote_upload"
	KeyImageLocalDownload = "image_local_download"
	KeyImageExpires       = "image_expires_download"
	KeyQueriesDebugMode   = "queries_debug_mode"
	KeyMaxFeedbackDepth   = "ai_max_feedback_depth"
)

// Options is the read side of the option storage: it returns the value of
// key, or def when the key is unset.
type Options interface {
	Get(key string, def any) any
}

// MapOptions is an in-memory Options backed by a plain map.
type MapOptions map[string]any

// Get returns the value stored under key, or def.
func (m MapOptions) Get(key string, def any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return def
}

// Get implements Options over the typed configuration. Keys without a typed
// home are looked up in the free-form Options map.
func (c *Config) Get(key string, def any) any {
	switch key {
	case KeyDefaultEnv:
		return orDefault(c.Engine.DefaultEnv, def)
	case KeyDefaultModel:
		return orDefault(c.Engine.DefaultModel, def)
	case KeyFastDefaultEnv:
		return orDefault(c.Engine.FastDefaultEnv, def)
	case KeyFastDefaultModel:
		return orDefault(c.Engine.FastDefaultModel, def)
	case KeyVisionDefaultEnv:
		return orDefault(c.Engine.VisionDefaultEnv, def)
	case KeyVisionDefaultModel:
		return orDefault(c.Engine.VisionDefaultModel, def)
	case KeyJSONDefaultEnv:
		return orDefault(c.Engine.JSONDefaultEnv, def)
	case KeyJSONDefaultModel:
		return orDefault(c.Engine.JSONDefaultModel, def)
	case KeyImagesDefaultEnv:
		return orDefault(c.Engine.ImagesDefaultEnv, def)
	case KeyImagesDefaultModel:
		return orDefault(c.Engine.ImagesDefaultModel, def)
	case KeyAudioDefaultEnv:
		return orDefault(c.Engine.AudioDefaultEnv, def)
	case KeyResponsesAPI:
		return c.Engine.ResponsesAPI
	case KeyMaxFeedbackDepth:
		return c.Engine.MaxFeedbackDepth
	case KeyEnvs:
		return c.Environments
	case KeyModels:
		return c.Models
	case KeyImageRemoteUpload:
		return orDefault(c.Images.RemoteUpload, def)
	case KeyImageLocalDownload:
		return orDefault(c.Images.LocalDownload, def)
	case KeyImageExpires:
		return c.Images.ExpiresDownload
	case KeyQueriesDebugMode:
		return c.Debug.Queries
	}
	if v, ok := c.Options[key]; ok && v != nil {
		return v
	}
	return def
}

func orDefault(v string, def any) any {
	if v == "" {
		return def
	}
	return v
}

// ---------------------------------------------------------------------------
// Typed accessors
// ---------------------------------------------------------------------------

// String reads key as a string.
func String(o Options, key, def string) string {
	switch v := o.Get(key, def).(type) {
	case string:
		if v == "" {
			return def
		}
		return v
	case nil:
		return def
	default:
		return def
	}
}

// Int reads key as an int, accepting numeric strings.
func Int(o Options, key string, def int) int {
	switch v := o.Get(key, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool reads key as a bool, accepting "1"/"true" style strings.
func Bool(o Options, key string, def bool) bool {
	switch v := o.Get(key, def).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	case int:
		return v != 0
	}
	return def
}

// Environments reads the ai_envs option.
func Environments(o Options) []Environment {
	if envs, ok := o.Get(KeyEnvs, nil).([]Environment); ok {
		return envs
	}
	return nil
}

// CustomModels reads the ai_models option.
func CustomModels(o Options) []CustomModel {
	if models, ok := o.Get(KeyModels, nil).([]CustomModel); ok {
		return models
	}
	return nil
}

// FindEnvironment returns the ai_envs entry with the given ID.
func FindEnvironment(o Options, id string) (Environment, bool) {
	for _, env := range Environments(o) {
		if env.ID == id {
			return env, true
		}
	}
	return Environment{}, false
}
