package engine

import (
	"fmt"
	"log/slog"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/query"
)

// assistantModel is the placeholder model of queries served by a stored
// assistant, which carries its own model.
const assistantModel = "n/a"

// Resolve fills in the environment and model of q and attaches the model
// description.
//
//   - An assistant query with an environment and an assistant ID gets the
//     placeholder model "n/a".
//   - Without environment and model, the feature default pair is used.
//   - With a model only, the environment is looked up in the custom model
//     registrations first, then in the model lists of the environments.
//   - With an environment only, the default model of that environment is
//     used.
//
// A query left without environment fails with the environment_required
// resolution error.
func (e *Engine) Resolve(q *query.Query) error {
	if q.Kind == query.KindAssistant && q.EnvID != "" && q.Assistant != nil && q.Assistant.AssistantID != "" {
		q.Model = assistantModel
		return nil
	}

	switch q.Kind {
	case query.KindEmbed:
		if q.EnvID == "" {
			q.EnvID = q.EmbeddingsEnvID
		}
	case query.KindTranscribe:
		if q.EnvID == "" {
			q.EnvID = config.String(e.opts, config.KeyAudioDefaultEnv, "")
		}
	}

	switch {
	case q.EnvID == "" && q.Model == "":
		q.EnvID, q.Model = e.defaultPair(q)
	case q.EnvID == "":
		if envID, info, ok := e.findModel(q.Model); ok {
			q.EnvID = envID
			q.SetModelInfo(&info)
		} else {
			q.EnvID, _ = e.defaultPair(q)
			slog.Warn("model not registered in any environment, using the default environment",
				"model", q.Model, "env", q.EnvID)
		}
	case q.Model == "":
		q.Model = e.defaultModel(q)
	}

	if q.EnvID == "" {
		return api.NewEnvironmentRequiredError()
	}
	env, ok := config.FindEnvironment(e.opts, q.EnvID)
	if !ok {
		return api.NewResolutionError("envId", fmt.Sprintf("the environment %q is not configured", q.EnvID))
	}
	if q.Model == "" {
		return api.NewResolutionError("model", fmt.Sprintf("no model is available for the environment %q", env.ID))
	}
	if q.ModelInfo == nil || q.ModelInfo.Model != q.Model {
		if info, ok := e.modelInfo(env, q.Model); ok {
			q.SetModelInfo(&info)
		}
	}
	return nil
}

// defaultKeys returns the option keys holding the default pair of the
// query's feature.
func defaultKeys(q *query.Query) (envKey, modelKey string) {
	switch {
	case q.Kind == query.KindTranscribe:
		return config.KeyAudioDefaultEnv, ""
	case q.IsImageClass():
		return config.KeyImagesDefaultEnv, config.KeyImagesDefaultModel
	case q.File != nil && q.File.IsImage():
		return config.KeyVisionDefaultEnv, config.KeyVisionDefaultModel
	case q.Text != nil && q.Text.ResponseFormat == "json":
		return config.KeyJSONDefaultEnv, config.KeyJSONDefaultModel
	}
	return config.KeyDefaultEnv, config.KeyDefaultModel
}

// defaultPair returns the feature default pair, falling back to the
// general default when the feature has none.
func (e *Engine) defaultPair(q *query.Query) (envID, model string) {
	envKey, modelKey := defaultKeys(q)
	envID = config.String(e.opts, envKey, "")
	if modelKey != "" {
		model = config.String(e.opts, modelKey, "")
	}
	if envID == "" {
		envID = config.String(e.opts, config.KeyDefaultEnv, "")
		if model == "" && !q.IsImageClass() {
			model = config.String(e.opts, config.KeyDefaultModel, "")
		}
	}
	if model == "" && envID != "" {
		scoped := *q
		scoped.EnvID = envID
		model = e.defaultModel(&scoped)
	}
	return envID, model
}

// defaultModel returns the default model of q.EnvID: the configured
// default when that environment is the feature or general default, else
// the first model the environment lists.
func (e *Engine) defaultModel(q *query.Query) string {
	envKey, modelKey := defaultKeys(q)
	if modelKey != "" && config.String(e.opts, envKey, "") == q.EnvID {
		if m := config.String(e.opts, modelKey, ""); m != "" {
			return m
		}
	}
	if !q.IsImageClass() && config.String(e.opts, config.KeyDefaultEnv, "") == q.EnvID {
		if m := config.String(e.opts, config.KeyDefaultModel, ""); m != "" {
			return m
		}
	}
	if env, ok := config.FindEnvironment(e.opts, q.EnvID); ok && len(env.Models) > 0 {
		return env.Models[0].Model
	}
	return ""
}

// findModel looks model up in the custom registrations, then in the model
// lists of the environments.
func (e *Engine) findModel(model string) (string, api.ModelInfo, bool) {
	for _, m := range config.CustomModels(e.opts) {
		if m.Model == model && m.EnvID != "" {
			return m.EnvID, m.ModelInfo, true
		}
	}
	for _, env := range config.Environments(e.opts) {
		if info, ok := env.Model(model); ok {
			return env.ID, info, true
		}
	}
	return "", api.ModelInfo{}, false
}

func (e *Engine) modelInfo(env config.Environment, model string) (api.ModelInfo, bool) {
	for _, m := range config.CustomModels(e.opts) {
		if m.Model == model && m.EnvID == env.ID {
			return m.ModelInfo, true
		}
	}
	return env.Model(model)
}
