// Package reply normalizes heterogeneous provider output into a single
// provider-agnostic Reply.
package reply

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/query"
)

// Reply types.
const (
	TypeText      = "text"
	TypeImages    = "images"
	TypeEmbedding = "embedding"
)

// Reply is the normalized result of executing a query.
type Reply struct {
	// ID is the provider-issued continuation token, if any.
	ID string

	Result        string
	Results       []any
	Usage         api.Usage
	UsageAccuracy api.UsageAccuracy
	Type          string

	// ContentCode holds code produced by a code interpreter, kept apart
	// from the main content.
	ContentCode string

	NeedFeedbacks     []api.ToolCall
	NeedClientActions []api.ToolCall

	Query *query.Query
}

// New returns an empty text reply bound to q.
func New(q *query.Query) *Reply {
	return &Reply{
		Type:          TypeText,
		UsageAccuracy: api.AccuracyNone,
		Query:         q,
	}
}

// SetReply sets a plain textual result.
func (r *Reply) SetReply(text string) {
	r.Result = text
	r.Results = append(r.Results, text)
}

// Replace substitutes search with replace in the result and every textual
// result item.
func (r *Reply) Replace(search, replace string) {
	r.Result = strings.ReplaceAll(r.Result, search, replace)
	for i, item := range r.Results {
		if s, ok := item.(string); ok {
			r.Results[i] = strings.ReplaceAll(s, search, replace)
		}
	}
}

// SetUsage records usage unless it is less precise than what the reply
// already holds. It reports whether the usage was applied.
func (r *Reply) SetUsage(u api.Usage, accuracy api.UsageAccuracy) bool {
	if accuracy.Rank() < r.UsageAccuracy.Rank() {
		return false
	}
	r.Usage = u
	r.UsageAccuracy = api.MaxAccuracy(r.UsageAccuracy, accuracy)
	return true
}

// Units returns the billable units of the reply: tokens, else images, else
// seconds of audio.
func (r *Reply) Units() float64 {
	switch {
	case r.Usage.TotalTokens > 0:
		return float64(r.Usage.TotalTokens)
	case r.Usage.Images > 0:
		return float64(r.Usage.Images)
	default:
		return r.Usage.Seconds
	}
}

// IsEmbedding reports whether the results are vectors.
func (r *Reply) IsEmbedding() bool {
	if len(r.Results) == 0 {
		return false
	}
	_, ok := r.Results[0].([]float64)
	return ok
}

// HasPending reports whether calls still need to be executed.
func (r *Reply) HasPending() bool {
	return len(r.NeedFeedbacks) > 0 || len(r.NeedClientActions) > 0
}

// MarshalJSON renders the reply for logs and clients. Embedding vectors are
// replaced by a short description.
func (r *Reply) MarshalJSON() ([]byte, error) {
	result := any(r.Result)
	results := r.Results
	if results == nil {
		results = []any{}
	}
	if r.IsEmbedding() {
		dims := len(r.Results[0].([]float64))
		result = fmt.Sprintf("A %d-dimensional embedding was returned.", dims)
		results = []any{}
	}

	out := map[string]any{
		"result":  result,
		"results": results,
		"usage":   r.Usage,
		"system": map[string]any{
			"class": "reply",
			"type":  r.Type,
		},
	}
	if len(r.NeedFeedbacks) > 0 {
		out["needFeedbacks"] = r.NeedFeedbacks
	}
	if len(r.NeedClientActions) > 0 {
		out["needClientActions"] = r.NeedClientActions
	}
	if r.ContentCode != "" {
		out["contentCode"] = r.ContentCode
	}
	return json.Marshal(out)
}
