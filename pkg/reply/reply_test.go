package reply

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brubru/aiengine/pkg/api"
	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/storage"
)

type fakeBlobs struct {
	stored []storage.Blob
	err    error
}

func (f *fakeBlobs) Store(_ context.Context, b storage.Blob) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, b)
	return "https://cdn.example.com/img-" + string(rune('0'+len(f.stored))) + ".png", nil
}

func toolChoice(id, name, args string) Choice {
	return Choice{Message: &ChoiceMessage{
		Role: api.RoleAssistant,
		ToolCalls: []ChoiceToolCall{{
			ID:       id,
			Type:     "function",
			Function: ChoiceFunctionRef{Name: name, Arguments: args},
		}},
	}}
}

func textQuery(t *testing.T, fns ...*api.Function) *query.Query {
	t.Helper()
	q := query.NewText("hi")
	q.SetFunctions(fns)
	return q
}

func mustFunction(t *testing.T, name string, opts ...api.FunctionOption) *api.Function {
	t.Helper()
	f, err := api.NewFunction(name, "", nil, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNormalizeText(t *testing.T) {
	r, err := Normalizer{}.Normalize(context.Background(), textQuery(t), []Choice{TextChoice("  Bonjour \n")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Result != "Bonjour" {
		t.Errorf("Result = %q", r.Result)
	}
	if len(r.Results) != 1 || r.HasPending() {
		t.Errorf("results=%v pending=%v", r.Results, r.HasPending())
	}
}

func TestNormalizeAccumulatesCallsAcrossChoices(t *testing.T) {
	weather := mustFunction(t, "get_weather")
	q := textQuery(t, weather)

	choices := []Choice{
		toolChoice("call_a", "get_weather", `{"city":"Paris"}`),
		toolChoice("call_b", "get_weather", `{"city":"Lyon"}`),
	}
	r, err := Normalizer{}.Normalize(context.Background(), q, choices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.NeedFeedbacks) != 2 {
		t.Fatalf("NeedFeedbacks = %d, want 2", len(r.NeedFeedbacks))
	}
	a, b := r.NeedFeedbacks[0], r.NeedFeedbacks[1]
	if a.ToolID != "call_a" || b.ToolID != "call_b" {
		t.Errorf("order = %s, %s", a.ToolID, b.ToolID)
	}
	if a.Function != weather {
		t.Error("function not resolved by name")
	}

	a.Arguments["city"] = "Nice"
	a.RawMessage.Content = "mutated"
	if b.Arguments["city"] != "Lyon" {
		t.Error("arguments shared between calls")
	}
	if b.RawMessage.Content == "mutated" {
		t.Error("raw message shared between calls")
	}
}

func TestNormalizeDropsDuplicateCallIDs(t *testing.T) {
	legacy := Choice{Message: &ChoiceMessage{FunctionCall: &ChoiceFunctionRef{Name: "get_time", Arguments: `{}`}}}
	choices := []Choice{
		toolChoice("call_1", "get_weather", `{"city":"Paris"}`),
		toolChoice("call_1", "get_weather", `{"city":"Berlin"}`),
		toolChoice("call_2", "open_modal", `{}`),
		toolChoice("call_2", "open_modal", `{}`),
		legacy,
		legacy,
	}
	q := textQuery(t, mustFunction(t, "get_weather"), mustFunction(t, "open_modal", api.WithTarget(api.TargetClient)))

	r, err := Normalizer{}.Normalize(context.Background(), q, choices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.NeedFeedbacks) != 3 {
		t.Fatalf("NeedFeedbacks = %d, want 3: %+v", len(r.NeedFeedbacks), r.NeedFeedbacks)
	}
	if first := r.NeedFeedbacks[0]; first.ToolID != "call_1" || first.Arguments["city"] != "Paris" {
		t.Errorf("kept call = %+v, want the first call_1", first)
	}
	if r.NeedFeedbacks[1].ToolID != "" || r.NeedFeedbacks[2].ToolID != "" {
		t.Errorf("legacy calls without ID were deduplicated: %+v", r.NeedFeedbacks[1:])
	}
	if len(r.NeedClientActions) != 1 {
		t.Errorf("NeedClientActions = %d, want 1", len(r.NeedClientActions))
	}
}

func TestNormalizeCopiesArePerCall(t *testing.T) {
	raw := &api.Message{Role: api.RoleAssistant, ToolCalls: []api.MessageToolCall{{ID: "c1"}, {ID: "c2"}}}
	choice := Choice{Message: &ChoiceMessage{ToolCalls: []ChoiceToolCall{
		{ID: "c1", Type: "function", Function: ChoiceFunctionRef{Name: "f", Arguments: `{}`}},
		{ID: "c2", Type: "function", Function: ChoiceFunctionRef{Name: "f", Arguments: `{}`}},
	}}}
	r, err := Normalizer{}.Normalize(context.Background(), textQuery(t), []Choice{choice}, raw)
	if err != nil {
		t.Fatal(err)
	}
	r.NeedFeedbacks[0].RawMessage.ToolCalls[0].ID = "changed"
	if r.NeedFeedbacks[1].RawMessage.ToolCalls[0].ID != "c1" || raw.ToolCalls[0].ID != "c1" {
		t.Error("raw message aliased between calls or with the input")
	}
}

func TestNormalizeUnknownFunctionIsRecorded(t *testing.T) {
	r, err := Normalizer{}.Normalize(context.Background(), textQuery(t), []Choice{toolChoice("call_x", "mystery", `{}`)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.NeedFeedbacks) != 1 {
		t.Fatalf("NeedFeedbacks = %d, want 1", len(r.NeedFeedbacks))
	}
	if r.NeedFeedbacks[0].Function != nil {
		t.Error("unknown function should stay nil")
	}
}

func TestNormalizeRoutesClientSideCalls(t *testing.T) {
	q := textQuery(t,
		mustFunction(t, "open_modal", api.WithTarget(api.TargetJS)),
		mustFunction(t, "lookup"),
	)
	choices := []Choice{
		toolChoice("c1", "open_modal", `{}`),
		toolChoice("c2", "lookup", `{}`),
	}
	r, err := Normalizer{}.Normalize(context.Background(), q, choices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.NeedClientActions) != 1 || r.NeedClientActions[0].Name != "open_modal" {
		t.Errorf("NeedClientActions = %+v", r.NeedClientActions)
	}
	if len(r.NeedFeedbacks) != 1 || r.NeedFeedbacks[0].Name != "lookup" {
		t.Errorf("NeedFeedbacks = %+v", r.NeedFeedbacks)
	}
}

func TestNormalizeLegacyFunctionCall(t *testing.T) {
	choice := Choice{Message: &ChoiceMessage{FunctionCall: &ChoiceFunctionRef{
		Name: " get_time ",
		Args: map[string]any{"tz": "UTC"},
	}}}
	r, err := Normalizer{}.Normalize(context.Background(), textQuery(t), []Choice{choice}, nil)
	if err != nil {
		t.Fatal(err)
	}
	call := r.NeedFeedbacks[0]
	if call.Type != api.ToolCallTypeFunction || call.Mode != "static" || call.ToolID != "" {
		t.Errorf("call = %+v", call)
	}
	if call.Name != "get_time" || call.Arguments["tz"] != "UTC" {
		t.Errorf("name=%q args=%v", call.Name, call.Arguments)
	}
}

func TestExtractArguments(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want map[string]any
	}{
		{"json string", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"newlines removed", "{\n\"a\":\n\"b\"\n}", map[string]any{"a": "b"}},
		{"trailing comma repaired", `{"a":"b",}`, map[string]any{"a": "b"}},
		{"not an object", `"hello"`, map[string]any{}},
		{"object", map[string]any{"k": "v"}, map[string]any{"k": "v"}},
		{"nil", nil, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractArguments(tt.in)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("ExtractArguments(%v) = %s, want %s", tt.in, gotJSON, wantJSON)
			}
		})
	}
}

func TestNormalizeTextVariants(t *testing.T) {
	choices := []Choice{
		{Text: map[string]any{"value": " first "}},
		{Text: "second"},
	}
	r, err := Normalizer{}.Normalize(context.Background(), nil, choices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Result != "second" || len(r.Results) != 2 || r.Results[0] != "first" {
		t.Errorf("result=%q results=%v", r.Result, r.Results)
	}
}

func TestNormalizeB64Image(t *testing.T) {
	blobs := &fakeBlobs{}
	n := Normalizer{
		Blobs:   blobs,
		Options: config.MapOptions{config.KeyImageLocalDownload: "library", config.KeyImageExpires: 600},
	}
	q := query.NewImage("a red bicycle")
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	r, err := n.Normalize(context.Background(), q, []Choice{{B64JSON: payload}, {B64JSON: payload}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs.stored) != 2 {
		t.Fatalf("stored %d blobs, want 2", len(blobs.stored))
	}
	if blobs.stored[0].Target != storage.TargetLibrary || blobs.stored[0].TTL != 600*time.Second {
		t.Errorf("blob target=%q ttl=%v", blobs.stored[0].Target, blobs.stored[0].TTL)
	}
	if string(blobs.stored[0].Data) != "png-bytes" {
		t.Errorf("blob data = %q", blobs.stored[0].Data)
	}
	want := "![Generated Image](https://cdn.example.com/img-1.png)\n\n![Generated Image](https://cdn.example.com/img-2.png)"
	if r.Result != want {
		t.Errorf("Result = %q", r.Result)
	}
	if r.Type != TypeImages {
		t.Errorf("Type = %q", r.Type)
	}
}

func TestNormalizeB64ImageOptOut(t *testing.T) {
	blobs := &fakeBlobs{}
	n := Normalizer{Blobs: blobs, Options: config.MapOptions{config.KeyImageLocalDownload: "library"}}
	q := query.NewImage("a cat")
	q.SetLocalDownload(nil)

	if _, err := n.Normalize(context.Background(), q, []Choice{{B64JSON: "aGk="}}, nil); err != nil {
		t.Fatal(err)
	}
	if blobs.stored[0].Target != storage.TargetUploads || blobs.stored[0].TTL != time.Hour {
		t.Errorf("opt-out blob target=%q ttl=%v", blobs.stored[0].Target, blobs.stored[0].TTL)
	}
}

func TestNormalizeB64ImageStoreFailure(t *testing.T) {
	n := Normalizer{Blobs: &fakeBlobs{err: errors.New("disk full")}}
	r, err := n.Normalize(context.Background(), query.NewImage("x"), []Choice{TextChoice("caption"), {B64JSON: "aGk="}}, nil)
	if r != nil {
		t.Errorf("reply = %+v, want nil", r)
	}
	if !api.IsType(err, api.ErrorTypeBlobMaterialization) {
		t.Fatalf("error = %v, want blob materialization error", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("cause not propagated: %v", err)
	}
}

func TestEmbeddingSerialization(t *testing.T) {
	r, err := Normalizer{}.Normalize(context.Background(), query.NewEmbed("x"), []Choice{{Embedding: []float64{0.1, 0.2, 0.3}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsEmbedding() {
		t.Fatal("expected embedding reply")
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["result"] != "A 3-dimensional embedding was returned." {
		t.Errorf("result = %v", decoded["result"])
	}
	if results := decoded["results"].([]any); len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}

func TestSetUsageNeverRegresses(t *testing.T) {
	r := New(nil)
	if !r.SetUsage(api.Usage{TotalTokens: 10}, api.AccuracyTokens) {
		t.Fatal("first usage rejected")
	}
	if r.SetUsage(api.Usage{TotalTokens: 12}, api.AccuracyEstimated) {
		t.Error("estimated usage overwrote token usage")
	}
	if r.Usage.TotalTokens != 10 || r.UsageAccuracy != api.AccuracyTokens {
		t.Errorf("usage=%+v accuracy=%q", r.Usage, r.UsageAccuracy)
	}
	price := 0.002
	r.SetUsage(api.Usage{TotalTokens: 10, Price: &price}, api.AccuracyFull)
	if r.UsageAccuracy != api.AccuracyFull || r.Units() != 10 {
		t.Errorf("accuracy=%q units=%v", r.UsageAccuracy, r.Units())
	}
}

func TestReplaceAndSetReply(t *testing.T) {
	r := New(nil)
	r.SetReply("Hello NAME")
	r.Replace("NAME", "Ada")
	if r.Result != "Hello Ada" || r.Results[0] != "Hello Ada" {
		t.Errorf("result=%q results=%v", r.Result, r.Results)
	}
}
