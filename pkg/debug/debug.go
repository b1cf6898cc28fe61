// Package debug provides category-based debug logging.
//
// Categories select what is logged (AIENGINE_DEBUG, comma separated); the
// level selects how much (AIENGINE_LOG_LEVEL). Both environment variables
// override the configuration passed to Init.
//
//	debug.Log(debug.CategoryProviders, "request", "url", url)
//	if debug.Enabled(debug.CategoryProviders) { ... }
package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

const (
	CategoryQueries    = "queries"
	CategoryProviders  = "providers"
	CategoryEngine     = "engine"
	CategoryStreaming  = "streaming"
	CategoryContinuity = "continuity"
	CategoryMCP        = "mcp"
	CategoryStorage    = "storage"
	CategoryConfig     = "config"
	CategoryAll        = "all"
)

// LevelTrace sits below slog.LevelDebug. At TRACE dumps are not truncated.
const LevelTrace = slog.LevelDebug - 4

const dumpLimit = 2000

// redacted lists the JSON keys whose values Dump never prints.
var redacted = []string{"apikey", "api_key", "authorization", "password", "secret", "token"}

// Settings is the startup configuration of the package.
type Settings struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
	// Queries turns on CategoryQueries regardless of Categories.
	Queries bool
}

var categories atomic.Pointer[map[string]bool]

func init() {
	setCategories(parseCategories(os.Getenv("AIENGINE_DEBUG")))
}

// Init installs the default slog logger on stderr and the enabled
// categories.
func Init(s Settings) {
	InitWriter(os.Stderr, s)
}

// InitWriter is Init with an explicit log destination.
func InitWriter(w io.Writer, s Settings) {
	cats := parseCategories(envOr("AIENGINE_DEBUG", s.Categories))
	if s.Queries {
		cats[CategoryQueries] = true
	}
	setCategories(cats)

	opts := &slog.HandlerOptions{Level: ParseLevel(envOr("AIENGINE_LOG_LEVEL", s.Level))}
	var h slog.Handler
	if strings.EqualFold(s.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func Enabled(category string) bool {
	m := *categories.Load()
	return m[CategoryAll] || m[category]
}

// Log emits a DEBUG record tagged with category when it is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether category is enabled and the logger
// accepts TRACE records.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw prints text unformatted to stderr at TRACE.
func Raw(category string, text string) {
	if TraceIsEnabled(category) {
		fmt.Fprintln(os.Stderr, text)
	}
}

// Dump logs v encoded as JSON with secrets masked. Below TRACE the body is
// truncated.
func Dump(category string, msg string, v any) {
	if !Enabled(category) {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		Log(category, msg, "encode_error", err.Error())
		return
	}
	body := Redact(data)
	if !TraceIsEnabled(category) {
		body = Truncate(body, dumpLimit)
	}
	Log(category, msg, "body", body)
}

// Redact masks the values of secret-looking keys in a JSON document. Input
// that is not JSON is returned unchanged.
func Redact(data []byte) string {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return string(data)
	}
	out, err := json.Marshal(redact(doc))
	if err != nil {
		return string(data)
	}
	return string(out)
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if slices.Contains(redacted, strings.ToLower(k)) {
				if s, ok := val.(string); ok && s != "" {
					t[k] = "***"
				}
				continue
			}
			t[k] = redact(val)
		}
	case []any:
		for i := range t {
			t[i] = redact(t[i])
		}
	}
	return v
}

// ParseLevel maps TRACE, DEBUG, INFO, WARN(ING) and ERROR to slog levels.
// Anything else is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	m := *categories.Load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func setCategories(m map[string]bool) {
	categories.Store(&m)
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for cat := range strings.SplitSeq(s, ",") {
		if cat = strings.ToLower(strings.TrimSpace(cat)); cat != "" {
			m[cat] = true
		}
	}
	return m
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
