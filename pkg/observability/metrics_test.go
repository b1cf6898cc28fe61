package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"aiengine_requests_total":               false,
		"aiengine_request_duration_seconds":     false,
		"aiengine_streaming_connections_active": false,
		"aiengine_provider_requests_total":      false,
		"aiengine_provider_latency_seconds":     false,
		"aiengine_provider_tokens_total":        false,
		"aiengine_tool_executions_total":        false,
		"aiengine_fallbacks_total":              false,
		"aiengine_feedback_turns_total":         false,
		"aiengine_continuity_lookups_total":     false,
		"aiengine_ratelimit_rejected_total":     false,
		"aiengine_events_total":                 false,
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	// Vectors are only gathered once a child exists.
	RequestsTotal.WithLabelValues("GET", "2xx", "test").Inc()
	RequestDuration.WithLabelValues("GET", "test").Observe(0.1)
	ProviderRequestsTotal.WithLabelValues("openai", "test", "ok").Inc()
	ProviderLatency.WithLabelValues("openai", "test").Observe(0.1)
	ProviderTokensTotal.WithLabelValues("openai", "test", "input").Add(10)
	ToolExecutionsTotal.WithLabelValues("test_tool", "ok").Inc()
	FallbacksTotal.WithLabelValues("env-1", "test").Inc()
	FeedbackTurnsTotal.WithLabelValues("continued").Inc()
	ContinuityLookupsTotal.WithLabelValues("hit").Inc()
	RateLimitRejectedTotal.WithLabelValues("default").Inc()
	EventsTotal.WithLabelValues("live", "content").Inc()

	families, err = prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error after seeding: %v", err)
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		handler http.HandlerFunc
		class   string
		kind    string
	}{
		{
			name:    "implicit 200",
			method:  http.MethodGet,
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			class:   "2xx",
			kind:    "unknown",
		},
		{
			name:    "client error",
			method:  http.MethodPost,
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			class:   "4xx",
			kind:    "unknown",
		},
		{
			name:   "first status wins",
			method: http.MethodPost,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.WriteHeader(http.StatusOK)
			},
			class: "5xx",
			kind:  "unknown",
		},
		{
			name:   "kind reported by the handler",
			method: http.MethodPost,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(KindHeader, "embed")
				w.WriteHeader(http.StatusOK)
			},
			class: "2xx",
			kind:  "embed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := counterValue(t, RequestsTotal, tt.method, tt.class, tt.kind)
			beforeObs := histogramCount(t, RequestDuration, tt.method, tt.kind)

			MetricsMiddleware(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/v1/query", nil))

			if d := counterValue(t, RequestsTotal, tt.method, tt.class, tt.kind) - before; d != 1 {
				t.Errorf("requests_total{%s,%s,%s} delta = %v, want 1", tt.method, tt.class, tt.kind, d)
			}
			if d := histogramCount(t, RequestDuration, tt.method, tt.kind) - beforeObs; d != 1 {
				t.Errorf("request_duration observations delta = %d, want 1", d)
			}
		})
	}
}

func TestMetricsMiddleware_StreamingGauge(t *testing.T) {
	baseline := gaugeValue(t, StreamingConnections)

	var during float64
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gaugeValue(t, StreamingConnections)
		w.(http.Flusher).Flush()
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Accept", "text/event-stream, application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if during != baseline+1 {
		t.Errorf("gauge during request = %v, want %v", during, baseline+1)
	}
	if after := gaugeValue(t, StreamingConnections); after != baseline {
		t.Errorf("gauge after request = %v, want %v", after, baseline)
	}
	if !rec.Flushed {
		t.Error("flush did not reach the underlying writer")
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// gaugeValue reads the current value of a Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
