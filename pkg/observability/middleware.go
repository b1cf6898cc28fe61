package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// KindHeader is set by the query handler to the kind of the served query;
// MetricsMiddleware uses it as the kind label.
const KindHeader = "X-Query-Kind"

// MetricsMiddleware records aiengine_requests_total and
// aiengine_request_duration_seconds per method and query kind, and tracks
// open SSE consumers in aiengine_streaming_connections_active.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		kind := sw.Header().Get(KindHeader)
		if kind == "" {
			kind = "unknown"
		}
		RequestsTotal.WithLabelValues(r.Method, statusClass(sw.code()), kind).Inc()
		RequestDuration.WithLabelValues(r.Method, kind).Observe(time.Since(start).Seconds())
	})
}

// statusClass turns 404 into "4xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusWriter remembers the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush lets SSE responses pass through the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
