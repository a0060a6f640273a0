package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agasthyaps/nisa-labs-sub000/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code. It keeps the
// Flusher passthrough alive for the SSE handlers.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(time.Since(start).Seconds())
	})
}

var knownPaths = map[string]bool{
	"/health":          true,
	"/metrics":         true,
	"/auth/register":   true,
	"/auth/login":      true,
	"/auth/guest":      true,
	"/mini-chat":       true,
	"/chat":            true,
	"/chat/visibility": true,
	"/history":         true,
	"/vote":            true,
}

// normalizePath collapses unrouted paths so probe traffic cannot inflate the
// path label's cardinality.
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "/other"
}
