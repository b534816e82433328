package gateway

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingMiddleware logs each request with the tier that served it, so cache
// hits, shell fallbacks, and upstream round-trips are distinguishable in the
// log stream.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		source := wrapped.Header().Get(SourceHeader)
		if source == "" {
			source = "none"
		}
		slog.Info("request",
			"component", "gateway",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"source", source,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}
