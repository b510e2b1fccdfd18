package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RouteUnmatched is reported to the observer for requests no route matched.
const RouteUnmatched = "unmatched"

// Observer receives one call per completed request. route is the matched
// ServeMux pattern without its method, or RouteUnmatched.
type Observer func(route string, status int, elapsed time.Duration)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument logs every request at debug level and reports it to observe.
// observe may be nil.
func Instrument(logger *slog.Logger, observe Observer) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			logger.DebugContext(r.Context(), "health request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("elapsed", elapsed),
				slog.String("request_id", GetRequestID(r.Context())))

			if observe != nil {
				observe(route(r), rec.status, elapsed)
			}
		})
	}
}

// route reads the pattern a ServeMux further down the chain stored on r.
func route(r *http.Request) string {
	if r.Pattern == "" {
		return RouteUnmatched
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
