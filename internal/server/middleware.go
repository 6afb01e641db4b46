package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/tracing"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 128

// RequestID tags each request with an ID, reusing a caller-supplied one when
// it is short enough, and echoes it in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observe.WithRequestID(r.Context(), id)))
	})
}

// knownMethods bounds the method label so arbitrary verbs cannot grow the
// metric series.
var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodOptions: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
}

// Instrument counts and logs every request once it completes.
func Instrument(observer observe.Observer, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			collector.IncrementActive()
			defer collector.DecrementActive()

			sw := &tracing.StatusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			method := r.Method
			if !knownMethods[method] {
				method = "OTHER"
			}
			collector.RecordRequest(method, sw.Status())

			level := zerolog.InfoLevel
			if r.Method == http.MethodOptions || r.Method == http.MethodGet {
				level = zerolog.DebugLevel
			}
			observer.Log(r.Context(), level, "http.request", observe.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sw.Status(),
				"remote":      r.RemoteAddr,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
