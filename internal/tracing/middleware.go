package tracing

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware returns a chi-compatible middleware that extracts incoming
// W3C trace context, creates a server span for each request, and records the
// response status on it.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := Tracer().Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
				semconv.ServerAddress(r.Host),
				semconv.UserAgentOriginal(r.UserAgent()),
			),
		)
		defer span.End()

		sw := &StatusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(semconv.HTTPResponseStatusCode(sw.Status()))
		if sw.Status() >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sw.Status()))
		}
	})
}

// StatusWriter wraps http.ResponseWriter to capture the written status code.
// A write counts once the wrapped writer has returned from it.
type StatusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// Status returns the status code written so far, defaulting to 200.
func (sw *StatusWriter) Status() int {
	if !sw.written {
		return http.StatusOK
	}
	return sw.status
}

// Written reports whether a header or body has been sent.
func (sw *StatusWriter) Written() bool {
	return sw.written
}

func (sw *StatusWriter) WriteHeader(code int) {
	sw.ResponseWriter.WriteHeader(code)
	if !sw.written {
		sw.status = code
		sw.written = true
	}
}

func (sw *StatusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	if !sw.written {
		sw.status = http.StatusOK
		sw.written = true
	}
	return n, err
}

// Flush implements http.Flusher when the underlying writer supports it.
func (sw *StatusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
