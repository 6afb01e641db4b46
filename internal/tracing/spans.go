package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// StartUpstreamSpan creates a client span for one outbound call.
func StartUpstreamSpan(ctx context.Context, operation, method, url string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upstream."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.operation", operation),
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		),
	)
}

// SetResponseStatus records the upstream HTTP status on the current span.
func SetResponseStatus(ctx context.Context, code int) {
	trace.SpanFromContext(ctx).SetAttributes(semconv.HTTPResponseStatusCode(code))
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into the outbound request headers.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetChatAttributes records how a chat turn was assembled on the current span.
func SetChatAttributes(ctx context.Context, productsOK, policiesOK, replyOK bool) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Bool("chat.products_ok", productsOK),
		attribute.Bool("chat.policies_ok", policiesOK),
		attribute.Bool("chat.reply_ok", replyOK),
	)
}

// RecordError records an error on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
