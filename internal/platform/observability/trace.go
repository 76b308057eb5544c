package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/storebot/internal/platform/requestctx"
)

var tracer = otel.Tracer("github.com/hanko-field/storebot/internal/platform/observability")

// TraceMiddleware starts a server span per admin request and stores trace metadata on the request context.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			ctx = withSpanTrace(ctx, span, projectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StartUpdateSpan opens a span for one inbound Telegram update.
func StartUpdateSpan(ctx context.Context, kind string, updateID int, chatID int64) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "telegram."+kind, trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.Int("telegram.update_id", updateID),
		attribute.Int64("telegram.chat_id", chatID),
	)
	return withSpanTrace(ctx, span, ""), span
}

func withSpanTrace(ctx context.Context, span trace.Span, projectID string) context.Context {
	spanCtx := span.SpanContext()
	if !spanCtx.IsValid() {
		return ctx
	}
	return requestctx.WithTrace(ctx, requestctx.TraceInfo{
		TraceID:   spanCtx.TraceID().String(),
		SpanID:    spanCtx.SpanID().String(),
		ProjectID: projectID,
	})
}
