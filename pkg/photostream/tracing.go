package photostream

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/zfogg/photostream/cli/pkg/photostream"

// traceRequest starts a client span for one orchestrated request. The HTTP
// spans created by the transport nest under it.
func traceRequest(ctx context.Context, kind RequestKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "photostream."+kind.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("photostream.request", kind.String()),
		}, attrs...)...),
	)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
