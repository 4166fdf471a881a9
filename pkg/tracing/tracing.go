// Package tracing sets up distributed tracing for dispatch and task-run
// spans. When OTEL_EXPORTER_OTLP_ENDPOINT is unset, Setup leaves the
// default no-op TracerProvider in place, so every Start call below costs
// a handful of stack frames and nothing is exported.
package tracing

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the package-wide source of dispatch and task-run spans.
var tracer = otel.Tracer("github.com/genobridge/genobridge")

// Setup installs a batching OTLP-HTTP exporter as the global
// TracerProvider when OTEL_EXPORTER_OTLP_ENDPOINT is set. The returned
// shutdown func flushes and closes the exporter and should run on
// process exit; it is always safe to call even when tracing never
// activated.
func Setup(ctx context.Context, serviceVersion string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "genobridged"),
		attribute.String("service.version", serviceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// StartDispatch opens a span covering one Dispatcher.Dispatch call.
func StartDispatch(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "dispatch", trace.WithAttributes(attribute.String("tool.name", toolName)))
}

// StartTaskRun opens a span covering one Task Manager execution.
func StartTaskRun(ctx context.Context, toolName, taskID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "task.run", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("task.id", taskID),
	))
}

// End records err on span, if non-nil, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
