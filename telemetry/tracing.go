// Package telemetry provides ready-made events.Logger subscribers: an
// OpenTelemetry tracing exporter and a Prometheus metrics collector.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/quivergql/quiver/events"
)

// Tracing configures an OTLP trace exporter and returns an events.Logger
// that opens one span per fetch, correlated by request ID. An empty
// endpoint returns a no-op logger.
func Tracing(endpoint, service string) (events.Logger, func(context.Context) error, error) {
	if endpoint == "" {
		return events.Nop, func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("quiver")}
	return sub.log, tp.Shutdown, nil
}

type subscriber struct {
	tracer     trace.Tracer
	fetchSpans sync.Map // request id -> trace.Span
}

func (s *subscriber) log(e events.Event) {
	switch ev := e.(type) {
	case events.FetchStart:
		_, span := s.tracer.Start(context.Background(), "quiver.fetch")
		span.SetAttributes(attribute.String("graphql.operation.name", ev.Operation))
		s.fetchSpans.Store(ev.RequestID, span)
	case events.FetchPayload:
		if v, ok := s.fetchSpans.Load(ev.RequestID); ok {
			v.(trace.Span).AddEvent("payload", trace.WithAttributes(attribute.Bool("final", ev.Final)))
		}
	case events.FetchFinish:
		v, ok := s.fetchSpans.LoadAndDelete(ev.RequestID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if ev.Err != nil {
			span.RecordError(ev.Err)
		}
		span.End()
	case events.StoreGC:
		_, span := s.tracer.Start(context.Background(), "quiver.store.gc",
			trace.WithTimestamp(timeNow().Add(-ev.Duration)))
		span.SetAttributes(
			attribute.Int("gc.live", ev.Live),
			attribute.Int("gc.collected", ev.Collected),
		)
		span.End()
	}
}
