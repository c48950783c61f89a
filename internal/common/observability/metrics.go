package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the OpenTelemetry meter and tracer used by the
// gateway and the job worker.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer

	callCounter  otelmetric.Int64Counter
	callDuration otelmetric.Float64Histogram
	batchCounter otelmetric.Int64Counter
	jobCounter   otelmetric.Int64Counter
	jobDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		o := NewNoop()
		o.tracerProvider = tp
		o.tracer = tp.Tracer(serviceName)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o := build(provider.Meter(serviceName), tp.Tracer(serviceName))
	o.meterProvider = provider
	o.tracerProvider = tp
	return o
}

// NewNoop returns an instance that records nothing. Tests and CLI runs
// without a metrics endpoint use it.
func NewNoop() *Observability {
	return build(metricnoop.NewMeterProvider().Meter("noop"), tracenoop.NewTracerProvider().Tracer("noop"))
}

func build(meter otelmetric.Meter, tracer trace.Tracer) *Observability {
	callCounter, _ := meter.Int64Counter(
		"recommender.calls",
		otelmetric.WithDescription("Calls made to the recommendation service"),
	)
	callDuration, _ := meter.Float64Histogram(
		"recommender.call.duration",
		otelmetric.WithDescription("Recommendation service call duration"),
		otelmetric.WithUnit("ms"),
	)
	batchCounter, _ := meter.Int64Counter(
		"ingest.batches",
		otelmetric.WithDescription("Ingestion batches sent"),
	)
	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meter:        meter,
		tracer:       tracer,
		callCounter:  callCounter,
		callDuration: callDuration,
		batchCounter: batchCounter,
		jobCounter:   jobCounter,
		jobDuration:  jobDuration,
	}
}

// StartSpan opens a span named after the service operation. End it with
// EndSpan.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (o *Observability) RecordCall(ctx context.Context, operation, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.callCounter != nil {
		o.callCounter.Add(ctx, 1, attrs)
	}
	if o.callDuration != nil {
		o.callDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordBatch(ctx context.Context, kind, outcome string) {
	if o == nil || o.batchCounter == nil {
		return
	}
	o.batchCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o != nil && o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o != nil && o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		o.tracerProvider.Shutdown(ctx)
	}
}
