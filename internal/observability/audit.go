package observability

import (
	"context"
	"time"

	"loginguard/internal/audit"
	"loginguard/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps an audit.Store with OpenTelemetry tracing and
// metrics instrumentation.
type InstrumentedStore struct {
	inner    audit.Store
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ audit.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore creates a store wrapper that records trace spans,
// operation latency histograms, and error counters for every call. backend
// names the underlying store type and is attached to every span and metric.
func NewInstrumentedStore(inner audit.Store, backend string) (*InstrumentedStore, error) {
	tracer := otel.Tracer("loginguard/audit")
	meter := otel.Meter("loginguard/audit")

	duration, err := meter.Float64Histogram(
		"audit.operation.duration",
		metric.WithDescription("Duration of audit store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"audit.operation.errors",
		metric.WithDescription("Number of audit store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		backend:  backend,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "audit."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("audit.operation", operation),
			attribute.String("audit.backend", s.backend),
		}, attrs...)...),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", s.backend),
	)

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStore) Record(ctx context.Context, ev *models.BlockEvent) error {
	ctx, span := s.startSpan(ctx, "Record", attribute.String("audit.identifier", ev.Identifier))
	start := time.Now()
	err := s.inner.Record(ctx, ev)
	s.record(ctx, span, "Record", start, err)
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error) {
	ctx, span := s.startSpan(ctx, "List",
		attribute.String("audit.identifier", filter.Identifier),
		attribute.Int("audit.limit", filter.Limit),
	)
	start := time.Now()
	events, err := s.inner.List(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("audit.result_count", len(events)))
	}
	s.record(ctx, span, "List", start, err)
	return events, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

// Close is not traced; it runs during shutdown after the tracer may be gone.
func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
