package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry tracer
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config holds tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	JaegerEndpoint string // empty: spans go to the global provider
	Environment    string
}

// NewTracer creates a new OpenTelemetry tracer
func NewTracer(config Config) (*Tracer, error) {
	if config.ServiceName == "" {
		config.ServiceName = "readiness"
	}
	if config.JaegerEndpoint == "" {
		return &Tracer{tracer: otel.Tracer(config.ServiceName)}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer:   tp.Tracer(config.ServiceName),
		provider: tp,
	}, nil
}

// NewWithProvider builds a tracer over an explicit provider, used by tests with an in-memory exporter
func NewWithProvider(tp *sdktrace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), provider: tp}
}

// NewNop returns a tracer on the global provider
func NewNop() *Tracer {
	return &Tracer{tracer: otel.Tracer("readiness")}
}

// OrNop returns t, or a global-provider tracer when t is nil
func OrNop(t *Tracer) *Tracer {
	if t == nil {
		return NewNop()
	}
	return t
}

// StartSpan starts a new span
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartInferenceSpan starts a span for a gateway call
func (t *Tracer) StartInferenceSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "inference.chat", trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	))
}

// StartComboSpan starts a span for one (main, executor) combo
func (t *Tracer) StartComboSpan(ctx context.Context, runID, main, executor string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "combo.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("combo.main", main),
		attribute.String("combo.executor", executor),
	))
}

// StartTestSpan starts a span for one test execution
func (t *Tracer) StartTestSpan(ctx context.Context, testID, category string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "test.run", trace.WithAttributes(
		attribute.String("test.id", testID),
		attribute.String("test.category", category),
	))
}

// StartAssessmentSpan starts a span for a readiness assessment
func (t *Tracer) StartAssessmentSpan(ctx context.Context, runID, mode, main, executor string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "readiness.assess", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("readiness.mode", mode),
		attribute.String("readiness.main", main),
		attribute.String("readiness.executor", executor),
	))
}

// StartDistillSpan starts a span for a distillation attempt
func (t *Tracer) StartDistillSpan(ctx context.Context, teacher, student, capability string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "distill.run", trace.WithAttributes(
		attribute.String("distill.teacher", teacher),
		attribute.String("distill.student", student),
		attribute.String("distill.capability", capability),
	))
}

// AddSpanAttributes adds attributes to a span
func AddSpanAttributes(span trace.Span, attrs map[string]interface{}) {
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		case []string:
			span.SetAttributes(attribute.StringSlice(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
}

// RecordSpanError records an error in a span
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanSuccess records success in a span
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "success")
}

// RecordSpanDuration records duration in a span
func RecordSpanDuration(span trace.Span, duration time.Duration) {
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Nanoseconds())/1e6))
}

// RecordSpanTokens records token usage in a span
func RecordSpanTokens(span trace.Span, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.Int("tokens.input", inputTokens),
		attribute.Int("tokens.output", outputTokens),
		attribute.Int("tokens.total", inputTokens+outputTokens),
	)
}

// Shutdown flushes and stops the exporter, if one was configured
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
