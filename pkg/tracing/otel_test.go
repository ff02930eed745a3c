package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpansRecorded(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tr := NewWithProvider(tp, "test")

	ctx, span := tr.StartComboSpan(context.Background(), "run-1", "m", "e")
	assert.NotEmpty(t, GetTraceID(ctx))
	_, child := tr.StartTestSpan(ctx, "suppress", "suppress")
	RecordSpanError(child, errors.New("boom"))
	child.End()
	RecordSpanSuccess(span)
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "test.run", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "combo.run", spans[1].Name)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())

	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tr, err := NewTracer(Config{})
	require.NoError(t, err)
	_, span := tr.StartSpan(context.Background(), "noop")
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}
