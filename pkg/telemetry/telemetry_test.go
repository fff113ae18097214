package telemetry_test

import (
	"context"
	"testing"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestTraceIDEmptyWithoutSpan(t *testing.T) {
	assert.Empty(t, telemetry.TraceID(context.Background()))
}

func TestTraceIDFromRecordedSpan(t *testing.T) {
	provider := trace.NewTracerProvider()
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	ctx, span := provider.Tracer("").Start(context.Background(), "test")
	defer span.End()

	traceID := telemetry.TraceID(ctx)
	assert.Len(t, traceID, 32)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)
}
