package svcauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNoopTracer(t *testing.T) {
	tracer := &NoopTracer{}
	ctx := context.Background()

	spanCtx, span := tracer.StartSpan(ctx, "test_span")
	assert.Equal(t, ctx, spanCtx)

	_, ok := span.(*NoopSpan)
	assert.True(t, ok, "Should return a NoopSpan")

	span.SetTag("tag", "value")
	span.SetError(errors.New("boom"))
	span.Finish()
}

func TestOpenTelemetryTracer(t *testing.T) {
	tracer := NewOpenTelemetryTracer(noop.NewTracerProvider().Tracer("test"))

	_, span := tracer.StartSpan(context.Background(), "test_span")

	_, ok := span.(*OpenTelemetrySpan)
	assert.True(t, ok, "Should return an OpenTelemetrySpan")

	span.SetTag("result", "success")
	span.SetError(errors.New("boom"))
	span.Finish()
}
