package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceRelayOperation(t *testing.T) {
	recorder := installRecorder(t)

	_, span := TraceRelayOperation(context.Background(), "join", 10)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "relay.join", ended[0].Name())
	assert.Equal(t, int64(10), attrMap(ended[0].Attributes())[MeetingIDKey].AsInt64())
}

func TestTracePublish(t *testing.T) {
	recorder := installRecorder(t)

	_, span := TracePublish(context.Background(), "peer.p-2", "signal")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "peer.p-2", attrs[ChannelKey].AsString())
	assert.Equal(t, "signal", attrs[EventKey].AsString())
}

func TestRecordError(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "failing")
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Events(), 1)
}

func TestTraceIDFromContext(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))

	installRecorder(t)
	ctx, span := TraceHTTPRequest(context.Background(), "POST", "/api/v1/meetings/:id/join")
	defer span.End()

	assert.Len(t, TraceIDFromContext(ctx), 32)
}
