package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetBeforeInitIsNop(t *testing.T) {
	Set(nil)
	assert.NotPanics(t, func() {
		Info("before init")
		_ = Sync()
	})
}

func TestWithContextAddsTraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := WithTraceID(context.Background(), "req-42")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx = trace.ContextWithSpanContext(ctx, sc)

	WithContext(ctx).Info("hello")
	Named("collector").Info("named")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["trace_id"])
	assert.Equal(t, sc.TraceID().String(), fields["otel_trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["otel_span_id"])
	assert.Equal(t, "collector", entries[1].LoggerName)
	assert.Equal(t, "req-42", GetTraceID(ctx))
}

func TestInitWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init("debug", "json", path))
	t.Cleanup(func() { Set(nil) })

	Info("写入文件", zap.String("k", "v"))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"photoai"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestInitBadPath(t *testing.T) {
	err := Init("info", "console", filepath.Join(t.TempDir(), "missing", "dir", "app.log"))
	assert.Error(t, err)
}
