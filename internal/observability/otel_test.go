package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "autoapi-test", ServiceVersion: "1.0.0", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.provider)
	require.NotNil(t, mp.exporter)

	metrics, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	require.NotNil(t, metrics.operationDuration)
	require.NotNil(t, metrics.hookDuration)

	ctx := context.Background()
	metrics.RecordOperation(ctx, "products", "query", 3*time.Millisecond, "")
	metrics.RecordOperation(ctx, "products", "add", time.Millisecond, "invalid_input")
	metrics.RecordBatchQueriesSaved(ctx, 4, "one-to-many")

	assert.NoError(t, mp.Shutdown(ctx, discardLogger()))
}

func TestNilAPIMetricsRecordNothing(t *testing.T) {
	var metrics *APIMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		metrics.RecordOperation(ctx, "products", "query", time.Millisecond, "")
		metrics.RecordHook(ctx, "beforeResolver", time.Millisecond, true)
		metrics.IncrementActiveRequests(ctx)
		metrics.DecrementActiveRequests(ctx)
	})
}

func TestInitTracerProvider_Protocols(t *testing.T) {
	ctx := context.Background()
	for _, protocol := range []string{"grpc", "http/protobuf"} {
		t.Run(protocol, func(t *testing.T) {
			tp, err := InitTracerProvider(ctx, Config{
				ServiceName:      "autoapi-test",
				TraceSampleRatio: 1,
				Exporter: ExporterConfig{
					Endpoint: "localhost:4317",
					Protocol: protocol,
					Insecure: true,
					Timeout:  time.Second,
				},
			})
			require.NoError(t, err)
			assert.NoError(t, tp.Shutdown(ctx, discardLogger()))
		})
	}

	_, err := InitTracerProvider(ctx, Config{Exporter: ExporterConfig{Protocol: "thrift"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}

func TestInitLoggerProvider(t *testing.T) {
	ctx := context.Background()
	lp, err := InitLoggerProvider(ctx, Config{
		ServiceName: "autoapi-test",
		Exporter:    ExporterConfig{Endpoint: "http://localhost:4318", Protocol: "http", Insecure: true},
	})
	require.NoError(t, err)
	require.NotNil(t, lp.Provider())
	assert.NoError(t, lp.Shutdown(ctx, discardLogger()))
}

func TestResolveExporter(t *testing.T) {
	s, err := resolveExporter(ExporterConfig{
		Endpoint:    "https://collector.example.com/v1/traces",
		Protocol:    "http/protobuf",
		Compression: "gzip",
	})
	require.NoError(t, err)
	assert.True(t, s.http)
	assert.True(t, s.endpointURL)
	assert.True(t, s.gzip)
	require.NotNil(t, s.tls)
	assert.Nil(t, s.tls.RootCAs)

	s, err = resolveExporter(ExporterConfig{Endpoint: "collector:4317", Insecure: true})
	require.NoError(t, err)
	assert.False(t, s.http)
	assert.Nil(t, s.tls)
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	_, err := buildTLSConfig("/nonexistent/ca.pem")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0o600))

	_, err := buildTLSConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	params := func(id byte) sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{id},
			Name:          "engine.query",
		}
	}
	assert.Equal(t, sdktrace.Drop, traceSamplerForRatio(0).ShouldSample(params(1)).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, traceSamplerForRatio(1).ShouldSample(params(2)).Decision)
}

func TestTraceSamplerForRatio_FollowsParent(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)
	parent := func(flags trace.TraceFlags) context.Context {
		return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{3},
			SpanID:     trace.SpanID{1},
			TraceFlags: flags,
			Remote:     true,
		}))
	}

	sampled := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent(trace.FlagsSampled),
		TraceID:       trace.TraceID{4},
		Name:          "relation.fetch",
	})
	assert.Equal(t, sdktrace.RecordAndSample, sampled.Decision)

	dropped := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent(0),
		TraceID:       trace.TraceID{6},
		Name:          "relation.fetch",
	})
	assert.Equal(t, sdktrace.Drop, dropped.Decision)
}
