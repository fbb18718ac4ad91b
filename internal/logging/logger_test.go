package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithRequestID("req-1").WithFields("entity", "families").Info("operation done")
	logger.Debug("suppressed")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "operation done", record["msg"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "families", record["entity"])
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: "text", Output: &buf})

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))

	ctx = WithRequestIDContext(ctx, "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: "json", Output: &buf})
	ctx := WithLogger(context.Background(), logger.WithRequestID("r-1"))

	FromContext(WithOperation(ctx, "products", "update")).Info("statement executed")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"r-1"`)
	assert.Contains(t, out, `"entity":"products"`)
	assert.Contains(t, out, `"operation":"update"`)
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := newMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("svc", "autoapi")

	logger.Info("info line")
	logger.Warn("warn line")

	assert.Contains(t, a.String(), "info line")
	assert.Contains(t, a.String(), "warn line")
	assert.NotContains(t, b.String(), "info line")
	assert.Contains(t, b.String(), "svc=autoapi")
}
