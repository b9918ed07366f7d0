package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klaro/internal/middleware"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestContextHandler(t *testing.T) {
	t.Run("Appends Correlation ID From Context", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

		ctx := middleware.WithCorrelationID(context.Background(), "corr-42")
		log.InfoContext(ctx, "chunk stored")

		m := logLine(t, &buf)
		assert.Equal(t, "corr-42", m["correlation_id"])
		assert.Equal(t, "chunk stored", m["msg"])
	})

	t.Run("No Correlation ID No Attribute", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

		log.InfoContext(context.Background(), "startup")

		m := logLine(t, &buf)
		_, present := m["correlation_id"]
		assert.False(t, present)
	})

	t.Run("Survives WithAttrs And WithGroup", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
		log = log.With("job_id", "j1").WithGroup("pipeline")

		ctx := middleware.WithCorrelationID(context.Background(), "corr-43")
		log.InfoContext(ctx, "job completed", "chunks", 3)

		m := logLine(t, &buf)
		assert.Equal(t, "j1", m["job_id"])
		group, ok := m["pipeline"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(3), group["chunks"])
	})
}
