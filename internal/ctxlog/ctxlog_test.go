package ctxlog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/forgiving-data/internal/ctxlog"
)

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Default(), ctxlog.FromContext(context.Background()))

	logger := ctxlog.New("debug", "text", &bytes.Buffer{})
	ctx := ctxlog.WithLogger(context.Background(), logger)
	assert.Same(t, logger, ctxlog.FromContext(ctx))
}

func TestNew(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		level     string
		logsDebug bool
		logsInfo  bool
	}{
		"debug":   {level: "debug", logsDebug: true, logsInfo: true},
		"info":    {level: "info", logsInfo: true},
		"unknown": {level: "verbose", logsInfo: true},
		"error":   {level: "error"},
	}

	for name, tc := range tcs {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			logger := ctxlog.New(tc.level, "text", &bytes.Buffer{})
			assert.Equal(t, tc.logsDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tc.logsInfo, logger.Enabled(ctx, slog.LevelInfo))
		})
	}
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	ctxlog.New("info", "json", buf).Info("hello", "step", "join")

	got := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "hello", got["msg"])
	assert.Equal(t, "join", got["step"])
}
