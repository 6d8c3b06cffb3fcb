package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("text handler honors level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := New(buf, "warn", "text")
		require.NoError(t, err)

		logger.Info("hidden message")
		logger.Warn("cycle rolled over", "scenario", "s1")

		out := buf.String()
		require.NotContains(t, out, "hidden message")
		require.Contains(t, out, "cycle rolled over")
		require.Contains(t, out, "scenario=s1")
		require.Contains(t, out, "level=WARN")
	})

	t.Run("json handler emits json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, err := New(buf, "debug", "json")
		require.NoError(t, err)

		logger.Debug("allocated", "counter", "scenario_counts")

		require.Contains(t, buf.String(), `"msg":"allocated"`)
		require.Contains(t, buf.String(), `"counter":"scenario_counts"`)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(nil, "verbose", "text")
		require.Error(t, err)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		_, err := New(nil, "info", "xml")
		require.Error(t, err)
	})
}

func TestNewSlog(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlog(slog.New(handler))

	logger.Error("store failure", "error", "timeout")

	require.Contains(t, buf.String(), "store failure")
	require.Contains(t, buf.String(), "error=timeout")
}

func TestOrNop(t *testing.T) {
	require.IsType(t, &NopLogger{}, OrNop(nil))

	logger := NewSlog(slog.Default())
	require.Same(t, logger, OrNop(logger))

	// Nop must not panic or exit.
	OrNop(nil).Fatal("ignored")
}
