package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("garbage"))
}

func TestSlogWriterExtractsComponentTag(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&buf, nil))
	w := slogWriter{lg}

	_, err := w.Write([]byte("[ingest] state CONNECTING -> SUBSCRIBED\n"))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "ingest", rec["component"])
	require.Equal(t, "state CONNECTING -> SUBSCRIBED", rec["msg"])
}

func TestSlogWriterPlainLine(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&buf, nil))
	w := slogWriter{lg}

	_, err := w.Write([]byte("shutdown complete\n"))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "shutdown complete", rec["msg"])
	_, hasComp := rec["component"]
	require.False(t, hasComp)
}
