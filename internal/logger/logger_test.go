package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("DEBUG")
	require.Equal(t, slog.LevelDebug, Level())
	SetLevel("warning")
	require.Equal(t, slog.LevelWarn, Level())
	SetLevel("bogus")
	require.Equal(t, slog.LevelInfo, Level())
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	t.Cleanup(func() { L = prev })

	SetOutput(&buf)
	L.Info("session created", "session", "abc")
	require.Contains(t, buf.String(), `"session":"abc"`)
}
