package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedact_MasksSensitiveKeys(t *testing.T) {
	out := redact([]any{"session_id", "s-1", "access_token", "abc", "Password", "pw", "status", 401})
	require.Equal(t, []any{"session_id", "s-1", "access_token", "[REDACTED]", "Password", "[REDACTED]", "status", 401}, out)
}

func TestRedact_OddLengthKeepsTrailingKey(t *testing.T) {
	out := redact([]any{"status", 500, "dangling"})
	require.Equal(t, []any{"status", 500, "dangling"}, out)
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"prod", "dev", ""} {
		l, err := New(mode)
		require.NoError(t, err)
		l.With("mode", mode).Debug("built")
	}
}
