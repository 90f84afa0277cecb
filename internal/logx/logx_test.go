package logx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, NewLogger("debug").GetLevel())
	require.Equal(t, zerolog.WarnLevel, NewLogger("warn").GetLevel())
	require.Equal(t, zerolog.InfoLevel, NewLogger("").GetLevel())
	require.Equal(t, zerolog.InfoLevel, NewLogger("loud").GetLevel())
}
