package core

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, level)

	_, err = ParseLogLevel("chatty")
	assert.Error(t, err)
}

func TestLogLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel(WarnLevel)
	t.Cleanup(func() {
		SetLogOutput(os.Stderr)
		SetLogLevel(DebugLevel)
	})

	LogInfo("hidden %d", 1)
	LogWarn("visible %d", 2)
	LogWith(ErrorLevel, "batch failed", "assets", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "visible 2")
	assert.Contains(t, out, "batch failed")
	assert.Contains(t, out, "assets=3")
}
