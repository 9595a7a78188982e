package log

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerCached(t *testing.T) {
	l1 := Logger("test")
	l2 := Logger("test")
	require.True(t, l1 == l2)
}

func TestSetupFile(t *testing.T) {
	l := Logger("file")

	Setup(Options{
		Level:   "debug",
		File:    filepath.Join(t.TempDir(), "pre.log"),
		MaxSize: 1,
	})
	defer Setup(Options{Level: "info"})

	l.Debugw("written after setup", "k", 1)
	require.NoError(t, SetLevel("warn"))
	require.Error(t, SetLevel("loud"))
}
