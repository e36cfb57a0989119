package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points file logging at a temporary directory for one test.
func setupTestDir(t *testing.T, level Level) string {
	t.Helper()
	dir := t.TempDir()

	setupMu.Lock()
	origDir, origLevel := logDir, defaultLevel
	setupMu.Unlock()
	t.Cleanup(func() { Configure(origDir, origLevel) })

	Configure(dir, level)
	return dir
}

func TestNewLogger(t *testing.T) {
	dir := setupTestDir(t, LevelInfo)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "test-component", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	assert.Equal(t, dir, filepath.Dir(logger.LogPath()))

	_, err = os.Stat(logger.LogPath())
	assert.NoError(t, err)
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t, LevelDebug)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	logger.Debugf("Debug message")
	logger.Infof("Info message %d", 123)
	logger.Warnf("Warning message")
	logger.Errorf("Error message")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)

	for _, pattern := range []string{
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message 123",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	} {
		assert.Contains(t, string(content), pattern)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "cascade", LevelWarn)

	logger.Debugf("hidden debug")
	logger.Infof("hidden info")
	logger.Warnf("shown warn")
	logger.Errorf("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[cascade] [WARN] shown warn")
	assert.Contains(t, out, "[cascade] [ERROR] shown error")
}

func TestNamedSharesDestination(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, "root", LevelInfo)
	child := root.Named("scanner")

	root.Infof("from root")
	child.Infof("from child")

	assert.Contains(t, buf.String(), "[root] [INFO] from root")
	assert.Contains(t, buf.String(), "[scanner] [INFO] from child")
	assert.Equal(t, root.SessionID(), child.SessionID())
	assert.NoError(t, child.Close())
}

func TestMultipleComponentsShareFile(t *testing.T) {
	setupTestDir(t, LevelInfo)

	logger1, err := NewLogger("component1")
	require.NoError(t, err)
	defer logger1.Close()
	logger2, err := NewLogger("component2")
	require.NoError(t, err)
	defer logger2.Close()

	assert.Equal(t, logger1.LogPath(), logger2.LogPath())
	assert.True(t, strings.HasSuffix(filepath.Base(logger1.LogPath()), "-episodic.log"))
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Errorf("nothing to see")
	assert.NoError(t, logger.Close())
}

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"quiet", LevelError, false},
		{"normal", LevelInfo, false},
		{"", LevelInfo, false},
		{"verbose", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseVerbosity(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t, LevelInfo)

	logger, err := NewLogger("test")
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}
