//nolint:paralleltest // Tests modify package-level session log state, cannot run in parallel
package mfrc522

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanupSessionLog(t *testing.T) {
	t.Helper()
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.file != nil {
		_ = session.file.Close()
	}
	session.w = nil
	session.file = nil
	session.path = ""
}

func inTempDir(t *testing.T) {
	t.Helper()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() {
		cleanupSessionLog(t)
		_ = os.Chdir(origDir)
	})
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	inTempDir(t)

	path, err := InitSessionLog()
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "Log file should exist")
	assert.Regexp(t, `^mfrc522_\d{8}_\d{6}\.log$`, path)
	assert.Equal(t, path, GetSessionLogPath())
}

func TestSessionLog_StartBodyEnd(t *testing.T) {
	inTempDir(t)

	path, err := InitSessionLog()
	require.NoError(t, err)

	Debugf("antenna gain %d", 4)
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, `msg="debug session started"`)
	assert.Contains(t, text, "pid=")
	assert.Contains(t, text, "go=go")
	assert.Contains(t, text, "args=")
	assert.Contains(t, text, "antenna gain 4")
	assert.Contains(t, text, `msg="debug session ended"`)
	assert.Empty(t, GetSessionLogPath())
	assert.Nil(t, sessionWriter())
}

func TestInitSessionLogIn_ReplacesOpenSession(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })
	dir := t.TempDir()

	first, err := InitSessionLogIn(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(first))

	require.NoError(t, os.Rename(first, first+".old"))
	second, err := InitSessionLogIn(dir)
	require.NoError(t, err)
	assert.Equal(t, second, GetSessionLogPath())

	content, err := os.ReadFile(first + ".old") //nolint:gosec // path is from InitSessionLogIn
	require.NoError(t, err)
	assert.Contains(t, string(content), "debug session ended")
}

func TestInitSessionLogIn_MissingDir(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	_, err := InitSessionLogIn(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Empty(t, GetSessionLogPath())
}

func TestCloseSessionLog_NoFile(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })
	cleanupSessionLog(t)

	assert.NoError(t, CloseSessionLog())
}
