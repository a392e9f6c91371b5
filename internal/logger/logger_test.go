package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_LevelAndFormat(t *testing.T) {
	defer Setup(DefaultConfig())

	require.NoError(t, Setup(Config{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, Logger().GetLevel())

	var buf bytes.Buffer
	SetOutput(&buf)
	TestbenchLog.Debug("hello")
	assert.Contains(t, buf.String(), `"component":"testbench"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestSetup_Invalid(t *testing.T) {
	defer Setup(DefaultConfig())

	assert.Error(t, Setup(Config{Level: "loud"}))
	assert.Error(t, Setup(Config{Level: "info", Format: "xml"}))
}

func TestSetup_File(t *testing.T) {
	defer Setup(DefaultConfig())

	path := filepath.Join(t.TempDir(), "testbench.log")
	require.NoError(t, Setup(Config{Level: "info", Format: "text", Path: path}))
	ServerLog.Info("listening")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "component=server")
	assert.Contains(t, string(data), "listening")
}

func TestSetup_FailedOpenKeepsCurrentFile(t *testing.T) {
	defer Setup(DefaultConfig())

	path := filepath.Join(t.TempDir(), "testbench.log")
	require.NoError(t, Setup(Config{Level: "info", Format: "text", Path: path}))

	bad := filepath.Join(t.TempDir(), "missing", "dir", "x.log")
	assert.Error(t, Setup(Config{Level: "info", Format: "text", Path: bad}))

	ServerLog.Info("still written")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still written")
}
