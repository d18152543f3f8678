package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktt/internal/config"
)

func TestPatternFormatter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(config.LogConfig{
		Level:      "debug",
		Format:     "text",
		Pattern:    "[%level] %field %msg\n",
		TimeFormat: "15:04:05",
	}, &buf)
	require.NoError(t, err)

	l.WithField("xid", "0x00000001").WithField("frame", 3).Debug("reply without a recorded call")

	assert.Equal(t, "[DEBUG] frame=3,xid=0x00000001 reply without a recorded call\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, l.IsDebugEnabled())
	assert.False(t, l.IsInfoEnabled())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	l.WithError(errors.New("boom")).Info("decode failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "decode failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNestedFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(config.LogConfig{Level: "info", Format: "nested"}, &buf)
	require.NoError(t, err)

	l.WithField("layer", "gss_data").Info("diagnostic")

	out := buf.String()
	assert.Contains(t, out, "[layer:gss_data]")
	assert.Contains(t, out, "diagnostic")
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewWithWriter(config.LogConfig{Level: "chatty", Format: "text"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(config.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestGetLoggerBeforeInit(t *testing.T) {
	l := GetLogger()
	require.NotNil(t, l)
	l.WithField("k", "v").Info("dropped")
	assert.False(t, l.IsInfoEnabled())
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pktt.log")
	cfg := config.LogConfig{
		Level:  "info",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled:  true,
				Path:     logPath,
				Rotation: config.RotationConfig{MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1},
			},
		},
	}

	require.NoError(t, Init(cfg))
	t.Cleanup(func() {
		mu.Lock()
		logger = Discard()
		mu.Unlock()
	})

	GetLogger().Info("written to file")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestMultiWriterKeepsWritingOnError(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiWriter().Add(failingWriter{}).Add(&buf)

	n, err := m.Write([]byte("line"))
	assert.Error(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "line", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }
