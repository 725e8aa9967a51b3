package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainOptions(buf *bytes.Buffer, level slog.Level) *RichLoggerOptions {
	return &RichLoggerOptions{
		Output:     buf,
		Level:      level,
		TimeFormat: "15:04:05",
	}
}

func TestRichHandler_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewRichLogger(plainOptions(&buf, slog.LevelInfo))

	log.Info("converted", "file", "a/b.png", "frames", 3, "note", "two words")

	assert.Equal(t, `INFO  converted file=a/b.png frames=3 note="two words"`+"\n", buf.String())
}

func TestRichHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewRichLogger(plainOptions(&buf, slog.LevelWarn))

	log.Info("hidden")
	log.Debug("hidden too")
	log.Warn("shown")

	assert.Equal(t, "WARN  shown\n", buf.String())
}

func TestRichHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	log := NewRichLogger(plainOptions(&buf, slog.LevelInfo))

	log.With("run", 1).WithGroup("task").Info("done", "status", "success")

	assert.Equal(t, "INFO  done run=1 task.status=success\n", buf.String())
}

func TestRichHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	opts := plainOptions(&buf, slog.LevelInfo)
	opts.EnableJSON = true
	opts.ShowTime = true

	NewRichLogger(opts).Error("failed", "error", errors.New("boom"), "file", "x.png")

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ERROR", got["level"])
	assert.Equal(t, "failed", got["msg"])
	assert.Equal(t, "boom", got["error"])
	assert.Equal(t, "x.png", got["file"])
	assert.Contains(t, got, "time")
}

func TestConsole_PlainHasNoDecoration(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(plainOptions(&buf, slog.LevelDebug))

	console.Warn("file %s failed", "a.png")
	console.Debug("state %s", "walking")

	assert.Equal(t, "WARN  file a.png failed\nDEBUG state walking\n", buf.String())
}

func TestConsole_Colorized(t *testing.T) {
	var buf bytes.Buffer
	opts := plainOptions(&buf, slog.LevelInfo)
	opts.EnableColors = true
	console := NewConsole(opts)

	console.Success("ok")

	assert.Contains(t, buf.String(), "✓ ok")
	assert.Contains(t, buf.String(), Green)
}

func TestTable_String(t *testing.T) {
	table := NewTable([]string{"Metric", "Value"}, nil)
	table.AddRow("Processed files", "2/3")
	table.AddRow("Failed files")
	table.AddRow("Ratio", "41.0%", "ignored")

	want := strings.Join([]string{
		"┌─────────────────┬───────┐",
		"│ Metric          │ Value │",
		"├─────────────────┼───────┤",
		"│ Processed files │ 2/3   │",
		"│ Failed files    │       │",
		"│ Ratio           │ 41.0% │",
		"└─────────────────┴───────┘",
	}, "\n")

	assert.Equal(t, want, table.String())
}

func TestBox(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(plainOptions(&buf, slog.LevelError))

	console.Box("info", "Version: dev")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Version: dev")
}
