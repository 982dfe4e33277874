package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	projectDir := t.TempDir()
	var console bytes.Buffer
	logger, err := NewWithWriter(projectDir, false, &console)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("stage published", "stage", 4)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(projectDir, ".stagegate", "logs", "stagegate.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "stage published", record["msg"])
	assert.EqualValues(t, 4, record["stage"])
	assert.Equal(t, strings.TrimSpace(string(data)), strings.TrimSpace(console.String()))
}

func TestDebugLevel(t *testing.T) {
	projectDir := t.TempDir()
	var console bytes.Buffer
	logger, err := NewWithWriter(projectDir, true, &console)
	require.NoError(t, err)
	defer logger.Close()
	logger.Debug("checking contract", "stage", 2)
	assert.Contains(t, console.String(), "checking contract")
}

func TestCloseIsNilSafe(t *testing.T) {
	var logger *Logger
	assert.NoError(t, logger.Close())
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutKeepsWritingAfterFailure(t *testing.T) {
	var a, b bytes.Buffer
	handler := Fanout(failingHandler{slog.NewJSONHandler(&a, nil)}, slog.NewJSONHandler(&b, nil))

	err := handler.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "hello", 0))
	assert.EqualError(t, err, "disk full")
	assert.Contains(t, b.String(), "hello")
}

func TestFanoutCarriesAttrs(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(Fanout(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))).With("run_id", "r1")
	logger.WithGroup("stage").Info("published", "n", 3)
	for _, out := range []string{a.String(), b.String()} {
		assert.Contains(t, out, `"run_id":"r1"`)
		assert.Contains(t, out, `"stage":{"n":3}`)
	}
}
