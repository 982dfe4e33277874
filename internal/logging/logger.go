package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kingrea/stagegate/internal/config"
)

// Logger writes structured JSON records to the console and appends them to
// .stagegate/logs/stagegate.log so a run can be inspected afterwards.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates (or reuses) the log file for the current project directory.
// Console output goes to stderr.
func New(projectDir string, debug bool) (*Logger, error) {
	return NewWithWriter(projectDir, debug, os.Stderr)
}

// NewWithWriter is New with an explicit console writer. A nil writer logs to
// the file only.
func NewWithWriter(projectDir string, debug bool, console io.Writer) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.StagegateDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "stagegate.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	opts := &slog.HandlerOptions{Level: Level(debug)}
	handlers := []slog.Handler{slog.NewJSONHandler(f, opts)}
	if console != nil {
		handlers = append(handlers, slog.NewJSONHandler(console, opts))
	}
	return &Logger{Logger: slog.New(Fanout(handlers...)), file: f}, nil
}

// Level maps the debug flag to a slog level.
func Level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Fanout returns a handler that passes each record to every handler enabled
// for its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &multiHandler{handlers: handlers}
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
