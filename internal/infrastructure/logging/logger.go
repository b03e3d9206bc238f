package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/robojar-core/internal/infrastructure/config"
)

const serviceName = "robojar"

// Logger is a *slog.Logger whose With keeps the wrapper type.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by cfg.
//
// cfg.Output is "stdout", "stderr" or a file opened for append. A file that
// cannot be opened falls back to stderr, and the first record says why.
//
// Parameters:
//   - cfg: level, format and output
//   - version: stamped on every record
//
// Returns:
//   - *Logger: ready to use, never nil
func New(cfg config.LoggingConfig, version string) *Logger {
	w, err := openOutput(cfg.Output)
	l := NewWithWriter(cfg, version, w)
	if err != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.Output, "error", err)
	}
	return l
}

// NewWithWriter is New with an explicit destination; cfg.Output is unused.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return os.Stderr, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // operator-supplied path
	if err != nil {
		return os.Stderr, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// parseLevel accepts slog's level names in any case plus "warning".
// Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the JSON-to-stdout logger used until config is loaded.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info"}, "dev", os.Stdout)
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}
