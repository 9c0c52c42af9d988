// Package logging builds the process logger: a console handler plus rotating
// log files, one with every record and one with warnings and errors only.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntrixbase/inventory/internal/config"
)

const (
	mainLogFile  = "inventory.log"
	errorLogFile = "inventory-errors.log"
)

var (
	filesMu sync.Mutex
	files   []io.Closer
)

// Initialize builds the logger for cfg and installs it as the slog default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)
	slog.Info("Logging initialized",
		"level", cfg.Level,
		"dir", cfg.Dir,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
	)
	return nil
}

// NewLogger returns a logger writing to console and, when enabled, to
// rotating files under cfg.Dir.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, error) {
	var handlers fanout
	if cfg.Console.Enabled {
		handlers = append(handlers, newHandler(console, cfg.Console.Format, ParseLevel(cfg.Console.Level)))
	}
	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		main := rotating(cfg, mainLogFile)
		handlers = append(handlers, newHandler(main, cfg.File.Format, ParseLevel(cfg.File.Level)))

		errs := rotating(cfg, errorLogFile)
		handlers = append(handlers, minLevel{
			Handler: newHandler(errs, cfg.File.Format, slog.LevelWarn),
			level:   slog.LevelWarn,
		})
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	case 1:
		return slog.New(handlers[0]), nil
	default:
		return slog.New(handlers), nil
	}
}

// Shutdown closes the rotating files opened by NewLogger.
func Shutdown() error {
	filesMu.Lock()
	defer filesMu.Unlock()
	var firstErr error
	for _, f := range files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close log file: %w", err)
		}
	}
	files = nil
	return firstErr
}

func rotating(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	filesMu.Lock()
	files = append(files, l)
	filesMu.Unlock()
	return l
}

// ParseLevel maps a config level name to a slog level. Unknown names map to
// info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
