package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"genestore/internal/config"
)

// LoggerFactory builds loggers from the logging section of the config.
// Precedence for the level: CLI flags > config > default (info).
type LoggerFactory struct {
	cfg      *config.Config
	cliLevel *slog.Level
	stderr   io.Writer
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory. Pass a level only when the
// command line overrides the configured one.
func NewLoggerFactory(cfg *config.Config, cliLevel ...slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	f := &LoggerFactory{cfg: cfg, stderr: os.Stderr}
	if len(cliLevel) > 0 {
		f.cliLevel = &cliLevel[0]
	}
	return f
}

// ServerLogger writes to stderr and, when logging.file is set, to a rotating
// file as well. A relative file path is resolved against the storage root.
func (f *LoggerFactory) ServerLogger() (*slog.Logger, error) {
	level := f.effectiveLevel()
	console := f.consoleHandler(level)

	path := f.LogPath()
	if path == "" {
		return slog.New(console), nil
	}

	fileLogger, closer, err := NewRotatingLogger(path, level, f.cfg.Logging.MaxSize, f.cfg.Logging.MaxBackups)
	if err != nil {
		return slog.New(console), err
	}
	f.closers = append(f.closers, closer)

	return slog.New(NewTeeHandler(console, fileLogger.Handler())), nil
}

// CLILogger logs to stderr only.
func (f *LoggerFactory) CLILogger() *slog.Logger {
	return slog.New(f.consoleHandler(f.effectiveLevel()))
}

// consoleHandler honours logging.format: "json" or the line format.
func (f *LoggerFactory) consoleHandler(level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if f.cfg.Logging.Format == "json" {
		return slog.NewJSONHandler(f.stderr, opts)
	}
	return NewLineHandler(f.stderr, opts)
}

// LogPath returns the configured log file path, or "" when file logging is off.
func (f *LoggerFactory) LogPath() string {
	p := f.cfg.Logging.File
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.cfg.StorageRoot, p)
}

func (f *LoggerFactory) effectiveLevel() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.cfg.Logging.Level != "" {
		return LevelFromString(f.cfg.Logging.Level)
	}
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
