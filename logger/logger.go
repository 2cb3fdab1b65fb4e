package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Format represents the log format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger represents a logger instance
type Logger struct {
	*slog.Logger
	mu      sync.Mutex
	writers []io.Writer
	level   slog.Level
	format  Format
}

// New creates a new logger
func New(level slog.Level, format Format, writers ...io.Writer) *Logger {
	l := &Logger{
		writers: writers,
		level:   level,
		format:  format,
	}
	l.rebuild()
	return l
}

// rebuild swaps the handler after a level change. Callers hold mu, except New.
func (l *Logger) rebuild() {
	multiWriter := io.MultiWriter(l.writers...)
	opts := &slog.HandlerOptions{Level: l.level}
	var handler slog.Handler
	switch l.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(multiWriter, opts)
	default:
		handler = slog.NewTextHandler(multiWriter, opts)
	}
	l.Logger = slog.New(handler)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuild()
}

// AppendFileWriter appends each write to a file that is opened and closed per
// call, so no handle outlives a log line. The directory is created on first
// use.
type AppendFileWriter struct {
	mu   sync.Mutex
	path string
}

func NewAppendFileWriter(path string) *AppendFileWriter {
	return &AppendFileWriter{path: path}
}

func (w *AppendFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return 0, err
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	n, writeErr := file.Write(p)
	closeErr := file.Close()
	if writeErr != nil {
		return n, writeErr
	}
	return n, closeErr
}

// Init initializes the default logger. Output always goes to stderr so stdio
// transports keep stdout clean; each non-empty path adds an append-only file.
func Init(level slog.Level, format Format, paths ...string) error {
	writers := []io.Writer{os.Stderr}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		writers = append(writers, NewAppendFileWriter(path))
	}
	defaultLogger.Store(New(level, format, writers...))
	return nil
}

// GetLevelFromString returns the log level from a string
func GetLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(slog.LevelInfo, FormatText, os.Stderr))
}

// Default returns the default logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the default logger; nil is ignored.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// Helper functions for common logging patterns
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

