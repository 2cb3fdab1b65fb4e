package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	// Test log levels with JSON format
	buf := &bytes.Buffer{}
	logger := New(slog.LevelDebug, FormatJSON, buf)

	// Test debug level
	logger.Debug("debug message", "key", "value")
	output := buf.String()
	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if logEntry["level"] != "DEBUG" || logEntry["msg"] != "debug message" || logEntry["key"] != "value" {
		t.Error("Debug message not logged correctly")
	}
	buf.Reset()

	// Test info level
	logger.Info("info message", "key", "value")
	output = buf.String()
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if logEntry["level"] != "INFO" || logEntry["msg"] != "info message" || logEntry["key"] != "value" {
		t.Error("Info message not logged correctly")
	}
	buf.Reset()

	// Test warn level
	logger.Warn("warn message", "key", "value")
	output = buf.String()
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if logEntry["level"] != "WARN" || logEntry["msg"] != "warn message" || logEntry["key"] != "value" {
		t.Error("Warn message not logged correctly")
	}
	buf.Reset()

	// Test error level
	logger.Error("error message", "key", "value")
	output = buf.String()
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if logEntry["level"] != "ERROR" || logEntry["msg"] != "error message" || logEntry["key"] != "value" {
		t.Error("Error message not logged correctly")
	}
	buf.Reset()

	// Test level filtering
	logger.SetLevel(slog.LevelWarn)
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	output = buf.String()
	lines := strings.Split(output, "\n")
	// Subtract 1 because the last line is empty
	if len(lines)-1 != 2 {
		t.Errorf("Expected 2 messages, got %d", len(lines)-1)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("Messages at or above warn level should be logged")
	}
}

func TestTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(slog.LevelInfo, FormatText, buf)

	logger.Info("test message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "test message") || !strings.Contains(output, "key=value") {
		t.Error("Text format not logged correctly")
	}
}

func TestMultipleOutputs(t *testing.T) {
	buf1 := &bytes.Buffer{}
	buf2 := &bytes.Buffer{}
	logger := New(slog.LevelInfo, FormatJSON, buf1, buf2)

	logger.Info("test message", "key", "value")

	// Check both buffers
	output1 := buf1.String()
	output2 := buf2.String()

	if output1 != output2 {
		t.Error("Multiple outputs should have the same content")
	}

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output1), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if logEntry["msg"] != "test message" || logEntry["key"] != "value" {
		t.Error("Message not logged correctly to multiple outputs")
	}
}

func TestAppendFileWriterCreatesDirectoryLazily(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "logs", "bridge.log")
	w := NewAppendFileWriter(logPath)

	if _, err := os.Stat(filepath.Dir(logPath)); !os.IsNotExist(err) {
		t.Fatalf("expected log directory to be absent before first write, got %v", err)
	}

	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(content) != "first\nsecond\n" {
		t.Fatalf("unexpected log content %q", content)
	}
}

func TestInitWritesTimestampedLinesToFile(t *testing.T) {
	previous := Default()
	defer SetDefault(previous)

	logPath := filepath.Join(t.TempDir(), "bridge.log")
	if err := Init(slog.LevelInfo, FormatText, logPath); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	Info("test message 1", "key", "value1")
	Debug("filtered message")
	Info("test message 2", "key", "value2")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), content)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "time=") {
			t.Errorf("expected timestamped line, got %q", line)
		}
	}
	if !strings.Contains(lines[1], "test message 2") {
		t.Errorf("expected second message last, got %q", lines[1])
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo}, // Default level
	}

	for _, test := range tests {
		level := GetLevelFromString(test.input)
		if level != test.expected {
			t.Errorf("Expected level %v for input %s, got %v", test.expected, test.input, level)
		}
	}
}

func TestConcurrentLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(slog.LevelDebug, FormatJSON, buf)

	// Create multiple goroutines to log messages
	done := make(chan bool)
	for i := range 10 {
		go func(id int) {
			for j := range 100 {
				logger.Info("message", "id", id, "count", j)
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines to finish
	for range 10 {
		<-done
	}

	// Count the number of messages
	output := buf.String()
	lines := strings.Split(output, "\n")
	// Subtract 1 because the last line is empty
	if len(lines)-1 != 1000 {
		t.Errorf("Expected 1000 messages, got %d", len(lines)-1)
	}
}
