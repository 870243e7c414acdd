package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": LevelTrace,
		"TRACE": LevelTrace,
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
	}

	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if got := ParseLogLevel("unknown"); got != LevelInfo {
		t.Fatalf("ParseLogLevel default = %v, want %v", got, LevelInfo)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelWarn, &buf)

	logger.Tracef("trace message")
	logger.Debugf("debug message")
	logger.Infof("info message")
	logger.Warnf("warn message")
	logger.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "trace message") || strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Fatalf("expected sub-warn output to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message") {
		t.Fatalf("expected warn output, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message") {
		t.Fatalf("expected error output, got %q", out)
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelError, &buf)

	logger.Infof("before")
	logger.SetLevel(LevelTrace)
	logger.Tracef("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Fatalf("expected info to be filtered at error level, got %q", out)
	}
	if !strings.Contains(out, "[TRACE] after") {
		t.Fatalf("expected trace output after SetLevel, got %q", out)
	}
	if logger.Level() != LevelTrace {
		t.Fatalf("Level() = %v, want %v", logger.Level(), LevelTrace)
	}
}
