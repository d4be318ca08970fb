package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestInfoIncludesSubsystem(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Info("OAuth", "client %s registered", "abc")

	out := buf.String()
	if !strings.Contains(out, "subsystem=OAuth") {
		t.Errorf("expected subsystem attribute in output, got %q", out)
	}
	if !strings.Contains(out, "client abc registered") {
		t.Errorf("expected formatted message in output, got %q", out)
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Debug("Storage", "should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected debug message to be suppressed, got %q", buf.String())
	}
}

func TestErrorIncludesErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Error("Storage", errors.New("disk full"), "persist failed")

	out := buf.String()
	if !strings.Contains(out, "disk full") {
		t.Errorf("expected error detail in output, got %q", out)
	}
	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("expected ERROR level in output, got %q", out)
	}
}
