package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level, format string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: format, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { globalLevel.Set(slog.LevelInfo) })
	return l, &buf
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default config", DefaultConfig(), false},
		{"text format", Config{Level: "debug", Format: "text"}, false},
		{"console format", Config{Level: "info", Format: "console"}, false},
		{"empty format", Config{}, false},
		{"unknown format", Config{Format: "xml"}, true},
		{"unknown level", Config{Level: "loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l.Slog() == nil {
				t.Error("Slog() returned nil")
			}
		})
	}
	globalLevel.Set(slog.LevelInfo)
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, "warn", "json")

	l.Debug("debug message")
	l.Info("info message")
	if buf.Len() > 0 {
		t.Errorf("messages below warn were logged: %s", buf.String())
	}
	l.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("Warn message should be logged")
	}
	l.Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Error("Error message should be logged")
	}
}

func TestLogger_WithAndSlog(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	l.With("component", "dispatcher").Info("hello")
	l.Slog().Info("direct", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %s", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["component"] != "dispatcher" || first["msg"] != "hello" {
		t.Errorf("entry = %v", first)
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufferLogger(t, "error", "json")

	l.Info("filtered")
	if buf.Len() > 0 {
		t.Error("Info should be filtered at error level")
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	l.Info("visible")
	if buf.Len() == 0 {
		t.Error("Info should be logged after the level changed")
	}
	if GetLevel() != "debug" {
		t.Errorf("GetLevel() = %q", GetLevel())
	}

	if err := SetLevel("chatty"); err == nil {
		t.Error("SetLevel() should reject unknown levels")
	}
	if GetLevel() != "debug" {
		t.Errorf("a rejected SetLevel() changed the level to %q", GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.input, got, err)
		}
	}
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	prevSlog := slog.Default()
	t.Cleanup(func() {
		SetDefault(prev)
		slog.SetDefault(prevSlog)
	})

	l, buf := newBufferLogger(t, "info", "text")
	SetDefault(l)

	if Default() != l {
		t.Error("Default() should return the installed logger")
	}
	slog.Info("through slog", "component", "test")
	if !strings.Contains(buf.String(), "component=test") {
		t.Errorf("slog default not installed, output: %q", buf.String())
	}
}
