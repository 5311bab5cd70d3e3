package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ========================================
// ParseLevel Tests
// ========================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ========================================
// New Tests
// ========================================

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Format: "json", Level: "info", Output: &buf})

	logger.Info("entitlement granted", "user_id", "user_1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "entitlement granted" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["user_id"] != "user_1" {
		t.Errorf("user_id = %v", entry["user_id"])
	}
	src, ok := entry["source"].(map[string]any)
	if !ok {
		t.Fatalf("source missing: %v", entry)
	}
	if file, _ := src["file"].(string); strings.HasPrefix(file, "/") {
		t.Errorf("source file not shortened: %q", file)
	}
}

func TestNew_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Format: "text", Output: &buf})

	logger.Info("hello", "k", "v")

	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("unexpected text output: %q", buf.String())
	}
}

func TestNew_NonTTYWriterDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf}).Info("hello")

	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("expected JSON for a non-file writer, got %q", buf.String())
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Format: "json", Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn output, got %q", buf.String())
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_FORMAT", " JSON ")
	t.Setenv("LOG_LEVEL", "debug")

	opts := OptionsFromEnv()
	if opts.Format != "json" {
		t.Errorf("Format = %q, want json", opts.Format)
	}
	if opts.Level != "debug" {
		t.Errorf("Level = %q, want debug", opts.Level)
	}
}

func TestShortenPath(t *testing.T) {
	if got := shortenPath("/src/app", "/src/app/internal/service/reconciler.go"); got != "internal/service/reconciler.go" {
		t.Errorf("shortenPath inside wd = %q", got)
	}
	if got := shortenPath("/src/app", "/go/pkg/mod/x/y.go"); got != "y.go" {
		t.Errorf("shortenPath outside wd = %q", got)
	}
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetDefault()
	if logger == nil {
		t.Fatal("SetDefault() returned nil")
	}
	if slog.Default() != logger {
		t.Error("SetDefault() did not install the logger")
	}
}
