package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

// ========================================
// Get Tests
// ========================================

func TestGet(t *testing.T) {
	info := Get()

	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
	if info.Commit == "" {
		t.Error("Commit should never be empty")
	}
}

func TestApplyBuildSettings(t *testing.T) {
	info := Info{Commit: "unknown", Date: "unknown"}
	applyBuildSettings(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "GOOS", Value: "linux"},
	})

	if info.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want truncated revision", info.Commit)
	}
	if info.Date != "2026-10-01T12:00:00Z" {
		t.Errorf("Date = %q", info.Date)
	}
	if !info.Dirty {
		t.Error("Dirty should be true when vcs.modified=true")
	}
}

func TestApplyBuildSettings_KeepsLdflagsDate(t *testing.T) {
	info := Info{Commit: "unknown", Date: "2026-01-01"}
	applyBuildSettings(&info, []debug.BuildSetting{{Key: "vcs.time", Value: "2025-01-01"}})

	if info.Date != "2026-01-01" {
		t.Errorf("Date = %q, want ldflags value", info.Date)
	}
}

// ========================================
// Info Method Tests
// ========================================

func TestInfo_String(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"clean", Info{Version: "1.2.3", Commit: "abc123", Date: "2026-10-01"}, "1.2.3 (abc123) built 2026-10-01"},
		{"dirty", Info{Version: "1.2.3", Commit: "abc123", Date: "2026-10-01", Dirty: true}, "1.2.3 (abc123-dirty) built 2026-10-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo_Short(t *testing.T) {
	if got := (Info{Version: "1.0.0"}).Short(); got != "1.0.0" {
		t.Errorf("Short() = %q, want 1.0.0", got)
	}
	if got := (Info{Version: "1.0.0", Dirty: true}).Short(); got != "1.0.0-dirty" {
		t.Errorf("Short() = %q, want 1.0.0-dirty", got)
	}
}

func TestInfo_LogAttrs(t *testing.T) {
	attrs := Info{Version: "1.0.0", Commit: "abc", Date: "d", GoVersion: "go1.25"}.LogAttrs()

	if len(attrs)%2 != 0 {
		t.Fatalf("LogAttrs() has odd length %d", len(attrs))
	}
	var keys []string
	for i := 0; i < len(attrs); i += 2 {
		keys = append(keys, attrs[i].(string))
	}
	if got := strings.Join(keys, ","); got != "version,commit,built,go_version" {
		t.Errorf("keys = %s", got)
	}
}
