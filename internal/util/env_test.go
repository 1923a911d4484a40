package util

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("LOGIBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("LOGIBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("LOGIBOT_TEST_INT", "3")
	if got := ParseIntEnv("LOGIBOT_TEST_INT", 0); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	t.Setenv("LOGIBOT_TEST_INT", "three")
	if got := ParseIntEnv("LOGIBOT_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"5", 5 * time.Second},
		{"24h", 24 * time.Hour},
		{"1500ms", 1500 * time.Millisecond},
		{"-1s", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("LOGIBOT_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("LOGIBOT_TEST_DURATION", time.Minute); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("LOGIBOT_TEST_STR", "  ")
	if got := GetEnv("LOGIBOT_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("blank value should fall back, got %q", got)
	}
	t.Setenv("LOGIBOT_TEST_STR", " redis ")
	if got := GetEnv("LOGIBOT_TEST_STR", "memory"); got != "redis" {
		t.Errorf("expected trimmed value, got %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	if ParseLogLevel("DEBUG") != slog.LevelDebug || ParseLogLevel("warning") != slog.LevelWarn || ParseLogLevel("") != slog.LevelInfo {
		t.Error("unexpected log level mapping")
	}
}
