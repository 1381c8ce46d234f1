package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{})

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
}

func TestSetup_IncludesTimeField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{})

	l.Info("test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_IncludesLevelField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{})

	l.Warn("warning test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{})

	l.Info("password changed",
		slog.String("uid", "alice"),
		slog.String("division", "wu"),
		slog.String("ip", "141.30.228.39"),
		slog.Int("http_status", 303),
		slog.Int("flash_count", 1),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["uid"] != "alice" {
		t.Errorf("uid = %q, want %q", entry["uid"], "alice")
	}
	if entry["division"] != "wu" {
		t.Errorf("division = %q, want %q", entry["division"], "wu")
	}
	if entry["ip"] != "141.30.228.39" {
		t.Errorf("ip = %q, want %q", entry["ip"], "141.30.228.39")
	}
	if entry["http_status"] != float64(303) {
		t.Errorf("http_status = %v, want %v", entry["http_status"], 303)
	}
	if entry["flash_count"] != float64(1) {
		t.Errorf("flash_count = %v, want %v", entry["flash_count"], 1)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf, Options{})

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}

	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}

func TestSetup_CriticalLevelIsNamed(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{})

	l.Log(context.Background(), LevelCritical, "ldap down")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["level"] != "CRITICAL" {
		t.Errorf("level = %q, want %q", entry["level"], "CRITICAL")
	}
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{Level: slog.LevelWarn})

	l.Info("should be dropped")

	if buf.Len() != 0 {
		t.Errorf("expected no output below WARN, got %q", buf.String())
	}
}

func TestSetup_TextFormat_IsNotJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, Options{Format: "text"})

	l.Info("hello", slog.String("uid", "alice"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err == nil {
		t.Errorf("expected non-JSON text output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output %q should contain message", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"critical", LevelCritical},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
