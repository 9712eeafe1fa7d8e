package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("planning round", "round", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "planning round" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["round"] != float64(2) {
		t.Errorf("round = %v", rec["round"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn record missing")
	}
}

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Output: &buf})

	logger.WithRequest("1").WithUnit("1/task_2").WithAgent("network_agent").Info("executing")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["request_id"] != "1" || rec["unit"] != "1/task_2" || rec["agent"] != "network_agent" {
		t.Errorf("scoped fields missing: %v", rec)
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("backend rejected key sk-abcdefghijklmnopqrstuvwxyz123456", "header", "Bearer abcdefghijklmnop.qrstuvwx")

	out := buf.String()
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Error("api key leaked into log output")
	}
	if strings.Contains(out, "Bearer abcdefghijklmnop") {
		t.Error("bearer token leaked into log output")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected redaction placeholder")
	}
}

func TestSanitizer_AddPattern(t *testing.T) {
	s := NewSanitizer()
	if err := s.AddPattern(`cascade-[0-9]{6}`); err != nil {
		t.Fatalf("AddPattern() error = %v", err)
	}
	if got := s.Sanitize("id cascade-123456 done"); !strings.Contains(got, "[REDACTED]") {
		t.Errorf("Sanitize() = %q", got)
	}
	if err := s.AddPattern(`(`); err == nil {
		t.Error("AddPattern(invalid) = nil, want error")
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("discarded")
	logger.With("k", "v").Error("also discarded")
}
