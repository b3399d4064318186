package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("gate decision", zap.Float64("match_pct", 42.5))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if entry["message"] != "gate decision" {
		t.Errorf("Expected message 'gate decision', got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %v", entry["level"])
	}
	if entry["match_pct"] != 42.5 {
		t.Errorf("Expected match_pct 42.5, got %v", entry["match_pct"])
	}
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("debug", "console", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug line in console output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := NewWithWriter("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("Expected unknown format to fail")
	}
}
