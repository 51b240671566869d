package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf)

	logger.Info("appointment confirmed", "appointment_id", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "appointment confirmed" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["appointment_id"] != float64(42) {
		t.Fatalf("unexpected appointment_id: %v", entry["appointment_id"])
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf)

	logger.Debug("noise")
	if strings.Contains(buf.String(), "noise") {
		t.Fatalf("debug line should be suppressed at info level")
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("verbose", &buf)

	logger.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected info line to be emitted")
	}
}
