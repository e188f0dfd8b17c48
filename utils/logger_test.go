package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerTo(&buf, LogOptions{Format: "json"})
	base.With("platform", "amazon").Warn("[cache] redis get failed: %s", "timeout")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["platform"] != "amazon" {
		t.Errorf("platform: got %v, want amazon", entry["platform"])
	}
	if entry["msg"] != "[cache] redis get failed: timeout" || entry["level"] != "WARN" {
		t.Errorf("entry: got %v", entry)
	}

	buf.Reset()
	base.Info("plain")
	if strings.Contains(buf.String(), "platform") {
		t.Errorf("With must not change the parent logger: %s", buf.String())
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, LogOptions{Level: "warn"})
	l.Info("hidden")
	l.Debug("hidden")
	l.Error("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown 1") {
		t.Errorf("level filtering: got %q", out)
	}
}
