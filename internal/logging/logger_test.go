package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleFormatIncludesComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	component := NewComponentLogger(logger, "cache")
	component.Info("feed committed", String("show", "abc:Show"), Int("episodes", 3))

	line := buf.String()
	if !strings.Contains(line, "INFO cache: feed committed") {
		t.Errorf("line missing component prefix: %q", line)
	}
	if !strings.Contains(line, `show="abc:Show"`) {
		t.Errorf("line missing quoted attr: %q", line)
	}
	if !strings.Contains(line, "episodes=3") {
		t.Errorf("line missing int attr: %q", line)
	}
}

func TestConsoleLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info record leaked past warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("refresh queued", String("show", "abc:Show"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "refresh queued" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Errorf("level = %v", record["level"])
	}
	if record["show"] != "abc:Show" {
		t.Errorf("show = %v", record["show"])
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
}
