package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLevel string
		wantMsg   string
	}{
		{name: "empty", input: "", wantLevel: "INFO", wantMsg: ""},
		{name: "plain prefix", input: "ERROR move failed", wantLevel: "ERROR", wantMsg: "move failed"},
		{name: "bracketed", input: "[warn] disk almost full", wantLevel: "WARN", wantMsg: "disk almost full"},
		{name: "colon", input: "debug: session opened", wantLevel: "DEBUG", wantMsg: "session opened"},
		{name: "no level", input: "filed Epee-M", wantLevel: "INFO", wantMsg: "filed Epee-M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, msg := parseLevel(tt.input)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Fatalf("parseLevel(%q) = (%q, %q), want (%q, %q)", tt.input, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

func TestNewLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("cotcotd", &buf, false)

	logger.Printf("INFO filed %s", "a.cotcot")
	logger.Printf("DEBUG hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["level"] != "INFO" || entry["msg"] != "filed a.cotcot" || entry["service"] != "cotcotd" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSetDebugEnablesDebugLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("cotcotd", &buf, false)
	SetDebug(logger, true)

	logger.Printf("DEBUG visible")

	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}
