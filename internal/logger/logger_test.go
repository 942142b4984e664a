package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInitWriterEmitsJSONAtLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	InitWriter(&buf, "warn")

	slog.Info("hidden")
	slog.Warn("shown", "session", "s1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "shown" || line["session"] != "s1" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("") != slog.LevelInfo || ParseLevel("error") != slog.LevelError {
		t.Fatalf("unexpected level mapping")
	}
}
