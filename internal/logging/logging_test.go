package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/Wyydra/duet/internal/config"
)

func TestJSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, config.Logging{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Info().Msg("hidden")
	l.Warn().Str("room_id", "r1").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["room_id"] != "r1" || entry["level"] != "warn" {
		t.Fatalf("entry=%v", entry)
	}
}

func TestRejectsUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	if _, err := New(&buf, config.Logging{Level: "loud", Format: "console"}); err == nil {
		t.Fatalf("unknown level accepted")
	}
}
