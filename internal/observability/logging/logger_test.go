package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewJSONLoggerToWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "docqa-api", "warn")

	logger.Info("dropped")
	logger.Warn("document_ingested", "segments", 3)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "docqa-api" || entry["msg"] != "document_ingested" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
