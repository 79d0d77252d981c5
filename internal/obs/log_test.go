package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Logger().SetOutput(&buf)
	t.Cleanup(func() { Logger().SetOutput(os.Stdout) })
	return &buf
}

func TestLogJSONEmitsOneLine(t *testing.T) {
	buf := captureLog(t)
	LogJSON(map[string]any{"msg": "hello", "count": 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["count"] != float64(3) {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLogErrorEnvelope(t *testing.T) {
	buf := captureLog(t)
	LogError("replay failed", errors.New("state mismatch"), map[string]any{
		"entity_type": "contract",
		"level":       "debug",
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "error" {
		t.Fatalf("envelope must win over caller fields: %v", entry)
	}
	if entry["msg"] != "replay failed" || entry["error"] != "state mismatch" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["entity_type"] != "contract" {
		t.Fatalf("caller field dropped: %v", entry)
	}
	if _, ok := entry["ts"].(string); !ok {
		t.Fatalf("missing ts: %v", entry)
	}
}

func TestLogErrorWithoutError(t *testing.T) {
	buf := captureLog(t)
	LogError("degraded", nil, nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := entry["error"]; ok {
		t.Fatalf("nil error must not emit an error key: %v", entry)
	}
}
