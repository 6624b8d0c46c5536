package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestEmitJSONShape(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Warn("datasource: fetch failed", map[string]interface{}{"source": "file", "count": 3})

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("riga di log non JSON: %v (%s)", err, buf.String())
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["msg"] != "datasource: fetch failed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("manca ts")
	}
	extra, ok := entry["extra"].(map[string]interface{})
	if !ok {
		t.Fatalf("extra mancante: %v", entry)
	}
	if extra["source"] != "file" || extra["count"].(float64) != 3 {
		t.Errorf("extra = %v", extra)
	}
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	SetLevel("warn")
	Info("nascosto", nil)
	if strings.Contains(buf.String(), "nascosto") {
		t.Error("info non dovrebbe comparire con livello warn")
	}

	SetLevel("debug")
	Debug("visibile", nil)
	if !strings.Contains(buf.String(), "visibile") {
		t.Error("debug dovrebbe comparire con livello debug")
	}
}
