package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewZerologAdapterWithLogger(zerolog.New(&buf))

	child := base.With(Int("module", 2), String("file", "a.fits"))
	child.Info("region done", Int("rows", 12), Err(errors.New("boom")))

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if got["message"] != "region done" {
		t.Errorf("message = %v", got["message"])
	}
	if got["module"] != float64(2) {
		t.Errorf("module = %v, want 2", got["module"])
	}
	if got["file"] != "a.fits" {
		t.Errorf("file = %v", got["file"])
	}
	if got["rows"] != float64(12) {
		t.Errorf("rows = %v, want 12", got["rows"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zerolog.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v", lvl, err)
	}
	if lvl, err := ParseLevel("debug"); err != nil || lvl != zerolog.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) succeeded, want error")
	}
}
