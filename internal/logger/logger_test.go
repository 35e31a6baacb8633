package logger

import (
	"bytes"
	"os"
	"testing"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
}

func TestDebug_GatedByVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	SetVerbose(false)
	Debug("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("expected no output when verbose disabled, got %q", buf.String())
	}

	SetVerbose(true)
	Debug("shown %d", 2)
	if got := buf.String(); got != "[DEBUG] shown 2\n" {
		t.Errorf("unexpected debug output: %q", got)
	}
}

func TestWarn_AlwaysPrints(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Warn("degraded retrieval: %s", "index down")
	if got := buf.String(); got != "[WARN] degraded retrieval: index down\n" {
		t.Errorf("unexpected warn output: %q", got)
	}
}

func TestInfo_AlwaysPrints(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Info("ingested %d chunks", 42)
	if got := buf.String(); got != "[INFO] ingested 42 chunks\n" {
		t.Errorf("unexpected info output: %q", got)
	}
}
