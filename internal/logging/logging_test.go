package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Writer: &buf}).With(String("component", "test"))
	log.Debug(context.Background(), "hello", Int("n", 3), Float("t", 0.5), Err(nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if rec["msg"] != "hello" || rec["component"] != "test" || rec["n"] != float64(3) || rec["t"] != 0.5 {
		t.Fatalf("record = %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Writer: &buf})
	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestWithRunLoggerReusesContextID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Writer: &buf})

	ctx, log := WithRunLogger(context.Background(), base)
	id := RunIDFromContext(ctx)
	if id == "" {
		t.Fatalf("WithRunLogger did not assign a run id")
	}
	ctx2, _ := WithRunLogger(ctx, base)
	if RunIDFromContext(ctx2) != id {
		t.Fatalf("existing run id was replaced")
	}

	log.Info(ctx, "run")
	if !strings.Contains(buf.String(), id) {
		t.Fatalf("log line missing run id %s: %s", id, buf.String())
	}
}

func TestOrNoopAndContextLogger(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Fatalf("OrNoop(nil) returned nil")
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected no logger on a bare context")
	}
	l := Noop()
	ctx := ContextWithLogger(context.Background(), l)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("logger not stored on context")
	}
}
