package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("constellation", "STARLINK")).Info(context.Background(), "pool selected",
		Int("pool_size", 20), Float("max_gap_s", 42.5), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "pool selected" || rec["constellation"] != "STARLINK" {
		t.Fatalf("record = %v", rec)
	}
	if rec["pool_size"] != float64(20) || rec["max_gap_s"] != 42.5 || rec["error"] != "boom" {
		t.Fatalf("record fields = %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatalf("warn not logged")
	}
}

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("expected a run id")
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || RunIDFromContext(ctx2) != id {
		t.Fatalf("run id changed: %q -> %q", id, id2)
	}
}

func TestWithRunLoggerStoresLogger(t *testing.T) {
	ctx, l := WithRunLogger(context.Background(), Noop())
	if LoggerFromContext(ctx, nil) != l {
		t.Fatalf("LoggerFromContext did not return the run logger")
	}
	if LoggerFromContext(context.Background(), nil) == nil {
		t.Fatalf("LoggerFromContext must never return nil")
	}
}
