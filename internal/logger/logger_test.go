package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestFromContext_AppliesFields(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "info", Component: "analysis"}, &buf)

	ctx := WithLayer(WithRequestID(context.Background(), "req-1"), "sicar")
	FromContext(ctx, &base).Info().Msg("layer done")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	for k, want := range map[string]string{
		"request_id": "req-1",
		"layer":      "sicar",
		"component":  "analysis",
		"msg":        "layer done",
		"level":      "info",
	} {
		if line[k] != want {
			t.Errorf("%s=%v, want %q", k, line[k], want)
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("id=%q, want 16 hex chars", id)
	}
}

func TestNewSlog_ForwardsAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "debug"}, &buf)

	NewSlog(&base).With("topic", "layers").Warn("rejected", "offset", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["level"] != "warn" || line["topic"] != "layers" || line["offset"] != float64(7) {
		t.Fatalf("line=%v", line)
	}
}
