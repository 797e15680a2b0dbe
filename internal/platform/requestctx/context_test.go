package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestTraceInfoLogFields(t *testing.T) {
	if fields := (TraceInfo{}).LogFields(); fields != nil {
		t.Fatalf("expected no fields without a trace id, got %v", fields)
	}

	local := TraceInfo{TraceID: "abc"}.LogFields()
	if len(local) != 1 || local[0].Key != "trace_id" {
		t.Fatalf("expected only trace_id without a project, got %v", local)
	}

	full := TraceInfo{TraceID: "abc", SpanID: "42", Sampled: true, ProjectID: "maple-prod"}.LogFields()
	keys := make(map[string]zap.Field, len(full))
	for _, f := range full {
		keys[f.Key] = f
	}
	if got := keys["logging.googleapis.com/trace"].String; got != "projects/maple-prod/traces/abc" {
		t.Fatalf("unexpected trace resource %q", got)
	}
	if _, ok := keys["logging.googleapis.com/spanId"]; !ok {
		t.Fatalf("expected span id field in %v", full)
	}
}

func TestContextAccessors(t *testing.T) {
	if Logger(nil) == nil || Logger(context.Background()) == nil {
		t.Fatal("expected no-op logger outside a request")
	}
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	if Logger(ctx) != logger {
		t.Fatal("expected stored logger")
	}

	if _, ok := Trace(ctx); ok {
		t.Fatal("expected no trace on a fresh context")
	}
	ctx = WithTrace(ctx, TraceInfo{TraceID: "abc"})
	if TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
}
