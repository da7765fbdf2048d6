package events

import (
	"context"
	"testing"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "trace_abc123")
	got := TraceIDFromContext(ctx)
	if got != "trace_abc123" {
		t.Errorf("got %q, want %q", got, "trace_abc123")
	}
}

func TestTraceIDFromEmptyContext(t *testing.T) {
	got := TraceIDFromContext(context.Background())
	if got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}
