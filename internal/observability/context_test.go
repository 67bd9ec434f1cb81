package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFrom(t *testing.T) {
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom() without logger should return fallback")
	}
	if got := LoggerFrom(context.Background(), nil); got == nil {
		t.Error("LoggerFrom() with nil fallback should return a no-op logger")
	}

	scoped := zap.NewExample()
	ctx := WithLogger(context.Background(), scoped)
	if got := LoggerFrom(ctx, fallback); got != scoped {
		t.Error("LoggerFrom() should return the context logger")
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID() = %q, want empty", got)
	}
	ctx := WithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("CorrelationID() = %q, want abc-123", got)
	}
}
