package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	got, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"o-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderID != "o-1" {
		t.Errorf("Expected o-1, got %q", got.OrderID)
	}
	if _, err := UnwrapPayload[payload](json.RawMessage(`[`)); err == nil {
		t.Error("Expected decode error")
	}
}

func TestTraceparentRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tp := Traceparent(ctx)
	if tp == "" {
		t.Fatal("Expected a traceparent")
	}
	back := trace.SpanContextFromContext(WithTraceparent(context.Background(), tp))
	if back.TraceID() != tid {
		t.Errorf("Expected trace id %s, got %s", tid, back.TraceID())
	}

	h := InjectHeaders(ctx, nil)
	back = trace.SpanContextFromContext(ExtractHeaders(context.Background(), h))
	if back.SpanID() != sid {
		t.Errorf("Expected span id %s, got %s", sid, back.SpanID())
	}
	if Traceparent(context.Background()) != "" {
		t.Error("Expected empty traceparent without a span")
	}
}
