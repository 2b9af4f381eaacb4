package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	tid, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	if err != nil {
		t.Fatal(err)
	}
	sid, err := trace.SpanIDFromHex("b7ad6b7169203331")
	if err != nil {
		t.Fatal(err)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestInjectTraceHeadersAddsTraceparent(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	in := []kafka.Header{{Key: "event_id", Value: []byte("e1")}}
	out := InjectTraceHeaders(spanContext(t), in)

	var traceparent string
	for _, h := range out {
		if h.Key == "traceparent" {
			traceparent = string(h.Value)
		}
	}
	if traceparent == "" {
		t.Fatalf("traceparent header missing from %v", out)
	}
	if got := headerValue(out, "event_id"); got != "e1" {
		t.Fatalf("existing header lost, got %q", got)
	}
}

func TestInjectTraceHeadersOverwritesExisting(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	in := []kafka.Header{{Key: "traceparent", Value: []byte("stale")}}
	out := InjectTraceHeaders(spanContext(t), in)

	if len(out) != 1 {
		t.Fatalf("expected single traceparent header, got %v", out)
	}
	if string(out[0].Value) == "stale" {
		t.Fatal("traceparent not overwritten")
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
