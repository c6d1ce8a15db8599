package observe

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withTestProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestTraceIDEmptyByDefault(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}
}

func TestStartSpanRecords(t *testing.T) {
	exp := withTestProvider(t)

	ctx, span := StartSpan(context.Background(), "pipeline.scoring")
	if id := TraceID(ctx); len(id) != 32 {
		t.Errorf("trace id length = %d, want 32", len(id))
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "pipeline.scoring" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestInitExporters(t *testing.T) {
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx := context.Background()
	for _, name := range []string{"", "none", "stdout"} {
		var buf bytes.Buffer
		shutdown, err := Init(ctx, Config{Exporter: name, Writer: &buf}, nil)
		if err != nil {
			t.Fatalf("Init(%q) error: %v", name, err)
		}
		_, span := StartSpan(ctx, "probe")
		span.End()
		if err := shutdown(ctx); err != nil {
			t.Fatalf("shutdown(%q) error: %v", name, err)
		}
		if name == "stdout" && !bytes.Contains(buf.Bytes(), []byte("probe")) {
			t.Errorf("stdout exporter did not write the span")
		}
	}

	if _, err := Init(ctx, Config{Exporter: "zipkin"}, nil); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
