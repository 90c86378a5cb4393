package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/policy/engine"
	"mercator-hq/covenant/pkg/telemetry/logging"
)

func install(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	p, err := New(context.Background(), &config.TracingConfig{
		Enabled:     true,
		ServiceName: "covenant-test",
		SampleRatio: 1,
	}, WithExporter(exp))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	t.Cleanup(func() { _ = p.ForceFlush(context.Background()) })
	if !p.Enabled() {
		t.Fatal("Enabled() = false")
	}
	return exp
}

func flush(t *testing.T) {
	t.Helper()
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.ForceFlush(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNewDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	p, err := New(context.Background(), &config.TracingConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer produced a valid span")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestNewRejects(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Error("nil config accepted")
	}
	if _, err := New(context.Background(), &config.TracingConfig{Enabled: true, SampleRatio: 1.5}); err == nil {
		t.Error("sample ratio 1.5 accepted")
	}
}

func TestEngineSpansExported(t *testing.T) {
	exp := install(t)

	eng, err := engine.New(engine.DefaultConfig(), recorder.New(nil, nil, logging.Discard()), engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.LoadPolicy(context.Background(), "p.txt", "Data must be encrypted."); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Enforce(context.Background(), engine.Request{UserID: "u", Action: "read data"}); err != nil {
		t.Fatal(err)
	}
	flush(t)

	if len(exp.GetSpans()) == 0 {
		t.Fatal("no spans exported")
	}
	for _, s := range exp.GetSpans() {
		if s.Resource.String() == "" {
			t.Errorf("span %s has no resource", s.Name)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	exp := install(t)

	var seenTrace string
	h := HTTPMiddleware("/v1/enforce", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = TraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/enforce", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	flush(t)

	if seenTrace != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("handler trace = %q, want propagated trace", seenTrace)
	}
	if got := rec.Header().Get(TraceIDHeader); got != seenTrace {
		t.Errorf("%s = %q", TraceIDHeader, got)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP POST /v1/enforce" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent = %s", spans[0].Parent.SpanID())
	}
}

func TestTraceIDWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID() = %q", got)
	}
}
