package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type captureExporter struct {
	mu    sync.Mutex
	spans []*Span
}

func (c *captureExporter) Export(spans []*Span) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, spans...)
	return nil
}

func (c *captureExporter) Shutdown() error { return nil }

func (c *captureExporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

func TestFormatAndParseTraceparentRoundTrip(t *testing.T) {
	sc := SpanContext{TraceID: GenerateTraceID(), SpanID: GenerateSpanID(), Sampled: true}
	header := FormatTraceparent(sc)

	parsed, err := ParseTraceparent(header)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.TraceID != sc.TraceID {
		t.Fatalf("expected trace id to round-trip, got %s vs %s", parsed.TraceID, sc.TraceID)
	}
	if !parsed.Sampled {
		t.Fatal("expected sampled flag to round-trip as true")
	}
}

func TestParseTraceparentRejectsMalformedHeader(t *testing.T) {
	if _, err := ParseTraceparent("not-a-traceparent"); err == nil {
		t.Fatal("expected an error for a malformed header")
	}
}

func TestStartSpanWithParentSharesTraceID(t *testing.T) {
	exp := &captureExporter{}
	tracer := NewTracer(zerolog.New(io.Discard), exp, 1.0)
	defer tracer.Stop()

	root := tracer.StartSpan("root", nil)
	child := tracer.StartSpan("child", &root.Context)

	if child.Context.TraceID != root.Context.TraceID {
		t.Fatal("expected child span to inherit the parent's trace id")
	}
	if child.Context.ParentID != root.Context.SpanID {
		t.Fatal("expected child span's parent id to be the root's span id")
	}
}

func TestEndSpanSkipsUnsampledSpans(t *testing.T) {
	exp := &captureExporter{}
	tracer := NewTracer(zerolog.New(io.Discard), exp, 1.0)
	defer tracer.Stop()

	span := tracer.StartSpan("unsampled", nil)
	span.Context.Sampled = false
	tracer.EndSpan(span)
	tracer.flush()

	if exp.count() != 0 {
		t.Fatalf("expected unsampled spans not to be exported, got %d", exp.count())
	}
}

func TestEndSpanExportsSampledSpansOnFlush(t *testing.T) {
	exp := &captureExporter{}
	tracer := NewTracer(zerolog.New(io.Discard), exp, 1.0)
	defer tracer.Stop()

	span := tracer.StartSpan("sampled", nil)
	tracer.EndSpan(span)
	tracer.flush()

	if exp.count() != 1 {
		t.Fatalf("expected 1 exported span, got %d", exp.count())
	}
}

func TestTracingMiddlewarePropagatesTraceparentHeader(t *testing.T) {
	exp := &captureExporter{}
	tracer := NewTracer(zerolog.New(io.Discard), exp, 1.0)
	defer tracer.Stop()

	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Traceparent") == "" {
		t.Fatal("expected Traceparent response header to be set")
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected X-Trace-ID response header to be set")
	}
}

func TestTracingMiddlewareMarksErrorStatusOnServerError(t *testing.T) {
	exp := &captureExporter{}
	tracer := NewTracer(zerolog.New(io.Discard), exp, 1.0)
	defer tracer.Stop()

	var captured *Span
	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = SpanFromContext(r.Context())
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured == nil {
		t.Fatal("expected a span to be reachable from the request context")
	}
	if captured.StatusCode != "ERROR" {
		t.Fatalf("expected span status ERROR after a 500 response, got %q", captured.StatusCode)
	}
}
