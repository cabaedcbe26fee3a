package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCounterIncAccumulatesPerLabelSet(t *testing.T) {
	m := NewMetrics(zerolog.New(io.Discard))
	m.CounterInc("feedcore_feed_requests_total", map[string]string{"status": "200"})
	m.CounterInc("feedcore_feed_requests_total", map[string]string{"status": "200"})
	m.CounterInc("feedcore_feed_requests_total", map[string]string{"status": "500"})

	if got := m.getCounter("feedcore_feed_requests_total", map[string]string{"status": "200"}).Value(); got != 2 {
		t.Fatalf("expected 2 for status=200, got %d", got)
	}
	if got := m.getCounter("feedcore_feed_requests_total", map[string]string{"status": "500"}).Value(); got != 1 {
		t.Fatalf("expected 1 for status=500, got %d", got)
	}
}

func TestGaugeSetOverwritesRatherThanAccumulates(t *testing.T) {
	m := NewMetrics(zerolog.New(io.Discard))
	m.GaugeSet("feedcore_cache_backlog", nil, 5)
	m.GaugeSet("feedcore_cache_backlog", nil, 2)
	if got := m.getGauge("feedcore_cache_backlog", nil).Value(); got != 2 {
		t.Fatalf("expected last-write-wins value of 2, got %f", got)
	}
}

func TestHistogramObservePlacesValuesInCorrectBucket(t *testing.T) {
	h := NewHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)
	if h.counts[0] != 1 {
		t.Fatalf("expected 1 observation in the <=10 bucket, got %d", h.counts[0])
	}
	if h.counts[1] != 1 {
		t.Fatalf("expected 1 observation in the <=100 bucket, got %d", h.counts[1])
	}
	if h.counts[2] != 1 {
		t.Fatalf("expected 1 observation in the +Inf bucket, got %d", h.counts[2])
	}
	if h.count != 3 || h.sum != 555 {
		t.Fatalf("expected count=3 sum=555, got count=%d sum=%f", h.count, h.sum)
	}
}

func TestTrackFeedRequestIncrementsRequestsAndObservesLatency(t *testing.T) {
	m := NewMetrics(zerolog.New(io.Discard))
	m.TrackFeedRequest(200, 42, 10)
	if got := m.getCounter("feedcore_feed_requests_total", map[string]string{"status": "200"}).Value(); got != 1 {
		t.Fatalf("expected 1 request recorded, got %d", got)
	}
}

func TestHandlerServesPrometheusExpositionFormat(t *testing.T) {
	m := NewMetrics(zerolog.New(io.Discard))
	m.CounterInc("feedcore_feed_requests_total", map[string]string{"status": "200"})
	m.GaugeSet("feedcore_cache_backlog", nil, 3)
	m.HistogramObserve("feedcore_feed_request_duration_ms", map[string]string{"status": "200"}, 12)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler()(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "feedcore_feed_requests_total") {
		t.Fatalf("expected counter in exposition output, got:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE feedcore_cache_backlog gauge") {
		t.Fatalf("expected gauge type header, got:\n%s", body)
	}
	if !strings.Contains(body, "_bucket{le=") {
		t.Fatalf("expected histogram buckets, got:\n%s", body)
	}
}
