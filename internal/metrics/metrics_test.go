package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNoOpMetrics(t *testing.T) {
	m := &NoOpMetrics{}

	// None of these should panic
	m.RecordHTTPRequest("GET", "/v1/events", 200, time.Millisecond)
	m.RecordDispatch("dispatched")
	m.RecordEventIngested("rss", "inserted")
	m.RecordFusionEmitted("default")
	m.RecordDelivery("telegram", "success")
	m.SetDLQDepth("notifications-dlq", 3)

	if m.Handler() == nil {
		t.Error("Expected non-nil handler")
	}
}

func TestPrometheusMetrics_Exposition(t *testing.T) {
	m := NewPrometheus()

	m.RecordDispatch("dispatched")
	m.RecordDispatch("skipped")
	m.RecordEventIngested("rss", "inserted")
	m.RecordFusionEmitted("default")
	m.RecordDelivery("webhook", "dlq")
	m.SetDLQDepth("notifications-dlq", 2)
	m.RecordHTTPRequest("GET", "/v1/events", 200, 5*time.Millisecond)
	m.RecordFetch("market", 20*time.Millisecond)
	m.RecordDBQuery("upsert", "success")
	m.SetDBConnectionsActive(4)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"eventfuse_dispatches_total",
		"eventfuse_events_ingested_total",
		"eventfuse_fused_events_total",
		"eventfuse_deliveries_total",
		"eventfuse_dlq_depth",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %s", want)
		}
	}
}

func TestPrometheusMetrics_IsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration
	a := NewPrometheus()
	b := NewPrometheus()
	a.RecordDispatch("dispatched")
	b.RecordDispatch("dispatched")
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusText(tt.code); got != tt.want {
			t.Errorf("statusText(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
