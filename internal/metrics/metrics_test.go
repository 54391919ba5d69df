package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewCollector(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	if c.Handler() == nil {
		t.Error("Handler should not be nil")
	}
}

func TestCollector_InstrumentHandler(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	handler := c.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/review/pending", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	// Exported metrics should include the instrumented request.
	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	c.Handler().ServeHTTP(metricsRec, metricsReq)

	body := metricsRec.Body.String()
	if !strings.Contains(body, "chronopost_http_requests_total") {
		t.Error("exported metrics missing request counter")
	}
}

func TestCollector_PipelineObservations(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.ObserveRunOutcome("daily_fact", "approved", 1)
	c.ObserveDuplicate("content")
	c.ObserveMediaCascade(3)
	c.ObservePublish("media", nil)
	c.ObservePublish("text", errors.New("rate limited"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"chronopost_pipeline_run_outcomes_total",
		"chronopost_dedup_duplicate_hits_total",
		"chronopost_media_cascade_depth",
		"chronopost_publisher_posts_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exported metrics missing %s", want)
		}
	}
}
