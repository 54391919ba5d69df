package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for the pipeline and the HTTP
// review surface.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	runOutcomes    *prometheus.CounterVec
	verifyAttempts prometheus.Histogram
	duplicateHits  *prometheus.CounterVec
	mediaCascade   prometheus.Histogram
	publishTotal   *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chronopost",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronopost",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	runOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronopost",
		Subsystem: "pipeline",
		Name:      "run_outcomes_total",
		Help:      "Terminal pipeline outcomes by content type.",
	}, []string{"content_type", "outcome"})

	verifyAttempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chronopost",
		Subsystem: "pipeline",
		Name:      "verify_attempts",
		Help:      "Draft/verify cycles consumed per run.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	duplicateHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronopost",
		Subsystem: "dedup",
		Name:      "duplicate_hits_total",
		Help:      "Duplicate detections by fingerprint kind.",
	}, []string{"kind"})

	mediaCascade := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chronopost",
		Subsystem: "media",
		Name:      "cascade_depth",
		Help:      "Search rungs tried before acquisition resolved, including exhaustion.",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
	})

	publishTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chronopost",
		Subsystem: "publisher",
		Name:      "posts_total",
		Help:      "Posts published by kind.",
	}, []string{"kind", "status"})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, runOutcomes, verifyAttempts,
		duplicateHits, mediaCascade, publishTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runOutcomes:     runOutcomes,
		verifyAttempts:  verifyAttempts,
		duplicateHits:   duplicateHits,
		mediaCascade:    mediaCascade,
		publishTotal:    publishTotal,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRunOutcome records a terminal pipeline decision.
func (c *Collector) ObserveRunOutcome(contentType, outcome string, attempts int) {
	c.runOutcomes.WithLabelValues(contentType, outcome).Inc()
	c.verifyAttempts.Observe(float64(attempts))
}

// ObserveDuplicate records a duplicate detection ("content" or "event").
func (c *Collector) ObserveDuplicate(kind string) {
	c.duplicateHits.WithLabelValues(kind).Inc()
}

// ObserveMediaCascade records how deep the fallback cascade went.
func (c *Collector) ObserveMediaCascade(depth int) {
	c.mediaCascade.Observe(float64(depth))
}

// ObservePublish records a publish attempt result.
func (c *Collector) ObservePublish(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.publishTotal.WithLabelValues(kind, status).Inc()
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
