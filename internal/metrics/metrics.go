// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperRecordsTotal            *prometheus.CounterVec
	scraperBytesTotal              *prometheus.CounterVec
	scraperRelevanceScore          prometheus.Histogram
	scraperExtractDurationSeconds  *prometheus.HistogramVec
	scraperPassesTotal             *prometheus.CounterVec
	scraperPassDurationSeconds     prometheus.Histogram
	scraperInflightRecords         prometheus.Gauge
	scraperRobotsFallbackTotal     prometheus.Counter
	scraperSideEffectFailuresTotal *prometheus.CounterVec
	scraperRateLimitDelaySeconds   *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_total",
				Help: "Total number of candidate records processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_bytes_total",
				Help: "Total number of HTML bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		scraperRelevanceScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_relevance_score",
				Help:    "Distribution of relevance scores computed before extraction.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		)

		scraperExtractDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_extract_duration_seconds",
				Help:    "Histogram of extraction latencies, labeled by result.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"result"},
		)

		scraperPassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_passes_total",
				Help: "Total number of orchestrator passes, labeled by final status.",
			},
			[]string{"status"},
		)

		scraperPassDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_pass_duration_seconds",
				Help:    "Histogram of full pass durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		scraperInflightRecords = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_inflight_records",
				Help: "Number of records currently being processed.",
			},
		)

		scraperRobotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_robots_fallback_total",
				Help: "robots.txt probes that fell back to allow-all after transient TLS failures.",
			},
		)

		scraperSideEffectFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_side_effect_failures_total",
				Help: "Failures of non-critical steps (archive, publish, run log), labeled by step.",
			},
			[]string{"step"},
		)

		scraperRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_ratelimit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter, labeled by site.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts one record reaching outcome.
func ObserveRecord(outcome string) {
	Init()
	scraperRecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScore records a relevance score.
func ObserveScore(score float64) {
	Init()
	scraperRelevanceScore.Observe(score)
}

// ObserveExtraction records how long an extraction took and how many bytes it pulled.
func ObserveExtraction(site string, ok bool, bytesFetched int, duration time.Duration) {
	Init()
	result := "ok"
	if !ok {
		result = "error"
	}
	scraperExtractDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
	if bytesFetched > 0 {
		scraperBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObservePass records a finished pass.
func ObservePass(status string, duration time.Duration) {
	Init()
	scraperPassesTotal.WithLabelValues(status).Inc()
	scraperPassDurationSeconds.Observe(duration.Seconds())
}

// IncInflight increments the in-flight records gauge.
func IncInflight() {
	Init()
	scraperInflightRecords.Inc()
}

// DecInflight decrements the in-flight records gauge.
func DecInflight() {
	Init()
	scraperInflightRecords.Dec()
}

// ObserveRobotsFallback increments the robots.txt allow-all fallback counter.
func ObserveRobotsFallback() {
	Init()
	scraperRobotsFallbackTotal.Inc()
}

// ObserveSideEffectFailure counts a failed archive, publish or run-log write.
func ObserveSideEffectFailure(step string) {
	Init()
	scraperSideEffectFailuresTotal.WithLabelValues(step).Inc()
}

// ObserveRateLimitDelay records how long a fetch waited for its host's token.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	scraperRateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
