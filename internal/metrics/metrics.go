// Package metrics exposes Prometheus collectors for the watcher.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_checks_total",
			Help: "Total number of target checks, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_fetch_attempts_total",
			Help: "Total fetch+extract attempts, labeled by site and result.",
		},
		[]string{"site", "result"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_fetch_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_notifications_total",
			Help: "Restock notifications, labeled by delivery status.",
		},
		[]string{"status"},
	)

	targetInStock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockwatch_target_in_stock",
			Help: "1 when the last definite verdict for a target was in stock, else 0.",
		},
		[]string{"target"},
	)

	cycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockwatch_cycle_duration_seconds",
			Help:    "Wall time of one scheduler cycle.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockwatch_cycles_total",
			Help: "Scheduler cycles, labeled by status.",
		},
		[]string{"status"},
	)

	headlessPromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockwatch_headless_promotions_total",
			Help: "HTTP probes promoted to a headless browser fetch.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockwatch_rate_limit_delays_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
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
)

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

// ObserveCheck counts a finished target check.
func ObserveCheck(site, outcome string) {
	checksTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveAttempt counts one fetch+extract attempt and the bytes it pulled.
func ObserveAttempt(site, result string, bytesFetched int) {
	sanitized := SanitizeSite(site)
	fetchAttemptsTotal.WithLabelValues(sanitized, result).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveNotification counts a delivery attempt.
func ObserveNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

// SetInStock records the latest definite availability for a target.
func SetInStock(target string, inStock bool) {
	v := 0.0
	if inStock {
		v = 1
	}
	targetInStock.WithLabelValues(target).Set(v)
}

// ObserveCycle records a completed cycle.
func ObserveCycle(status string, duration time.Duration) {
	cyclesTotal.WithLabelValues(status).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveHeadlessPromotion increments the promotion counter.
func ObserveHeadlessPromotion() {
	headlessPromotionsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
