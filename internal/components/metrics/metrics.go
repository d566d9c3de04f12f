package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache reads by cache ("session", "result") and outcome
	// ("hit", "miss", "expired", "mismatch").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvatt_cache_lookups_total",
			Help: "Cache lookups by cache and outcome",
		},
		[]string{"cache", "outcome"},
	)

	// PortalLogins counts login handshakes by outcome.
	PortalLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvatt_portal_logins_total",
			Help: "Login handshakes against the booking portal by outcome",
		},
		[]string{"outcome"},
	)

	// PortalScrapes counts status page scrapes by outcome.
	PortalScrapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvatt_portal_scrapes_total",
			Help: "Status page scrapes by outcome",
		},
		[]string{"outcome"},
	)

	// FetchRetries counts requests that needed a forced re-login.
	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tvatt_fetch_retries_total",
			Help: "Fetches that re-authenticated after a failed scrape",
		},
	)

	// HttpRequests counts inbound API requests.
	HttpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvatt_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration observes inbound API latency.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tvatt_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)
