package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics lives on its own registry so every server (and test) starts
// from zero.
type metrics struct {
	registry           *prometheus.Registry
	requests           *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	exports            *prometheus.CounterVec
	validationFailures prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catty",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catty",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catty",
			Name:      "exports_total",
			Help:      "Rendered exports by format and whether they were archived.",
		}, []string{"format", "archived"}),
		validationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "catty",
			Name:      "validation_failures_total",
			Help:      "Documents refused or reported invalid by the validator.",
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observe(method, path string, status int, elapsed time.Duration) {
	route := routeLabel(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var knownRoutes = map[string]bool{
	"/":                  true,
	"/api/health":        true,
	"/api/ready":         true,
	"/api/auth/register": true,
	"/api/auth/login":    true,
	"/api/auth/refresh":  true,
	"/api/auth/logout":   true,
	"/api/auth/me":       true,
	"/api/admin/ping":    true,
	"/api/templates":     true,
	"/api/search":        true,
	"/api/files":         true,
}

// routeLabel maps a path onto the routes the server serves, with
// identifiers replaced by placeholders. Anything else is "other" so
// scanners cannot grow the label set.
func routeLabel(path string) string {
	parts := splitPath(path)
	if len(parts) >= 3 && parts[0] == "api" {
		switch {
		case parts[1] == "files" && len(parts) == 3:
			return "/api/files/{id}"
		case parts[1] == "files" && len(parts) == 4 && (parts[3] == "validate" || parts[3] == "export"):
			return "/api/files/{id}/" + parts[3]
		case parts[1] == "share" && len(parts) == 3:
			return "/api/share/{token}"
		}
	}
	label := "/" + strings.Join(parts, "/")
	if knownRoutes[label] {
		return label
	}
	return "other"
}
