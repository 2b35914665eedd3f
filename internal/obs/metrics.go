package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	// Метрики портала: попытки входа и выданные отказы по квоте.
	portalAuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_auth_attempts_total",
			Help: "Portal authentication attempts by outcome.",
		},
		[]string{"outcome"},
	)

	portalQuotaDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_download_quota_denied_total",
		Help: "Download attempts denied by the per-user quota.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		portalAuthTotal, portalQuotaDenied)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePortalAuth записывает исход попытки аутентификации портала.
func ObservePortalAuth(outcome string) {
	portalAuthTotal.WithLabelValues(outcome).Inc()
}

// ObserveQuotaDenied учитывает отказ по квоте загрузок.
func ObserveQuotaDenied() {
	portalQuotaDenied.Inc()
}

// CanonicalPath заменяет идентификаторы в пути на шаблоны, чтобы не
// раздувать кардинальность метрик.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "audits":
		parts[2] = ":id"
		if len(parts) >= 6 && parts[3] == "portal" && parts[4] == "users" && parts[5] != "bulk" {
			parts[5] = ":id"
		}
	case len(parts) >= 4 && parts[0] == "v1" && parts[1] == "audit-portal" &&
		(parts[2] == "requests" || parts[2] == "evidence"):
		parts[3] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
