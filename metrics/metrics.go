package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts intake attempts by terminal outcome.
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screening",
		Subsystem: "intake",
		Name:      "submissions_total",
		Help:      "Total number of intake attempts, labeled by result.",
	}, []string{"result"})

	// CompensatingDeletesTotal counts stored photos removed after a downstream failure.
	CompensatingDeletesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screening",
		Subsystem: "intake",
		Name:      "compensating_deletes_total",
		Help:      "Photos deleted from object storage after a later intake step failed, labeled by result.",
	}, []string{"result"})

	// AnalysisDurationSeconds is the latency of the facial analysis call.
	AnalysisDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "screening",
		Subsystem: "analysis",
		Name:      "request_duration_seconds",
		Help:      "Time spent calling the facial analysis API.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"result"})

	// AnalysisFallbackTotal counts calls that returned the fallback result.
	AnalysisFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "screening",
		Subsystem: "analysis",
		Name:      "fallback_total",
		Help:      "Total number of analysis calls answered with the fallback result.",
	})

	// RateLimitedTotal counts rejected requests per limiter kind.
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screening",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limiter, labeled by limiter kind.",
	}, []string{"kind"})

	// NotificationsTotal counts outbound participant messages.
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screening",
		Subsystem: "notify",
		Name:      "messages_total",
		Help:      "Outbound participant notifications, labeled by channel and result.",
	}, []string{"channel", "result"})

	// LiveClients is the number of connected admin live-feed sockets.
	LiveClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "screening",
		Subsystem: "live",
		Name:      "clients",
		Help:      "Number of admin websocket clients currently connected.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			CompensatingDeletesTotal,
			AnalysisDurationSeconds,
			AnalysisFallbackTotal,
			RateLimitedTotal,
			NotificationsTotal,
			LiveClients,
		)
	})
}
