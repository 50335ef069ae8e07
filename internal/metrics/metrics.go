package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moai_http_requests_total",
		Help: "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moai_http_request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moai_messages_sent_total",
		Help: "Direct messages committed.",
	})

	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moai_moderation_decisions_total",
		Help: "Moderation outcomes by kind and decision.",
	}, []string{"kind", "decision"})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moai_notifications_created_total",
		Help: "Notifications written by type.",
	}, []string{"type"})

	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moai_stream_subscribers",
		Help: "Open change stream connections.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
