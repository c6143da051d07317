package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbridge_tasks_dispatched_total",
		Help: "Tasks accepted and enqueued, by queue.",
	}, []string{"queue"})

	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbridge_tasks_completed_total",
		Help: "Tasks reaching complete, by provider.",
	}, []string{"provider"})

	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbridge_tasks_failed_total",
		Help: "Tasks reaching failed, by provider and error kind.",
	}, []string{"provider", "kind"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "genbridge_queue_depth",
		Help: "Jobs waiting per queue.",
	}, []string{"queue"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbridge_rate_limited_total",
		Help: "Requests rejected with 429, by route family.",
	}, []string{"family"})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
