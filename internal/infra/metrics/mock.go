package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(mockJobsTotal) }

var mockJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mock_gateway_jobs_total",
		Help: "Jobs handled by the mock gateway, labeled by status.",
	},
	[]string{"status"}, // 'accepted', 'rejected', 'completed', 'failed'
)

func IncMockJob(status string) {
	mockJobsTotal.WithLabelValues(norm(status)).Inc()
}
