package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(historyPoolConns) }

var historyPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "chat_history_pool_connections",
		Help: "Connections of the Postgres history pool by state.",
	},
	[]string{"state"}, // total|idle|acquired
)

func SetHistoryPoolStats(total, idle, acquired int32) {
	historyPoolConns.WithLabelValues("total").Set(float64(total))
	historyPoolConns.WithLabelValues("idle").Set(float64(idle))
	historyPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}
