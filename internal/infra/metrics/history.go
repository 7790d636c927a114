package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(historyOpsTotal, historyPrunedTotal) }

var historyOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_history_ops_total",
		Help: "Conversation history operations by backend, operation and result.",
	},
	[]string{"backend", "op", "result"}, // e.g. backend="redis", op="append", result="ok"
)

var historyPrunedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_history_pruned_total",
		Help: "Messages deleted by the retention worker.",
	},
)

func AddHistoryPruned(n int64) {
	historyPrunedTotal.Add(float64(n))
}

func IncHistoryOp(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	historyOpsTotal.WithLabelValues(norm(backend), norm(op), result).Inc()
}
