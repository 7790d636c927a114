package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		chatRequestsTotal,
		fallbacksTotal,
		gatewayCallLatencyMs,
		exchangeDurationMs,
	)
}

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Chat requests by delivery mode and final outcome.",
		},
		[]string{"mode", "outcome"}, // mode: stream|sync, outcome: ok|failed
	)

	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_fallbacks_total",
			Help: "Streaming attempts retried on the synchronous endpoint, by error kind.",
		},
		[]string{"reason"},
	)

	gatewayCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_latency_ms",
			Help:    "Gateway HTTP call latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000, 30000},
		},
		[]string{"op", "success"}, // op: submit|stream_open|execute|health
	)

	exchangeDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_exchange_duration_ms",
			Help:    "Time from send to final message in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"mode"},
	)
)

func IncChatRequest(mode, outcome string) {
	chatRequestsTotal.WithLabelValues(norm(mode), norm(outcome)).Inc()
}

func IncFallback(reason string) {
	fallbacksTotal.WithLabelValues(norm(reason)).Inc()
}

func ObserveGatewayCall(op string, d time.Duration, success bool) {
	gatewayCallLatencyMs.WithLabelValues(norm(op), strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}

func ObserveExchange(mode string, d time.Duration) {
	exchangeDurationMs.WithLabelValues(norm(mode)).Observe(float64(d.Milliseconds()))
}
