package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		streamEventsTotal,
		streamMalformedFramesTotal,
		streamOutcomesTotal,
	)
}

var (
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_total",
			Help: "Stream events dispatched, by event kind.",
		},
		[]string{"kind"},
	)

	streamMalformedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_malformed_frames_total",
			Help: "SSE frames skipped because their payload could not be decoded.",
		},
	)

	streamOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_outcomes_total",
			Help: "How streaming exchanges ended.",
		},
		[]string{"outcome"}, // completed|server_error|interrupted|open_failed
	)
)

// IncStreamEvent counts a dispatched event. Unrecognized kinds share one label.
func IncStreamEvent(kind string, known bool) {
	if !known {
		kind = "unrecognized"
	}
	streamEventsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncMalformedFrame() { streamMalformedFramesTotal.Inc() }

func IncStreamOutcome(outcome string) {
	streamOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}
