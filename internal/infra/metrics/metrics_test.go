//go:build !integration

package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(chatRequestsTotal.WithLabelValues("stream", "ok"))
	IncChatRequest(" Stream ", "OK")
	assert.Equal(t, before+1, testutil.ToFloat64(chatRequestsTotal.WithLabelValues("stream", "ok")))

	IncStreamEvent("weird_kind", false)
	assert.GreaterOrEqual(t, testutil.ToFloat64(streamEventsTotal.WithLabelValues("unrecognized")), 1.0)

	IncHistoryOp("redis", "append", errors.New("down"))
	assert.GreaterOrEqual(t, testutil.ToFloat64(historyOpsTotal.WithLabelValues("redis", "append", "error")), 1.0)

	IncFallback("")
	assert.GreaterOrEqual(t, testutil.ToFloat64(fallbacksTotal.WithLabelValues("unknown")), 1.0)

	ObserveGatewayCall("submit", 15*time.Millisecond, true)
}

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	SetBuildInfo("test", "deadbeef")
	IncMockJob("accepted")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "conductor_chat_build_info")
	assert.Contains(t, body, "mock_gateway_jobs_total")
}
