//go:build !integration

package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor-chat/internal/config"
	"conductor-chat/internal/domain/model"
	derror "conductor-chat/internal/error"
	"conductor-chat/internal/infra/adapters/gateway"
	"conductor-chat/internal/infra/db/memory"
	"conductor-chat/internal/infra/i18n"
	"conductor-chat/internal/infra/worker"
	"conductor-chat/internal/usecase"
)

func newTestServer(t *testing.T, apiKey string) (*Server, *httptest.Server) {
	t.Helper()
	pool := worker.NewPool(2, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() { cancel(); pool.Stop() })

	s := NewServer(config.MockGatewayConfig{Workers: 2, APIKey: apiKey}, pool, nil)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func jobBody(t *testing.T, text string) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(model.NewJobRequest("uid-1", "Stream Message", text, "conductor", time.Now()))
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func newChat(t *testing.T, baseURL string) usecase.ChatUseCase {
	t.Helper()
	cfg, err := config.Parse([]byte("gateway:\n  base_url: " + baseURL + "\n  api_key: k\n"))
	require.NoError(t, err)
	gw, err := gateway.NewConductorAdapter(cfg.Gateway, nil)
	require.NoError(t, err)
	return usecase.NewChatUseCase(gw, memory.NewChatHistory(50), i18n.MustDefault("pt"),
		usecase.ChatOptions{Conversation: "e2e", Streaming: true, Fallback: true}, nil)
}

func TestTokenize(t *testing.T) {
	toks := tokenize("Você disse: olá mundo")
	assert.Equal(t, []string{"Você", " disse:", " olá", " mundo"}, toks)
	assert.Equal(t, "Você disse: olá mundo", strings.Join(toks, ""))
	assert.Empty(t, tokenize(""))
}

func TestBuildScript(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("plain answer ends with result and end of stream", func(t *testing.T) {
		sc := buildScript("j", "olá", now)
		assert.Equal(t, "Você disse: olá", sc.answer)
		n := len(sc.frames)
		require.GreaterOrEqual(t, n, 4)
		assert.Equal(t, model.EventJobStarted, sc.frames[0].event.Kind)
		assert.Equal(t, model.EventResult, sc.frames[n-2].event.Kind)
		assert.Equal(t, model.EventEndOfStream, sc.frames[n-1].event.Kind)
	})

	t.Run("triggers are stripped from the answer", func(t *testing.T) {
		sc := buildScript("j", "#tool oi", now)
		assert.Equal(t, "Você disse: oi", sc.answer)
		var kinds []model.EventKind
		for _, f := range sc.frames {
			kinds = append(kinds, f.event.Kind)
		}
		assert.Contains(t, kinds, model.EventToolStart)
		assert.Contains(t, kinds, model.EventToolEnd)
	})

	t.Run("error", func(t *testing.T) {
		sc := buildScript("j", "#error oi", now)
		assert.NotEmpty(t, sc.failed)
		assert.Equal(t, model.EventError, sc.frames[len(sc.frames)-1].event.Kind)
	})

	t.Run("drop", func(t *testing.T) {
		sc := buildScript("j", "um dois três quatro #drop", now)
		assert.True(t, sc.frames[len(sc.frames)-1].drop)
	})
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, "secret")
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RequiresAPIKey(t *testing.T) {
	_, ts := newTestServer(t, "secret")
	resp, err := http.Post(ts.URL+"/api/v1/stream-execute", "application/json", jobBody(t, "oi"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RejectsEmptyText(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, err := http.Post(ts.URL+"/api/v1/stream-execute", "application/json", jobBody(t, "   "))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_UnknownStream(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/api/v1/stream/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SubmitThenStream(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, err := http.Post(ts.URL+"/api/v1/stream-execute", "application/json", jobBody(t, "olá"))
	require.NoError(t, err)
	var sub map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, sub["job_id"])
	assert.Equal(t, "/api/v1/stream/"+sub["job_id"], sub["stream_url"])

	stream, err := http.Get(ts.URL + sub["stream_url"])
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	var kinds []model.EventKind
	sc := bufio.NewScanner(stream.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev model.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		assert.Equal(t, sub["job_id"], ev.JobID)
		kinds = append(kinds, ev.Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, model.EventEndOfStream, kinds[len(kinds)-1])

	// a stream is claimed once
	again, err := http.Get(ts.URL + sub["stream_url"])
	require.NoError(t, err)
	again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestServer_BusyWhenPoolSaturated(t *testing.T) {
	pool := worker.NewPool(1, 0, nil) // never started: no worker takes the hand-off
	s := NewServer(config.MockGatewayConfig{}, pool, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/stream-execute", "application/json", jobBody(t, "oi"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_Sweep(t *testing.T) {
	s := NewServer(config.MockGatewayConfig{}, nil, nil)
	t0 := time.Now()
	s.jobs.Store("old", &job{id: "old", created: t0.Add(-10 * time.Minute)})
	s.jobs.Store("new", &job{id: "new", created: t0})

	assert.Equal(t, 1, s.sweep(t0))
	_, ok := s.jobs.Load("new")
	assert.True(t, ok)
}

func TestEndToEnd_StreamedAnswer(t *testing.T) {
	_, ts := newTestServer(t, "k")
	chat := newChat(t, ts.URL)

	var tokens []string
	msg, err := chat.Send(context.Background(), "olá mundo", func(u model.ProgressUpdate) {
		if u.Kind == model.TokenAppended {
			tokens = append(tokens, u.Text)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "Você disse: olá mundo", msg.Content)
	assert.Equal(t, msg.Content, strings.Join(tokens, ""))
	assert.NotEmpty(t, msg.JobID)

	hist, err := chat.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.RoleUser, hist[0].Role)
}

func TestEndToEnd_BearerTokenAuth(t *testing.T) {
	pool := worker.NewPool(1, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer func() { cancel(); pool.Stop() }()
	s := NewServer(config.MockGatewayConfig{APIKey: "server-only", JWTSecret: "shared"}, pool, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	cfg, err := config.Parse([]byte("gateway:\n  base_url: " + ts.URL + "\n  jwt_secret: shared\n"))
	require.NoError(t, err)
	gw, err := gateway.NewConductorAdapter(cfg.Gateway, nil)
	require.NoError(t, err)
	chat := usecase.NewChatUseCase(gw, nil, i18n.MustDefault("pt"),
		usecase.ChatOptions{Streaming: true, Fallback: true}, nil)

	msg, err := chat.Send(context.Background(), "oi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Você disse: oi", msg.Content)
}

func TestEndToEnd_ServerError(t *testing.T) {
	_, ts := newTestServer(t, "k")
	msg, err := newChat(t, ts.URL).Send(context.Background(), "#error oi", nil)

	var se *derror.ServerReportedError
	require.True(t, errors.As(err, &se))
	assert.True(t, msg.Failed)
	assert.Equal(t, "❌ Erro: simulated agent failure", msg.Content)
}

func TestEndToEnd_DroppedStreamKeepsPartial(t *testing.T) {
	s, _ := newTestServer(t, "k")
	var submits, directs atomic.Int32
	router := s.Router()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/stream-execute":
			submits.Add(1)
		case "/api/v1/execute-direct":
			directs.Add(1)
		}
		router.ServeHTTP(w, r)
	}))
	defer ts.Close()

	msg, err := newChat(t, ts.URL).Send(context.Background(), "um dois três quatro #drop", nil)

	var ie *derror.StreamInterruptedError
	require.True(t, errors.As(err, &ie))
	var te *derror.TransportError
	assert.True(t, errors.As(err, &te), "aborted connection surfaces as a read failure: %v", err)
	assert.Equal(t, int32(1), submits.Load())
	assert.Zero(t, directs.Load())
	assert.True(t, msg.Failed)
	assert.True(t, msg.Partial)
	assert.True(t, strings.HasPrefix(msg.Content, "Você"))
}

func TestEndToEnd_FallbackWhenBusy(t *testing.T) {
	pool := worker.NewPool(1, 0, nil)
	s := NewServer(config.MockGatewayConfig{}, pool, nil)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	msg, err := newChat(t, ts.URL).Send(context.Background(), "oi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Você disse: oi", msg.Content)
}
