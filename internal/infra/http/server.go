package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"conductor-chat/internal/config"
	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/infra/api"
	"conductor-chat/internal/infra/logging"
	"conductor-chat/internal/infra/metrics"
	"conductor-chat/internal/infra/security"
	"conductor-chat/internal/infra/worker"
)

const (
	streamPrefix   = "/api/v1/stream/"
	requestTimeout = 30 * time.Second
	// jobTTL bounds how long an unclaimed job waits for its stream.
	jobTTL = 5 * time.Minute
)

type job struct {
	id      string
	events  chan frame
	created time.Time
}

// Server is a stand-in Conductor gateway: it accepts jobs, plays a scripted
// answer through the worker pool and publishes it as server-sent events.
type Server struct {
	cfg    config.MockGatewayConfig
	pool   *worker.Pool
	log    *zerolog.Logger
	tokens *security.TokenIssuer
	jobs   sync.Map // job id -> *job
	now    func() time.Time
	server *http.Server
}

func NewServer(cfg config.MockGatewayConfig, pool *worker.Pool, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Server{cfg: cfg, pool: pool, log: logger, now: time.Now}
	if cfg.JWTSecret != "" {
		s.tokens = security.NewTokenIssuer(cfg.JWTSecret, 0)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(api.TraceID(), api.RequestLog(s.log), api.Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(api.Auth("X-API-Key", s.cfg.APIKey, s.tokens))
		r.With(api.Timeout(requestTimeout)).Post("/api/v1/stream-execute", s.handleSubmit)
		r.With(api.Timeout(requestTimeout)).Post("/api/v1/execute-direct", s.handleDirect)
		r.Get(streamPrefix+"{jobID}", s.handleStream)
	})
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.Addr).Int("workers", s.cfg.Workers).Msg("mock gateway listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// RunSweeper drops unclaimed jobs every interval until ctx is done.
func (s *Server) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sweep(s.now()); n > 0 {
				s.log.Debug().Int("dropped", n).Msg("expired jobs swept")
			}
		}
	}
}

func (s *Server) sweep(now time.Time) int {
	n := 0
	s.jobs.Range(func(k, v any) bool {
		if now.Sub(v.(*job).created) > jobTTL {
			s.jobs.Delete(k)
			metrics.IncMockJob("expired")
			n++
		}
		return true
	})
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJob(r *http.Request) (model.JobRequest, string, error) {
	var req model.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "", fmt.Errorf("invalid body: %w", err)
	}
	text := strings.TrimSpace(req.Text())
	if text == "" {
		return req, "", errors.New("textEntries is empty")
	}
	return req, text, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	req, text, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	sc := buildScript(id, text, s.now())
	j := &job{id: id, events: make(chan frame, len(sc.frames)), created: s.now()}
	s.jobs.Store(id, j)

	err = s.pool.Submit(func(ctx context.Context) error { return s.play(ctx, j, sc) })
	if err != nil {
		s.jobs.Delete(id)
		metrics.IncMockJob("rejected")
		l.Warn().Err(err).Str("uid", req.UID).Msg("job rejected")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway busy"})
		return
	}
	metrics.IncMockJob("accepted")
	l.Info().Str("job_id", id).Str("uid", req.UID).Msg("job accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     id,
		"stream_url": streamPrefix + id,
		"status":     "queued",
	})
}

// play emits the scripted frames with a per-token delay. The channel is
// buffered for the whole script so an absent reader never blocks a worker.
func (s *Server) play(ctx context.Context, j *job, sc script) error {
	defer close(j.events)
	for _, f := range sc.frames {
		if f.event.Kind == model.EventLLMNewToken && s.cfg.TokenDelay > 0 {
			select {
			case <-ctx.Done():
				metrics.IncMockJob("failed")
				return ctx.Err()
			case <-time.After(s.cfg.TokenDelay):
			}
		}
		j.events <- f
	}
	if sc.failed != "" {
		metrics.IncMockJob("failed")
	} else {
		metrics.IncMockJob("completed")
	}
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	v, ok := s.jobs.LoadAndDelete(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		return
	}
	j := v.(*job)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	l := logging.With(logging.WithJobID(r.Context(), id), s.log)
	for {
		select {
		case <-r.Context().Done():
			l.Debug().Msg("stream client went away")
			return
		case f, open := <-j.events:
			if !open {
				return
			}
			if f.drop {
				l.Info().Msg("dropping stream on request")
				panic(http.ErrAbortHandler)
			}
			b, err := json.Marshal(f.event)
			if err != nil {
				l.Error().Err(err).Msg("encode event")
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleDirect(w http.ResponseWriter, r *http.Request) {
	_, text, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id := uuid.NewString()
	sc := buildScript(id, text, s.now())
	if sc.failed != "" {
		metrics.IncMockJob("failed")
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "error": sc.failed})
		return
	}
	metrics.IncMockJob("completed")
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "result": sc.answer})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
