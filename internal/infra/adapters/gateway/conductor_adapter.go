package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"conductor-chat/internal/config"
	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/adapter"
	derror "conductor-chat/internal/error"
	"conductor-chat/internal/infra/logging"
	"conductor-chat/internal/infra/metrics"
	"conductor-chat/internal/infra/security"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GatewayAdapter = (*ConductorAdapter)(nil)

const (
	streamTitle = "Stream Message"
	directTitle = "Chat Message"
	tokenClient = "conductor-chat"

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 512
)

// ConductorAdapter talks to the Conductor gateway over HTTP: job submission,
// the SSE event stream, the direct endpoint and the health probe.
type ConductorAdapter struct {
	cfg    config.GatewayConfig
	base   *url.URL
	api    *http.Client
	stream *http.Client
	tokens *security.TokenIssuer
	log    *zerolog.Logger
	now    func() time.Time
}

func NewConductorAdapter(cfg config.GatewayConfig, logger *zerolog.Logger) (*ConductorAdapter, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway base url %q", cfg.BaseURL)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	api, stream := newClients(cfg.RequestTimeout)
	a := &ConductorAdapter{
		cfg:    cfg,
		base:   base,
		api:    api,
		stream: stream,
		log:    logger,
		now:    time.Now,
	}
	if cfg.JWTSecret != "" {
		a.tokens = security.NewTokenIssuer(cfg.JWTSecret, 5*time.Minute)
	}
	return a, nil
}

// submitResponse is the body of a successful stream-execute call.
type submitResponse struct {
	JobID     string `json:"job_id"`
	StreamURL string `json:"stream_url"`
}

func (a *ConductorAdapter) Submit(ctx context.Context, text string) (*model.JobHandle, error) {
	req := model.NewJobRequest(ulid.Make().String(), streamTitle, text, a.cfg.TargetType, a.now())
	body, err := a.postJSON(ctx, "submit", a.cfg.StreamEndpoint, req)
	if err != nil {
		return nil, err
	}

	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &derror.ProtocolError{Reason: "invalid submission response", Err: err}
	}
	if out.JobID == "" {
		return nil, &derror.ProtocolError{Reason: "missing job_id"}
	}

	streamURL, err := a.resolveStreamURL(out.JobID, out.StreamURL)
	if err != nil {
		return nil, &derror.ProtocolError{Reason: "invalid stream_url", Err: err}
	}
	logging.With(ctx, a.log).Debug().
		Str("job_id", out.JobID).
		Str("request_uid", req.UID).
		Str("stream_url", streamURL).
		Msg("job submitted")
	return &model.JobHandle{JobID: out.JobID, StreamURL: streamURL, RequestID: req.UID}, nil
}

// resolveStreamURL prefers the server-provided stream_url, resolved against
// the base URL, and otherwise derives <stream_path><job_id>.
func (a *ConductorAdapter) resolveStreamURL(jobID, streamURL string) (string, error) {
	ref := streamURL
	if ref == "" {
		ref = a.cfg.StreamPath + url.PathEscape(jobID)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return a.base.ResolveReference(u).String(), nil
}

func (a *ConductorAdapter) OpenStream(ctx context.Context, job model.JobHandle) (adapter.EventStream, error) {
	start := time.Now()
	target := job.StreamURL
	if target == "" {
		var err error
		if target, err = a.resolveStreamURL(job.JobID, ""); err != nil {
			return nil, &derror.StreamOpenError{JobID: job.JobID, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &derror.StreamOpenError{JobID: job.JobID, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	a.auth(req)

	resp, err := a.stream.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall("stream_open", time.Since(start), false)
		return nil, &derror.StreamOpenError{JobID: job.JobID, Err: a.transportErr(ctx, err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveGatewayCall("stream_open", time.Since(start), false)
		defer resp.Body.Close()
		return nil, &derror.StreamOpenError{JobID: job.JobID, Err: statusErr(resp)}
	}
	metrics.ObserveGatewayCall("stream_open", time.Since(start), true)

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		logging.With(ctx, a.log).Warn().Str("job_id", job.JobID).Str("content_type", ct).Msg("unexpected stream content type")
	}
	return newSSEStream(job.JobID, resp.Body, a.cfg.StreamIdleTimeout, a.log), nil
}

func (a *ConductorAdapter) Execute(ctx context.Context, text string) (*model.SyncResult, error) {
	req := model.NewJobRequest(ulid.Make().String(), directTitle, text, a.cfg.TargetType, a.now())
	body, err := a.postJSON(ctx, "execute", a.cfg.DirectEndpoint, req)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &derror.ProtocolError{Reason: "invalid direct response", Err: err}
	}
	return &model.SyncResult{
		JobID:    model.RawText(fields["job_id"]),
		Message:  model.RawText(fields["message"]),
		Response: model.RawText(fields["response"]),
		Error:    model.RawText(fields["error"]),
		Result:   model.RawText(fields["result"]),
	}, nil
}

func (a *ConductorAdapter) Healthy(ctx context.Context) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint(a.cfg.HealthEndpoint), nil)
	if err != nil {
		return err
	}
	a.auth(req)
	resp, err := a.api.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall("health", time.Since(start), false)
		return a.transportErr(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	metrics.ObserveGatewayCall("health", time.Since(start), ok)
	if !ok {
		return statusErr(resp)
	}
	return nil
}

func (a *ConductorAdapter) postJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	start := time.Now()
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(path), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	a.auth(req)

	resp, err := a.api.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall(op, time.Since(start), false)
		return nil, a.transportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveGatewayCall(op, time.Since(start), false)
		return nil, statusErr(resp)
	}
	body, err := io.ReadAll(resp.Body)
	metrics.ObserveGatewayCall(op, time.Since(start), err == nil)
	if err != nil {
		return nil, a.transportErr(ctx, err)
	}
	return body, nil
}

func (a *ConductorAdapter) endpoint(path string) string {
	return a.base.String() + path
}

func (a *ConductorAdapter) auth(req *http.Request) {
	if a.cfg.APIKey != "" {
		req.Header.Set(a.cfg.APIKeyHeader, a.cfg.APIKey)
	}
	if a.tokens == nil {
		return
	}
	tok, err := a.tokens.Mint(tokenClient)
	if err != nil {
		logging.With(req.Context(), a.log).Warn().Err(err).Msg("mint service token")
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok)
}

// transportErr wraps a client failure. A cancellation by the caller is
// returned as the context error so it never looks retryable.
func (a *ConductorAdapter) transportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &derror.TransportError{Reason: err.Error(), Err: err}
}

func statusErr(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	reason := http.StatusText(resp.StatusCode)
	if s := strings.TrimSpace(string(snippet)); s != "" {
		reason += ": " + s
	}
	return &derror.TransportError{Status: resp.StatusCode, Reason: reason}
}
