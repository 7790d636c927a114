// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"conductor-chat/internal/domain"
	"conductor-chat/internal/domain/exchange"
	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/adapter"
	"conductor-chat/internal/domain/ports/repository"
	derror "conductor-chat/internal/error"
	"conductor-chat/internal/infra/logging"
	"conductor-chat/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	// Send runs one exchange. It always returns a displayable message; on
	// failure the message is marked Failed and the typed error is returned too.
	Send(ctx context.Context, text string, onProgress model.ProgressFunc) (*model.ChatMessage, error)
	History(ctx context.Context, limit int) ([]*model.ChatMessage, error)
	ClearHistory(ctx context.Context) error
	CheckConnection(ctx context.Context) error
}

type ChatOptions struct {
	Conversation string
	Streaming    bool // try the event stream first
	Fallback     bool // retry on the direct endpoint when the stream cannot be established
	Dev          bool
}

type chatUC struct {
	gateway adapter.GatewayAdapter
	history repository.ChatHistoryRepository
	texts   exchange.Catalog
	machine exchange.Machine
	opts    ChatOptions
	log     *zerolog.Logger
}

// NewChatUseCase wires the fallback controller. history may be nil.
func NewChatUseCase(gateway adapter.GatewayAdapter, history repository.ChatHistoryRepository, texts exchange.Catalog, opts ChatOptions, logger *zerolog.Logger) *chatUC {
	if opts.Conversation == "" {
		opts.Conversation = "default"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &chatUC{
		gateway: gateway,
		history: history,
		texts:   texts,
		machine: exchange.NewMachine(texts),
		opts:    opts,
		log:     logger,
	}
}

// streamOutcome is what one streaming attempt produced.
type streamOutcome struct {
	final *model.ChatMessage
	side  []*model.ChatMessage
	// retryable is set only for failures during submit, open or before the
	// first dispatched event.
	retryable bool
}

func (c *chatUC) Send(ctx context.Context, text string, onProgress model.ProgressFunc) (*model.ChatMessage, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		return model.NewFailureMessage(c.texts.T(exchange.KeyErrorEmptyInput)), domain.ErrEmptyMessage
	}

	ctx = logging.WithTraceID(ctx, ulid.Make().String())
	ctx = logging.WithConversationID(ctx, c.opts.Conversation)
	log := logging.With(ctx, c.log)
	defer logging.TraceDuration(log, "ChatUC.Send")()
	log.Debug().Str("text", logging.Redact(text, c.opts.Dev)).Msg("sending message")

	c.persist(ctx, model.NewChatMessage(model.RoleUser, text))

	var (
		out  streamOutcome
		err  error
		mode = "stream"
	)
	if c.opts.Streaming {
		out, err = c.stream(ctx, text, onProgress)
		if err != nil && out.retryable && derror.IsFallbackEligible(err) && ctx.Err() == nil && c.opts.Fallback {
			log.Warn().Err(err).Str("reason", derror.Kind(err)).Msg("streaming unavailable, falling back to direct execution")
			metrics.IncFallback(derror.Kind(err))
			mode = "sync"
			out.final, err = c.direct(ctx, text)
		}
	} else {
		mode = "sync"
		out.final, err = c.direct(ctx, text)
	}
	if out.final == nil {
		out.final = c.failureMessage(err)
	}

	c.persist(ctx, append(out.side, out.final)...)

	outcome := "ok"
	if err != nil || out.final.Failed {
		outcome = "failed"
		log.Error().Err(err).Str("kind", derror.Kind(err)).Str("mode", mode).Msg("exchange failed")
	}
	metrics.IncChatRequest(mode, outcome)
	metrics.ObserveExchange(mode, time.Since(start))
	return out.final, err
}

// stream runs submit, open and dispatch for one job. Failures before the
// first dispatched event come back as fallback-eligible errors with no
// message; later failures carry a failure message that keeps partial text.
func (c *chatUC) stream(ctx context.Context, text string, onProgress model.ProgressFunc) (streamOutcome, error) {
	handle, err := c.gateway.Submit(ctx, text)
	if err != nil {
		return streamOutcome{retryable: true}, err
	}
	ctx = logging.WithJobID(ctx, handle.JobID)
	log := logging.With(ctx, c.log)

	es, err := c.gateway.OpenStream(ctx, *handle)
	if err != nil {
		metrics.IncStreamOutcome("open_failed")
		if derror.IsFallbackEligible(err) {
			return streamOutcome{retryable: true}, err
		}
		return streamOutcome{retryable: true}, &derror.StreamOpenError{JobID: handle.JobID, Err: err}
	}
	defer es.Close()

	x := exchange.New(handle.JobID, c.machine, onProgress)
	for !x.Terminated() {
		ev, err := es.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = derror.ErrStreamClosed
			}
			return c.streamFailure(ctx, x, err)
		}
		metrics.IncStreamEvent(string(ev.Kind), ev.Kind.Known())
		for _, e := range x.Dispatch(ev) {
			if ig, ok := e.(exchange.Ignore); ok {
				log.Warn().Str("event", string(ig.Kind)).Msg("ignoring unrecognized stream event")
			}
		}
	}

	final, err := x.Outcome()
	out := streamOutcome{final: final, side: x.TakeSideMessages()}
	if err != nil {
		metrics.IncStreamOutcome("server_error")
		return out, err
	}
	metrics.IncStreamOutcome("completed")
	log.Debug().Int("events", x.Dispatched()).Msg("stream completed")
	return out, nil
}

func (c *chatUC) streamFailure(ctx context.Context, x *exchange.Exchange, cause error) (streamOutcome, error) {
	side := x.TakeSideMessages()
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.IncStreamOutcome("canceled")
		msg := x.Interrupt(c.texts.T(exchange.KeyErrorPrefix, ctxErr.Error()))
		return streamOutcome{final: msg, side: side}, &derror.StreamInterruptedError{
			JobID:      x.JobID(),
			Dispatched: x.Dispatched(),
			Err:        ctxErr,
		}
	}
	if x.Dispatched() == 0 {
		metrics.IncStreamOutcome("open_failed")
		return streamOutcome{side: side, retryable: true}, &derror.StreamOpenError{JobID: x.JobID(), Err: cause}
	}
	metrics.IncStreamOutcome("interrupted")
	msg := x.Interrupt(c.texts.T(exchange.KeyErrorInterrupted, cause.Error()))
	return streamOutcome{final: msg, side: side}, &derror.StreamInterruptedError{
		JobID:      x.JobID(),
		Dispatched: x.Dispatched(),
		Err:        cause,
	}
}

// direct performs the synchronous round trip.
func (c *chatUC) direct(ctx context.Context, text string) (*model.ChatMessage, error) {
	res, err := c.gateway.Execute(ctx, text)
	if err != nil {
		return nil, err
	}
	msg := exchange.RenderSync(c.texts, res)
	if msg.Failed {
		return msg, &derror.ServerReportedError{JobID: res.JobID, Message: res.Error}
	}
	return msg, nil
}

// failureMessage renders err for errors that produced no message of their own.
func (c *chatUC) failureMessage(err error) *model.ChatMessage {
	if err == nil {
		err = errors.New("no response")
	}
	var (
		te *derror.TransportError
		oe *derror.StreamOpenError
	)
	if errors.As(err, &te) || errors.As(err, &oe) {
		return model.NewFailureMessage(c.texts.T(exchange.KeyErrorConnection, err.Error()))
	}
	return model.NewFailureMessage(c.texts.T(exchange.KeyErrorPrefix, err.Error()))
}

func (c *chatUC) persist(ctx context.Context, msgs ...*model.ChatMessage) {
	if c.history == nil || len(msgs) == 0 {
		return
	}
	// persisted even when the caller has already canceled ctx
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.history.Append(ctx, c.opts.Conversation, msgs...); err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Int("messages", len(msgs)).Msg("failed to persist chat history")
	}
}

func (c *chatUC) History(ctx context.Context, limit int) ([]*model.ChatMessage, error) {
	if c.history == nil {
		return nil, nil
	}
	return c.history.Recent(ctx, c.opts.Conversation, limit)
}

func (c *chatUC) ClearHistory(ctx context.Context) error {
	if c.history == nil {
		return nil
	}
	return c.history.Clear(ctx, c.opts.Conversation)
}

func (c *chatUC) CheckConnection(ctx context.Context) error {
	return c.gateway.Healthy(ctx)
}
