package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/adapter"
	derror "conductor-chat/internal/error"
	"conductor-chat/internal/infra/metrics"
)

var _ adapter.EventStream = (*sseStream)(nil)

type readResult struct {
	ev  model.StreamEvent
	err error
}

// sseStream decodes a text/event-stream body on a reader goroutine and hands
// events to Next in arrival order. Frames whose data is not a JSON event are
// logged and skipped.
type sseStream struct {
	jobID string
	body  io.ReadCloser
	idle  time.Duration
	log   *zerolog.Logger

	results chan readResult
	done    chan struct{}
	once    sync.Once
}

func newSSEStream(jobID string, body io.ReadCloser, idle time.Duration, logger *zerolog.Logger) *sseStream {
	s := &sseStream{
		jobID:   jobID,
		body:    body,
		idle:    idle,
		log:     logger,
		results: make(chan readResult),
		done:    make(chan struct{}),
	}
	go s.read()
	return s
}

// Next blocks for the next event. It returns io.EOF when the server closed
// the stream and derror.ErrStreamIdle when no event arrived within the idle
// timeout.
func (s *sseStream) Next(ctx context.Context) (model.StreamEvent, error) {
	var timeout <-chan time.Time
	if s.idle > 0 {
		t := time.NewTimer(s.idle)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case r, ok := <-s.results:
		if !ok {
			return model.StreamEvent{}, io.EOF
		}
		return r.ev, r.err
	case <-timeout:
		return model.StreamEvent{}, derror.ErrStreamIdle
	case <-ctx.Done():
		return model.StreamEvent{}, ctx.Err()
	case <-s.done:
		return model.StreamEvent{}, derror.ErrStreamClosed
	}
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.body.Close()
	})
	return err
}

func (s *sseStream) read() {
	defer close(s.results)

	r := bufio.NewReader(s.body)
	var (
		name string
		data []string
	)
	for {
		line, err := r.ReadString('\n')
		if line != "" || err == nil {
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				if !s.flush(name, data) {
					return
				}
				name, data = "", nil
			} else {
				name, data = parseLine(line, name, data)
			}
		}
		if err != nil {
			// a frame without its blank-line terminator still counts
			if !s.flush(name, data) {
				return
			}
			if !errors.Is(err, io.EOF) {
				s.send(readResult{err: &derror.TransportError{Reason: "stream read: " + err.Error(), Err: err}})
			}
			return
		}
	}
}

// parseLine applies one SSE field line. Comments and id/retry fields are ignored.
func parseLine(line, name string, data []string) (string, []string) {
	if strings.HasPrefix(line, ":") {
		return name, data
	}
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch field {
	case "event":
		name = value
	case "data":
		data = append(data, value)
	}
	return name, data
}

// flush decodes one complete frame and delivers it. It returns false once
// the consumer has closed the stream.
func (s *sseStream) flush(name string, data []string) bool {
	endMarker := name == string(model.EventEndOfStream)
	if len(data) == 0 {
		if endMarker {
			return s.send(readResult{ev: model.StreamEvent{Kind: model.EventEndOfStream, JobID: s.jobID}})
		}
		return true
	}

	payload := strings.Join(data, "\n")
	ev, err := decodeFrame(name, payload)
	if err != nil && endMarker {
		// named end marker with a free-form payload
		ev, err = model.StreamEvent{Kind: model.EventEndOfStream}, nil
	}
	if err != nil {
		metrics.IncMalformedFrame()
		s.log.Warn().Err(err).
			Str("job_id", s.jobID).
			Str("frame", truncate(payload, 200)).
			Msg("skipping malformed stream frame")
		return true
	}
	if ev.JobID == "" {
		ev.JobID = s.jobID
	}
	return s.send(readResult{ev: ev})
}

func decodeFrame(name, payload string) (model.StreamEvent, error) {
	var ev model.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if ev.Kind == "" && name != "" && name != "message" {
		ev.Kind = model.EventKind(name)
	}
	if ev.Kind == "" {
		return ev, errors.New("frame has no event kind")
	}
	return ev, nil
}

func (s *sseStream) send(r readResult) bool {
	select {
	case s.results <- r:
		return true
	case <-s.done:
		return false
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
