//go:build !integration

package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor-chat/internal/domain/model"
	derror "conductor-chat/internal/error"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func collect(t *testing.T, s *sseStream) ([]model.StreamEvent, error) {
	t.Helper()
	var out []model.StreamEvent
	for {
		ev, err := s.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

func TestSSE_ParsesFrames(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive comment",
		"id: 1",
		`data: {"event":"status_update","data":{"message":"pensando"}}`,
		"",
		"event: on_llm_new_token",
		`data: {"data":`,
		`data: {"chunk":"Olá"}}`,
		"",
		"data: not json at all",
		"",
		`data: {"event":"result","data":{"result":"Olá"},"job_id":"other"}`,
		"",
		"event: end_of_stream",
		"data: done",
		"",
	}, "\r\n")

	s := newSSEStream("abc123", io.NopCloser(strings.NewReader(body)), time.Second, nopLogger())
	defer s.Close()

	evs, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, evs, 4)

	assert.Equal(t, model.EventStatusUpdate, evs[0].Kind)
	assert.Equal(t, "pensando", evs[0].StatusMessage())
	assert.Equal(t, "abc123", evs[0].JobID)

	assert.Equal(t, model.EventLLMNewToken, evs[1].Kind)
	assert.Equal(t, "Olá", evs[1].Chunk())

	assert.Equal(t, model.EventResult, evs[2].Kind)
	assert.Equal(t, "other", evs[2].JobID)

	assert.Equal(t, model.EventEndOfStream, evs[3].Kind)
}

func TestSSE_UnterminatedLastFrame(t *testing.T) {
	body := `data: {"event":"end_of_stream"}`
	s := newSSEStream("j", io.NopCloser(strings.NewReader(body)), time.Second, nopLogger())
	defer s.Close()

	evs, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventEndOfStream, evs[0].Kind)
}

func TestSSE_IdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newSSEStream("j", pr, 20*time.Millisecond, nopLogger())
	defer s.Close()

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, derror.ErrStreamIdle)
}

func TestSSE_ReadErrorIsTransport(t *testing.T) {
	pr, pw := io.Pipe()
	s := newSSEStream("j", pr, time.Second, nopLogger())
	defer s.Close()

	go func() {
		_, _ = io.WriteString(pw, "data: {\"event\":\"job_started\"}\n\n")
		_ = pw.CloseWithError(errors.New("connection reset"))
	}()

	ev, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.EventJobStarted, ev.Kind)

	_, err = s.Next(context.Background())
	var te *derror.TransportError
	require.True(t, errors.As(err, &te))
}

func TestSSE_CloseUnblocksReader(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newSSEStream("j", pr, 0, nopLogger())

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, err := s.Next(context.Background())
	assert.Error(t, err)
}

func TestSSE_ContextCanceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newSSEStream("j", pr, 0, nopLogger())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abcdef", 2))

	got := truncate(`{"chunk":"ação"}`, 12)
	assert.Equal(t, `{"chunk":"aç...`, got)
	assert.True(t, utf8.ValidString(got))
}
