//go:build !integration

package exchange_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor-chat/internal/domain/exchange"
	"conductor-chat/internal/domain/model"
	derror "conductor-chat/internal/error"
)

type recorder struct{ updates []model.ProgressUpdate }

func (r *recorder) fn(u model.ProgressUpdate) { r.updates = append(r.updates, u) }

func (r *recorder) kinds() []model.ProgressKind {
	out := make([]model.ProgressKind, 0, len(r.updates))
	for _, u := range r.updates {
		out = append(out, u.Kind)
	}
	return out
}

func TestExchange_StreamedAnswer(t *testing.T) {
	rec := &recorder{}
	x := exchange.New("abc123", machine(), rec.fn)

	x.Dispatch(ev(model.EventJobStarted, ""))
	x.Dispatch(ev(model.EventStatusUpdate, `{"message":"pensando"}`))
	x.Dispatch(ev(model.EventLLMNewToken, `{"chunk":"Olá"}`))
	x.Dispatch(ev(model.EventLLMNewToken, `{"chunk":" mundo"}`))
	assert.Equal(t, "Olá mundo", x.Partial())
	x.Dispatch(ev(model.EventResult, `{"result":"ignored"}`))
	x.Dispatch(ev(model.EventEndOfStream, ""))

	require.True(t, x.Terminated())
	assert.True(t, x.CloseRequested())
	assert.Equal(t, 6, x.Dispatched())

	msg, err := x.Outcome()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Olá mundo", msg.Content)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, "abc123", msg.JobID)
	assert.False(t, msg.Failed)

	assert.Equal(t, []model.ProgressKind{
		model.ProgressSet, model.ProgressSet,
		model.TokenAppended, model.TokenAppended,
		model.ProgressCleared,
	}, rec.kinds())

	_, active := x.Progress()
	assert.False(t, active)
}

func TestExchange_ResultWithoutTokens(t *testing.T) {
	x := exchange.New("j1", machine(), nil)
	x.Dispatch(ev(model.EventResult, `{"result":"resposta final"}`))

	msg, err := x.Outcome()
	require.NoError(t, err)
	assert.Equal(t, "resposta final", msg.Content)
}

func TestExchange_ServerError(t *testing.T) {
	x := exchange.New("j2", machine(), nil)
	x.Dispatch(ev(model.EventLLMNewToken, `{"chunk":"partial"}`))
	x.Dispatch(ev(model.EventError, `{"error":"quota exceeded"}`))
	x.Dispatch(ev(model.EventLLMNewToken, `{"chunk":"late"}`))

	msg, err := x.Outcome()
	require.Error(t, err)
	var se *derror.ServerReportedError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "quota exceeded", se.Message)
	assert.True(t, msg.Failed)
	assert.Equal(t, "❌ Erro: quota exceeded", msg.Content)
	assert.Empty(t, x.Partial())
}

func TestExchange_SideMessages(t *testing.T) {
	rec := &recorder{}
	x := exchange.New("j3", machine(), rec.fn)
	x.Dispatch(ev(model.EventToolEnd, `{"output":{"rows":2}}`))

	side := x.TakeSideMessages()
	require.Len(t, side, 1)
	assert.Equal(t, model.RoleSystem, side[0].Role)
	assert.Equal(t, `⚙️ Ferramenta concluída: {"rows":2}...`, side[0].Content)
	assert.Empty(t, x.TakeSideMessages())

	require.Len(t, rec.updates, 1)
	assert.Equal(t, model.SideMessage, rec.updates[0].Kind)
	assert.Same(t, side[0], rec.updates[0].Message)
}

func TestExchange_InterruptKeepsPartial(t *testing.T) {
	x := exchange.New("j4", machine(), nil)
	x.Dispatch(ev(model.EventJobStarted, ""))
	x.Dispatch(ev(model.EventLLMNewToken, `{"chunk":"Olá"}`))

	msg := x.Interrupt("❌ Erro: conexão interrompida (EOF)")
	require.NotNil(t, msg)
	assert.True(t, msg.Failed)
	assert.True(t, msg.Partial)
	assert.Equal(t, "Olá\n\n❌ Erro: conexão interrompida (EOF)", msg.Content)
	assert.True(t, x.Terminated())

	// already terminated: the first outcome stands
	again := x.Interrupt("other")
	assert.Same(t, msg, again)

	x.Dispatch(ev(model.EventResult, `{"result":"late"}`))
	final, err := x.Outcome()
	assert.NoError(t, err)
	assert.Same(t, msg, final)
}

func TestExchange_InterruptWithoutTokens(t *testing.T) {
	x := exchange.New("j5", machine(), nil)
	msg := x.Interrupt("boom")
	assert.Equal(t, "boom", msg.Content)
	assert.False(t, msg.Partial)
}

func TestExchange_OutcomeNilBeforeTerminal(t *testing.T) {
	x := exchange.New("j6", machine(), nil)
	x.Dispatch(ev(model.EventLLMNewToken, `{"chunk":"a"}`))
	msg, err := x.Outcome()
	assert.Nil(t, msg)
	assert.NoError(t, err)
	assert.Equal(t, exchange.Streaming, x.State())
}
