//go:build !integration

package exchange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor-chat/internal/domain/model"
	derror "conductor-chat/internal/error"
)

func TestAccumulator_OrderAndFinalize(t *testing.T) {
	var a Accumulator
	assert.False(t, a.Started())

	for _, tok := range []string{"Olá", " ", "mundo"} {
		require.NoError(t, a.Append(tok))
	}
	assert.True(t, a.Started())
	assert.Equal(t, "Olá mundo", a.Content())

	msg, err := a.Finalize("fallback")
	require.NoError(t, err)
	assert.Equal(t, "Olá mundo", msg.Content)
	assert.Equal(t, model.RoleAssistant, msg.Role)

	_, err = a.Finalize("again")
	assert.ErrorIs(t, err, derror.ErrAlreadyFinalized)

	err = a.Append("late")
	var pe *derror.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, derror.ErrAppendAfterFinalize)
	assert.Equal(t, "Olá mundo", a.Content())
}

func TestAccumulator_FallbackWhenEmpty(t *testing.T) {
	var a Accumulator
	msg, err := a.Finalize("Execução concluída")
	require.NoError(t, err)
	assert.Equal(t, "Execução concluída", msg.Content)
}

func TestAccumulator_Discard(t *testing.T) {
	var a Accumulator
	require.NoError(t, a.Append("x"))
	a.Discard()
	assert.Empty(t, a.Content())
	assert.True(t, a.Finalized())
	assert.Error(t, a.Append("y"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abc", 5))
	assert.Equal(t, "ab", preview("abcdef", 2))
	assert.Equal(t, "çã", preview("çãõ", 2))
}
