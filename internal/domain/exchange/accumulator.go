package exchange

import (
	"strings"

	"conductor-chat/internal/domain/model"
	derror "conductor-chat/internal/error"
)

// Accumulator merges token chunks into one logical assistant message.
// Chunks are concatenated strictly in arrival order.
type Accumulator struct {
	buf       strings.Builder
	started   bool
	finalized bool
}

func (a *Accumulator) Append(token string) error {
	if a.finalized {
		return &derror.ProtocolError{Reason: "token after terminal event", Err: derror.ErrAppendAfterFinalize}
	}
	a.started = true
	a.buf.WriteString(token)
	return nil
}

// Started reports whether at least one chunk was appended.
func (a *Accumulator) Started() bool { return a.started }

// Content is the text accumulated so far.
func (a *Accumulator) Content() string { return a.buf.String() }

func (a *Accumulator) Finalized() bool { return a.finalized }

// Finalize closes the message. Accumulated content wins when non-empty,
// otherwise fallback is used. It may be called once.
func (a *Accumulator) Finalize(fallback string) (*model.ChatMessage, error) {
	if a.finalized {
		return nil, derror.ErrAlreadyFinalized
	}
	a.finalized = true
	content := a.buf.String()
	if content == "" {
		content = fallback
	}
	return model.NewChatMessage(model.RoleAssistant, content), nil
}

// Discard drops the accumulated text and closes the accumulator.
func (a *Accumulator) Discard() {
	a.finalized = true
	a.buf.Reset()
}
