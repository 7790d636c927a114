package security

import (
	"context"

	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/repository"
)

var _ repository.ChatHistoryRepository = (*EncryptedHistory)(nil)

// EncryptedHistory seals message content before it reaches the wrapped
// store and opens it on the way back. Metadata stays in clear.
type EncryptedHistory struct {
	inner repository.ChatHistoryRepository
	enc   *EncryptionService
}

func NewEncryptedHistory(inner repository.ChatHistoryRepository, enc *EncryptionService) *EncryptedHistory {
	return &EncryptedHistory{inner: inner, enc: enc}
}

func (h *EncryptedHistory) Append(ctx context.Context, conversationID string, msgs ...*model.ChatMessage) error {
	sealed := make([]*model.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		c := *m
		ct, err := h.enc.Seal(m.Content)
		if err != nil {
			return err
		}
		c.Content = ct
		sealed = append(sealed, &c)
	}
	return h.inner.Append(ctx, conversationID, sealed...)
}

func (h *EncryptedHistory) Recent(ctx context.Context, conversationID string, limit int) ([]*model.ChatMessage, error) {
	msgs, err := h.inner.Recent(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if m.Content, err = h.enc.Open(m.Content); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (h *EncryptedHistory) Clear(ctx context.Context, conversationID string) error {
	return h.inner.Clear(ctx, conversationID)
}
