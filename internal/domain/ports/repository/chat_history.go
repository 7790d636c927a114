package repository

import (
	"context"
	"time"

	"conductor-chat/internal/domain/model"
)

// ChatHistoryRepository is the append-only conversation log. Messages are
// returned oldest first. Implementations may cap the retained length.
type ChatHistoryRepository interface {
	Append(ctx context.Context, conversationID string, msgs ...*model.ChatMessage) error
	Recent(ctx context.Context, conversationID string, limit int) ([]*model.ChatMessage, error)
	Clear(ctx context.Context, conversationID string) error
}

// HistoryPruner is implemented by stores without native expiry.
type HistoryPruner interface {
	// PruneBefore deletes every message older than cutoff and reports how many went.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
