package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"conductor-chat/internal/domain"
	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/repository"
	"conductor-chat/internal/infra/metrics"
)

var _ repository.ChatHistoryRepository = (*ChatHistory)(nil)

// ChatHistory keeps each conversation as a Redis list of JSON messages,
// capped at max entries and expiring ttl after the last append.
type ChatHistory struct {
	client RedisClient
	ttl    time.Duration
	max    int
}

func NewChatHistory(client RedisClient, ttl time.Duration, maxMessages int) *ChatHistory {
	return &ChatHistory{client: client, ttl: ttl, max: maxMessages}
}

func historyKey(conversationID string) string {
	return "chat_history:" + conversationID
}

func (h *ChatHistory) Append(ctx context.Context, conversationID string, msgs ...*model.ChatMessage) (err error) {
	defer func() { metrics.IncHistoryOp("redis", "append", err) }()
	if conversationID == "" {
		return domain.ErrInvalidArgument
	}
	values := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(b))
	}
	return h.client.AppendCapped(ctx, historyKey(conversationID), values, int64(h.max), h.ttl)
}

func (h *ChatHistory) Recent(ctx context.Context, conversationID string, limit int) (_ []*model.ChatMessage, err error) {
	defer func() { metrics.IncHistoryOp("redis", "recent", err) }()
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := h.client.LRange(ctx, historyKey(conversationID), start, -1)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ChatMessage, 0, len(raw))
	for _, s := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (h *ChatHistory) Clear(ctx context.Context, conversationID string) (err error) {
	defer func() { metrics.IncHistoryOp("redis", "clear", err) }()
	return h.client.Del(ctx, historyKey(conversationID))
}
