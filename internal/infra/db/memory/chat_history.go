// Package memory holds the process-local history store used when no
// external backend is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"conductor-chat/internal/domain"
	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/repository"
	"conductor-chat/internal/infra/metrics"
)

var (
	_ repository.ChatHistoryRepository = (*ChatHistory)(nil)
	_ repository.HistoryPruner         = (*ChatHistory)(nil)
)

type ChatHistory struct {
	mu    sync.RWMutex
	max   int
	convs map[string][]*model.ChatMessage
}

func NewChatHistory(maxMessages int) *ChatHistory {
	return &ChatHistory{max: maxMessages, convs: map[string][]*model.ChatMessage{}}
}

func (h *ChatHistory) Append(ctx context.Context, conversationID string, msgs ...*model.ChatMessage) error {
	if conversationID == "" {
		metrics.IncHistoryOp("memory", "append", domain.ErrInvalidArgument)
		return domain.ErrInvalidArgument
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	l := h.convs[conversationID]
	for _, m := range msgs {
		if m == nil {
			continue
		}
		cp := *m
		l = append(l, &cp)
	}
	if h.max > 0 && len(l) > h.max {
		l = append([]*model.ChatMessage(nil), l[len(l)-h.max:]...)
	}
	h.convs[conversationID] = l
	metrics.IncHistoryOp("memory", "append", nil)
	return nil
}

func (h *ChatHistory) Recent(ctx context.Context, conversationID string, limit int) ([]*model.ChatMessage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	l := h.convs[conversationID]
	if limit > 0 && len(l) > limit {
		l = l[len(l)-limit:]
	}
	out := make([]*model.ChatMessage, len(l))
	for i, m := range l {
		cp := *m
		out[i] = &cp
	}
	metrics.IncHistoryOp("memory", "recent", nil)
	return out, nil
}

func (h *ChatHistory) Clear(ctx context.Context, conversationID string) error {
	h.mu.Lock()
	delete(h.convs, conversationID)
	h.mu.Unlock()
	metrics.IncHistoryOp("memory", "clear", nil)
	return nil
}

func (h *ChatHistory) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var n int64
	for id, l := range h.convs {
		kept := l[:0:0]
		for _, m := range l {
			if m.Timestamp.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			delete(h.convs, id)
			continue
		}
		h.convs[id] = kept
	}
	metrics.IncHistoryOp("memory", "prune", nil)
	return n, nil
}
