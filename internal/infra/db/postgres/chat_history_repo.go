package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"conductor-chat/internal/domain"
	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/repository"
	"conductor-chat/internal/infra/metrics"
)

var (
	_ repository.ChatHistoryRepository = (*ChatHistoryRepo)(nil)
	_ repository.HistoryPruner         = (*ChatHistoryRepo)(nil)
)

// ChatHistoryRepo stores conversations in the chat_history table. Each
// Append runs in one transaction and trims the conversation to max rows.
type ChatHistoryRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
	max  int
}

func NewChatHistoryRepo(pool *pgxpool.Pool, maxMessages int) *ChatHistoryRepo {
	return &ChatHistoryRepo{pool: pool, tm: NewTxManager(pool), max: maxMessages}
}

func (r *ChatHistoryRepo) Append(ctx context.Context, conversationID string, msgs ...*model.ChatMessage) (err error) {
	defer func() {
		metrics.IncHistoryOp("postgres", "append", err)
		r.reportPool()
	}()
	if conversationID == "" {
		return domain.ErrInvalidArgument
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, m := range msgs {
			if m == nil {
				continue
			}
			if err := r.insert(ctx, tx, conversationID, m); err != nil {
				return err
			}
		}
		return r.trim(ctx, tx, conversationID)
	})
}

func (r *ChatHistoryRepo) insert(ctx context.Context, qx repository.Tx, conversationID string, m *model.ChatMessage) error {
	const q = `
INSERT INTO chat_history (id, conversation_id, role, content, failed, partial, job_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8)
ON CONFLICT (id) DO NOTHING;`
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, m.ID, conversationID, string(m.Role), m.Content, m.Failed, m.Partial, m.JobID, m.Timestamp); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *ChatHistoryRepo) trim(ctx context.Context, qx repository.Tx, conversationID string) error {
	if r.max <= 0 {
		return nil
	}
	const q = `
DELETE FROM chat_history
WHERE conversation_id = $1
  AND seq <= (
    SELECT seq FROM chat_history
    WHERE conversation_id = $1
    ORDER BY seq DESC
    OFFSET $2 LIMIT 1
  );`
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, conversationID, r.max); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

func (r *ChatHistoryRepo) Recent(ctx context.Context, conversationID string, limit int) (_ []*model.ChatMessage, err error) {
	defer func() { metrics.IncHistoryOp("postgres", "recent", err) }()
	if limit <= 0 {
		limit = r.max
	}
	if limit <= 0 {
		limit = 1000
	}
	const q = `
SELECT id, role, content, failed, partial, COALESCE(job_id,''), created_at FROM (
  SELECT * FROM chat_history
  WHERE conversation_id = $1
  ORDER BY seq DESC
  LIMIT $2
) recent
ORDER BY seq ASC;`
	rows, err := r.pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Failed, &m.Partial, &m.JobID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *ChatHistoryRepo) Clear(ctx context.Context, conversationID string) (err error) {
	defer func() { metrics.IncHistoryOp("postgres", "clear", err) }()
	_, err = r.pool.Exec(ctx, `DELETE FROM chat_history WHERE conversation_id = $1;`, conversationID)
	return err
}

func (r *ChatHistoryRepo) PruneBefore(ctx context.Context, cutoff time.Time) (_ int64, err error) {
	defer func() {
		metrics.IncHistoryOp("postgres", "prune", err)
		r.reportPool()
	}()
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_history WHERE created_at < $1;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ChatHistoryRepo) reportPool() {
	s := r.pool.Stat()
	metrics.SetHistoryPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
}
