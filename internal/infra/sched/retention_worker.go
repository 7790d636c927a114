package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"conductor-chat/internal/domain/ports/repository"
	"conductor-chat/internal/infra/metrics"
)

// RetentionWorker periodically deletes history older than maxAge from
// stores that have no native expiry.
type RetentionWorker struct {
	interval time.Duration
	maxAge   time.Duration
	pruner   repository.HistoryPruner
	log      *zerolog.Logger
	now      func() time.Time
}

// NewRetentionWorker runs every interval; non-positive intervals default to maxAge/24,
// but never less than a minute.
func NewRetentionWorker(interval, maxAge time.Duration, pruner repository.HistoryPruner, logger *zerolog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = maxAge / 24
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{interval: interval, maxAge: maxAge, pruner: pruner, log: &l, now: time.Now}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("max_age", w.maxAge).Dur("interval", w.interval).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("retention worker error")
		}
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce prunes a single time with a bounded timeout.
func (w *RetentionWorker) RunOnce(ctx context.Context) (int64, error) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := w.pruner.PruneBefore(runCtx, w.now().Add(-w.maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddHistoryPruned(n)
		w.log.Info().Int64("count", n).Msg("expired history pruned")
	}
	return n, nil
}
