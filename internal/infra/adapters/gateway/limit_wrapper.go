package gateway

import (
	"context"

	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.GatewayAdapter = (*limitedGateway)(nil)

// limitedGateway bounds the number of in-flight request/response calls.
// Open streams are not counted; they live as long as the job runs.
type limitedGateway struct {
	inner adapter.GatewayAdapter
	sem   chan struct{}
}

func NewLimitedGateway(inner adapter.GatewayAdapter, maxConcurrent int) adapter.GatewayAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGateway{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGateway) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedGateway) release() { <-l.sem }

func (l *limitedGateway) Submit(ctx context.Context, text string) (*model.JobHandle, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.Submit(ctx, text)
}

func (l *limitedGateway) OpenStream(ctx context.Context, job model.JobHandle) (adapter.EventStream, error) {
	return l.inner.OpenStream(ctx, job)
}

func (l *limitedGateway) Execute(ctx context.Context, text string) (*model.SyncResult, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.Execute(ctx, text)
}

func (l *limitedGateway) Healthy(ctx context.Context) error {
	return l.inner.Healthy(ctx)
}
