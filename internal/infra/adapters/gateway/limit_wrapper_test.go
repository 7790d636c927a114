//go:build !integration

package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"conductor-chat/internal/domain/model"
	"conductor-chat/internal/domain/ports/adapter"
)

type slowGateway struct {
	inFlight, peak int32
}

func (g *slowGateway) Submit(ctx context.Context, text string) (*model.JobHandle, error) {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&g.inFlight, -1)
	return &model.JobHandle{JobID: text}, nil
}

func (g *slowGateway) OpenStream(ctx context.Context, job model.JobHandle) (adapter.EventStream, error) {
	return nil, nil
}

func (g *slowGateway) Execute(ctx context.Context, text string) (*model.SyncResult, error) {
	return &model.SyncResult{}, nil
}

func (g *slowGateway) Healthy(ctx context.Context) error { return nil }

func TestLimitedGateway_BoundsConcurrency(t *testing.T) {
	inner := &slowGateway{}
	g := NewLimitedGateway(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Submit(context.Background(), "x")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&inner.peak), int32(2))
}

func TestLimitedGateway_ZeroIsPassthrough(t *testing.T) {
	inner := &slowGateway{}
	assert.Same(t, adapter.GatewayAdapter(inner), NewLimitedGateway(inner, 0))
}

func TestLimitedGateway_CanceledWhileWaiting(t *testing.T) {
	g := NewLimitedGateway(&slowGateway{}, 1).(*limitedGateway)
	g.sem <- struct{}{} // saturate

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Execute(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
