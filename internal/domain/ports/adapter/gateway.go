package adapter

import (
	"context"

	"conductor-chat/internal/domain/model"
)

// GatewayAdapter is the port to the remote agent-execution gateway.
type GatewayAdapter interface {
	// Submit registers a streaming job and returns its handle.
	Submit(ctx context.Context, text string) (*model.JobHandle, error)

	// OpenStream subscribes to the event stream of a submitted job.
	OpenStream(ctx context.Context, job model.JobHandle) (EventStream, error)

	// Execute performs the synchronous round trip used as fallback.
	Execute(ctx context.Context, text string) (*model.SyncResult, error)

	// Healthy probes the gateway health endpoint.
	Healthy(ctx context.Context) error
}

// EventStream yields decoded events of one job in arrival order.
// Next returns io.EOF once the server has closed the stream cleanly.
// Close is idempotent and must be called by the consumer.
type EventStream interface {
	Next(ctx context.Context) (model.StreamEvent, error)
	Close() error
}
