package dispatch

import (
	"context"
	"encoding/json"
)

// Client is the dispatch service as seen by a worker slot.
type Client interface {
	// GetWorkerName proposes requested (possibly empty) and returns the name
	// the service assigned, or why it refused.
	GetWorkerName(ctx context.Context, platformInfo json.RawMessage, requested string) (WorkerNameResult, error)
	// GetJob fetches the next job for worker.
	GetJob(ctx context.Context, worker string) (Job, error)
	// JobDone returns job, carrying its result, to the service.
	JobDone(ctx context.Context, worker string, job Job) error
}

// Pinger is implemented by clients that can report service reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
