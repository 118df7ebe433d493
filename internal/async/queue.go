// Package async runs extract jobs on a bounded worker pool so uploads can
// return before the model answers.
package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job points at a persisted extract job. The worker loads everything else
// from the store.
type Job struct {
	JobID       uuid.UUID
	SubmittedAt time.Time
	RequestID   string // carried into worker logs
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
}

// Stats is a point in time view of a queue.
type Stats struct {
	Workers   int   `json:"workers"`
	Capacity  int   `json:"capacity"`
	Depth     int   `json:"depth"`
	InFlight  int64 `json:"in_flight"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}
