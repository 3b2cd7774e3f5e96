// Package jobs runs capture jobs in the background and tracks their state.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Outcome refines a finished job: whether every captured page made it into
// the artifact.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial_success"
	OutcomeFailed  Outcome = "failed"
)

// Job is one capture request and its progress.
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	SourceURL string    `json:"sourceUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Result is the download path, set once completed.
	Result       string  `json:"result,omitempty"`
	Error        string  `json:"error,omitempty"`
	Outcome      Outcome `json:"outcome,omitempty"`
	PageCount    int     `json:"pageCount"`
	MissingPages []int   `json:"missingPages,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned when an artifact is requested before the job
	// completed.
	ErrNotReady = errors.New("job not completed")
)

// Registry stores job records. Implementations are safe for concurrent use.
type Registry interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// Update applies fn to the stored job and saves the result.
	Update(ctx context.Context, id string, fn func(*Job)) (Job, error)
	Delete(ctx context.Context, id string) error
}
