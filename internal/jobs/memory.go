package jobs

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryRegistry keeps jobs in process memory.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]Job)}
}

func (r *MemoryRegistry) Create(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.jobs[job.ID] = clone(job)
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return clone(job), nil
}

func (r *MemoryRegistry) Update(_ context.Context, id string, fn func(*Job)) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	job = clone(job)
	fn(&job)
	r.jobs[id] = job
	return clone(job), nil
}

func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

// clone detaches the slice so callers cannot mutate stored state.
func clone(j Job) Job {
	j.MissingPages = slices.Clone(j.MissingPages)
	return j
}
