package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/porticus-lab/viewcapture"
)

// Runner captures one document into dir. [*viewcapture.Capturer] satisfies
// it.
type Runner interface {
	Capture(ctx context.Context, rawURL, dir string) (*viewcapture.Capture, error)
}

// ErrInvalidURL is returned by Submit for targets that are not absolute
// http(s) URLs.
var ErrInvalidURL = errors.New("invalid document URL")

// Options configures a Coordinator.
type Options struct {
	// MaxSessions caps concurrently running captures. Defaults to 2.
	MaxSessions int
	// Mirror, if set, receives a copy of each artifact.
	Mirror Mirror
	Logger *slog.Logger
}

// Coordinator accepts capture jobs and runs them in the background. At most
// MaxSessions captures run at once; the rest wait in the queued state.
type Coordinator struct {
	ctx      context.Context
	registry Registry
	storage  *LocalStorage
	runner   Runner
	mirror   Mirror
	sem      *semaphore.Weighted
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewCoordinator returns a Coordinator whose jobs run under ctx; cancelling
// ctx aborts running captures and closes their browsers.
func NewCoordinator(ctx context.Context, registry Registry, storage *LocalStorage, runner Runner, opts Options) *Coordinator {
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		ctx:      ctx,
		registry: registry,
		storage:  storage,
		runner:   runner,
		mirror:   opts.Mirror,
		sem:      semaphore.NewWeighted(int64(opts.MaxSessions)),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a queued job for rawURL, starts it in the background and
// returns its id immediately.
func (c *Coordinator) Submit(ctx context.Context, rawURL string) (string, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	now := c.now()
	job := Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		SourceURL: rawURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.registry.Create(ctx, job); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}
	c.logger.Info("job queued", "job_id", job.ID, "url", rawURL)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(job.ID, rawURL)
	}()
	return job.ID, nil
}

func (c *Coordinator) run(id, rawURL string) {
	log := c.logger.With("job_id", id)

	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		c.fail(id, log, fmt.Errorf("waiting for a browser slot: %w", err))
		return
	}
	defer c.sem.Release(1)

	if _, err := c.registry.Update(c.ctx, id, func(j *Job) {
		j.Status = StatusProcessing
		j.UpdatedAt = c.now()
	}); err != nil {
		c.fail(id, log, fmt.Errorf("marking job processing: %w", err))
		return
	}

	dir, err := c.storage.InitJob(id)
	if err != nil {
		c.fail(id, log, err)
		return
	}

	log.Info("job processing", "dir", dir)
	capt, err := c.runner.Capture(viewcapture.ContextWithLogger(c.ctx, log), rawURL, dir)
	if err != nil {
		c.fail(id, log, err)
		return
	}

	if c.mirror != nil {
		if err := c.mirror.Upload(c.ctx, id, capt.Path); err != nil {
			log.Warn("artifact mirror upload failed", "error", err)
		}
	}

	pages := len(capt.Report.Included)
	if capt.Result != nil {
		pages = capt.Result.PageCount()
	}
	_, err = c.registry.Update(c.ctx, id, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = "/download/" + id
		j.Outcome = Outcome(capt.Outcome)
		j.PageCount = pages
		j.MissingPages = capt.MissingPages()
		j.UpdatedAt = c.now()
	})
	if err != nil {
		log.Error("failed to mark job completed", "error", err)
		return
	}
	log.Info("job completed", "outcome", capt.Outcome, "pages", pages, "missing", capt.MissingPages())
}

func (c *Coordinator) fail(id string, log *slog.Logger, cause error) {
	log.Error("job failed", "error", cause)
	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	// The job context may already be cancelled; the record must still be
	// written.
	ctx := context.WithoutCancel(c.ctx)
	if _, err := c.registry.Update(ctx, id, func(j *Job) {
		j.Status = StatusFailed
		j.Outcome = OutcomeFailed
		j.Error = msg
		j.UpdatedAt = c.now()
	}); err != nil {
		log.Error("failed to mark job failure", "error", err)
	}
}

// Status returns the current record of a job.
func (c *Coordinator) Status(ctx context.Context, id string) (Job, error) {
	return c.registry.Get(ctx, id)
}

// Artifact returns the path of a completed job's document.
func (c *Coordinator) Artifact(ctx context.Context, id string) (string, error) {
	job, err := c.registry.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", ErrNotReady
	}
	return c.storage.ArtifactPath(id), nil
}

// Release deletes a job's files and its record, typically after download.
func (c *Coordinator) Release(ctx context.Context, id string) error {
	return errors.Join(c.storage.Remove(id), c.registry.Delete(ctx, id))
}

// Wait blocks until every submitted job has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
