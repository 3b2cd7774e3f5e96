package viewcapture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactName is the file name of the assembled document in a job directory.
const ArtifactName = "output.pdf"

// Outcome classifies a finished capture.
type Outcome string

const (
	// OutcomeSuccess means every captured page is in the document.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means some captured pages could not be included.
	OutcomePartial Outcome = "partial_success"
	// OutcomeFailed means no document was produced.
	OutcomeFailed Outcome = "failed"
)

// Capture is the record of one completed capture.
type Capture struct {
	// Result is the assembled document, also written to Path.
	Result *Result
	Path   string

	// Estimate is the probed page count, 0 if unknown.
	Estimate int
	// Iterations is the number of scroll steps performed.
	Iterations int
	// LikelyComplete reports that the final scroll steps captured nothing
	// new, suggesting the whole document was reached.
	LikelyComplete bool

	Requests []PageRequest
	Pages    []DownloadedPage
	Report   AssemblyReport
	Outcome  Outcome
}

// MissingPages returns the sequences of captured pages absent from the
// document.
func (c *Capture) MissingPages() []int {
	return c.Report.Missing()
}

// Capturer runs the capture pipeline: render the viewer, scroll it while
// collecting page-image requests, download them and assemble a document.
// It holds only configuration and is safe for concurrent use; each call to
// [Capturer.Capture] opens its own browser.
type Capturer struct {
	cfg captureConfig
}

// NewCapturer creates a Capturer with the given options.
func NewCapturer(opts ...Option) *Capturer {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Capturer{cfg: cfg}
}

// Capture runs the pipeline for rawURL and stores downloaded pages and the
// document in dir. Per-page failures are absorbed and reported in the
// returned Capture; only a browser, navigation or assembly failure returns
// an error.
func (c *Capturer) Capture(ctx context.Context, rawURL, dir string) (*Capture, error) {
	cfg := c.cfg
	cfg.logger = loggerFrom(ctx, cfg.logger)
	log := cfg.logger

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("viewcapture: creating job directory: %w", err)
	}

	log.Info("opening session", "url", rawURL)
	sess, err := openSession(ctx, &cfg, rawURL)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	capt := &Capture{}
	capt.Estimate, err = sess.EstimatePages(ctx)
	if err != nil {
		return nil, err
	}
	capt.Iterations = ScrollIterations(capt.Estimate, cfg.fallbackIterations)
	log.Info("page count estimated", "estimate", capt.Estimate, "iterations", capt.Iterations)

	icpt := sess.Interceptor()
	idle := IdleTracker{Window: cfg.idleTicks}
	err = sess.Scroll(ctx, capt.Iterations, func(int) { idle.Observe(icpt.Len()) })
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("scrolling stopped early", "error", err)
	}
	capt.LikelyComplete = idle.Idle()

	capt.Requests = icpt.Snapshot()
	if cfg.pageOrder {
		capt.Requests = OrderByPage(capt.Requests)
	}
	log.Info("page requests captured", "count", len(capt.Requests), "likely_complete", capt.LikelyComplete)
	sess.Close()

	fetcher := &Fetcher{
		Client:      cfg.httpClient,
		Concurrency: cfg.fetchConcurrency,
		UserAgent:   cfg.userAgent,
		Logger:      log,
	}
	if fetcher.Client == nil {
		fetcher = NewFetcher(cfg.fetchConcurrency, cfg.fetchTimeout)
		fetcher.UserAgent = cfg.userAgent
		fetcher.Logger = log
	}
	capt.Pages = fetcher.FetchAll(ctx, dir, capt.Requests)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	asm := &Assembler{Logger: log}
	res, report, err := asm.Assemble(capt.Pages)
	if err != nil {
		return nil, err
	}
	capt.Result = res
	capt.Report = report

	capt.Path = filepath.Join(dir, ArtifactName)
	if err := res.WriteToFile(capt.Path, 0o644); err != nil {
		return nil, &AssemblyError{Err: err}
	}

	capt.Outcome = OutcomeSuccess
	if len(report.Skipped) > 0 {
		capt.Outcome = OutcomePartial
	}
	log.Info("capture finished", "outcome", capt.Outcome, "pages", res.PageCount(), "missing", len(report.Skipped))
	return capt, nil
}

// CaptureURL captures rawURL into dir using a temporary [Capturer].
func CaptureURL(ctx context.Context, rawURL, dir string, opts ...Option) (*Capture, error) {
	return NewCapturer(opts...).Capture(ctx, rawURL, dir)
}
