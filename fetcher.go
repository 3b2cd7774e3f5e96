package viewcapture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxPageBytes caps the size of one downloaded page image.
const DefaultMaxPageBytes = 64 << 20

// DownloadedPage is the outcome of fetching one captured request. Exactly one
// of Path or Err is set.
type DownloadedPage struct {
	Request     PageRequest
	Path        string
	ContentType string
	Err         error
}

// OK reports whether the page was stored.
func (p DownloadedPage) OK() bool { return p.Err == nil && p.Path != "" }

// Fetcher downloads captured page images into a job directory.
type Fetcher struct {
	Client      *http.Client
	Concurrency int
	UserAgent   string
	// MaxBytes caps each response body; DefaultMaxPageBytes when zero.
	MaxBytes int64
	Logger   *slog.Logger
}

// NewFetcher returns a Fetcher with a client bounded by timeout.
func NewFetcher(concurrency int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		Client:      &http.Client{Timeout: timeout},
		Concurrency: concurrency,
		Logger:      slog.New(slog.DiscardHandler),
	}
}

// FetchAll downloads every request into dir as page_<sequence+1>.<ext>.
// Failures are recorded per page as a [*PageFetchError] and never stop the
// remaining downloads. The result is in the same order as reqs.
func (f *Fetcher) FetchAll(ctx context.Context, dir string, reqs []PageRequest) []DownloadedPage {
	out := make([]DownloadedPage, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if f.Concurrency > 0 {
		g.SetLimit(f.Concurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = f.fetch(gctx, dir, req)
			if err := out[i].Err; err != nil {
				f.logger().Warn("page download failed",
					"sequence", req.Sequence, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (f *Fetcher) fetch(ctx context.Context, dir string, req PageRequest) DownloadedPage {
	page := DownloadedPage{Request: req}
	fail := func(status int, err error) DownloadedPage {
		page.Err = &PageFetchError{Sequence: req.Sequence, URL: req.URL, StatusCode: status, Err: err}
		return page
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fail(0, fmt.Errorf("creating request: %w", err))
	}
	if f.UserAgent != "" {
		hreq.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxPageBytes
	}
	if resp.ContentLength > limit {
		return fail(0, fmt.Errorf("body of %d bytes exceeds %d", resp.ContentLength, limit))
	}

	page.ContentType = resp.Header.Get("Content-Type")
	path := filepath.Join(dir, fmt.Sprintf("page_%d.%s", req.Sequence+1, extensionFor(page.ContentType)))
	if err := writeFile(path, resp.Body, limit); err != nil {
		return fail(0, err)
	}
	page.Path = path
	return page
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

// extensionFor maps a response content type to a file extension, defaulting
// to png.
func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "png"
	}
	switch mt {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "png"
}

// writeFile stores at most limit bytes of r at path. A longer stream is an
// error and leaves no file behind.
func writeFile(path string, r io.Reader, limit int64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	n, err := io.Copy(file, io.LimitReader(r, limit+1))
	if err == nil && n > limit {
		err = fmt.Errorf("body exceeds %d bytes", limit)
	}
	if err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
