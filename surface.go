package viewcapture

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Surface is the rendering surface of a [Session]: one browser tab with the
// handful of interactions the capture needs.
type Surface interface {
	// Navigate loads url and returns once the network has gone quiet.
	Navigate(ctx context.Context, url string) error
	// Press dispatches a single key press to the focused document.
	Press(ctx context.Context, key string) error
	// WaitText waits for the first element matching sel and returns its
	// text content.
	WaitText(ctx context.Context, sel string) (string, error)
	// OuterHTML returns the serialized document.
	OuterHTML(ctx context.Context) (string, error)
	// Close releases the tab and its browser. It is idempotent.
	Close() error
}

// launchFunc starts a Surface whose every outbound request URL is passed to
// observe, starting before the first navigation.
type launchFunc func(ctx context.Context, cfg *captureConfig, observe func(url string)) (Surface, error)

// chromeSurface drives a headless Chrome instance owned by one session.
type chromeSurface struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	inflight      *inflightTracker
	idleWindow    time.Duration
	idleInflight  int

	once sync.Once
}

// launchChrome starts an isolated browser. The request listener is attached
// to the tab before the browser is started, so no request can be missed.
func launchChrome(ctx context.Context, cfg *captureConfig, observe func(string)) (Surface, error) {
	execPath, err := resolveChrome(cfg)
	if err != nil {
		return nil, err
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("headless", cfg.headless),
		chromedp.WindowSize(cfg.windowWidth, cfg.windowHeight),
	)
	if cfg.userAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(cfg.userAgent))
	}
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}
	if cfg.noSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSurface{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		inflight:      newInflightTracker(),
		idleWindow:    cfg.idleWindow,
		idleInflight:  cfg.idleInflight,
	}

	chromedp.ListenTarget(browserCtx, func(ev any) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.inflight.start(string(ev.RequestID))
			if ev.Request != nil {
				observe(ev.Request.URL)
			}
		case *network.EventLoadingFinished:
			s.inflight.done(string(ev.RequestID))
		case *network.EventLoadingFailed:
			s.inflight.done(string(ev.RequestID))
		}
	})

	// The first Run allocates the browser and must use the context returned
	// by NewContext, otherwise the browser dies with the derived context.
	stop := context.AfterFunc(ctx, browserCancel)
	err = chromedp.Run(browserCtx, network.Enable())
	stop()
	if err != nil {
		s.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return s, nil
}

// run executes actions on the tab, bounded by ctx.
func (s *chromeSurface) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *chromeSurface) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	return s.inflight.waitIdle(ctx, s.idleInflight, s.idleWindow)
}

func (s *chromeSurface) Press(ctx context.Context, key string) error {
	return s.run(ctx, chromedp.KeyEvent(key))
}

func (s *chromeSurface) WaitText(ctx context.Context, sel string) (string, error) {
	var text string
	err := s.run(ctx,
		chromedp.WaitReady(sel, chromedp.ByQuery),
		chromedp.TextContent(sel, &text, chromedp.ByQuery),
	)
	return text, err
}

func (s *chromeSurface) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromeSurface) Close() error {
	s.once.Do(func() {
		// Ask the browser to close gracefully, then kill the process.
		_ = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}

// inflightTracker counts requests that have started but not finished.
type inflightTracker struct {
	mu         sync.Mutex
	pending    map[string]struct{}
	lastChange time.Time
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{
		pending:    make(map[string]struct{}),
		lastChange: time.Now(),
	}
}

func (t *inflightTracker) start(id string) {
	t.mu.Lock()
	t.pending[id] = struct{}{}
	t.lastChange = time.Now()
	t.mu.Unlock()
}

func (t *inflightTracker) done(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.lastChange = time.Now()
	t.mu.Unlock()
}

func (t *inflightTracker) quiet(tolerance int, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending) <= tolerance && time.Since(t.lastChange) >= window
}

// waitIdle returns once at most tolerance requests have been pending and no
// request has started or finished for window.
func (t *inflightTracker) waitIdle(ctx context.Context, tolerance int, window time.Duration) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if t.quiet(tolerance, window) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}
