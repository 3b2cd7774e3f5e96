package viewcapture

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Session is one isolated browser rendering a single target. Every request
// the page issues, from before navigation until Close, is offered to the
// session's [Interceptor].
//
// Call [Session.Close] on every exit path to release the browser.
type Session struct {
	cfg         *captureConfig
	url         string
	surface     Surface
	interceptor *Interceptor

	mu     sync.Mutex
	closed bool
}

// OpenSession launches a browser, navigates to rawURL and waits for the
// network to go quiet. It returns a [*LaunchError] when the browser cannot be
// started and a [*NavigationError] when the target does not load in time.
func OpenSession(ctx context.Context, rawURL string, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return openSession(ctx, &cfg, rawURL)
}

func openSession(ctx context.Context, cfg *captureConfig, rawURL string) (*Session, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	if cfg.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.navTimeout)
		defer cancel()
	}

	icpt := NewInterceptor(cfg.normalize)
	surface, err := cfg.launch(ctx, cfg, func(u string) {
		if icpt.Observe(u) {
			cfg.logger.Debug("page request captured", "count", icpt.Len())
		}
	})
	if err != nil {
		return nil, &LaunchError{Err: err}
	}

	s := &Session{cfg: cfg, url: rawURL, surface: surface, interceptor: icpt}
	if err := surface.Navigate(ctx, rawURL); err != nil {
		s.Close()
		return nil, &NavigationError{URL: rawURL, Err: err}
	}
	return s, nil
}

func validateURL(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w %q: want an absolute http(s) URL", ErrInvalidURL, rawURL)
	}
	return nil
}

// URL returns the target the session was opened on.
func (s *Session) URL() string { return s.url }

// EstimatePages reads the viewer's page count. It returns 0 when the count
// cannot be determined.
func (s *Session) EstimatePages(ctx context.Context) (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	p := Probe{Selector: s.cfg.indicator, Timeout: s.cfg.probeTimeout, Normalize: s.cfg.normalize}
	return p.Estimate(ctx, s.surface), nil
}

// Scroll advances the viewer iterations times and then waits for the settle
// delay. onTick, if non-nil, is called after each step.
func (s *Session) Scroll(ctx context.Context, iterations int, onTick func(step int)) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	d := ScrollDriver{Key: s.cfg.scrollKey, Delay: s.cfg.scrollDelay, OnTick: onTick}
	if err := d.Advance(ctx, s.surface, iterations); err != nil {
		return err
	}
	return sleepCtx(ctx, s.cfg.settleDelay)
}

// Interceptor returns the request accumulator attached to the session.
func (s *Session) Interceptor() *Interceptor { return s.interceptor }

// Close releases the browser. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.surface.Close()
}

func (s *Session) checkClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
