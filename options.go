package viewcapture

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/chromedp/kb"
)

// Defaults mirror the pacing the Drive viewer needs to render lazily loaded
// pages.
const (
	DefaultIndicatorSelector  = ".ndfHFb-c4YZDc-DARUcf-NnAfwf-j4LONd"
	DefaultProbeTimeout       = 10 * time.Second
	DefaultScrollDelay        = 500 * time.Millisecond
	DefaultSettleDelay        = 2 * time.Second
	DefaultFallbackIterations = 100
	DefaultIdleTicks          = 6
	DefaultFetchConcurrency   = 4
	DefaultNavigationTimeout  = 60 * time.Second
	DefaultNetworkIdleWindow  = 500 * time.Millisecond

	defaultWindowWidth  = 1366
	defaultWindowHeight = 900
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// captureConfig holds internal configuration for a Capturer.
type captureConfig struct {
	chromePath   string
	noSandbox    bool
	headless     string
	autoDownload bool
	userAgent    string
	windowWidth  int
	windowHeight int

	navTimeout   time.Duration
	idleWindow   time.Duration
	idleInflight int

	indicator    string
	probeTimeout time.Duration

	scrollKey          string
	scrollDelay        time.Duration
	settleDelay        time.Duration
	fallbackIterations int
	idleTicks          int

	normalize NormalizeConfig
	pageOrder bool

	fetchConcurrency int
	fetchTimeout     time.Duration
	httpClient       *http.Client

	logger *slog.Logger
	launch launchFunc
}

func defaultConfig() captureConfig {
	return captureConfig{
		headless:           "new",
		userAgent:          defaultUserAgent,
		windowWidth:        defaultWindowWidth,
		windowHeight:       defaultWindowHeight,
		navTimeout:         DefaultNavigationTimeout,
		idleWindow:         DefaultNetworkIdleWindow,
		idleInflight:       2,
		indicator:          DefaultIndicatorSelector,
		probeTimeout:       DefaultProbeTimeout,
		scrollKey:          kb.PageDown,
		scrollDelay:        DefaultScrollDelay,
		settleDelay:        DefaultSettleDelay,
		fallbackIterations: DefaultFallbackIterations,
		idleTicks:          DefaultIdleTicks,
		normalize:          DefaultNormalizeConfig(),
		fetchConcurrency:   DefaultFetchConcurrency,
		fetchTimeout:       30 * time.Second,
		logger:             slog.New(slog.DiscardHandler),
		launch:             launchChrome,
	}
}

// Option configures a [Capturer].
type Option func(*captureConfig)

// WithChromePath sets the path to the Chrome or Chromium executable.
// By default the library searches standard locations automatically.
func WithChromePath(path string) Option {
	return func(c *captureConfig) {
		c.chromePath = path
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *captureConfig) {
		c.noSandbox = true
	}
}

// WithAutoDownload downloads a compatible Chromium build when no local
// browser can be found.
func WithAutoDownload() Option {
	return func(c *captureConfig) {
		c.autoDownload = true
	}
}

// WithUserAgent overrides the User-Agent used by the browser and by page
// downloads.
func WithUserAgent(ua string) Option {
	return func(c *captureConfig) {
		c.userAgent = ua
	}
}

// WithNavigationTimeout bounds launching plus navigation until the network
// goes idle. Defaults to 60 seconds. A zero or negative value disables it.
func WithNavigationTimeout(d time.Duration) Option {
	return func(c *captureConfig) {
		c.navTimeout = d
	}
}

// WithIndicatorSelector sets the CSS selector of the "page X of N" element.
func WithIndicatorSelector(sel string) Option {
	return func(c *captureConfig) {
		c.indicator = sel
	}
}

// WithProbeTimeout bounds how long the page indicator is waited for.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *captureConfig) {
		c.probeTimeout = d
	}
}

// WithScrollPacing sets the pause between scroll key presses and the settle
// delay that follows the last one.
func WithScrollPacing(delay, settle time.Duration) Option {
	return func(c *captureConfig) {
		c.scrollDelay = delay
		c.settleDelay = settle
	}
}

// WithFallbackIterations sets the number of scroll steps used when the page
// count could not be estimated.
func WithFallbackIterations(n int) Option {
	return func(c *captureConfig) {
		if n > 0 {
			c.fallbackIterations = n
		}
	}
}

// WithIdleTicks sets how many consecutive scroll steps without a new capture
// mark the capture as likely complete.
func WithIdleTicks(n int) Option {
	return func(c *captureConfig) {
		if n > 0 {
			c.idleTicks = n
		}
	}
}

// WithNormalize replaces the page-image matching and canonicalisation rules.
func WithNormalize(n NormalizeConfig) Option {
	return func(c *captureConfig) {
		c.normalize = n
	}
}

// WithPageOrder orders captured pages by the page number embedded in their
// URL instead of by discovery order.
func WithPageOrder(enabled bool) Option {
	return func(c *captureConfig) {
		c.pageOrder = enabled
	}
}

// WithFetchConcurrency bounds parallel page downloads. Defaults to 4.
func WithFetchConcurrency(n int) Option {
	return func(c *captureConfig) {
		if n > 0 {
			c.fetchConcurrency = n
		}
	}
}

// WithHTTPClient sets the client used to download page images.
func WithHTTPClient(client *http.Client) Option {
	return func(c *captureConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the structured logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *captureConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

type loggerKey struct{}

// ContextWithLogger returns a context carrying l. [Capturer.Capture] logs to
// it instead of the logger set by [WithLogger], so callers can attach
// per-job attributes.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}
