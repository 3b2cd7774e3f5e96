package viewcapture

import "context"

// WithLauncher replaces the browser with fn in tests.
func WithLauncher(fn func(ctx context.Context, observe func(url string)) (Surface, error)) Option {
	return func(c *captureConfig) {
		c.launch = func(ctx context.Context, _ *captureConfig, observe func(string)) (Surface, error) {
			return fn(ctx, observe)
		}
	}
}
