package viewcapture

import (
	"context"
	"fmt"
	"time"
)

// ScrollIterations sizes the scroll loop: two steps per estimated page, or
// fallback when the estimate is unknown.
func ScrollIterations(estimate, fallback int) int {
	if estimate <= 0 {
		return fallback
	}
	return 2 * estimate
}

// ScrollDriver advances a viewer with key presses so that lazily loaded
// pages request their images.
type ScrollDriver struct {
	Key   string
	Delay time.Duration
	// OnTick is called after each step with the 1-based step number.
	OnTick func(step int)
}

// Advance presses Key iterations times, pausing Delay after each press. It
// stops early only if ctx is done or a key press fails.
func (d ScrollDriver) Advance(ctx context.Context, s Surface, iterations int) error {
	for i := 1; i <= iterations; i++ {
		if err := s.Press(ctx, d.Key); err != nil {
			return fmt.Errorf("scroll step %d: %w", i, err)
		}
		if err := sleepCtx(ctx, d.Delay); err != nil {
			return err
		}
		if d.OnTick != nil {
			d.OnTick(i)
		}
	}
	return nil
}

// IdleTracker watches the capture count across scroll steps and reports
// whether the last Window steps produced nothing new.
type IdleTracker struct {
	Window int

	last  int
	quiet int
}

// Observe records the capture count after one step.
func (t *IdleTracker) Observe(count int) {
	if count > t.last {
		t.last = count
		t.quiet = 0
		return
	}
	t.quiet++
}

// Idle reports whether at least Window consecutive steps added nothing.
func (t *IdleTracker) Idle() bool {
	return t.Window > 0 && t.quiet >= t.Window
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
