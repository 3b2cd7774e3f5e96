package viewcapture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/porticus-lab/viewcapture"
)

func TestScrollIterations(t *testing.T) {
	tests := []struct {
		estimate, fallback, want int
	}{
		{12, 100, 24},
		{1, 100, 2},
		{0, 100, 100},
		{-1, 30, 30},
	}
	for _, tt := range tests {
		if got := viewcapture.ScrollIterations(tt.estimate, tt.fallback); got != tt.want {
			t.Errorf("ScrollIterations(%d, %d) = %d, want %d", tt.estimate, tt.fallback, got, tt.want)
		}
	}
}

func TestScrollDriver_Advance(t *testing.T) {
	s := &fakeSurface{}
	var ticks []int
	d := viewcapture.ScrollDriver{Key: "K", OnTick: func(step int) { ticks = append(ticks, step) }}

	if err := d.Advance(context.Background(), s, 5); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.pressCount() != 5 {
		t.Errorf("presses = %d, want 5", s.pressCount())
	}
	if len(ticks) != 5 || ticks[0] != 1 || ticks[4] != 5 {
		t.Errorf("ticks = %v", ticks)
	}
	for _, k := range s.keys {
		if k != "K" {
			t.Errorf("pressed %q, want K", k)
		}
	}
}

func TestScrollDriver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s := &fakeSurface{}
	d := viewcapture.ScrollDriver{Key: "K", Delay: 10 * time.Millisecond}
	err := d.Advance(ctx, s, 1000)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Advance error = %v, want deadline exceeded", err)
	}
	if n := s.pressCount(); n == 0 || n >= 1000 {
		t.Errorf("presses = %d, want an early stop", n)
	}
}

func TestIdleTracker(t *testing.T) {
	tr := viewcapture.IdleTracker{Window: 3}
	for _, c := range []int{1, 2, 2, 2} {
		tr.Observe(c)
	}
	if tr.Idle() {
		t.Fatal("idle after two quiet steps")
	}
	tr.Observe(2)
	if !tr.Idle() {
		t.Fatal("not idle after three quiet steps")
	}
	tr.Observe(3)
	if tr.Idle() {
		t.Fatal("still idle after a new capture")
	}
}
