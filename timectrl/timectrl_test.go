package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClockAdvanceIsCountBased(t *testing.T) {
	c := NewClock(0, 0.1)
	for i := 0; i < 10; i++ {
		c.Advance()
	}
	if got := c.Now(); got != 1.0 {
		t.Fatalf("Now() = %v after 10 steps of 0.1, want exactly 1.0", got)
	}
	if got := c.Steps(); got != 10 {
		t.Fatalf("Steps() = %d, want 10", got)
	}
}

func TestClockDefaultsStep(t *testing.T) {
	c := NewClock(5, 0)
	if c.StepSize() != DefaultStepSize {
		t.Fatalf("StepSize() = %v, want %v", c.StepSize(), DefaultStepSize)
	}
	if c.Now() != 5 {
		t.Fatalf("Now() = %v, want start time 5", c.Now())
	}
}

type fakeWall struct {
	now   time.Time
	slept []time.Duration
}

func (f *fakeWall) install(p *Pacer) {
	p.now = func() time.Time { return f.now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		f.now = f.now.Add(d)
		return nil
	}
}

func TestPacerAcceleratedNeverSleeps(t *testing.T) {
	p := NewPacer(Accelerated, 1)
	wall := &fakeWall{now: time.Unix(0, 0)}
	wall.install(p)
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background(), 1); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if len(wall.slept) != 0 {
		t.Fatalf("accelerated pacer slept %v", wall.slept)
	}
}

func TestPacerRealTimeThrottlesToScale(t *testing.T) {
	p := NewPacer(RealTime, 2)
	wall := &fakeWall{now: time.Unix(0, 0)}
	wall.install(p)

	if err := p.Wait(context.Background(), 0.5); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	wall.now = wall.now.Add(200 * time.Millisecond)
	if err := p.Wait(context.Background(), 0.5); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if len(wall.slept) != 1 || wall.slept[0] != 800*time.Millisecond {
		t.Fatalf("slept = %v, want [800ms]", wall.slept)
	}
}

func TestPacerHonoursCancellation(t *testing.T) {
	p := NewPacer(RealTime, 1)
	p.now = func() time.Time { return time.Unix(0, 0) }
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Wait(ctx, 1)
	if err := p.Wait(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want context.Canceled", err)
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("realtime") != RealTime || ParseMode("anything") != Accelerated {
		t.Fatalf("ParseMode mapping incorrect")
	}
}
