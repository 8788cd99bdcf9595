package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is a read-only view of simulated time. Models, sensors and the
// propagation engine depend on this interface; only the Executive holds the
// concrete *Clock and advances it.
type SimClock interface {
	// Now returns the current simulated time in seconds.
	Now() float64
	// StepSize returns the fixed simulated duration of one step in seconds.
	StepSize() float64
}

// Clock is the mutable simulated-time source owned by one Executive run.
type Clock struct {
	mu sync.RWMutex

	start float64
	step  float64
	steps uint64
	now   float64
}

// NewClock constructs a clock starting at start with the given step size.
// A non-positive step is replaced with DefaultStepSize.
func NewClock(start, step float64) *Clock {
	if step <= 0 {
		step = DefaultStepSize
	}
	return &Clock{start: start, step: step, now: start}
}

// DefaultStepSize is used when a clock is constructed without a positive step.
const DefaultStepSize = 0.1

// Now returns the current simulated time. Implements SimClock.
func (c *Clock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// StepSize returns the configured step. Implements SimClock.
func (c *Clock) StepSize() float64 {
	return c.step
}

// Steps returns how many times the clock has been advanced.
func (c *Clock) Steps() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.steps
}

// Advance moves simulated time forward by one step and returns the new time.
// Time is computed from the step count rather than accumulated so that long
// runs do not drift.
func (c *Clock) Advance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps++
	c.now = c.start + float64(c.steps)*c.step
	return c.now
}

// Mode describes how the Pacer relates simulated steps to wall-clock time.
type Mode int

const (
	// Accelerated runs steps as fast as the loop allows.
	Accelerated Mode = iota
	// RealTime throttles each step to stepSize*Scale seconds of wall-clock time.
	RealTime
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	default:
		return "accelerated"
	}
}

// ParseMode maps a textual mode to a Mode, defaulting to Accelerated.
func ParseMode(s string) Mode {
	switch s {
	case "realtime", "real-time", "RealTime":
		return RealTime
	default:
		return Accelerated
	}
}

// Pacer throttles step execution to a wall-clock cadence. It only affects
// when a step starts, never what the step computes.
type Pacer struct {
	Mode  Mode
	Scale float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	last  time.Time
}

// NewPacer builds a pacer. Scale is the wall-clock seconds per simulated
// second; a non-positive scale is treated as 1.
func NewPacer(mode Mode, scale float64) *Pacer {
	if scale <= 0 {
		scale = 1
	}
	return &Pacer{
		Mode:  mode,
		Scale: scale,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Wait blocks until the wall-clock budget for one step of stepSize simulated
// seconds has elapsed since the previous call. Accelerated pacers return
// immediately. It returns ctx.Err() if the context is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context, stepSize float64) error {
	if p == nil || p.Mode != RealTime {
		return nil
	}
	budget := time.Duration(stepSize * p.Scale * float64(time.Second))
	now := p.now()
	if p.last.IsZero() {
		p.last = now
		return nil
	}
	target := p.last.Add(budget)
	if wait := target.Sub(now); wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
		p.last = target
		return nil
	}
	// Fell behind; resynchronise instead of bursting to catch up.
	p.last = now
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
