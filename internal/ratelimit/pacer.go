package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	// LongPause resets a per-minute provider quota
	LongPause = 60 * time.Second
	// DefaultInterval keeps five calls per minute at a steady pace
	DefaultInterval = 12 * time.Second
)

// Pause identifies which branch the pacer took after a call
type Pause int

const (
	// PauseShort is the steady interval between calls
	PauseShort Pause = iota
	// PauseLong is the full-minute wait taken on every multiple of the per-minute ceiling
	PauseLong
)

func (p Pause) String() string {
	switch p {
	case PauseShort:
		return "short"
	case PauseLong:
		return "long"
	default:
		return fmt.Sprintf("pause(%d)", int(p))
	}
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer is a fixed round-robin throttle. After the n-th call it waits LongPause
// when n is a multiple of PerMinute and Interval otherwise. The wait does not
// depend on observed latency or errors.
type Pacer struct {
	PerMinute int
	Interval  time.Duration
	Long      time.Duration
	Sleep     SleepFunc
}

// NewPacer creates a Pacer with the default long pause and a real sleep
func NewPacer(perMinute int, interval time.Duration) *Pacer {
	return &Pacer{
		PerMinute: perMinute,
		Interval:  interval,
		Long:      LongPause,
		Sleep:     Sleep,
	}
}

// Branch returns the pause that follows the given call count
func (p *Pacer) Branch(count int) Pause {
	if p.PerMinute > 0 && count%p.PerMinute == 0 {
		return PauseLong
	}
	return PauseShort
}

// Pace waits after the call numbered count and reports which branch it took
func (p *Pacer) Pace(ctx context.Context, count int) (Pause, error) {
	branch := p.Branch(count)

	d := p.Interval
	if branch == PauseLong {
		d = p.Long
		if d <= 0 {
			d = LongPause
		}
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return branch, sleep(ctx, d)
}

// Sleep waits for d, returning early with the context error if ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
