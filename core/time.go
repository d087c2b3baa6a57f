// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	t := &Time{
		fps:   cfg.FramesPerSecond,
		start: time.Now(),
	}
	if cfg.FramesPerSecond > 0 {
		t.fpsTicker = time.NewTicker(time.Second / time.Duration(cfg.FramesPerSecond))
	}
	t.last = t.start
	return t
}

// Time paces the frame loop
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	start  time.Time
	last   time.Time
	frames uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// Next blocks until the next frame is due and returns the time
// elapsed since the previous one. Unlimited time never blocks.
func (t *Time) Next() time.Duration {
	if t.fpsTicker != nil {
		<-t.fpsTicker.C
	}
	now := time.Now()
	delta := now.Sub(t.last)
	t.last = now
	t.frames++
	return delta
}

// Frames returns the number of frames handed out by Next.
func (t *Time) Frames() uint64 {
	return t.frames
}

// AverageFps returns frames per second since the service was created.
func (t *Time) AverageFps() float64 {
	elapsed := t.last.Sub(t.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.frames) / elapsed
}

// Stop releases the ticker
func (t *Time) Stop() {
	if t.fpsTicker != nil {
		t.fpsTicker.Stop()
	}
}
