// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"sync"
	"time"
)

// Event is an auto-reset wait handle. A Signal wakes exactly one
// Wait; a Signal with no waiter is kept until the next Wait.
type Event struct {
	c        chan struct{}
	released chan struct{}
	once     sync.Once
}

// NewEvent creates an unsignalled event.
func NewEvent() *Event {
	return &Event{
		c:        make(chan struct{}, 1),
		released: make(chan struct{}),
	}
}

// Signal sets the event. Signalling a set event has no effect.
func (e *Event) Signal() {
	select {
	case e.c <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is set and resets it.
// A timeout of zero or less waits forever.
func (e *Event) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		select {
		case <-e.c:
			return nil
		case <-e.released:
			return ErrReleased
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.c:
		return nil
	case <-e.released:
		return ErrReleased
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Release wakes any waiter with ErrReleased.
func (e *Event) Release() {
	e.once.Do(func() {
		close(e.released)
	})
}
