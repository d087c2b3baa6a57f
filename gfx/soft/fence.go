// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"

	"github.com/devblok/hellotri/gfx"
)

type waiter struct {
	value uint64
	ev    *gfx.Event
}

type fence struct {
	mu        sync.Mutex
	completed uint64
	signaled  uint64
	waiters   []waiter
	released  bool
}

// reserve records value as the next signal, rejecting non-increasing values.
func (f *fence) reserve(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return gfx.ErrReleased
	}
	if value <= f.signaled {
		return fmt.Errorf("%w: %d after %d", gfx.ErrFenceValue, value, f.signaled)
	}
	f.signaled = value
	return nil
}

// complete runs on the queue goroutine.
func (f *fence) complete(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	var ready []*gfx.Event
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			ready = append(ready, w.ev)
		} else {
			pending = append(pending, w)
		}
	}
	f.waiters = pending
	f.mu.Unlock()

	for _, ev := range ready {
		ev.Signal()
	}
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fence) SetEventOnCompletion(value uint64, ev *gfx.Event) error {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return gfx.ErrReleased
	}
	if f.completed >= value {
		f.mu.Unlock()
		ev.Signal()
		return nil
	}
	f.waiters = append(f.waiters, waiter{value: value, ev: ev})
	f.mu.Unlock()
	return nil
}

func (f *fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	f.waiters = nil
}
