// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"math"
	"sync"

	"github.com/devblok/hellotri/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// point is one signalled value backed by a binary fence.
type point struct {
	value   uint64
	handle  vk.Fence
	done    bool
	waiters int
}

type waiter struct {
	value uint64
	ev    *gfx.Event
}

// fence emulates a monotonic counter. Every Signal submits an empty
// batch with a fresh binary fence; the completed value is the highest
// value whose fence has signalled. The queue executes in order, so
// points complete in the order they were pushed.
type fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	signaled  uint64
	points    []*point
	deferred  []waiter
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

// push registers a submitted signal and arms waiters that were set up
// before the value was signalled.
func (f *fence) push(value uint64, handle vk.Fence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &point{value: value, handle: handle}
	f.points = append(f.points, p)

	pending := f.deferred[:0]
	for _, w := range f.deferred {
		if w.value <= value {
			f.watch(p, w.ev)
		} else {
			pending = append(pending, w)
		}
	}
	f.deferred = pending
}

// poll advances the completed value. Callers hold f.mu.
func (f *fence) poll() {
	for _, p := range f.points {
		if p.done {
			continue
		}
		if vk.GetFenceStatus(f.dev.device, p.handle) != vk.Success {
			break
		}
		p.done = true
		f.completed = p.value
	}

	kept := f.points[:0]
	for _, p := range f.points {
		if p.done && p.waiters == 0 {
			f.dev.recycleFence(p.handle)
			continue
		}
		kept = append(kept, p)
	}
	f.points = kept
}

// watch blocks a goroutine on p and signals ev when it completes.
// Callers hold f.mu.
func (f *fence) watch(p *point, ev *gfx.Event) {
	p.waiters++
	f.dev.watchers.Add(1)
	go func() {
		defer f.dev.watchers.Done()
		ret := vk.WaitForFences(f.dev.device, 1, []vk.Fence{p.handle}, vk.True, math.MaxUint64)
		if err := NewError(ret); err != nil {
			f.dev.log.WithError(err).WithField("value", p.value).Error("vk.WaitForFences() failed")
		}

		f.mu.Lock()
		p.waiters--
		f.poll()
		f.mu.Unlock()
		ev.Signal()
	}()
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll()
	return f.completed
}

func (f *fence) SetEventOnCompletion(value uint64, ev *gfx.Event) error {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return gfx.ErrReleased
	}
	f.poll()
	if f.completed >= value {
		f.mu.Unlock()
		ev.Signal()
		return nil
	}
	defer f.mu.Unlock()

	for _, p := range f.points {
		if !p.done && p.value >= value {
			f.watch(p, ev)
			return nil
		}
	}
	f.deferred = append(f.deferred, waiter{value: value, ev: ev})
	return nil
}

// Release waits for outstanding signals so their fences can be reused.
func (f *fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	f.deferred = nil

	var handles []vk.Fence
	for _, p := range f.points {
		if !p.done {
			handles = append(handles, p.handle)
		}
	}
	if len(handles) > 0 {
		ret := vk.WaitForFences(f.dev.device, uint32(len(handles)), handles, vk.True, math.MaxUint64)
		if err := NewError(ret); err != nil {
			f.dev.log.WithError(err).Error("vk.WaitForFences() failed")
		}
	}
	f.poll()
}
