// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"fmt"
	"sync"

	"github.com/devblok/hellotri/gfx"
)

// journal records calls into the fake device in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) get() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// fakeDevice only creates fences; everything else is built directly.
type fakeDevice struct {
	gfx.Device
	fence *fakeFence
	err   error
}

func (d *fakeDevice) CreateFence(initial uint64) (gfx.Fence, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.fence, nil
}

// fakeFence completes the last signalled value when an event is armed,
// unless stuck is set.
type fakeFence struct {
	j *journal

	mu        sync.Mutex
	completed uint64
	signaled  uint64
	stuck     bool
	released  int

	// completed value seen by every arm, i.e. before every wait
	beforeWait []uint64
}

func (f *fakeFence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fakeFence) SetEventOnCompletion(value uint64, ev *gfx.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.j.add("arm %d", value)
	f.beforeWait = append(f.beforeWait, f.completed)
	if f.stuck {
		return nil
	}
	go func() {
		f.mu.Lock()
		f.completed = f.signaled
		f.mu.Unlock()
		ev.Signal()
	}()
	return nil
}

func (f *fakeFence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

type fakeQueue struct {
	j *journal

	// instant completes signals immediately
	instant bool
	err     error
}

func (q *fakeQueue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	q.j.add("execute %d", len(lists))
	return q.err
}

func (q *fakeQueue) Signal(f gfx.Fence, value uint64) error {
	q.j.add("signal %d", value)
	ff := f.(*fakeFence)
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.signaled = value
	if q.instant {
		ff.completed = value
	}
	return nil
}

type fakeResource struct {
	name   string
	states *gfx.StateTracker
}

func (r *fakeResource) Name() string              { return r.name }
func (r *fakeResource) Usage() gfx.Usage          { return gfx.UsageBackBuffer }
func (r *fakeResource) States() *gfx.StateTracker { return r.states }
func (r *fakeResource) Release()                  {}

type fakeSwapChain struct {
	j       *journal
	buffers []*fakeResource
	current int
}

func newFakeSwapChain(j *journal, n, initial int) *fakeSwapChain {
	sc := &fakeSwapChain{j: j, current: initial}
	for i := 0; i < n; i++ {
		sc.buffers = append(sc.buffers, &fakeResource{
			name:   fmt.Sprintf("bb%d", i),
			states: gfx.NewStateTracker(gfx.UsageBackBuffer, gfx.StatePresent),
		})
	}
	return sc
}

func (s *fakeSwapChain) BufferCount() int            { return len(s.buffers) }
func (s *fakeSwapChain) CurrentBackBufferIndex() int { return s.current }
func (s *fakeSwapChain) Release()                    {}

func (s *fakeSwapChain) Buffer(i int) (gfx.Resource, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("buffer %d out of range", i)
	}
	return s.buffers[i], nil
}

func (s *fakeSwapChain) Present(int) error {
	if err := s.buffers[s.current].states.Expect(gfx.StatePresent); err != nil {
		return err
	}
	s.j.add("present %d", s.current)
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

type fakeAllocator struct {
	j     *journal
	fence *fakeFence
}

func (a *fakeAllocator) Reset() error {
	a.fence.mu.Lock()
	completed, signaled := a.fence.completed, a.fence.signaled
	a.fence.mu.Unlock()
	a.j.add("alloc.reset")
	if completed < signaled {
		return fmt.Errorf("%w: completed %d, signalled %d", gfx.ErrResourceHazard, completed, signaled)
	}
	return nil
}

func (a *fakeAllocator) Release() {}

type fakeList struct {
	j        *journal
	closeErr error
	err      error
}

func (l *fakeList) Reset(gfx.CommandAllocator, gfx.PipelineState) error {
	l.j.add("list.reset")
	l.err = nil
	return nil
}

func (l *fakeList) ResourceBarrier(barriers ...gfx.Barrier) {
	for _, b := range barriers {
		l.j.add("barrier %s %s->%s", b.Resource.Name(), b.Before, b.After)
		if err := gfx.ApplyBarrier(b); err != nil && l.err == nil {
			l.err = err
		}
	}
}

func (l *fakeList) SetRenderTarget(rt gfx.Resource) { l.j.add("target %s", rt.Name()) }
func (l *fakeList) ClearRenderTarget([4]float32)    { l.j.add("clear") }
func (l *fakeList) SetViewport(gfx.Viewport)        {}
func (l *fakeList) SetScissor(gfx.Rect)             {}
func (l *fakeList) SetVertexBuffer(gfx.Buffer, int) {}
func (l *fakeList) SetTexture(gfx.Texture)          {}
func (l *fakeList) Draw(int, int)                   { l.j.add("draw") }
func (l *fakeList) Release()                        {}

func (l *fakeList) CopyBufferToTexture(gfx.Texture, gfx.Buffer, int) {}

func (l *fakeList) Close() error {
	l.j.add("close")
	if l.closeErr != nil {
		return l.closeErr
	}
	return l.err
}

// rig wires fakes the way the sample does.
type rig struct {
	j         *journal
	device    *fakeDevice
	fence     *fakeFence
	queue     *fakeQueue
	swapChain *fakeSwapChain
	allocator *fakeAllocator
	list      *fakeList
}

func newRig(buffers, initial int) *rig {
	j := &journal{}
	fence := &fakeFence{j: j}
	return &rig{
		j:         j,
		device:    &fakeDevice{fence: fence},
		fence:     fence,
		queue:     &fakeQueue{j: j},
		swapChain: newFakeSwapChain(j, buffers, initial),
		allocator: &fakeAllocator{j: j, fence: fence},
		list:      &fakeList{j: j},
	}
}
