// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"sync"

	"github.com/devblok/hellotri/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// submission is an executed batch, tracked until its fence signals.
type submission struct {
	fence  vk.Fence
	allocs []*allocator
}

type queue struct {
	dev    *Device
	handle vk.Queue

	mu       sync.Mutex
	inflight []submission
}

// retire releases allocators of batches the GPU has finished. Batches
// complete in submission order, so everything before the newest
// signalled fence is finished as well.
func (q *queue) retire() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := -1
	for i := len(q.inflight) - 1; i >= 0; i-- {
		ret := vk.GetFenceStatus(q.dev.device, q.inflight[i].fence)
		if ret == vk.Success {
			done = i
			break
		}
		if ret != vk.NotReady {
			return fmt.Errorf("vk.GetFenceStatus(): %w", NewError(ret))
		}
	}

	for _, s := range q.inflight[:done+1] {
		for _, a := range s.allocs {
			a.pending.Add(-1)
		}
		q.dev.recycleFence(s.fence)
	}
	q.inflight = append(q.inflight[:0], q.inflight[done+1:]...)
	return nil
}

// ExecuteCommandLists implements interface
func (q *queue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	allocs := make([]*allocator, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return gfx.ErrWrongBackend
		}
		if cl.recording {
			return gfx.ErrListOpen
		}
		if cl.err != nil {
			return fmt.Errorf("executing invalid command list: %w", cl.err)
		}
		buffers = append(buffers, cl.buffer)
		allocs = append(allocs, cl.alloc)
	}
	if len(buffers) == 0 {
		return nil
	}

	f, err := q.dev.acquireFence()
	if err != nil {
		return err
	}
	submits := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}}
	if err := q.dev.submit(q.handle, submits, f); err != nil {
		q.dev.recycleFence(f)
		return err
	}

	for _, a := range allocs {
		a.pending.Add(1)
	}
	q.mu.Lock()
	q.inflight = append(q.inflight, submission{fence: f, allocs: allocs})
	q.mu.Unlock()
	return nil
}

// Signal implements interface
func (q *queue) Signal(f gfx.Fence, value uint64) error {
	vf, ok := f.(*fence)
	if !ok {
		return gfx.ErrWrongBackend
	}
	if err := vf.reserve(value); err != nil {
		return err
	}

	handle, err := q.dev.acquireFence()
	if err != nil {
		return err
	}
	submits := []vk.SubmitInfo{{
		SType: vk.StructureTypeSubmitInfo,
	}}
	if err := q.dev.submit(q.handle, submits, handle); err != nil {
		q.dev.recycleFence(handle)
		return fmt.Errorf("signalling %d: %w", value, err)
	}
	vf.push(value, handle)
	return nil
}
