// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/devblok/hellotri/gfx"
)

type allocator struct {
	pending atomic.Int32
}

// Reset fails while lists recorded from the allocator are executing.
func (a *allocator) Reset() error {
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("%w: allocator has %d command lists in flight", gfx.ErrResourceHazard, n)
	}
	return nil
}

func (a *allocator) Release() {}

type pipeline struct {
	textured bool
}

func (p *pipeline) Release() {}

type buffer struct {
	data []byte
}

func (b *buffer) Size() int {
	return len(b.data)
}

func (b *buffer) Write(off int, data []byte) error {
	if off < 0 || off+len(data) > len(b.data) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), off, len(b.data))
	}
	copy(b.data[off:], data)
	return nil
}

func (b *buffer) Release() {
	b.data = nil
}

// texture is a sampled image. Its pixels are only touched by the queue.
type texture struct {
	img    *image.RGBA
	states *gfx.StateTracker
}

func newTexture(width, height int) *texture {
	return &texture{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		states: gfx.NewStateTracker(gfx.UsageTexture, gfx.StateCopyDest),
	}
}

func (t *texture) Name() string              { return "texture" }
func (t *texture) Usage() gfx.Usage          { return gfx.UsageTexture }
func (t *texture) States() *gfx.StateTracker { return t.states }
func (t *texture) Width() int                { return t.img.Rect.Dx() }
func (t *texture) Height() int               { return t.img.Rect.Dy() }
func (t *texture) Release()                  {}

// backBuffer is one image of a swap chain.
type backBuffer struct {
	name   string
	img    *image.RGBA
	states *gfx.StateTracker
}

func (b *backBuffer) Name() string              { return b.name }
func (b *backBuffer) Usage() gfx.Usage          { return gfx.UsageBackBuffer }
func (b *backBuffer) States() *gfx.StateTracker { return b.states }
func (b *backBuffer) Release()                  {}

type swapChain struct {
	q       *queue
	sink    gfx.ImageSink
	buffers []*backBuffer
	current int
}

func newSwapChain(q *queue, desc gfx.SwapChainDesc, initial int, sink gfx.ImageSink) *swapChain {
	sc := &swapChain{
		q:       q,
		sink:    sink,
		current: initial,
	}
	for i := 0; i < desc.BufferCount; i++ {
		sc.buffers = append(sc.buffers, &backBuffer{
			name:   fmt.Sprintf("backbuffer[%d]", i),
			img:    image.NewRGBA(image.Rect(0, 0, desc.Width, desc.Height)),
			states: gfx.NewStateTracker(gfx.UsageBackBuffer, gfx.StatePresent),
		})
	}
	return sc
}

func (s *swapChain) BufferCount() int {
	return len(s.buffers)
}

func (s *swapChain) CurrentBackBufferIndex() int {
	return s.current
}

func (s *swapChain) Buffer(i int) (gfx.Resource, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("back buffer %d out of range [0, %d)", i, len(s.buffers))
	}
	return s.buffers[i], nil
}

// Present queues the current buffer for the sink behind all work
// submitted so far, then advances the current index.
func (s *swapChain) Present(syncInterval int) error {
	if err := s.q.err(); err != nil {
		return err
	}
	bb := s.buffers[s.current]
	if err := bb.states.Expect(gfx.StatePresent); err != nil {
		return fmt.Errorf("present %s: %w", bb.name, err)
	}

	sink := s.sink
	if err := s.q.enqueue(func(*rasterizer) error {
		if sink == nil {
			return nil
		}
		return sink.PresentImage(bb.img)
	}); err != nil {
		return err
	}
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

func (s *swapChain) Release() {
	s.buffers = nil
}
