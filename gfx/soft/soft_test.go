// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft_test

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/gfx/soft"
	"github.com/devblok/hellotri/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	w, h   int
	mu     sync.Mutex
	frames []*image.RGBA
}

func (c *captureSink) Size() (int, int) { return c.w, c.h }

func (c *captureSink) PresentImage(img *image.RGBA) error {
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	c.mu.Lock()
	c.frames = append(c.frames, cp)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) last() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func open(t *testing.T, surface gfx.Surface, opts ...soft.Option) gfx.Device {
	t.Helper()
	dev, err := soft.New(opts...).Open(gfx.DeviceConfig{Surface: surface})
	require.NoError(t, err)
	t.Cleanup(dev.Release)
	return dev
}

func waitFor(t *testing.T, f gfx.Fence, value uint64) {
	t.Helper()
	ev := gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(value, ev))
	require.NoError(t, ev.Wait(time.Second))
}

func TestRegistered(t *testing.T) {
	b, err := gfx.Lookup(soft.Name)
	require.NoError(t, err)
	adapters, err := b.Adapters()
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.True(t, adapters[0].Software)

	_, err = b.Open(gfx.DeviceConfig{Adapter: 3})
	assert.ErrorIs(t, err, gfx.ErrNoAdapter)
}

func TestFenceStepped(t *testing.T) {
	step := make(chan struct{})
	dev := open(t, nil, soft.WithStepper(step))
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	f, err := dev.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, q.Signal(f, 1))
	require.NoError(t, q.Signal(f, 2))
	assert.Equal(t, uint64(0), f.CompletedValue())

	ev := gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(2, ev))
	assert.ErrorIs(t, ev.Wait(10*time.Millisecond), gfx.ErrWaitTimeout)

	step <- struct{}{}
	assert.Eventually(t, func() bool { return f.CompletedValue() == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, ev.Wait(10*time.Millisecond), gfx.ErrWaitTimeout)

	step <- struct{}{}
	require.NoError(t, ev.Wait(time.Second))
	assert.Equal(t, uint64(2), f.CompletedValue())
}

func TestFenceValueMustIncrease(t *testing.T) {
	dev := open(t, nil)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	f, err := dev.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, q.Signal(f, 5))
	assert.ErrorIs(t, q.Signal(f, 5), gfx.ErrFenceValue)
	assert.ErrorIs(t, q.Signal(f, 4), gfx.ErrFenceValue)
	waitFor(t, f, 5)
}

func TestEventOnCompletedValueFiresImmediately(t *testing.T) {
	dev := open(t, nil)
	f, err := dev.CreateFence(7)
	require.NoError(t, err)
	ev := gfx.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(7, ev))
	assert.NoError(t, ev.Wait(10*time.Millisecond))
}

func TestAllocatorResetWhileInFlight(t *testing.T) {
	step := make(chan struct{})
	dev := open(t, nil, soft.WithStepper(step))
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	f, err := dev.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, list.Reset(alloc, nil))
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))
	require.NoError(t, q.Signal(f, 1))

	assert.ErrorIs(t, alloc.Reset(), gfx.ErrResourceHazard)

	step <- struct{}{}
	step <- struct{}{}
	waitFor(t, f, 1)
	assert.NoError(t, alloc.Reset())
}

func TestCommandListLifecycle(t *testing.T) {
	dev := open(t, nil)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)

	assert.ErrorIs(t, list.Close(), gfx.ErrListClosed)
	require.NoError(t, list.Reset(alloc, nil))
	assert.ErrorIs(t, list.Reset(alloc, nil), gfx.ErrListOpen)
	assert.ErrorIs(t, q.ExecuteCommandLists(list), gfx.ErrListOpen)
	require.NoError(t, list.Close())

	list.ClearRenderTarget([4]float32{})
	require.NoError(t, list.Reset(alloc, nil))
	require.NoError(t, list.Close())
}

func TestDrawOutsideRenderTargetState(t *testing.T) {
	sink := &captureSink{w: 64, h: 64}
	dev := open(t, sink)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 64, Height: 64, BufferCount: 2})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)

	rt, err := sc.Buffer(sc.CurrentBackBufferIndex())
	require.NoError(t, err)

	require.NoError(t, list.Reset(alloc, nil))
	list.SetRenderTarget(rt)
	list.ClearRenderTarget([4]float32{1, 0, 0, 1})
	err = list.Close()
	assert.ErrorIs(t, err, gfx.ErrStateMismatch)
	assert.Error(t, q.ExecuteCommandLists(list))
}

func TestPresentRequiresPresentState(t *testing.T) {
	dev := open(t, nil)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 8, Height: 8, BufferCount: 2})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)

	idx := sc.CurrentBackBufferIndex()
	rt, err := sc.Buffer(idx)
	require.NoError(t, err)

	require.NoError(t, list.Reset(alloc, nil))
	list.ResourceBarrier(gfx.Transition(rt, gfx.StatePresent, gfx.StateRenderTarget))
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))

	assert.ErrorIs(t, sc.Present(1), gfx.ErrStateMismatch)
	assert.Equal(t, idx, sc.CurrentBackBufferIndex())
}

func TestSwapChainInitialIndex(t *testing.T) {
	dev := open(t, nil, soft.WithInitialBackBuffer(1))
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 8, Height: 8, BufferCount: 2})
	require.NoError(t, err)

	var seen []int
	for i := 0; i < 5; i++ {
		seen = append(seen, sc.CurrentBackBufferIndex())
		require.NoError(t, sc.Present(1))
	}
	assert.Equal(t, []int{1, 0, 1, 0, 1}, seen)

	_, err = sc.Buffer(2)
	assert.Error(t, err)

	_, err = dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 8, Height: 8, BufferCount: 1})
	assert.Error(t, err)
}

func TestTexturedTriangle(t *testing.T) {
	const w, h = 1280, 720
	sink := &captureSink{w: w, h: h}
	dev := open(t, sink)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: w, Height: h, BufferCount: 2})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	pso, err := dev.CreatePipelineState(gfx.PipelineDesc{Textured: true})
	require.NoError(t, err)
	f, err := dev.CreateFence(0)
	require.NoError(t, err)

	vertices := model.EncodeVertices(model.Triangle(float32(w) / float32(h)))
	vb, err := dev.CreateBuffer(len(vertices))
	require.NoError(t, err)
	require.NoError(t, vb.Write(0, vertices))

	pitch := gfx.AlignRowPitch(model.TextureWidth * model.TexturePixelSize)
	pixels := model.GetPixels(model.Checkerboard(model.TextureWidth, model.TextureHeight), pitch)
	upload, err := dev.CreateBuffer(len(pixels))
	require.NoError(t, err)
	require.NoError(t, upload.Write(0, pixels))
	tex, err := dev.CreateTexture(model.TextureWidth, model.TextureHeight)
	require.NoError(t, err)

	rt, err := sc.Buffer(sc.CurrentBackBufferIndex())
	require.NoError(t, err)
	enter, exit := gfx.BarrierPair(rt, gfx.StatePresent, gfx.StateRenderTarget)

	require.NoError(t, list.Reset(alloc, pso))
	list.CopyBufferToTexture(tex, upload, pitch)
	list.ResourceBarrier(gfx.Transition(tex, gfx.StateCopyDest, gfx.StateShaderResource))
	list.ResourceBarrier(enter)
	list.SetRenderTarget(rt)
	list.SetViewport(gfx.Viewport{Width: w, Height: h, MaxDepth: 1})
	list.SetScissor(gfx.Rect{Right: w, Bottom: h})
	list.ClearRenderTarget([4]float32{0, 0.2, 0.4, 1})
	list.SetVertexBuffer(vb, model.VertexStride)
	list.SetTexture(tex)
	list.Draw(3, 1)
	list.ResourceBarrier(exit)
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))
	require.NoError(t, sc.Present(1))
	require.NoError(t, q.Signal(f, 1))
	waitFor(t, f, 1)

	img := sink.last()
	require.NotNil(t, img)
	clearColor := color.RGBA{0, 51, 102, 255}
	assert.Equal(t, clearColor, img.RGBAAt(0, 0))
	assert.Equal(t, clearColor, img.RGBAAt(640, 150))
	// texel (128, 160) is white, texel (96, 176) is black
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(640, 400))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(600, 420))
}

func TestTexturedDrawNeedsShaderResourceState(t *testing.T) {
	dev := open(t, nil)
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 8, Height: 8, BufferCount: 2})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	pso, err := dev.CreatePipelineState(gfx.PipelineDesc{Textured: true})
	require.NoError(t, err)
	vb, err := dev.CreateBuffer(3 * model.VertexStride)
	require.NoError(t, err)
	tex, err := dev.CreateTexture(4, 4)
	require.NoError(t, err)
	rt, err := sc.Buffer(0)
	require.NoError(t, err)

	require.NoError(t, list.Reset(alloc, pso))
	list.ResourceBarrier(gfx.Transition(rt, gfx.StatePresent, gfx.StateRenderTarget))
	list.SetRenderTarget(rt)
	list.SetVertexBuffer(vb, model.VertexStride)
	list.SetTexture(tex)
	list.Draw(3, 1)
	assert.ErrorIs(t, list.Close(), gfx.ErrStateMismatch)
}
