// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/devblok/hellotri/assets"
	"github.com/devblok/hellotri/core"
	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/gfx/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	w, h int

	mu     sync.Mutex
	frames int
	last   *image.RGBA
}

func (w *window) Size() (int, int) { return w.w, w.h }

func (w *window) PresentImage(img *image.RGBA) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames++
	w.last = image.NewRGBA(img.Bounds())
	copy(w.last.Pix, img.Pix)
	return nil
}

func openSample(t *testing.T, draw bool) (*core.Sample, *window) {
	t.Helper()
	cfg := core.DefaultConfiguration().Renderer
	cfg.Draw = draw
	win := &window{w: cfg.ScreenWidth, h: cfg.ScreenHeight}

	dev, err := soft.New().Open(gfx.DeviceConfig{Surface: win})
	require.NoError(t, err)
	t.Cleanup(dev.Release)

	s, err := core.NewSample(dev, cfg, assets.Shaders{})
	require.NoError(t, err)
	return s, win
}

func TestSampleTexturedTriangle(t *testing.T) {
	s, win := openSample(t, true)
	// the texture upload drained once
	assert.Equal(t, uint64(1), s.FenceValue())

	first := s.FrameIndex()
	for k := 1; k <= 3; k++ {
		require.NoError(t, s.Render())
		assert.Equal(t, uint64(k+1), s.FenceValue())
		assert.Equal(t, (first+k)%2, s.FrameIndex())
	}
	assert.Equal(t, uint64(3), s.Frames())
	require.NoError(t, s.Destroy())

	win.mu.Lock()
	defer win.mu.Unlock()
	assert.Equal(t, 3, win.frames)
	background := color.RGBA{0, 51, 102, 255}
	assert.Equal(t, background, win.last.RGBAAt(0, 0))
	assert.Equal(t, background, win.last.RGBAAt(1279, 719))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, win.last.RGBAAt(640, 400))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, win.last.RGBAAt(600, 420))
}

func TestSampleClearOnly(t *testing.T) {
	s, win := openSample(t, false)
	assert.Equal(t, uint64(0), s.FenceValue())

	require.NoError(t, s.Render())
	require.NoError(t, s.Render())
	assert.Equal(t, uint64(2), s.FenceValue())
	require.NoError(t, s.Destroy())

	win.mu.Lock()
	defer win.mu.Unlock()
	assert.Equal(t, color.RGBA{0, 51, 102, 255}, win.last.RGBAAt(640, 400))
}

func TestSampleDestroy(t *testing.T) {
	s, _ := openSample(t, true)
	require.NoError(t, s.Render())
	require.NoError(t, s.Destroy())
	assert.NoError(t, s.Destroy())
	assert.ErrorIs(t, s.Render(), gfx.ErrReleased)
	assert.Equal(t, uint64(1), s.Frames())
}

func TestSampleRejectsSingleBuffer(t *testing.T) {
	cfg := core.DefaultConfiguration().Renderer
	cfg.SwapchainSize = 1
	dev, err := soft.New().Open(gfx.DeviceConfig{})
	require.NoError(t, err)
	defer dev.Release()

	_, err = core.NewSample(dev, cfg, assets.Shaders{})
	assert.Error(t, err)
}

// gatedDevice holds the software queue until the synchronizer signals
// its drain value, then lets every queued job run.
type gatedDevice struct {
	gfx.Device
	step  chan struct{}
	once  sync.Once
	fence gfx.Fence
}

type gatedQueue struct {
	gfx.CommandQueue
	d *gatedDevice
}

func (q *gatedQueue) Signal(f gfx.Fence, value uint64) error {
	err := q.CommandQueue.Signal(f, value)
	if value >= 2 {
		q.d.once.Do(func() { close(q.d.step) })
	}
	return err
}

func (d *gatedDevice) CreateCommandQueue() (gfx.CommandQueue, error) {
	q, err := d.Device.CreateCommandQueue()
	if err != nil {
		return nil, err
	}
	return &gatedQueue{CommandQueue: q, d: d}, nil
}

func (d *gatedDevice) CreateSwapChain(q gfx.CommandQueue, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	if gq, ok := q.(*gatedQueue); ok {
		q = gq.CommandQueue
	}
	return d.Device.CreateSwapChain(q, desc)
}

func (d *gatedDevice) CreateFence(initial uint64) (gfx.Fence, error) {
	f, err := d.Device.CreateFence(initial)
	d.fence = f
	return f, err
}

func TestSampleDrainsAfterFailedUpload(t *testing.T) {
	step := make(chan struct{})
	dev, err := soft.New(soft.WithStepper(step)).Open(gfx.DeviceConfig{})
	require.NoError(t, err)
	defer dev.Release()
	gated := &gatedDevice{Device: dev, step: step}

	cfg := core.DefaultConfiguration().Renderer
	cfg.Draw = true
	cfg.FenceTimeout = 50 * time.Millisecond

	_, err = core.NewSample(gated, cfg, assets.Shaders{})
	assert.ErrorIs(t, err, gfx.ErrWaitTimeout)
	require.NotNil(t, gated.fence)
	// the upload and the drain both retired before anything was freed
	assert.Equal(t, uint64(2), gated.fence.CompletedValue())
}
