// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/devblok/hellotri/core"
	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/gfx/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSync(t *testing.T, r *rig, opts ...core.SyncOption) *core.FrameSynchronizer {
	t.Helper()
	s, err := core.NewFrameSynchronizer(r.device, r.queue, r.swapChain, opts...)
	require.NoError(t, err)
	return s
}

func TestSignalAndWaitCounter(t *testing.T) {
	r := newRig(2, 0)
	s := newSync(t, r)
	assert.Equal(t, uint64(0), s.FenceValue())

	for k := uint64(1); k <= 5; k++ {
		r.j.reset()
		require.NoError(t, s.SignalAndWait())
		assert.Equal(t, k, s.FenceValue())
		assert.Equal(t, []string{fmt.Sprintf("signal %d", k), fmt.Sprintf("arm %d", k)}, r.j.get())
		assert.Equal(t, k, r.fence.CompletedValue())
	}
}

func TestWaitObservesCompletion(t *testing.T) {
	r := newRig(2, 0)
	s := newSync(t, r)

	for k := uint64(1); k <= 3; k++ {
		require.NoError(t, s.SignalAndWait())
		before := r.fence.beforeWait[len(r.fence.beforeWait)-1]
		assert.Less(t, before, k)
		assert.GreaterOrEqual(t, r.fence.CompletedValue(), k)
	}
}

func TestDrainWithNothingOutstanding(t *testing.T) {
	r := newRig(2, 0)
	r.queue.instant = true
	s := newSync(t, r)

	require.NoError(t, s.SignalAndWait())
	require.NoError(t, s.Shutdown())
	assert.Equal(t, []string{"signal 1", "signal 2"}, r.j.get())
	assert.Empty(t, r.fence.beforeWait)
}

func TestFrameIndexIsReadFromSwapChain(t *testing.T) {
	r := newRig(3, 2)
	s := newSync(t, r)
	assert.Equal(t, 2, s.FrameIndex())

	r.swapChain.current = 0
	assert.Equal(t, 2, s.FrameIndex())
	require.NoError(t, s.SignalAndWait())
	assert.Equal(t, 0, s.FrameIndex())
}

func TestShutdownIsIdempotent(t *testing.T) {
	r := newRig(2, 0)
	s := newSync(t, r)

	require.NoError(t, s.Shutdown())
	require.NoError(t, s.Shutdown())
	assert.Equal(t, 1, r.fence.released)
	assert.Equal(t, uint64(1), s.FenceValue())
	assert.ErrorIs(t, s.SignalAndWait(), gfx.ErrReleased)
}

func TestWaitTimeout(t *testing.T) {
	r := newRig(2, 0)
	r.fence.stuck = true
	s := newSync(t, r, core.WithWaitTimeout(20*time.Millisecond))

	err := s.SignalAndWait()
	assert.ErrorIs(t, err, gfx.ErrWaitTimeout)
}

func TestCreateFenceFailure(t *testing.T) {
	r := newRig(2, 0)
	r.device.err = errors.New("out of memory")
	_, err := core.NewFrameSynchronizer(r.device, r.queue, r.swapChain)
	assert.EqualError(t, err, "creating fence: out of memory")
}

// A stepped software queue holds the signal until the test releases
// it, so the wait has to block.
func TestSignalAndWaitBlocksOnQueue(t *testing.T) {
	step := make(chan struct{})
	dev, err := soft.New(soft.WithStepper(step)).Open(gfx.DeviceConfig{})
	require.NoError(t, err)
	defer dev.Release()
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 4, Height: 4, BufferCount: 2})
	require.NoError(t, err)
	s, err := core.NewFrameSynchronizer(dev, q, sc)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.SignalAndWait()
	}()

	select {
	case <-done:
		t.Fatal("wait returned before the queue reached the fence value")
	case <-time.After(20 * time.Millisecond):
	}

	step <- struct{}{}
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
	assert.Equal(t, uint64(1), s.FenceValue())

	// nothing outstanding once the shutdown signal is stepped through
	go func() { step <- struct{}{} }()
	assert.NoError(t, s.Shutdown())
}

// The registration left by a timed-out wait fires once the older value
// retires. The drain that follows must not mistake that for its own
// value retiring.
func TestShutdownAfterTimeoutIgnoresStaleWake(t *testing.T) {
	step := make(chan struct{})
	dev, err := soft.New(soft.WithStepper(step)).Open(gfx.DeviceConfig{})
	require.NoError(t, err)
	defer dev.Release()
	q, err := dev.CreateCommandQueue()
	require.NoError(t, err)
	sc, err := dev.CreateSwapChain(q, gfx.SwapChainDesc{Width: 4, Height: 4, BufferCount: 2})
	require.NoError(t, err)
	s, err := core.NewFrameSynchronizer(dev, q, sc, core.WithWaitTimeout(50*time.Millisecond))
	require.NoError(t, err)

	require.ErrorIs(t, s.SignalAndWait(), gfx.ErrWaitTimeout)

	done := make(chan error, 1)
	go func() {
		done <- s.Shutdown()
	}()

	// retires value 1 only; the drain value 2 never reaches the queue head
	step <- struct{}{}
	select {
	case err := <-done:
		assert.ErrorIs(t, err, gfx.ErrWaitTimeout)
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.Equal(t, uint64(2), s.FenceValue())
}
