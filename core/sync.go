// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"time"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
)

// SyncOption configures a FrameSynchronizer
type SyncOption func(*FrameSynchronizer)

// WithWaitTimeout bounds every fence wait. Zero waits forever.
func WithWaitTimeout(d time.Duration) SyncOption {
	return func(s *FrameSynchronizer) {
		s.timeout = d
	}
}

// WithSyncLogger sets the logger of the synchronizer
func WithSyncLogger(l *log.Entry) SyncOption {
	return func(s *FrameSynchronizer) {
		s.log = l
	}
}

// FrameSynchronizer makes the CPU wait until the queue has finished
// all work submitted so far, using one fence with a monotonic value.
// It is not safe for concurrent use; the frame loop owns it.
type FrameSynchronizer struct {
	queue     gfx.CommandQueue
	swapChain gfx.SwapChain
	fence     gfx.Fence
	event     *gfx.Event

	value      uint64
	frameIndex int
	timeout    time.Duration
	closed     bool
	log        *log.Entry
}

// NewFrameSynchronizer creates the fence and its wait handle and reads
// the initial frame index from the swap chain.
func NewFrameSynchronizer(dev gfx.Device, q gfx.CommandQueue, sc gfx.SwapChain, opts ...SyncOption) (*FrameSynchronizer, error) {
	s := &FrameSynchronizer{
		queue:     q,
		swapChain: sc,
		log:       log.WithField("component", "sync"),
	}
	for _, opt := range opts {
		opt(s)
	}

	fence, err := dev.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("creating fence: %w", err)
	}
	s.fence = fence
	s.event = gfx.NewEvent()
	s.frameIndex = sc.CurrentBackBufferIndex()

	s.log.WithFields(log.Fields{
		"frameIndex": s.frameIndex,
		"timeout":    s.timeout,
	}).Debug("frame synchronizer created")
	return s, nil
}

// SignalAndWait signals the next fence value behind all submitted work,
// blocks until the queue reaches it and re-reads the frame index.
func (s *FrameSynchronizer) SignalAndWait() error {
	if s.closed {
		return gfx.ErrReleased
	}

	s.value++
	target := s.value
	if err := s.queue.Signal(s.fence, target); err != nil {
		return fmt.Errorf("signalling fence value %d: %w", target, err)
	}

	// A registration left behind by a timed-out wait can still fire the
	// event for an older value, so a wake only counts once the fence
	// itself has reached target.
	for completed := s.fence.CompletedValue(); completed < target; completed = s.fence.CompletedValue() {
		if err := s.fence.SetEventOnCompletion(target, s.event); err != nil {
			return fmt.Errorf("arming event for fence value %d: %w", target, err)
		}
		if err := s.event.Wait(s.timeout); err != nil {
			return fmt.Errorf("waiting for fence value %d (completed %d): %w", target, completed, err)
		}
	}

	s.frameIndex = s.swapChain.CurrentBackBufferIndex()
	s.log.WithFields(log.Fields{
		"fenceValue": target,
		"frameIndex": s.frameIndex,
	}).Trace("frame retired")
	return nil
}

// Shutdown drains the queue with a final SignalAndWait, then releases
// the event and the fence. Calling it again does nothing.
func (s *FrameSynchronizer) Shutdown() error {
	if s.closed {
		return nil
	}
	err := s.SignalAndWait()
	s.closed = true
	s.event.Release()
	s.fence.Release()
	s.log.WithField("fenceValue", s.value).Debug("frame synchronizer shut down")
	return err
}

// FrameIndex returns the back buffer index read after the last wait.
func (s *FrameSynchronizer) FrameIndex() int {
	return s.frameIndex
}

// FenceValue returns the last signalled fence value.
func (s *FrameSynchronizer) FenceValue() uint64 {
	return s.value
}
