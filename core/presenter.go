// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
)

// ErrFrameState is returned when a frame step is called out of order.
var ErrFrameState = errors.New("core: frame step out of order")

// PresenterState is the position of the presenter in the frame cycle
type PresenterState int

// Presenter states
const (
	Idle PresenterState = iota
	Recording
	Submitted
	Failed
)

func (s PresenterState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Submitted:
		return "Submitted"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("PresenterState(%d)", int(s))
}

// RecordFunc records draw commands into a list with the back buffer
// bound as render target and already cleared.
type RecordFunc func(list gfx.CommandList)

// PresenterConfig holds the objects a FramePresenter drives.
type PresenterConfig struct {
	Queue     gfx.CommandQueue
	SwapChain gfx.SwapChain
	Allocator gfx.CommandAllocator
	List      gfx.CommandList
	Pipeline  gfx.PipelineState
	Sync      *FrameSynchronizer

	ClearColor   [4]float32
	SyncInterval int
	Record       RecordFunc
}

// FramePresenter drives one frame at a time through
// Idle, Recording and Submitted, back to Idle.
// The first error is fatal and returned by every later call.
type FramePresenter struct {
	cfg    PresenterConfig
	state  PresenterState
	err    error
	frames uint64
	log    *log.Entry
}

// NewFramePresenter creates a presenter in the Idle state.
func NewFramePresenter(cfg PresenterConfig) *FramePresenter {
	return &FramePresenter{
		cfg: cfg,
		log: log.WithField("component", "presenter"),
	}
}

// State returns the current state.
func (p *FramePresenter) State() PresenterState {
	return p.state
}

// Frames returns the number of presented frames.
func (p *FramePresenter) Frames() uint64 {
	return p.frames
}

// Err returns the error that failed the presenter.
func (p *FramePresenter) Err() error {
	return p.err
}

func (p *FramePresenter) fail(err error) error {
	p.state = Failed
	p.err = err
	p.log.WithError(err).WithField("frame", p.frames).Error("frame failed")
	return err
}

func (p *FramePresenter) expect(s PresenterState, step string) error {
	if p.state == Failed {
		return p.err
	}
	if p.state != s {
		return p.fail(fmt.Errorf("%w: %s in state %s", ErrFrameState, step, p.state))
	}
	return nil
}

// Frame runs a whole frame: Begin, Submit and Present.
func (p *FramePresenter) Frame() error {
	if err := p.Begin(); err != nil {
		return err
	}
	if err := p.Submit(); err != nil {
		return err
	}
	return p.Present()
}

// Begin resets the allocator and the list, which is only safe once the
// previous frame has retired, and records the frame.
func (p *FramePresenter) Begin() error {
	if err := p.expect(Idle, "begin"); err != nil {
		return err
	}
	if err := p.cfg.Allocator.Reset(); err != nil {
		return p.fail(fmt.Errorf("resetting command allocator: %w", err))
	}
	if err := p.cfg.List.Reset(p.cfg.Allocator, p.cfg.Pipeline); err != nil {
		return p.fail(fmt.Errorf("resetting command list: %w", err))
	}
	p.state = Recording

	idx := p.cfg.Sync.FrameIndex()
	rt, err := p.cfg.SwapChain.Buffer(idx)
	if err != nil {
		return p.fail(err)
	}

	enter, exit := gfx.BarrierPair(rt, gfx.StatePresent, gfx.StateRenderTarget)
	list := p.cfg.List
	list.ResourceBarrier(enter)
	list.SetRenderTarget(rt)
	list.ClearRenderTarget(p.cfg.ClearColor)
	if p.cfg.Record != nil {
		p.cfg.Record(list)
	}
	list.ResourceBarrier(exit)

	p.log.WithFields(log.Fields{
		"frame":      p.frames,
		"frameIndex": idx,
	}).Trace("frame recorded")
	return nil
}

// Submit closes the list and executes it.
func (p *FramePresenter) Submit() error {
	if err := p.expect(Recording, "submit"); err != nil {
		return err
	}
	if err := p.cfg.List.Close(); err != nil {
		return p.fail(fmt.Errorf("closing command list: %w", err))
	}
	if err := p.cfg.Queue.ExecuteCommandLists(p.cfg.List); err != nil {
		return p.fail(fmt.Errorf("executing command list: %w", err))
	}
	p.state = Submitted
	return nil
}

// Present presents the back buffer and waits for the frame to retire.
func (p *FramePresenter) Present() error {
	if err := p.expect(Submitted, "present"); err != nil {
		return err
	}
	if err := p.cfg.SwapChain.Present(p.cfg.SyncInterval); err != nil {
		return p.fail(fmt.Errorf("presenting: %w", err))
	}
	if err := p.cfg.Sync.SignalAndWait(); err != nil {
		return p.fail(err)
	}
	p.frames++
	p.state = Idle
	return nil
}
