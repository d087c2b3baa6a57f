// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"
	"sync"
)

// ResourceState is the usage state of a resource as seen by the device.
type ResourceState int

// Resource states
const (
	StateCommon ResourceState = iota
	StatePresent
	StateRenderTarget
	StateCopyDest
	StateShaderResource
)

func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StatePresent:
		return "Present"
	case StateRenderTarget:
		return "RenderTarget"
	case StateCopyDest:
		return "CopyDest"
	case StateShaderResource:
		return "ShaderResource"
	default:
		return fmt.Sprintf("ResourceState(%d)", int(s))
	}
}

// Usage is a set of states a resource may enter.
type Usage uint8

// Usage flags
const (
	UsagePresent Usage = 1 << iota
	UsageRenderTarget
	UsageCopyDest
	UsageShaderResource
)

// Common usages
const (
	UsageBackBuffer = UsagePresent | UsageRenderTarget | UsageCopyDest
	UsageTexture    = UsageCopyDest | UsageShaderResource
)

// Allows reports whether a resource with usage u can be in state s.
// Every resource can be in StateCommon.
func (u Usage) Allows(s ResourceState) bool {
	switch s {
	case StateCommon:
		return true
	case StatePresent:
		return u&UsagePresent != 0
	case StateRenderTarget:
		return u&UsageRenderTarget != 0
	case StateCopyDest:
		return u&UsageCopyDest != 0
	case StateShaderResource:
		return u&UsageShaderResource != 0
	}
	return false
}

// legalTransitions lists the after-states reachable from each state.
var legalTransitions = map[ResourceState][]ResourceState{
	StateCommon:         {StatePresent, StateRenderTarget, StateCopyDest, StateShaderResource},
	StatePresent:        {StateRenderTarget, StateCopyDest, StateCommon},
	StateRenderTarget:   {StatePresent, StateShaderResource, StateCommon},
	StateCopyDest:       {StateShaderResource, StatePresent, StateCommon},
	StateShaderResource: {StateCopyDest, StateRenderTarget, StateCommon},
}

// ValidateTransition checks that a resource with usage u
// may go from before to after.
func ValidateTransition(u Usage, before, after ResourceState) error {
	if before == after {
		return fmt.Errorf("%w: %s to itself", ErrInvalidTransition, before)
	}
	if !u.Allows(before) || !u.Allows(after) {
		return fmt.Errorf("%w: %s to %s not permitted by usage", ErrInvalidTransition, before, after)
	}
	for _, s := range legalTransitions[before] {
		if s == after {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, before, after)
}

// Barrier declares a state transition of one resource.
type Barrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

// Transition builds a transition barrier.
func Transition(res Resource, before, after ResourceState) Barrier {
	return Barrier{Resource: res, Before: before, After: after}
}

// Reverse returns the barrier that undoes b.
func (b Barrier) Reverse() Barrier {
	return Barrier{Resource: b.Resource, Before: b.After, After: b.Before}
}

// BarrierPair returns the barrier entering state during and the barrier
// restoring state from. The two always mirror each other.
func BarrierPair(res Resource, from, during ResourceState) (enter, exit Barrier) {
	enter = Transition(res, from, during)
	return enter, enter.Reverse()
}

// StateTracker holds the state of one resource as of the last
// recorded barrier.
type StateTracker struct {
	mu    sync.Mutex
	usage Usage
	state ResourceState
}

// NewStateTracker returns a tracker starting in initial.
func NewStateTracker(usage Usage, initial ResourceState) *StateTracker {
	return &StateTracker{usage: usage, state: initial}
}

// State returns the tracked state.
func (t *StateTracker) State() ResourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Apply validates b against the tracked state and records its after-state.
func (t *StateTracker) Apply(b Barrier) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b.Before != t.state {
		return fmt.Errorf("%w: barrier expects %s, resource is %s", ErrStateMismatch, b.Before, t.state)
	}
	if err := ValidateTransition(t.usage, b.Before, b.After); err != nil {
		return err
	}
	t.state = b.After
	return nil
}

// Expect returns ErrStateMismatch unless the tracked state is s.
func (t *StateTracker) Expect(s ResourceState) error {
	if cur := t.State(); cur != s {
		return fmt.Errorf("%w: need %s, resource is %s", ErrStateMismatch, s, cur)
	}
	return nil
}

// ApplyBarrier validates and records b on its resource.
// Errors name the resource.
func ApplyBarrier(b Barrier) error {
	if b.Resource == nil {
		return fmt.Errorf("%w: barrier without resource", ErrInvalidTransition)
	}
	if err := b.Resource.States().Apply(b); err != nil {
		return fmt.Errorf("%s: %w", b.Resource.Name(), err)
	}
	return nil
}
