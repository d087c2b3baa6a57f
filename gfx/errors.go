// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "errors"

// package errors
var (
	ErrNoAdapter         = errors.New("gfx: no suitable adapter found")
	ErrUnknownBackend    = errors.New("gfx: unknown backend")
	ErrDeviceRemoved     = errors.New("gfx: device removed")
	ErrInvalidTransition = errors.New("gfx: invalid resource transition")
	ErrStateMismatch     = errors.New("gfx: resource state mismatch")
	ErrResourceHazard    = errors.New("gfx: resource reused while in flight")
	ErrListClosed        = errors.New("gfx: command list is closed")
	ErrListOpen          = errors.New("gfx: command list is open")
	ErrFenceValue        = errors.New("gfx: fence value must increase")
	ErrWaitTimeout       = errors.New("gfx: wait timed out")
	ErrReleased          = errors.New("gfx: object released")
	ErrWrongBackend      = errors.New("gfx: object belongs to another backend")
)
