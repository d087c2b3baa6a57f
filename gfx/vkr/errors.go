// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/devblok/hellotri/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// NewError turns a failed vk.Result into an error naming the calling
// function. A lost device also matches gfx.ErrDeviceRemoved.
func NewError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	err := vk.Error(ret)
	caller := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()[strings.LastIndex(fn.Name(), "/")+1:]
		}
	}
	if ret == vk.ErrorDeviceLost {
		return fmt.Errorf("%w: vulkan error: %w (%d) on %s", gfx.ErrDeviceRemoved, err, ret, caller)
	}
	return fmt.Errorf("vulkan error: %w (%d) on %s", err, ret, caller)
}

// IsError reports whether ret is anything but vk.Success.
func IsError(ret vk.Result) bool {
	return ret != vk.Success
}
