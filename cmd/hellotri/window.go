// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"
)

// window adapts an SDL window to the surfaces backends present to.
// Software frames arrive on the queue goroutine and are blitted on the
// thread that owns the window.
type window struct {
	*sdl.Window
	width, height int

	mu      sync.Mutex
	pending *image.RGBA
	last    *image.RGBA
}

func newWindow(title string, width, height int, flags uint32) (*window, error) {
	win, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(width),
		int32(height),
		flags)
	if err != nil {
		return nil, err
	}
	return &window{Window: win, width: width, height: height}, nil
}

// Size implements gfx.Surface
func (w *window) Size() (int, int) {
	return w.width, w.height
}

// PresentImage implements gfx.ImageSink
func (w *window) PresentImage(img *image.RGBA) error {
	frame := image.NewRGBA(img.Rect)
	copy(frame.Pix, img.Pix)

	w.mu.Lock()
	w.pending = frame
	w.mu.Unlock()
	return nil
}

// ProcAddr implements vkr.WindowSurface
func (w *window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// InstanceExtensions implements vkr.WindowSurface
func (w *window) InstanceExtensions() []string {
	return w.VulkanGetInstanceExtensions()
}

// CreateVulkanSurface implements vkr.WindowSurface
func (w *window) CreateVulkanSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := w.VulkanCreateSurface(instance)
	if err != nil {
		return nil, err
	}
	return vk.SurfaceFromPointer(uintptr(surface)), nil
}

// flush blits the latest software frame, if any, to the window.
func (w *window) flush() error {
	w.mu.Lock()
	frame := w.pending
	w.pending = nil
	w.mu.Unlock()
	if frame == nil {
		return nil
	}
	w.last = frame

	src, err := sdl.CreateRGBSurfaceWithFormatFrom(unsafe.Pointer(&frame.Pix[0]),
		int32(frame.Rect.Dx()), int32(frame.Rect.Dy()), 32, int32(frame.Stride),
		uint32(sdl.PIXELFORMAT_ABGR8888))
	if err != nil {
		return fmt.Errorf("sdl.CreateRGBSurfaceWithFormatFrom(): %w", err)
	}
	defer src.Free()

	dst, err := w.GetSurface()
	if err != nil {
		return fmt.Errorf("window.GetSurface(): %w", err)
	}
	if err := src.Blit(nil, dst, nil); err != nil {
		return fmt.Errorf("surface.Blit(): %w", err)
	}
	return w.UpdateSurface()
}

// screenshot writes the last flushed software frame as PNG.
func (w *window) screenshot(path string) error {
	if w.last == nil {
		return errors.New("no software frame was presented")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, w.last); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
