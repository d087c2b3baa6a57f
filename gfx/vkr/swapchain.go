// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"math"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// backBuffer is a swap chain image. Images start out undefined; the
// first barrier recorded against one discards its contents.
type backBuffer struct {
	name        string
	image       vk.Image
	view        vk.ImageView
	framebuffer vk.Framebuffer
	extent      vk.Extent2D
	states      *gfx.StateTracker
	initialized bool
}

func (b *backBuffer) Name() string              { return b.name }
func (b *backBuffer) Usage() gfx.Usage          { return gfx.UsageBackBuffer }
func (b *backBuffer) States() *gfx.StateTracker { return b.states }
func (b *backBuffer) Release()                  {}

// swapChain acquires images synchronously: CurrentBackBufferIndex is
// always an image the application owns.
type swapChain struct {
	dev        *Device
	queue      *queue
	handle     vk.Swapchain
	extent     vk.Extent2D
	buffers    []*backBuffer
	acquire    vk.Fence
	renderDone vk.Semaphore
	current    uint32
	log        *log.Entry
}

func newSwapChain(d *Device, q *queue, desc gfx.SwapChainDesc) (_ *swapChain, err error) {
	s := &swapChain{
		dev:   d,
		queue: q,
		log:   d.log.WithField("component", "swapchain"),
	}
	defer func() {
		if err != nil {
			s.Release()
		}
	}()

	var caps vk.SurfaceCapabilities
	if err := NewError(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceCapabilities(): %w", err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	s.extent = caps.CurrentExtent
	if s.extent.Width == math.MaxUint32 {
		s.extent = vk.Extent2D{
			Width:  clamp(uint32(desc.Width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(uint32(desc.Height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}

	imageCount := uint32(desc.BufferCount)
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      d.format.Format,
		ImageColorSpace:  d.format.ColorSpace,
		ImageExtent:      s.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
	}
	var handle vk.Swapchain
	if err := NewError(vk.CreateSwapchain(d.device, &swapchainCreateInfo, nil, &handle)); err != nil {
		return nil, fmt.Errorf("vk.CreateSwapchain(): %w", err)
	}
	s.handle = handle

	if err := s.createBuffers(); err != nil {
		return nil, err
	}

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var renderDone vk.Semaphore
	if err := NewError(vk.CreateSemaphore(d.device, &semaphoreCreateInfo, nil, &renderDone)); err != nil {
		return nil, fmt.Errorf("vk.CreateSemaphore(): %w", err)
	}
	s.renderDone = renderDone

	if s.acquire, err = d.acquireFence(); err != nil {
		return nil, err
	}
	if err := s.acquireNext(); err != nil {
		return nil, err
	}

	s.log.WithFields(log.Fields{
		"buffers": len(s.buffers),
		"width":   s.extent.Width,
		"height":  s.extent.Height,
		"current": s.current,
	}).Info("swap chain created")
	return s, nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *swapChain) createBuffers() error {
	device := s.dev.device

	var count uint32
	if err := NewError(vk.GetSwapchainImages(device, s.handle, &count, nil)); err != nil {
		return fmt.Errorf("vk.GetSwapchainImages(): %w", err)
	}
	images := make([]vk.Image, count)
	if err := NewError(vk.GetSwapchainImages(device, s.handle, &count, images)); err != nil {
		return fmt.Errorf("vk.GetSwapchainImages(): %w", err)
	}

	for i, image := range images[:count] {
		bb := &backBuffer{
			name:   fmt.Sprintf("backbuffer%d", i),
			image:  image,
			extent: s.extent,
			states: gfx.NewStateTracker(gfx.UsageBackBuffer, gfx.StatePresent),
		}
		s.buffers = append(s.buffers, bb)

		imageViewCreateInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.dev.format.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: colorRange,
		}
		var view vk.ImageView
		if err := NewError(vk.CreateImageView(device, &imageViewCreateInfo, nil, &view)); err != nil {
			return fmt.Errorf("vk.CreateImageView(): %w", err)
		}
		bb.view = view

		framebufferCreateInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      s.dev.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           s.extent.Width,
			Height:          s.extent.Height,
			Layers:          1,
		}
		var framebuffer vk.Framebuffer
		if err := NewError(vk.CreateFramebuffer(device, &framebufferCreateInfo, nil, &framebuffer)); err != nil {
			return fmt.Errorf("vk.CreateFramebuffer(): %w", err)
		}
		bb.framebuffer = framebuffer
	}
	return nil
}

// acquireNext blocks until the presentation engine hands out an image.
func (s *swapChain) acquireNext() error {
	device := s.dev.device
	var idx uint32
	ret := vk.AcquireNextImage(device, s.handle, math.MaxUint64, nil, s.acquire, &idx)
	if ret != vk.Success && ret != vk.Suboptimal {
		return fmt.Errorf("vk.AcquireNextImage(): %w", NewError(ret))
	}
	if err := NewError(vk.WaitForFences(device, 1, []vk.Fence{s.acquire}, vk.True, math.MaxUint64)); err != nil {
		return fmt.Errorf("vk.WaitForFences(): %w", err)
	}
	if err := NewError(vk.ResetFences(device, 1, []vk.Fence{s.acquire})); err != nil {
		return fmt.Errorf("vk.ResetFences(): %w", err)
	}
	s.current = idx
	return nil
}

func (s *swapChain) BufferCount() int {
	return len(s.buffers)
}

func (s *swapChain) CurrentBackBufferIndex() int {
	return int(s.current)
}

func (s *swapChain) Buffer(i int) (gfx.Resource, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("back buffer %d out of range [0, %d)", i, len(s.buffers))
	}
	return s.buffers[i], nil
}

// Present queues the current image once prior work completes and then
// acquires the next one. The chain always presents in FIFO mode, which
// is a sync interval of one.
func (s *swapChain) Present(syncInterval int) error {
	bb := s.buffers[s.current]
	if err := bb.states.Expect(gfx.StatePresent); err != nil {
		return fmt.Errorf("%s: %w", bb.name, err)
	}

	submits := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{s.renderDone},
	}}
	if err := s.dev.submit(s.queue.handle, submits, nil); err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.renderDone},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{s.current},
	}
	s.dev.qmu.Lock()
	ret := vk.QueuePresent(s.queue.handle, &presentInfo)
	s.dev.qmu.Unlock()
	if ret != vk.Success && ret != vk.Suboptimal {
		return fmt.Errorf("vk.QueuePresent(): %w", NewError(ret))
	}

	s.log.WithFields(log.Fields{
		"index":    s.current,
		"interval": syncInterval,
	}).Trace("presented")
	return s.acquireNext()
}

func (s *swapChain) Release() {
	device := s.dev.device
	s.dev.qmu.Lock()
	vk.QueueWaitIdle(s.queue.handle)
	s.dev.qmu.Unlock()
	for _, bb := range s.buffers {
		if bb.framebuffer != nil {
			vk.DestroyFramebuffer(device, bb.framebuffer, nil)
		}
		if bb.view != nil {
			vk.DestroyImageView(device, bb.view, nil)
		}
	}
	s.buffers = nil
	if s.acquire != nil {
		s.dev.recycleFence(s.acquire)
		s.acquire = nil
	}
	if s.renderDone != nil {
		vk.DestroySemaphore(device, s.renderDone, nil)
		s.renderDone = nil
	}
	if s.handle != nil {
		vk.DestroySwapchain(device, s.handle, nil)
		s.handle = nil
	}
}
