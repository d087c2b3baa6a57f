// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const (
	swapchainExtension = "VK_KHR_swapchain"
	maxTextures        = 16
)

// Device is an opened Vulkan adapter with a presentation surface.
type Device struct {
	log  *log.Entry
	info gfx.AdapterInfo
	ws   WindowSurface

	instance vk.Instance
	gpu      vk.PhysicalDevice
	surface  vk.Surface
	device   vk.Device
	family   uint32
	format   vk.SurfaceFormat

	renderPass     vk.RenderPass
	setLayout      vk.DescriptorSetLayout
	descriptorPool vk.DescriptorPool
	sampler        vk.Sampler
	memory         *MemoryAllocator

	// qmu serialises access to the single hardware queue.
	qmu sync.Mutex

	mu       sync.Mutex
	fences   []vk.Fence
	queues   []*queue
	watchers sync.WaitGroup
	released bool
}

func openDevice(instance vk.Instance, ws WindowSurface, cfg gfx.DeviceConfig, logger *log.Entry) (_ *Device, err error) {
	d := &Device{
		log:      logger,
		ws:       ws,
		instance: instance,
	}
	defer func() {
		if err != nil {
			d.destroy()
		}
	}()

	if d.surface, err = ws.CreateVulkanSurface(instance); err != nil {
		return nil, fmt.Errorf("creating surface: %w", err)
	}

	devices, err := enumerateDevices(instance)
	if err != nil {
		return nil, err
	}
	if cfg.Adapter < 0 || cfg.Adapter >= len(devices) {
		return nil, fmt.Errorf("%w: adapter %d of %d", gfx.ErrNoAdapter, cfg.Adapter, len(devices))
	}
	d.gpu = devices[cfg.Adapter]
	if d.info, err = adapterInfo(cfg.Adapter, d.gpu); err != nil {
		return nil, err
	}
	if !hasExtension(d.info.Extensions, swapchainExtension) {
		return nil, fmt.Errorf("%w: %s lacks %s", gfx.ErrNoAdapter, d.info.Name, swapchainExtension)
	}

	if d.family, err = d.findQueueFamily(); err != nil {
		return nil, err
	}
	if err = d.createLogicalDevice(cfg.Debug); err != nil {
		return nil, err
	}
	if d.format, err = d.chooseSurfaceFormat(); err != nil {
		return nil, err
	}
	if err = d.createRenderPass(); err != nil {
		return nil, err
	}
	if err = d.createDescriptors(); err != nil {
		return nil, err
	}
	d.memory = NewMemoryAllocator(d.device, d.gpu)

	d.log.WithFields(log.Fields{
		"adapter": d.info.Name,
		"family":  d.family,
		"format":  d.format.Format,
		"debug":   cfg.Debug,
	}).Info("vulkan device opened")
	return d, nil
}

func hasExtension(extensions []string, name string) bool {
	for _, ext := range extensions {
		if ext == name {
			return true
		}
	}
	return false
}

func (d *Device) findQueueFamily() (uint32, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.gpu, &count, props)

	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		if props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supported vk.Bool32
		if err := NewError(vk.GetPhysicalDeviceSurfaceSupport(d.gpu, i, d.surface, &supported)); err != nil {
			return 0, fmt.Errorf("vk.GetPhysicalDeviceSurfaceSupport(): %w", err)
		}
		if supported == vk.True {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no queue family can draw and present", gfx.ErrNoAdapter)
}

func (d *Device) createLogicalDevice(debug bool) error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	extensions := safeStrings([]string{swapchainExtension})
	var layers []string
	if debug {
		layers = safeStrings([]string{validationLayer})
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var device vk.Device
	if err := NewError(vk.CreateDevice(d.gpu, &deviceCreateInfo, nil, &device)); err != nil {
		return fmt.Errorf("vk.CreateDevice(): %w", err)
	}
	d.device = device
	return nil
}

func (d *Device) chooseSurfaceFormat() (vk.SurfaceFormat, error) {
	var count uint32
	if err := NewError(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil)); err != nil {
		return vk.SurfaceFormat{}, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(): %w", err)
	}
	if count == 0 {
		return vk.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := NewError(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, formats)); err != nil {
		return vk.SurfaceFormat{}, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(): %w", err)
	}

	for i := range formats {
		formats[i].Deref()
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: vk.ColorSpaceSrgbNonlinear,
		}, nil
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm {
			return f, nil
		}
	}
	return formats[0], nil
}

// createRenderPass creates the single colour pass every list draws in.
// The attachment is loaded and stored in the render target layout, so
// clears and layout changes stay explicit in the command list.
func (d *Device) createRenderPass() error {
	attachments := []vk.AttachmentDescription{{
		Format:         d.format.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}}

	renderPassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
	}

	var renderPass vk.RenderPass
	if err := NewError(vk.CreateRenderPass(d.device, &renderPassCreateInfo, nil, &renderPass)); err != nil {
		return fmt.Errorf("vk.CreateRenderPass(): %w", err)
	}
	d.renderPass = renderPass
	return nil
}

// createDescriptors creates the sampler, the texture set layout and the
// pool every texture allocates its descriptor set from.
func (d *Device) createDescriptors() error {
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}}
	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var setLayout vk.DescriptorSetLayout
	if err := NewError(vk.CreateDescriptorSetLayout(d.device, &layoutCreateInfo, nil, &setLayout)); err != nil {
		return fmt.Errorf("vk.CreateDescriptorSetLayout(): %w", err)
	}
	d.setLayout = setLayout

	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxTextures,
	}}
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxTextures,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := NewError(vk.CreateDescriptorPool(d.device, &poolCreateInfo, nil, &pool)); err != nil {
		return fmt.Errorf("vk.CreateDescriptorPool(): %w", err)
	}
	d.descriptorPool = pool

	samplerCreateInfo := vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     vk.FilterNearest,
		MinFilter:     vk.FilterNearest,
		MipmapMode:    vk.SamplerMipmapModeNearest,
		AddressModeU:  vk.SamplerAddressModeClampToEdge,
		AddressModeV:  vk.SamplerAddressModeClampToEdge,
		AddressModeW:  vk.SamplerAddressModeClampToEdge,
		MaxAnisotropy: 1,
		CompareOp:     vk.CompareOpAlways,
		BorderColor:   vk.BorderColorIntOpaqueBlack,
	}
	var sampler vk.Sampler
	if err := NewError(vk.CreateSampler(d.device, &samplerCreateInfo, nil, &sampler)); err != nil {
		return fmt.Errorf("vk.CreateSampler(): %w", err)
	}
	d.sampler = sampler
	return nil
}

// acquireFence takes an unsignalled fence from the pool.
func (d *Device) acquireFence() (vk.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gfx.ErrReleased
	}
	if n := len(d.fences); n > 0 {
		f := d.fences[n-1]
		d.fences = d.fences[:n-1]
		return f, nil
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var f vk.Fence
	if err := NewError(vk.CreateFence(d.device, &fenceCreateInfo, nil, &f)); err != nil {
		return nil, fmt.Errorf("vk.CreateFence(): %w", err)
	}
	return f, nil
}

// recycleFence returns a signalled fence to the pool.
func (d *Device) recycleFence(f vk.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	if err := NewError(vk.ResetFences(d.device, 1, []vk.Fence{f})); err != nil {
		d.log.WithError(err).Warn("vk.ResetFences() failed, dropping fence")
		vk.DestroyFence(d.device, f, nil)
		return
	}
	d.fences = append(d.fences, f)
}

// submit hands batches to the hardware queue, signalling fence on completion.
func (d *Device) submit(q vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	if err := NewError(vk.QueueSubmit(q, uint32(len(submits)), submits, fence)); err != nil {
		return fmt.Errorf("vk.QueueSubmit(): %w", err)
	}
	return nil
}

// retire releases allocators of finished submissions on every queue.
func (d *Device) retire() error {
	d.mu.Lock()
	queues := append([]*queue(nil), d.queues...)
	d.mu.Unlock()

	for _, q := range queues {
		if err := q.retire(); err != nil {
			return err
		}
	}
	return nil
}

// Info implements interface
func (d *Device) Info() gfx.AdapterInfo {
	return d.info
}

// CreateCommandQueue implements interface
func (d *Device) CreateCommandQueue() (gfx.CommandQueue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gfx.ErrReleased
	}
	var handle vk.Queue
	vk.GetDeviceQueue(d.device, d.family, 0, &handle)
	q := &queue{dev: d, handle: handle}
	d.queues = append(d.queues, q)
	return q, nil
}

// CreateSwapChain implements interface
func (d *Device) CreateSwapChain(q gfx.CommandQueue, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	vq, ok := q.(*queue)
	if !ok {
		return nil, gfx.ErrWrongBackend
	}
	if desc.BufferCount < 2 {
		return nil, fmt.Errorf("swap chain needs at least 2 buffers, got %d", desc.BufferCount)
	}
	sc, err := newSwapChain(d, vq, desc)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// CreateCommandAllocator implements interface
func (d *Device) CreateCommandAllocator() (gfx.CommandAllocator, error) {
	ca, err := newAllocator(d)
	if err != nil {
		return nil, err
	}
	return ca, nil
}

// CreateCommandList implements interface
func (d *Device) CreateCommandList(alloc gfx.CommandAllocator) (gfx.CommandList, error) {
	a, ok := alloc.(*allocator)
	if !ok {
		return nil, gfx.ErrWrongBackend
	}
	cl, err := newCommandList(d, a)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

// CreateFence implements interface
func (d *Device) CreateFence(initial uint64) (gfx.Fence, error) {
	return &fence{dev: d, completed: initial, signaled: initial}, nil
}

// CreatePipelineState implements interface
func (d *Device) CreatePipelineState(desc gfx.PipelineDesc) (gfx.PipelineState, error) {
	pso, err := newPipeline(d, desc)
	if err != nil {
		return nil, err
	}
	return pso, nil
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(size int) (gfx.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}
	buf, err := newBuffer(d, size)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// CreateTexture implements interface
func (d *Device) CreateTexture(width, height int) (gfx.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	tex, err := newTexture(d, width, height)
	if err != nil {
		return nil, err
	}
	return tex, nil
}

// Release waits for the device to go idle and destroys it.
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if d.device != nil {
		if err := NewError(vk.DeviceWaitIdle(d.device)); err != nil {
			d.log.WithError(err).Error("vk.DeviceWaitIdle() failed")
		}
	}
	d.watchers.Wait()
	d.destroy()
	d.log.Info("vulkan device released")
}

func (d *Device) destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true

	if d.device != nil {
		for _, f := range d.fences {
			vk.DestroyFence(d.device, f, nil)
		}
		d.fences = nil
		if d.sampler != nil {
			vk.DestroySampler(d.device, d.sampler, nil)
		}
		if d.descriptorPool != nil {
			vk.DestroyDescriptorPool(d.device, d.descriptorPool, nil)
		}
		if d.setLayout != nil {
			vk.DestroyDescriptorSetLayout(d.device, d.setLayout, nil)
		}
		if d.renderPass != nil {
			vk.DestroyRenderPass(d.device, d.renderPass, nil)
		}
		vk.DestroyDevice(d.device, nil)
	}
	if d.surface != nil {
		vk.DestroySurface(d.instance, d.surface, nil)
	}
	vk.DestroyInstance(d.instance, nil)
}
