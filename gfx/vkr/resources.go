// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/devblok/hellotri/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// allocator is a command pool. Lists recorded from it count as pending
// until the queue retires the batch they were executed in.
type allocator struct {
	dev     *Device
	pool    vk.CommandPool
	pending atomic.Int32
}

func newAllocator(d *Device) (*allocator, error) {
	commandPoolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.family,
	}
	var pool vk.CommandPool
	if err := NewError(vk.CreateCommandPool(d.device, &commandPoolCreateInfo, nil, &pool)); err != nil {
		return nil, fmt.Errorf("vk.CreateCommandPool(): %w", err)
	}
	return &allocator{dev: d, pool: pool}, nil
}

// Reset fails while lists recorded from the allocator are executing.
func (a *allocator) Reset() error {
	if err := a.dev.retire(); err != nil {
		return err
	}
	if n := a.pending.Load(); n > 0 {
		return fmt.Errorf("%w: allocator has %d command lists in flight", gfx.ErrResourceHazard, n)
	}
	if err := NewError(vk.ResetCommandPool(a.dev.device, a.pool, 0)); err != nil {
		return fmt.Errorf("vk.ResetCommandPool(): %w", err)
	}
	return nil
}

func (a *allocator) Release() {
	vk.DestroyCommandPool(a.dev.device, a.pool, nil)
}

// buffer is host visible and stays mapped for its lifetime.
type buffer struct {
	dev    *Device
	handle vk.Buffer
	memory Memory
	data   []byte
}

func newBuffer(d *Device, size int) (*buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferSrcBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := NewError(vk.CreateBuffer(d.device, &bufferCreateInfo, nil, &handle)); err != nil {
		return nil, fmt.Errorf("vk.CreateBuffer(): %w", err)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, handle, &req)
	req.Deref()

	memory, err := d.memory.Malloc(req, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		vk.DestroyBuffer(d.device, handle, nil)
		return nil, err
	}
	b := &buffer{dev: d, handle: handle, memory: memory}
	if err := NewError(vk.BindBufferMemory(d.device, handle, memory.Get(), vk.DeviceSize(memory.Offset()))); err != nil {
		b.Release()
		return nil, fmt.Errorf("vk.BindBufferMemory(): %w", err)
	}

	ptr, err := b.memory.Map()
	if err != nil {
		b.Release()
		return nil, err
	}
	b.data = unsafe.Slice((*byte)(ptr), size)
	return b, nil
}

func (b *buffer) Size() int {
	return len(b.data)
}

func (b *buffer) Write(off int, data []byte) error {
	if off < 0 || off+len(data) > len(b.data) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), off, len(b.data))
	}
	copy(b.data[off:], data)
	return nil
}

func (b *buffer) Release() {
	b.data = nil
	vk.DestroyBuffer(b.dev.device, b.handle, nil)
	b.memory.Release()
}

// texture is a device local RGBA image sampled through its own
// descriptor set.
type texture struct {
	dev           *Device
	width, height int
	image         vk.Image
	view          vk.ImageView
	memory        Memory
	set           vk.DescriptorSet
	states        *gfx.StateTracker
	initialized   bool
}

func newTexture(d *Device, width, height int) (_ *texture, err error) {
	t := &texture{
		dev:    d,
		width:  width,
		height: height,
		states: gfx.NewStateTracker(gfx.UsageTexture, gfx.StateCopyDest),
	}
	defer func() {
		if err != nil {
			t.Release()
		}
	}()

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  uint32(width),
			Height: uint32(height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vk.FormatR8g8b8a8Unorm,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}
	var image vk.Image
	if err := NewError(vk.CreateImage(d.device, &imageCreateInfo, nil, &image)); err != nil {
		return nil, fmt.Errorf("vk.CreateImage(): %w", err)
	}
	t.image = image

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &req)
	req.Deref()
	if t.memory, err = d.memory.Malloc(req, vk.MemoryPropertyDeviceLocalBit); err != nil {
		return nil, err
	}
	if err := NewError(vk.BindImageMemory(d.device, image, t.memory.Get(), vk.DeviceSize(t.memory.Offset()))); err != nil {
		return nil, fmt.Errorf("vk.BindImageMemory(): %w", err)
	}

	imageViewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            image,
		ViewType:         vk.ImageViewType2d,
		Format:           vk.FormatR8g8b8a8Unorm,
		SubresourceRange: colorRange,
	}
	var view vk.ImageView
	if err := NewError(vk.CreateImageView(d.device, &imageViewCreateInfo, nil, &view)); err != nil {
		return nil, fmt.Errorf("vk.CreateImageView(): %w", err)
	}
	t.view = view

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayout},
	}
	var set vk.DescriptorSet
	if err := NewError(vk.AllocateDescriptorSets(d.device, &allocInfo, &set)); err != nil {
		return nil, fmt.Errorf("vk.AllocateDescriptorSets(): %w", err)
	}
	t.set = set

	writes := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     d.sampler,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}}
	vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
	return t, nil
}

func (t *texture) Name() string              { return "texture" }
func (t *texture) Usage() gfx.Usage          { return gfx.UsageTexture }
func (t *texture) States() *gfx.StateTracker { return t.states }
func (t *texture) Width() int                { return t.width }
func (t *texture) Height() int               { return t.height }

func (t *texture) Release() {
	device := t.dev.device
	if t.set != nil {
		vk.FreeDescriptorSets(device, t.dev.descriptorPool, 1, &t.set)
		t.set = nil
	}
	if t.view != nil {
		vk.DestroyImageView(device, t.view, nil)
		t.view = nil
	}
	if t.image != nil {
		vk.DestroyImage(device, t.image, nil)
		t.image = nil
	}
	if t.memory.Get() != nil {
		t.memory.Release()
		t.memory = Memory{}
	}
}
