// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"

	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/model"
	vk "github.com/vulkan-go/vulkan"
)

// commandList records into a primary command buffer. The render pass
// is opened lazily by the first clear or draw and closed again before
// any barrier, copy or render target change.
type commandList struct {
	dev       *Device
	alloc     *allocator
	buffer    vk.CommandBuffer
	pso       *pipeline
	recording bool
	inPass    bool
	err       error

	rt  *backBuffer
	vb  *buffer
	tex *texture
}

func allocateCommandBuffer(d *Device, a *allocator) (vk.CommandBuffer, error) {
	commandBufferAllocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := NewError(vk.AllocateCommandBuffers(d.device, &commandBufferAllocateInfo, buffers)); err != nil {
		return nil, fmt.Errorf("vk.AllocateCommandBuffers(): %w", err)
	}
	return buffers[0], nil
}

func newCommandList(d *Device, a *allocator) (*commandList, error) {
	buffer, err := allocateCommandBuffer(d, a)
	if err != nil {
		return nil, err
	}
	return &commandList{dev: d, alloc: a, buffer: buffer}, nil
}

func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *commandList) open() bool {
	if !c.recording {
		c.fail(gfx.ErrListClosed)
		return false
	}
	return c.err == nil
}

func (c *commandList) Reset(alloc gfx.CommandAllocator, pso gfx.PipelineState) error {
	if c.recording {
		return gfx.ErrListOpen
	}
	a, ok := alloc.(*allocator)
	if !ok {
		return gfx.ErrWrongBackend
	}
	var p *pipeline
	if pso != nil {
		if p, ok = pso.(*pipeline); !ok {
			return gfx.ErrWrongBackend
		}
	}

	if a != c.alloc {
		buffer, err := allocateCommandBuffer(c.dev, a)
		if err != nil {
			return err
		}
		c.Release()
		c.alloc, c.buffer = a, buffer
	}

	commandBufferBeginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := NewError(vk.BeginCommandBuffer(c.buffer, &commandBufferBeginInfo)); err != nil {
		return fmt.Errorf("vk.BeginCommandBuffer(): %w", err)
	}
	if p != nil {
		vk.CmdBindPipeline(c.buffer, vk.PipelineBindPointGraphics, p.handle)
	}

	*c = commandList{
		dev:       c.dev,
		alloc:     c.alloc,
		buffer:    c.buffer,
		pso:       p,
		recording: true,
	}
	return nil
}

func (c *commandList) endPass() {
	if c.inPass {
		vk.CmdEndRenderPass(c.buffer)
		c.inPass = false
	}
}

func (c *commandList) renderTarget() (*backBuffer, error) {
	if c.rt == nil {
		return nil, errors.New("no render target bound")
	}
	if err := c.rt.states.Expect(gfx.StateRenderTarget); err != nil {
		return nil, fmt.Errorf("%s: %w", c.rt.name, err)
	}
	return c.rt, nil
}

func (c *commandList) beginPass() error {
	rt, err := c.renderTarget()
	if err != nil {
		return err
	}
	if c.inPass {
		return nil
	}
	renderPassBeginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  c.dev.renderPass,
		Framebuffer: rt.framebuffer,
		RenderArea: vk.Rect2D{
			Extent: rt.extent,
		},
	}
	vk.CmdBeginRenderPass(c.buffer, &renderPassBeginInfo, vk.SubpassContentsInline)
	c.inPass = true
	return nil
}

// imageOf returns the image behind a barrier resource and marks it as
// holding defined contents from now on.
func imageOf(res gfx.Resource) (vk.Image, bool, error) {
	switch r := res.(type) {
	case *backBuffer:
		initialized := r.initialized
		r.initialized = true
		return r.image, initialized, nil
	case *texture:
		initialized := r.initialized
		r.initialized = true
		return r.image, initialized, nil
	}
	return nil, false, fmt.Errorf("barrier resource: %w", gfx.ErrWrongBackend)
}

func (c *commandList) ResourceBarrier(barriers ...gfx.Barrier) {
	if !c.open() {
		return
	}
	c.endPass()

	var (
		imageBarriers []vk.ImageMemoryBarrier
		srcStages     vk.PipelineStageFlags
		dstStages     vk.PipelineStageFlags
	)
	for _, b := range barriers {
		if err := gfx.ApplyBarrier(b); err != nil {
			c.fail(err)
			return
		}
		image, initialized, err := imageOf(b.Resource)
		if err != nil {
			c.fail(err)
			return
		}
		ib, src, dst := imageBarrier(image, b, initialized)
		imageBarriers = append(imageBarriers, ib)
		srcStages |= src
		dstStages |= dst
	}
	if len(imageBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(c.buffer, srcStages, dstStages, 0,
		0, nil, 0, nil, uint32(len(imageBarriers)), imageBarriers)
}

func (c *commandList) SetRenderTarget(rt gfx.Resource) {
	if !c.open() {
		return
	}
	bb, ok := rt.(*backBuffer)
	if !ok {
		c.fail(fmt.Errorf("render target: %w", gfx.ErrWrongBackend))
		return
	}
	if bb != c.rt {
		c.endPass()
	}
	c.rt = bb
}

func (c *commandList) ClearRenderTarget(clr [4]float32) {
	if !c.open() {
		return
	}
	if err := c.beginPass(); err != nil {
		c.fail(err)
		return
	}

	var value vk.ClearValue
	value.SetColor(clr[:])
	attachments := []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
		ClearValue:      value,
	}}
	rects := []vk.ClearRect{{
		Rect:       vk.Rect2D{Extent: c.rt.extent},
		LayerCount: 1,
	}}
	vk.CmdClearAttachments(c.buffer, uint32(len(attachments)), attachments, uint32(len(rects)), rects)
}

func (c *commandList) SetViewport(vp gfx.Viewport) {
	if !c.open() {
		return
	}
	vk.CmdSetViewport(c.buffer, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (c *commandList) SetScissor(r gfx.Rect) {
	if !c.open() {
		return
	}
	vk.CmdSetScissor(c.buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(r.Left), Y: int32(r.Top)},
		Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
	}})
}

func (c *commandList) SetVertexBuffer(buf gfx.Buffer, stride int) {
	if !c.open() {
		return
	}
	b, ok := buf.(*buffer)
	if !ok {
		c.fail(fmt.Errorf("vertex buffer: %w", gfx.ErrWrongBackend))
		return
	}
	if stride != model.VertexStride {
		c.fail(fmt.Errorf("vertex stride %d, pipeline expects %d", stride, model.VertexStride))
		return
	}
	vk.CmdBindVertexBuffers(c.buffer, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{0})
	c.vb = b
}

func (c *commandList) SetTexture(tex gfx.Texture) {
	if !c.open() {
		return
	}
	t, ok := tex.(*texture)
	if !ok {
		c.fail(fmt.Errorf("texture: %w", gfx.ErrWrongBackend))
		return
	}
	c.tex = t
}

func (c *commandList) Draw(vertexCount, instanceCount int) {
	if !c.open() {
		return
	}
	if _, err := c.renderTarget(); err != nil {
		c.fail(err)
		return
	}
	switch {
	case c.pso == nil:
		c.fail(errors.New("draw without pipeline state"))
		return
	case c.vb == nil:
		c.fail(errors.New("draw without vertex buffer"))
		return
	case vertexCount%3 != 0:
		c.fail(fmt.Errorf("vertex count %d is not a triangle list", vertexCount))
		return
	}
	if c.pso.textured {
		if c.tex == nil {
			c.fail(errors.New("textured draw without texture"))
			return
		}
		if err := c.tex.states.Expect(gfx.StateShaderResource); err != nil {
			c.fail(fmt.Errorf("%s: %w", c.tex.Name(), err))
			return
		}
	}
	if instanceCount < 1 {
		return
	}

	if err := c.beginPass(); err != nil {
		c.fail(err)
		return
	}
	if c.pso.textured {
		vk.CmdBindDescriptorSets(c.buffer, vk.PipelineBindPointGraphics, c.pso.layout,
			0, 1, []vk.DescriptorSet{c.tex.set}, 0, nil)
	}
	vk.CmdDraw(c.buffer, uint32(vertexCount), uint32(instanceCount), 0, 0)
}

func (c *commandList) CopyBufferToTexture(dst gfx.Texture, src gfx.Buffer, rowPitch int) {
	if !c.open() {
		return
	}
	t, ok := dst.(*texture)
	if !ok {
		c.fail(fmt.Errorf("copy destination: %w", gfx.ErrWrongBackend))
		return
	}
	b, ok := src.(*buffer)
	if !ok {
		c.fail(fmt.Errorf("copy source: %w", gfx.ErrWrongBackend))
		return
	}
	if err := t.states.Expect(gfx.StateCopyDest); err != nil {
		c.fail(fmt.Errorf("%s: %w", t.Name(), err))
		return
	}
	rowBytes := t.width * model.TexturePixelSize
	if rowPitch < rowBytes || rowPitch%model.TexturePixelSize != 0 ||
		len(b.data) < rowPitch*(t.height-1)+rowBytes {
		c.fail(fmt.Errorf("upload buffer of %d bytes too small for %dx%d at pitch %d",
			len(b.data), t.width, t.height, rowPitch))
		return
	}
	c.endPass()

	if !t.initialized {
		ib, srcStage, dstStage := imageBarrier(t.image, gfx.Transition(t, gfx.StateCommon, gfx.StateCopyDest), false)
		vk.CmdPipelineBarrier(c.buffer, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{ib})
		t.initialized = true
	}

	regions := []vk.BufferImageCopy{{
		BufferOffset:    0,
		BufferRowLength: uint32(rowPitch / model.TexturePixelSize),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  uint32(t.width),
			Height: uint32(t.height),
			Depth:  1,
		},
	}}
	vk.CmdCopyBufferToImage(c.buffer, b.handle, t.image, vk.ImageLayoutTransferDstOptimal,
		uint32(len(regions)), regions)
}

func (c *commandList) Close() error {
	if !c.recording {
		return gfx.ErrListClosed
	}
	c.endPass()
	c.recording = false
	if err := NewError(vk.EndCommandBuffer(c.buffer)); err != nil {
		c.fail(fmt.Errorf("vk.EndCommandBuffer(): %w", err))
	}
	return c.err
}

func (c *commandList) Release() {
	if c.buffer != nil {
		vk.FreeCommandBuffers(c.dev.device, c.alloc.pool, 1, []vk.CommandBuffer{c.buffer})
		c.buffer = nil
	}
}
