// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"errors"
	"fmt"
	"image"

	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/model"
)

type op func(r *rasterizer) error

// commandList records closures executed later by the queue.
// Bindings are captured at record time.
type commandList struct {
	alloc     *allocator
	pso       *pipeline
	recording bool
	err       error
	ops       []op

	rt       *backBuffer
	vb       *buffer
	stride   int
	tex      *texture
	viewport gfx.Viewport
	scissor  gfx.Rect
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

	*c = commandList{
		alloc:     a,
		pso:       p,
		recording: true,
	}
	return nil
}

func (c *commandList) ResourceBarrier(barriers ...gfx.Barrier) {
	if !c.open() {
		return
	}
	for _, b := range barriers {
		if err := gfx.ApplyBarrier(b); err != nil {
			c.fail(err)
			return
		}
	}
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
	c.rt = bb
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

func (c *commandList) ClearRenderTarget(clr [4]float32) {
	if !c.open() {
		return
	}
	rt, err := c.renderTarget()
	if err != nil {
		c.fail(err)
		return
	}
	c.ops = append(c.ops, func(r *rasterizer) error {
		r.clear(rt.img, clr)
		return nil
	})
}

func (c *commandList) SetViewport(vp gfx.Viewport) {
	if c.open() {
		c.viewport = vp
	}
}

func (c *commandList) SetScissor(rect gfx.Rect) {
	if c.open() {
		c.scissor = rect
	}
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
	c.vb, c.stride = b, stride
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
	rt, err := c.renderTarget()
	if err != nil {
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

	var tex *image.RGBA
	if c.pso.textured {
		if c.tex == nil {
			c.fail(errors.New("textured draw without texture"))
			return
		}
		if err := c.tex.states.Expect(gfx.StateShaderResource); err != nil {
			c.fail(fmt.Errorf("%s: %w", c.tex.Name(), err))
			return
		}
		tex = c.tex.img
	}
	if instanceCount < 1 {
		return
	}

	data, stride, vp := c.vb.data, c.stride, c.viewport
	clip := rt.img.Bounds()
	if c.scissor != (gfx.Rect{}) {
		clip = clip.Intersect(image.Rect(c.scissor.Left, c.scissor.Top, c.scissor.Right, c.scissor.Bottom))
	}
	c.ops = append(c.ops, func(r *rasterizer) error {
		vertices, err := model.DecodeVertices(data, stride, vertexCount)
		if err != nil {
			return err
		}
		r.drawTriangles(rt.img, clip, vp, vertices, tex)
		return nil
	})
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
	rowBytes := t.Width() * model.TexturePixelSize
	if rowPitch < rowBytes || len(b.data) < rowPitch*(t.Height()-1)+rowBytes {
		c.fail(fmt.Errorf("upload buffer of %d bytes too small for %dx%d at pitch %d",
			len(b.data), t.Width(), t.Height(), rowPitch))
		return
	}
	data := b.data
	c.ops = append(c.ops, func(*rasterizer) error {
		for y := 0; y < t.Height(); y++ {
			copy(t.img.Pix[y*t.img.Stride:y*t.img.Stride+rowBytes], data[y*rowPitch:])
		}
		return nil
	})
}

func (c *commandList) Close() error {
	if !c.recording {
		return gfx.ErrListClosed
	}
	c.recording = false
	return c.err
}

func (c *commandList) Release() {
	c.ops = nil
}
