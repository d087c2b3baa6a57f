// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/devblok/hellotri/gfx"
	"github.com/devblok/hellotri/model"
	glm "github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"
)

// rasterizer owns the scratch state of the queue goroutine.
type rasterizer struct {
	z       *vector.Rasterizer
	mask    *image.Alpha
	scratch *image.RGBA
}

func toRGBA(c [4]float32) color.RGBA {
	var out [4]uint8
	for i, v := range c {
		v = glm.Clamp(v, 0, 1)
		out[i] = uint8(v*255 + 0.5)
	}
	return color.RGBA{out[0], out[1], out[2], out[3]}
}

func (r *rasterizer) clear(img *image.RGBA, c [4]float32) {
	draw.Draw(img, img.Bounds(), image.NewUniform(toRGBA(c)), image.Point{}, draw.Src)
}

func (r *rasterizer) prepare(w, h int) {
	if r.z == nil {
		r.z = vector.NewRasterizer(w, h)
	}
	if r.mask == nil || r.mask.Rect.Dx() != w || r.mask.Rect.Dy() != h {
		r.mask = image.NewAlpha(image.Rect(0, 0, w, h))
		r.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
	}
}

// toScreen maps a clip-space position through the viewport.
func toScreen(vp gfx.Viewport, p glm.Vec3) glm.Vec2 {
	return glm.Vec2{
		vp.X + (p.X()+1)*0.5*vp.Width,
		vp.Y + (1-p.Y())*0.5*vp.Height,
	}
}

// uvAffine solves the affine map taking texel coordinates of the three
// vertices onto their screen positions.
func uvAffine(uv [3]glm.Vec2, screen [3]glm.Vec2, texW, texH int) (f64.Aff3, bool) {
	var x, y, dx, dy [3]float64
	for i := range uv {
		x[i] = float64(uv[i].X()) * float64(texW)
		y[i] = float64(uv[i].Y()) * float64(texH)
		dx[i] = float64(screen[i].X())
		dy[i] = float64(screen[i].Y())
	}

	det := x[0]*(y[1]-y[2]) - y[0]*(x[1]-x[2]) + (x[1]*y[2] - x[2]*y[1])
	if det == 0 {
		return f64.Aff3{}, false
	}
	c := [3][3]float64{
		{y[1] - y[2], x[2] - x[1], x[1]*y[2] - x[2]*y[1]},
		{y[2] - y[0], x[0] - x[2], x[2]*y[0] - x[0]*y[2]},
		{y[0] - y[1], x[1] - x[0], x[0]*y[1] - x[1]*y[0]},
	}
	solve := func(v [3]float64) (float64, float64, float64) {
		return (c[0][0]*v[0] + c[1][0]*v[1] + c[2][0]*v[2]) / det,
			(c[0][1]*v[0] + c[1][1]*v[1] + c[2][1]*v[2]) / det,
			(c[0][2]*v[0] + c[1][2]*v[1] + c[2][2]*v[2]) / det
	}
	a, b, cc := solve(dx)
	d, e, f := solve(dy)
	return f64.Aff3{a, b, cc, d, e, f}, true
}

// drawTriangles rasterises a triangle list into dst, limited to clip.
// A nil tex fills the triangles white.
func (r *rasterizer) drawTriangles(dst *image.RGBA, clip image.Rectangle, vp gfx.Viewport, vertices []model.Vertex, tex *image.RGBA) {
	bounds := dst.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if vp.Width == 0 || vp.Height == 0 {
		vp = gfx.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1}
	}
	r.prepare(w, h)

	for i := 0; i+2 < len(vertices); i += 3 {
		var screen, uv [3]glm.Vec2
		for k := 0; k < 3; k++ {
			screen[k] = toScreen(vp, vertices[i+k].Pos)
			uv[k] = vertices[i+k].UV
		}

		r.z.Reset(w, h)
		r.z.MoveTo(screen[0].X(), screen[0].Y())
		r.z.LineTo(screen[1].X(), screen[1].Y())
		r.z.LineTo(screen[2].X(), screen[2].Y())
		r.z.ClosePath()
		for p := range r.mask.Pix {
			r.mask.Pix[p] = 0
		}
		r.z.Draw(r.mask, r.mask.Bounds(), image.Opaque, image.Point{})

		var src image.Image = image.NewUniform(color.White)
		if tex != nil {
			m, ok := uvAffine(uv, screen, tex.Rect.Dx(), tex.Rect.Dy())
			if !ok {
				continue
			}
			for p := range r.scratch.Pix {
				r.scratch.Pix[p] = 0
			}
			xdraw.NearestNeighbor.Transform(r.scratch, m, tex, tex.Bounds(), xdraw.Src, nil)
			src = r.scratch
		}
		draw.DrawMask(dst, clip, src, clip.Min, r.mask, clip.Min, draw.Over)
	}
}
