// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"image/color"
	"testing"

	"github.com/devblok/hellotri/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriangleAspect(t *testing.T) {
	tri := model.Triangle(1280.0 / 720.0)
	require.Len(t, tri, 3)
	assert.InDelta(t, 0.25*1280.0/720.0, tri[0].Pos.Y(), 1e-6)
	assert.InDelta(t, -tri[0].Pos.Y(), tri[1].Pos.Y(), 1e-6)
	assert.Equal(t, float32(0.5), tri[0].UV.X())
}

func TestVerticesStride(t *testing.T) {
	tri := model.Triangle(1)
	data := model.EncodeVertices(tri)
	assert.Len(t, data, 3*model.VertexStride)

	got, err := model.DecodeVertices(data, model.VertexStride, 3)
	require.NoError(t, err)
	assert.Equal(t, tri, got)

	_, err = model.DecodeVertices(data[:50], model.VertexStride, 3)
	assert.Error(t, err)
	_, err = model.DecodeVertices(data, 8, 3)
	assert.Error(t, err)
}

func TestCheckerboard(t *testing.T) {
	img := model.Checkerboard(model.TextureWidth, model.TextureHeight)
	black := color.RGBA{0, 0, 0, 0xff}
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}

	assert.Equal(t, black, img.RGBAAt(0, 0))
	assert.Equal(t, black, img.RGBAAt(31, 31))
	assert.Equal(t, white, img.RGBAAt(32, 0))
	assert.Equal(t, white, img.RGBAAt(0, 32))
	assert.Equal(t, black, img.RGBAAt(32, 32))
	assert.Equal(t, white, img.RGBAAt(255, 0))
}

func TestGetPixelsRowPitch(t *testing.T) {
	img := model.Checkerboard(40, 8)
	pix := model.GetPixels(img, 256)
	require.Len(t, pix, 256*8)
	// second cell of the first row starts at x=5
	assert.Equal(t, []uint8{0, 0, 0, 0xff}, pix[0:4])
	assert.Equal(t, []uint8{0xff, 0xff, 0xff, 0xff}, pix[5*4:5*4+4])
	// padding stays zero
	assert.Equal(t, uint8(0), pix[40*4])

	tight := model.GetPixels(img, 0)
	assert.Len(t, tight, 40*4*8)
}

func BenchmarkGetPixels(b *testing.B) {
	img := model.Checkerboard(model.TextureWidth, model.TextureHeight)
	for idx := 0; idx < b.N; idx++ {
		model.GetPixels(img, 1024)
	}
}
