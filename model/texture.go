// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"image"
	"image/color"
	"image/draw"
)

// Size of the generated texture
const (
	TextureWidth     = 256
	TextureHeight    = 256
	TexturePixelSize = 4
)

// Checkerboard generates a black and white checkerboard with 8x8 cells.
// The top-left cell is black.
func Checkerboard(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	cellWidth := width >> 3
	cellHeight := height >> 3
	if cellWidth == 0 {
		cellWidth = 1
	}
	if cellHeight == 0 {
		cellHeight = 1
	}

	black := color.RGBA{0x00, 0x00, 0x00, 0xff}
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := x / cellWidth
			j := y / cellHeight
			if i%2 == j%2 {
				img.SetRGBA(x, y, black)
			} else {
				img.SetRGBA(x, y, white)
			}
		}
	}
	return img
}

// GetPixels transforms a given image into rows of RGBA pixels
// rowPitch bytes apart, by drawing the decoded image onto a controlled
// RGBA canvas. A rowPitch smaller than a tight row is ignored.
func GetPixels(img image.Image, rowPitch int) []uint8 {
	bounds := img.Bounds()
	tight := TexturePixelSize * bounds.Dx()
	if rowPitch < tight {
		rowPitch = tight
	}

	canvas := &image.RGBA{
		Pix:    make([]uint8, rowPitch*bounds.Dy()),
		Stride: rowPitch,
		Rect:   image.Rect(0, 0, bounds.Dx(), bounds.Dy()),
	}
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)
	return canvas.Pix
}
