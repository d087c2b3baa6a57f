// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the static geometry and texture of the sample.
package model

import (
	"bytes"
	"encoding/binary"
	"fmt"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a textured vertex
type Vertex struct {
	Pos glm.Vec3
	UV  glm.Vec2
}

// VertexStride is the size of an encoded Vertex in bytes.
const VertexStride = 5 * 4

// Triangle returns the sample triangle, scaled so it keeps its
// proportions on a viewport with the given aspect ratio (width/height).
func Triangle(aspect float32) []Vertex {
	return []Vertex{
		{Pos: glm.Vec3{0, 0.25 * aspect, 0}, UV: glm.Vec2{0.5, 0}},
		{Pos: glm.Vec3{0.25, -0.25 * aspect, 0}, UV: glm.Vec2{1, 1}},
		{Pos: glm.Vec3{-0.25, -0.25 * aspect, 0}, UV: glm.Vec2{0, 1}},
	}
}

// EncodeVertices packs vertices as little-endian float32s,
// VertexStride bytes each.
func EncodeVertices(vertices []Vertex) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(vertices)*VertexStride))
	for i := range vertices {
		if err := binary.Write(buf, binary.LittleEndian, &vertices[i]); err != nil {
			panic(err) // fixed-size struct, cannot fail
		}
	}
	return buf.Bytes()
}

// DecodeVertices unpacks count vertices laid out stride bytes apart.
func DecodeVertices(data []byte, stride, count int) ([]Vertex, error) {
	if stride < VertexStride {
		return nil, fmt.Errorf("vertex stride %d smaller than %d", stride, VertexStride)
	}
	if need := (count-1)*stride + VertexStride; count > 0 && len(data) < need {
		return nil, fmt.Errorf("vertex data too short: have %d bytes, need %d", len(data), need)
	}
	vertices := make([]Vertex, count)
	for i := range vertices {
		r := bytes.NewReader(data[i*stride : i*stride+VertexStride])
		if err := binary.Read(r, binary.LittleEndian, &vertices[i]); err != nil {
			return nil, err
		}
	}
	return vertices, nil
}
