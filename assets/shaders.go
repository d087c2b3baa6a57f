// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets

//go:generate glslangValidator -V ../shaders/triangle.vert -o ../shaders/triangle.vert.spv
//go:generate glslangValidator -V ../shaders/triangle.frag -o ../shaders/triangle.frag.spv

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNoShaders is returned when a source lacks a compiled shader pair.
var ErrNoShaders = errors.New("assets: no compiled vertex and fragment shader found")

const shaderSuffix = ".spv"

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	UnknownShaderType ShaderType = iota
	VertexShaderType
	FragmentShaderType
)

// Shaders holds the SPIR-V code of the pipeline.
type Shaders struct {
	VertexName   string
	Vertex       []byte
	FragmentName string
	Fragment     []byte
}

// TypeOf tells the shader type from a file name. It is important that
// the file name does not contain more than two dots, the first part is
// always the name of the shader, second is type, and the third one
// ensures that the shader is compiled.
func TypeOf(name string) ShaderType {
	base := path.Base(name)
	if !strings.HasSuffix(base, shaderSuffix) {
		return UnknownShaderType
	}
	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 || nodes[0] == "" {
		return UnknownShaderType
	}
	switch nodes[1] {
	case "vert":
		return VertexShaderType
	case "frag":
		return FragmentShaderType
	}
	return UnknownShaderType
}

// LoadShaders reads the first vertex and the first fragment shader
// of src, in name order.
func LoadShaders(src Source) (Shaders, error) {
	names, err := src.List()
	if err != nil {
		return Shaders{}, err
	}

	var s Shaders
	for _, name := range names {
		switch TypeOf(name) {
		case VertexShaderType:
			if s.VertexName == "" {
				s.VertexName = name
			}
		case FragmentShaderType:
			if s.FragmentName == "" {
				s.FragmentName = name
			}
		}
	}
	if s.VertexName == "" || s.FragmentName == "" {
		return Shaders{}, ErrNoShaders
	}

	if s.Vertex, err = src.ReadFile(s.VertexName); err != nil {
		return Shaders{}, fmt.Errorf("reading %s: %w", s.VertexName, err)
	}
	if s.Fragment, err = src.ReadFile(s.FragmentName); err != nil {
		return Shaders{}, fmt.Errorf("reading %s: %w", s.FragmentName, err)
	}
	return s, nil
}
