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

// ErrNoShaders is returned when a pipeline is created without SPIR-V.
var ErrNoShaders = errors.New("vulkan pipeline needs SPIR-V vertex and fragment shaders")

// pipeline draws model.Vertex triangle lists into the device render pass.
// Viewport and scissor are dynamic.
type pipeline struct {
	dev      *Device
	handle   vk.Pipeline
	layout   vk.PipelineLayout
	textured bool
}

func newShaderModule(device vk.Device, code []byte) (vk.ShaderModule, error) {
	shaderModuleCreateInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    SliceUint32(code),
	}
	var module vk.ShaderModule
	if err := NewError(vk.CreateShaderModule(device, &shaderModuleCreateInfo, nil, &module)); err != nil {
		return nil, fmt.Errorf("vk.CreateShaderModule(): %w", err)
	}
	return module, nil
}

func newPipeline(d *Device, desc gfx.PipelineDesc) (_ *pipeline, err error) {
	if len(desc.VertexShader) == 0 || len(desc.PixelShader) == 0 {
		return nil, ErrNoShaders
	}
	if len(desc.VertexShader)%4 != 0 || len(desc.PixelShader)%4 != 0 {
		return nil, fmt.Errorf("%w: code size is not a multiple of 4", ErrNoShaders)
	}

	p := &pipeline{dev: d, textured: desc.Textured}
	defer func() {
		if err != nil {
			p.Release()
		}
	}()

	vertex, err := newShaderModule(d.device, desc.VertexShader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.device, vertex, nil)
	fragment, err := newShaderModule(d.device, desc.PixelShader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.device, fragment, nil)

	var setLayouts []vk.DescriptorSetLayout
	if desc.Textured {
		setLayouts = append(setLayouts, d.setLayout)
	}
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var layout vk.PipelineLayout
	if err := NewError(vk.CreatePipelineLayout(d.device, &pipelineLayoutCreateInfo, nil, &layout)); err != nil {
		return nil, fmt.Errorf("vk.CreatePipelineLayout(): %w", err)
	}
	p.layout = layout

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vertex,
		PName:  "main\x00",
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: fragment,
		PName:  "main\x00",
	}}

	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    model.VertexStride,
		InputRate: vk.VertexInputRateVertex,
	}}
	attributes := []vk.VertexInputAttributeDescription{{
		Location: 0,
		Binding:  0,
		Format:   vk.FormatR32g32b32Sfloat,
		Offset:   0,
	}, {
		Location: 1,
		Binding:  0,
		Format:   vk.FormatR32g32Sfloat,
		Offset:   3 * 4,
	}}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     layout,
		RenderPass: d.renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := NewError(vk.CreateGraphicsPipelines(d.device, nil, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return nil, fmt.Errorf("vk.CreateGraphicsPipelines(): %w", err)
	}
	p.handle = pipelines[0]
	return p, nil
}

func (p *pipeline) Release() {
	if p.handle != nil {
		vk.DestroyPipeline(p.dev.device, p.handle, nil)
		p.handle = nil
	}
	if p.layout != nil {
		vk.DestroyPipelineLayout(p.dev.device, p.layout, nil)
		p.layout = nil
	}
}
