// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/hellotri/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// layoutFor maps a resource state onto the image layout it lives in.
func layoutFor(s gfx.ResourceState) vk.ImageLayout {
	switch s {
	case gfx.StatePresent:
		return vk.ImageLayoutPresentSrc
	case gfx.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case gfx.StateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	case gfx.StateShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal
	}
	return vk.ImageLayoutGeneral
}

// accessFor returns the accesses made to a resource in state s.
func accessFor(s gfx.ResourceState) vk.AccessFlags {
	switch s {
	case gfx.StatePresent:
		return vk.AccessFlags(vk.AccessMemoryReadBit)
	case gfx.StateRenderTarget:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	case gfx.StateCopyDest:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	case gfx.StateShaderResource:
		return vk.AccessFlags(vk.AccessShaderReadBit)
	}
	return vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
}

// stageFor returns the pipeline stage using a resource in state s.
// Present has no stage of its own, so it is the top of the pipe when
// leaving it and the bottom when entering it.
func stageFor(s gfx.ResourceState, entering bool) vk.PipelineStageFlags {
	switch s {
	case gfx.StatePresent:
		if entering {
			return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
		}
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	case gfx.StateRenderTarget:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gfx.StateCopyDest:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gfx.StateShaderResource:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}
	return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
}

var colorRange = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

// imageBarrier builds the layout transition for b. An image that has
// never been used is transitioned from the undefined layout.
func imageBarrier(image vk.Image, b gfx.Barrier, initialized bool) (vk.ImageMemoryBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	oldLayout := layoutFor(b.Before)
	srcAccess := accessFor(b.Before)
	srcStage := stageFor(b.Before, false)
	if !initialized {
		oldLayout = vk.ImageLayoutUndefined
		srcAccess = 0
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if b.Before == gfx.StatePresent {
		srcAccess = 0
	}
	dstAccess := accessFor(b.After)
	if b.After == gfx.StatePresent {
		dstAccess = 0
	}

	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           layoutFor(b.After),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange:    colorRange,
	}, srcStage, stageFor(b.After, true)
}
