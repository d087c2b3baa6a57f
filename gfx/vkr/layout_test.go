package vkr

import (
	"testing"

	"github.com/devblok/hellotri/gfx"
	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestLayoutFor(t *testing.T) {
	cases := map[gfx.ResourceState]vk.ImageLayout{
		gfx.StateCommon:         vk.ImageLayoutGeneral,
		gfx.StatePresent:        vk.ImageLayoutPresentSrc,
		gfx.StateRenderTarget:   vk.ImageLayoutColorAttachmentOptimal,
		gfx.StateCopyDest:       vk.ImageLayoutTransferDstOptimal,
		gfx.StateShaderResource: vk.ImageLayoutShaderReadOnlyOptimal,
	}
	for state, layout := range cases {
		assert.Equal(t, layout, layoutFor(state), state.String())
	}
}

func TestBackBufferBarrier(t *testing.T) {
	b := gfx.Barrier{Before: gfx.StatePresent, After: gfx.StateRenderTarget}

	ib, src, dst := imageBarrier(nil, b, true)
	assert.Equal(t, vk.ImageLayoutPresentSrc, ib.OldLayout)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, ib.NewLayout)
	assert.Zero(t, ib.SrcAccessMask)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), dst)

	ib, src, dst = imageBarrier(nil, b.Reverse(), true)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, ib.OldLayout)
	assert.Equal(t, vk.ImageLayoutPresentSrc, ib.NewLayout)
	assert.Zero(t, ib.DstAccessMask)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), dst)
}

func TestFirstBarrierDiscards(t *testing.T) {
	b := gfx.Barrier{Before: gfx.StatePresent, After: gfx.StateRenderTarget}
	ib, src, _ := imageBarrier(nil, b, false)
	assert.Equal(t, vk.ImageLayoutUndefined, ib.OldLayout)
	assert.Zero(t, ib.SrcAccessMask)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), src)
}

func TestTextureUploadBarrier(t *testing.T) {
	b := gfx.Barrier{Before: gfx.StateCopyDest, After: gfx.StateShaderResource}
	ib, src, dst := imageBarrier(nil, b, true)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, ib.OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, ib.NewLayout)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), ib.SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), ib.DstAccessMask)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), dst)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), ib.SrcQueueFamilyIndex)
}

func TestNewError(t *testing.T) {
	assert.NoError(t, NewError(vk.Success))

	err := NewError(vk.ErrorOutOfHostMemory)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TestNewError")
	assert.NotErrorIs(t, err, gfx.ErrDeviceRemoved)

	assert.ErrorIs(t, NewError(vk.ErrorDeviceLost), gfx.ErrDeviceRemoved)
}

func TestSliceUint32(t *testing.T) {
	assert.Nil(t, SliceUint32([]byte{1, 2, 3}))
	assert.Len(t, SliceUint32(make([]byte, 10)), 2)
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		SliceUint32(data)
	}
}
