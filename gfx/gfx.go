// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device model that rendering backends implement.
// It follows the explicit-API shape: a device creates queues, command
// allocators, command lists, fences and swap chains; command lists are
// recorded on the CPU and executed by a queue; a fence carries a monotonic
// value the queue writes once all previously submitted work has completed.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Device creates every other object of a backend.
type Device interface {
	Releasable

	// Info describes the adapter the device was opened on.
	Info() AdapterInfo

	// CreateCommandQueue creates the direct queue of the device.
	CreateCommandQueue() (CommandQueue, error)

	// CreateSwapChain creates a swap chain presenting through q.
	CreateSwapChain(q CommandQueue, desc SwapChainDesc) (SwapChain, error)

	// CreateCommandAllocator creates memory backing command recording.
	CreateCommandAllocator() (CommandAllocator, error)

	// CreateCommandList creates a command list in the closed state.
	// It has to be Reset before recording.
	CreateCommandList(alloc CommandAllocator) (CommandList, error)

	// CreateFence creates a fence with the given initial value.
	CreateFence(initial uint64) (Fence, error)

	// CreatePipelineState creates the fixed graphics pipeline.
	CreatePipelineState(desc PipelineDesc) (PipelineState, error)

	// CreateBuffer creates a CPU-visible buffer in the upload heap.
	CreateBuffer(size int) (Buffer, error)

	// CreateTexture creates a 2D RGBA8 texture in the CopyDest state.
	CreateTexture(width, height int) (Texture, error)
}

// CommandQueue executes command lists in submission order.
// Queues are owned by the device that created them and have no Release
// of their own; Device.Release stops them, so callers drain through a
// fence before releasing the device.
type CommandQueue interface {

	// ExecuteCommandLists submits closed command lists for execution.
	ExecuteCommandLists(lists ...CommandList) error

	// Signal makes the queue write value into f once all work
	// submitted before this call has completed. value must be
	// strictly greater than any value signalled on f before.
	Signal(f Fence, value uint64) error
}

// CommandAllocator backs the memory of recorded commands.
// Resetting it while lists recorded from it are still executing
// is a resource-reuse hazard and must fail with ErrResourceHazard.
type CommandAllocator interface {
	Releasable

	// Reset reclaims the memory of all lists recorded from the allocator.
	Reset() error
}

// CommandList records commands. Recording methods do not return errors;
// the first recording error is kept and returned by Close.
type CommandList interface {
	Releasable

	// Reset opens the list for recording using alloc. pso may be nil.
	Reset(alloc CommandAllocator, pso PipelineState) error

	// ResourceBarrier records state transitions. Each barrier is validated
	// against the resource's usage and tracked state.
	ResourceBarrier(barriers ...Barrier)

	// SetRenderTarget binds the render target used by Clear and Draw.
	SetRenderTarget(rt Resource)

	// ClearRenderTarget clears the bound render target.
	ClearRenderTarget(color [4]float32)

	// SetViewport sets the viewport rectangle in pixels.
	SetViewport(vp Viewport)

	// SetScissor sets the scissor rectangle in pixels.
	SetScissor(r Rect)

	// SetVertexBuffer binds buf as vertex input with the given stride.
	SetVertexBuffer(buf Buffer, stride int)

	// SetTexture binds the texture sampled by the pipeline.
	SetTexture(tex Texture)

	// Draw draws non-indexed triangles.
	Draw(vertexCount, instanceCount int)

	// CopyBufferToTexture copies tightly packed rows of rowPitch bytes
	// from src into dst. dst must be in the CopyDest state.
	CopyBufferToTexture(dst Texture, src Buffer, rowPitch int)

	// Close ends recording and returns the first recording error.
	Close() error
}

// Fence is a GPU-visible monotonic counter.
type Fence interface {
	Releasable

	// CompletedValue returns the last value the queue wrote.
	CompletedValue() uint64

	// SetEventOnCompletion signals ev once the fence reaches value.
	// If it has already, ev is signalled immediately.
	SetEventOnCompletion(value uint64, ev *Event) error
}

// SwapChain is a ring of presentable buffers.
type SwapChain interface {
	Releasable

	// BufferCount returns the number of buffers in the chain.
	BufferCount() int

	// CurrentBackBufferIndex returns the index of the writable buffer.
	CurrentBackBufferIndex() int

	// Buffer returns the buffer at index i.
	Buffer(i int) (Resource, error)

	// Present queues presentation of the current buffer, which must be
	// in the Present state, and selects the next current buffer.
	Present(syncInterval int) error
}

// Resource is any state-tracked GPU object.
type Resource interface {
	Releasable

	// Name identifies the resource in errors and logs.
	Name() string

	// Usage lists the states the resource can be transitioned to.
	Usage() Usage

	// States returns the tracker of the resource state.
	States() *StateTracker
}

// Buffer is CPU-visible memory in the upload heap.
type Buffer interface {
	Releasable

	// Size returns the size in bytes.
	Size() int

	// Write copies data into the buffer at off.
	Write(off int, data []byte) error
}

// Texture is a sampled 2D RGBA8 image.
type Texture interface {
	Resource

	// Width and Height in texels.
	Width() int
	Height() int
}

// PipelineState is a compiled graphics pipeline.
type PipelineState interface {
	Releasable
}

// PipelineDesc describes the only pipeline shape the sample uses:
// position+uv vertices, optionally sampling one texture.
type PipelineDesc struct {
	VertexShader []byte
	PixelShader  []byte
	Textured     bool
}

// SwapChainDesc describes a swap chain.
type SwapChainDesc struct {
	Width       int
	Height      int
	BufferCount int
}

// Viewport is a viewport rectangle in pixels.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is an integer rectangle in pixels.
type Rect struct {
	Left, Top, Right, Bottom int
}

// Extent3D describes the size of an image.
type Extent3D struct {
	Width, Height, Depth int
}

// TextureDataPitchAlignment is the row pitch alignment of texture uploads.
const TextureDataPitchAlignment = 256

// AlignRowPitch rounds a row size in bytes up to TextureDataPitchAlignment.
func AlignRowPitch(rowBytes int) int {
	return (rowBytes + TextureDataPitchAlignment - 1) &^ (TextureDataPitchAlignment - 1)
}
