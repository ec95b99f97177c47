// Package device defines the narrow contracts the render graph needs from a GPU: a Device that
// allocates memory and pipeline objects, a CommandContext that records one frame of work, and a
// Swapchain that hands out presentable images. The WebGPU backend in package renderer implements
// them for real hardware; devicetest implements them in memory.
package device

import (
	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Handle is the common surface of every object a Device hands out.
type Handle interface {
	// Label returns the debug label the object was created with.
	//
	// Returns:
	//   - string: the label
	Label() string

	// Release frees the underlying GPU object. Releasing twice is a no-op.
	Release()
}

// Buffer is a linear block of GPU memory.
type Buffer interface {
	Handle

	// Size returns the allocation size in bytes.
	//
	// Returns:
	//   - uint64: the size in bytes
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	//
	// Returns:
	//   - wgpu.BufferUsage: the usage flags
	Usage() wgpu.BufferUsage
}

// Texture is a 2D image, either device-owned or one of the swap chain's images.
type Texture interface {
	Handle

	// Format returns the texel format.
	//
	// Returns:
	//   - wgpu.TextureFormat: the format
	Format() wgpu.TextureFormat

	// SampleCount returns the number of samples per texel, 1 for single-sampled textures.
	//
	// Returns:
	//   - uint32: the sample count
	SampleCount() uint32

	// Extent returns the texture size in pixels.
	//
	// Returns:
	//   - common.Extent2D: the size
	Extent() common.Extent2D
}

// RenderTarget is the attachment description a pipeline and its framebuffers are built against.
type RenderTarget interface {
	Handle

	// Attachments returns the attachment list in binding order.
	//
	// Returns:
	//   - []AttachmentDescriptor: the attachments
	Attachments() []AttachmentDescriptor
}

// Framebuffer binds concrete textures to the attachments of a RenderTarget.
type Framebuffer interface {
	Handle

	// Extent returns the render area covered by the framebuffer.
	//
	// Returns:
	//   - common.Extent2D: the size
	Extent() common.Extent2D
}

// PipelineLayout describes the bind group layouts and push constant ranges a pipeline consumes.
type PipelineLayout interface {
	Handle
}

// Pipeline is a compiled graphics pipeline.
type Pipeline interface {
	Handle

	// Layout returns the layout the pipeline was created with.
	//
	// Returns:
	//   - PipelineLayout: the layout
	Layout() PipelineLayout
}

// Sampler is a texture sampling state object.
type Sampler interface {
	Handle
}

// BindGroup is a set of resources bound to one group slot of a pipeline layout.
type BindGroup interface {
	Handle
}

// Device allocates GPU memory and pipeline objects and opens command recording.
// A failing call returns a *Error.
type Device interface {
	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer description
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: a *Error if allocation failed
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// WriteBuffer copies data into buf starting at offset. The copy is visible to work submitted afterwards.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset into buf
	//   - data: the bytes to copy
	//
	// Returns:
	//   - error: a *Error if the write failed
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CreateTexture allocates a texture.
	//
	// Parameters:
	//   - desc: the texture description
	//
	// Returns:
	//   - Texture: the new texture
	//   - error: a *Error if allocation failed
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - desc: the sampler description
	//
	// Returns:
	//   - Sampler: the new sampler
	//   - error: a *Error if creation failed
	CreateSampler(desc SamplerDescriptor) (Sampler, error)

	// CreateRenderTarget creates a render target from an ordered attachment list.
	//
	// Parameters:
	//   - desc: the render target description
	//
	// Returns:
	//   - RenderTarget: the new render target
	//   - error: a *Error if creation failed
	CreateRenderTarget(desc RenderTargetDescriptor) (RenderTarget, error)

	// CreatePipelineLayout creates a pipeline layout.
	//
	// Parameters:
	//   - desc: the layout description
	//
	// Returns:
	//   - PipelineLayout: the new layout
	//   - error: a *Error if creation failed
	CreatePipelineLayout(desc PipelineLayoutDescriptor) (PipelineLayout, error)

	// CreatePipeline compiles the shaders and fixed-function state into a graphics pipeline.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - Pipeline: the new pipeline
	//   - error: a *Error if compilation failed
	CreatePipeline(desc PipelineDescriptor) (Pipeline, error)

	// CreateFramebuffer binds textures to the attachments of a render target.
	//
	// Parameters:
	//   - desc: the framebuffer description
	//
	// Returns:
	//   - Framebuffer: the new framebuffer
	//   - error: a *Error if creation failed
	CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error)

	// CreateBindGroup creates a bind group for one group slot of a pipeline layout.
	//
	// Parameters:
	//   - desc: the bind group description
	//
	// Returns:
	//   - BindGroup: the new bind group
	//   - error: a *Error if creation failed
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)

	// BeginCommands opens a command context for one frame of recording.
	//
	// Parameters:
	//   - label: the debug label for the recorded work
	//
	// Returns:
	//   - CommandContext: the open context
	//   - error: a *Error if the context could not be opened
	BeginCommands(label string) (CommandContext, error)
}

// CommandContext records GPU work for one frame. Bind and draw calls are only valid between
// BeginRenderTarget and EndRenderTarget.
type CommandContext interface {
	// BeginRenderTarget starts rendering into fb, clearing attachments whose load op is clear.
	//
	// Parameters:
	//   - fb: the framebuffer to render into
	//   - clears: one clear value per attachment, in attachment order
	BeginRenderTarget(fb Framebuffer, clears []ClearValue)

	// EndRenderTarget finishes the current render target.
	EndRenderTarget()

	// BindPipeline makes p the pipeline for subsequent draws.
	BindPipeline(p Pipeline)

	// BindVertexBuffers binds bufs to consecutive vertex slots starting at first.
	BindVertexBuffers(first uint32, bufs []Buffer)

	// BindIndexBuffer binds buf as the index buffer.
	BindIndexBuffer(buf Buffer, format wgpu.IndexFormat)

	// BindGroup binds g to group slot index of the current pipeline.
	BindGroup(index uint32, g BindGroup)

	// PushConstants writes data into the push constant range at offset for the given stages.
	PushConstants(stages wgpu.ShaderStage, offset uint32, data []byte)

	// Draw issues a non-indexed draw.
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// DrawIndexed issues an indexed draw.
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)

	// Barrier makes every write recorded so far visible to everything recorded after it.
	Barrier()

	// Submit finishes recording and queues the work. The context is unusable afterwards.
	//
	// Returns:
	//   - error: a *Error if submission failed
	Submit() error
}

// Swapchain provides the presentable images of a window surface.
type Swapchain interface {
	// Extent returns the current image size.
	//
	// Returns:
	//   - common.Extent2D: the size
	Extent() common.Extent2D

	// Format returns the image format.
	//
	// Returns:
	//   - wgpu.TextureFormat: the format
	Format() wgpu.TextureFormat

	// ImageCount returns the number of images in the chain.
	//
	// Returns:
	//   - int: the image count
	ImageCount() int

	// Image returns the texture standing for image i. The handle stays valid until the next Configure.
	//
	// Parameters:
	//   - i: the image index, in [0, ImageCount())
	//
	// Returns:
	//   - Texture: the image texture
	Image(i int) Texture

	// AcquireNextImage waits for the next image to render into.
	//
	// Returns:
	//   - int: the acquired image index
	//   - bool: true if the chain is out of date and must be reconfigured before use
	//   - error: a *Error on a non-recoverable failure
	AcquireNextImage() (int, bool, error)

	// Present queues image i for display.
	//
	// Parameters:
	//   - i: the image index returned by AcquireNextImage
	//
	// Returns:
	//   - bool: true if the chain is out of date and must be reconfigured
	//   - error: a *Error on a non-recoverable failure
	Present(i int) (bool, error)

	// Configure recreates the images at the given size.
	//
	// Parameters:
	//   - extent: the new size
	//
	// Returns:
	//   - error: a *Error if the surface could not be configured
	Configure(extent common.Extent2D) error
}
