package render_graph

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferResourceOption is a functional option used to configure a BufferResource during AddBuffer.
type BufferResourceOption func(*BufferResource)

// WithVertexAttributes sets the vertex layout of a vertex buffer. Every attribute is read from the same binding slot
// and must fit inside stride.
//
// Parameters:
//   - stride: the byte distance between consecutive vertices
//   - attrs: the attributes, each with a format, byte offset and shader location
//
// Returns:
//   - BufferResourceOption: a function that sets the vertex layout
func WithVertexAttributes(stride uint64, attrs ...wgpu.VertexAttribute) BufferResourceOption {
	return func(b *BufferResource) {
		b.stride = stride
		b.attributes = attrs
	}
}

// WithIndexFormat sets the index width of an index buffer. Defaults to wgpu.IndexFormatUint32.
//
// Parameters:
//   - format: the index format
//
// Returns:
//   - BufferResourceOption: a function that sets the index format
func WithIndexFormat(format wgpu.IndexFormat) BufferResourceOption {
	return func(b *BufferResource) {
		b.indexFormat = format
	}
}

// WithInitialData stages contents for the buffer, as BindData does.
//
// Parameters:
//   - data: the initial contents, copied
//
// Returns:
//   - BufferResourceOption: a function that stages the data
func WithInitialData(data []byte) BufferResourceOption {
	return func(b *BufferResource) {
		b.data = append([]byte(nil), data...)
		b.policy = UploadCreate
	}
}

// TextureResourceOption is a functional option used to configure a TextureResource during AddTexture.
type TextureResourceOption func(*TextureResource)

// WithFormat sets the texel format. Color and back-buffer textures default to the swap chain format, depth textures
// to wgpu.TextureFormatDepth32Float.
//
// Parameters:
//   - format: the texel format
//
// Returns:
//   - TextureResourceOption: a function that sets the format
func WithFormat(format wgpu.TextureFormat) TextureResourceOption {
	return func(t *TextureResource) {
		t.format = format
	}
}

// WithSampleCount sets the number of samples per texel. 0 is treated as 1.
//
// Parameters:
//   - count: the sample count (1, 4, 8 or 16 depending on the device)
//
// Returns:
//   - TextureResourceOption: a function that sets the sample count
func WithSampleCount(count uint32) TextureResourceOption {
	return func(t *TextureResource) {
		t.sampleCount = max(count, 1)
	}
}

// WithResolveTarget makes a multisampled texture resolve into target at the end of every stage writing it.
// The stage implicitly writes target as well.
//
// Parameters:
//   - target: a single-sampled texture of the same format
//
// Returns:
//   - TextureResourceOption: a function that sets the resolve target
func WithResolveTarget(target *TextureResource) TextureResourceOption {
	return func(t *TextureResource) {
		t.resolveTarget = target
	}
}

// WithClearColor sets the color a color or back-buffer texture is cleared to.
//
// Parameters:
//   - c: the clear color
//
// Returns:
//   - TextureResourceOption: a function that sets the clear color
func WithClearColor(c wgpu.Color) TextureResourceOption {
	return func(t *TextureResource) {
		t.clear.Color = c
	}
}

// WithClearDepthStencil sets the values a depth texture is cleared to.
//
// Parameters:
//   - depth: the depth clear value, usually 1
//   - stencil: the stencil clear value
//
// Returns:
//   - TextureResourceOption: a function that sets the depth and stencil clear values
func WithClearDepthStencil(depth float32, stencil uint32) TextureResourceOption {
	return func(t *TextureResource) {
		t.clear.Depth = depth
		t.clear.Stencil = stencil
	}
}
