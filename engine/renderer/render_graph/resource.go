package render_graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// ResourceID is the index of a resource in its graph's resource arena.
type ResourceID int

// ResourceKind is the closed set of resource kinds a graph can hold.
type ResourceKind int

const (
	// KindIndexBuffer is a buffer of vertex indices.
	KindIndexBuffer ResourceKind = iota
	// KindVertexBuffer is a buffer of per-vertex attributes.
	KindVertexBuffer
	// KindTexture is any texture: back buffer, offscreen color or depth-stencil.
	KindTexture
)

// Blocking reports whether a read of this kind must wait for the resource's producer to finish.
// Texture reads block; index and vertex buffer reads do not.
func (k ResourceKind) Blocking() bool {
	switch k {
	case KindTexture:
		return true
	case KindIndexBuffer, KindVertexBuffer:
		return false
	default:
		return true
	}
}

func (k ResourceKind) String() string {
	switch k {
	case KindIndexBuffer:
		return "index_buffer"
	case KindVertexBuffer:
		return "vertex_buffer"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// Resource is a named, graph-owned buffer or texture that stages read and write. It is implemented only by
// *BufferResource and *TextureResource.
type Resource interface {
	// ID returns the index of the resource in its graph.
	//
	// Returns:
	//   - ResourceID: the resource index
	ID() ResourceID

	// Name returns the resource name, used for labels and error messages.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Kind returns the resource kind.
	//
	// Returns:
	//   - ResourceKind: the kind
	Kind() ResourceKind

	base() *resourceBase
}

var (
	_ Resource = &BufferResource{}
	_ Resource = &TextureResource{}
)

// resourceBase holds the identity shared by every resource.
type resourceBase struct {
	id    ResourceID
	name  string
	owner *renderGraph
	// physical indexes owner.physicalResources, -1 when unallocated
	physical int
}

func (r *resourceBase) ID() ResourceID {
	return r.id
}

func (r *resourceBase) Name() string {
	return r.name
}

func (r *resourceBase) base() *resourceBase {
	return r
}

// BufferUsage says whether a buffer holds indices or vertices.
type BufferUsage int

const (
	BufferUsageIndex BufferUsage = iota
	BufferUsageVertex
)

// UploadPolicy is what the next upload must do with a buffer's staged data.
type UploadPolicy int

const (
	// UploadSkip means the physical buffer is current.
	UploadSkip UploadPolicy = iota
	// UploadCreate means the physical buffer must be (re)created before the data is written.
	UploadCreate
	// UploadOnly means the data fits the existing physical buffer and is written in place.
	UploadOnly
)

func (p UploadPolicy) String() string {
	switch p {
	case UploadSkip:
		return "skip"
	case UploadCreate:
		return "create"
	case UploadOnly:
		return "upload"
	default:
		return fmt.Sprintf("UploadPolicy(%d)", int(p))
	}
}

// BufferResource is an index or vertex buffer whose contents are staged on the CPU and uploaded once per frame
// when they change.
type BufferResource struct {
	resourceBase
	usage       BufferUsage
	indexFormat wgpu.IndexFormat
	stride      uint64
	attributes  []wgpu.VertexAttribute
	// data is the last bound contents, kept so a recompile can refill a recreated buffer
	data   []byte
	policy UploadPolicy
}

func (b *BufferResource) Kind() ResourceKind {
	if b.usage == BufferUsageIndex {
		return KindIndexBuffer
	}
	return KindVertexBuffer
}

// Usage returns whether the buffer holds indices or vertices.
func (b *BufferResource) Usage() BufferUsage {
	return b.usage
}

// IndexFormat returns the index width of an index buffer.
func (b *BufferResource) IndexFormat() wgpu.IndexFormat {
	return b.indexFormat
}

// Stride returns the byte distance between consecutive vertices of a vertex buffer.
func (b *BufferResource) Stride() uint64 {
	return b.stride
}

// Attributes returns the vertex attributes read from the buffer. All share the buffer's binding slot and stride.
func (b *BufferResource) Attributes() []wgpu.VertexAttribute {
	return b.attributes
}

// Data returns the last bound contents.
func (b *BufferResource) Data() []byte {
	return b.data
}

// UploadPolicy returns what the next upload will do with the buffer.
func (b *BufferResource) UploadPolicy() UploadPolicy {
	return b.policy
}

// BindData stages new contents for the buffer. The bytes are copied. The next Render (or Upload) recreates the
// physical buffer when none exists or its size differs, and otherwise writes the data in place. Empty data
// releases the physical buffer, and stages reading it are skipped until new data is bound.
//
// Parameters:
//   - data: the new buffer contents
func (b *BufferResource) BindData(data []byte) {
	b.data = append(b.data[:0:0], data...)
	if pr := b.owner.physicalOf(b); pr == nil || pr.buffer == nil || pr.size != uint64(len(data)) {
		b.policy = UploadCreate
		return
	}
	b.policy = UploadOnly
}

// BindSlice stages the raw bytes of a typed slice, e.g. a []Vertex or []uint32, as the buffer's contents.
//
// Parameters:
//   - b: the buffer to stage data for
//   - data: the elements to upload
func BindSlice[T any](b *BufferResource, data []T) {
	b.BindData(common.SliceToBytes(data))
}

// TextureUsage says what role a texture plays.
type TextureUsage int

const (
	// TextureUsageBackBuffer is the swap chain image. It is never allocated by the graph.
	TextureUsageBackBuffer TextureUsage = iota
	// TextureUsageColor is an offscreen color target.
	TextureUsageColor
	// TextureUsageDepthStencil is a depth (and stencil) target.
	TextureUsageDepthStencil
)

func (u TextureUsage) String() string {
	switch u {
	case TextureUsageBackBuffer:
		return "back_buffer"
	case TextureUsageColor:
		return "color"
	case TextureUsageDepthStencil:
		return "depth_stencil"
	default:
		return fmt.Sprintf("TextureUsage(%d)", int(u))
	}
}

// TextureResource is a render target texture sized to the swap chain.
type TextureResource struct {
	resourceBase
	usage         TextureUsage
	format        wgpu.TextureFormat
	sampleCount   uint32
	resolveTarget *TextureResource
	clear         device.ClearValue
}

func (t *TextureResource) Kind() ResourceKind {
	return KindTexture
}

// Usage returns the texture's role.
func (t *TextureResource) Usage() TextureUsage {
	return t.usage
}

// Format returns the declared format. wgpu.TextureFormatUndefined on a color or back-buffer texture stands for the
// swap chain format; use ResolvedFormat for the effective one.
func (t *TextureResource) Format() wgpu.TextureFormat {
	return t.format
}

// ResolvedFormat returns the format the texture is allocated with.
func (t *TextureResource) ResolvedFormat() wgpu.TextureFormat {
	if t.format == wgpu.TextureFormatUndefined && t.usage != TextureUsageDepthStencil {
		return t.owner.swapchain.Format()
	}
	return t.format
}

// SampleCount returns the number of samples per texel.
func (t *TextureResource) SampleCount() uint32 {
	return t.sampleCount
}

// ResolveTarget returns the texture this multisampled texture resolves into, or nil.
func (t *TextureResource) ResolveTarget() *TextureResource {
	return t.resolveTarget
}

// ClearValue returns the value the texture is cleared to when written with wgpu.LoadOpClear.
func (t *TextureResource) ClearValue() device.ClearValue {
	return t.clear
}

func (t *TextureResource) isDepth() bool {
	return t.usage == TextureUsageDepthStencil
}

// vertexFormatSize returns the byte size of a vertex attribute format, 0 when unknown.
func vertexFormatSize(f wgpu.VertexFormat) uint64 {
	switch f {
	case wgpu.VertexFormatFloat16x2, wgpu.VertexFormatFloat32, wgpu.VertexFormatUint32, wgpu.VertexFormatSint32, wgpu.VertexFormatUnorm8x4:
		return 4
	case wgpu.VertexFormatFloat16x4, wgpu.VertexFormatFloat32x2, wgpu.VertexFormatUint32x2, wgpu.VertexFormatSint32x2:
		return 8
	case wgpu.VertexFormatFloat32x3, wgpu.VertexFormatUint32x3, wgpu.VertexFormatSint32x3:
		return 12
	case wgpu.VertexFormatFloat32x4, wgpu.VertexFormatUint32x4, wgpu.VertexFormatSint32x4:
		return 16
	default:
		return 0
	}
}
