package device

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// AttachmentRole says how a render target uses an attachment.
type AttachmentRole int

const (
	// AttachmentRoleColor is a color output of the fragment stage.
	AttachmentRoleColor AttachmentRole = iota
	// AttachmentRoleDepthStencil is the depth/stencil attachment. A render target has at most one.
	AttachmentRoleDepthStencil
	// AttachmentRoleResolve receives the resolved samples of a multisampled color attachment.
	AttachmentRoleResolve
)

func (r AttachmentRole) String() string {
	switch r {
	case AttachmentRoleColor:
		return "color"
	case AttachmentRoleDepthStencil:
		return "depth_stencil"
	case AttachmentRoleResolve:
		return "resolve"
	default:
		return fmt.Sprintf("AttachmentRole(%d)", int(r))
	}
}

// ImageLayout is the state an attachment is expected in before and after a render target.
// Backends that track layouts implicitly may ignore it.
type ImageLayout int

const (
	// ImageLayoutUndefined means the previous contents may be discarded.
	ImageLayoutUndefined ImageLayout = iota
	// ImageLayoutColorAttachment is the layout for color and resolve attachments.
	ImageLayoutColorAttachment
	// ImageLayoutDepthStencilAttachment is the layout for depth attachments.
	ImageLayoutDepthStencilAttachment
	// ImageLayoutShaderReadOnly is the layout for textures sampled by a later stage.
	ImageLayoutShaderReadOnly
	// ImageLayoutPresent is the layout a swap chain image must be in to be presented.
	ImageLayoutPresent
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutColorAttachment:
		return "color_attachment"
	case ImageLayoutDepthStencilAttachment:
		return "depth_stencil_attachment"
	case ImageLayoutShaderReadOnly:
		return "shader_read_only"
	case ImageLayoutPresent:
		return "present"
	default:
		return fmt.Sprintf("ImageLayout(%d)", int(l))
	}
}

// BufferDescriptor describes a buffer allocation.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

// TextureDescriptor describes a 2D texture allocation.
type TextureDescriptor struct {
	Label       string
	Extent      common.Extent2D
	Format      wgpu.TextureFormat
	SampleCount uint32
	Usage       wgpu.TextureUsage
}

// SamplerDescriptor describes a clamp-to-edge sampler. A Compare other than
// CompareFunctionUndefined makes it a comparison sampler.
type SamplerDescriptor struct {
	Label   string
	Filter  wgpu.FilterMode
	Compare wgpu.CompareFunction
}

// AttachmentDescriptor describes one attachment of a render target.
type AttachmentDescriptor struct {
	Format        wgpu.TextureFormat
	SampleCount   uint32
	Role          AttachmentRole
	LoadOp        wgpu.LoadOp
	StoreOp       wgpu.StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
	// ResolveOf is the index of the color attachment this attachment resolves, or -1.
	ResolveOf int
}

// RenderTargetDescriptor describes a render target.
type RenderTargetDescriptor struct {
	Label       string
	Attachments []AttachmentDescriptor
}

// PushConstantRange is a byte range of push constant memory visible to the given shader stages.
type PushConstantRange struct {
	Stages wgpu.ShaderStage
	Start  uint32
	End    uint32
}

// PipelineLayoutDescriptor describes a pipeline layout. Bind group layouts are indexed by group slot.
type PipelineLayoutDescriptor struct {
	Label              string
	BindGroupLayouts   []wgpu.BindGroupLayoutDescriptor
	PushConstantRanges []PushConstantRange
}

// ShaderDescriptor carries WGSL source and the entry point to call.
type ShaderDescriptor struct {
	Label      string
	Source     string
	EntryPoint string
}

// VertexLayout describes one vertex buffer slot.
type VertexLayout struct {
	Stride     uint64
	Attributes []wgpu.VertexAttribute
}

// PipelineDescriptor describes a graphics pipeline.
type PipelineDescriptor struct {
	Label        string
	Layout       PipelineLayout
	RenderTarget RenderTarget
	Vertex       ShaderDescriptor
	// Fragment is nil for depth-only pipelines.
	Fragment      *ShaderDescriptor
	VertexBuffers []VertexLayout
	Topology      wgpu.PrimitiveTopology
	FrontFace     wgpu.FrontFace
	CullMode      wgpu.CullMode
	SampleCount   uint32
	// Blend is nil when blending is disabled.
	Blend               *wgpu.BlendState
	WriteMask           wgpu.ColorWriteMask
	DepthTest           bool
	DepthWrite          bool
	DepthCompare        wgpu.CompareFunction
	DepthBias           int32
	DepthBiasSlopeScale float32
}

// FramebufferDescriptor binds one texture per attachment of RenderTarget, in attachment order.
type FramebufferDescriptor struct {
	Label        string
	RenderTarget RenderTarget
	Attachments  []Texture
	Extent       common.Extent2D
}

// BindGroupEntry binds exactly one of Buffer, Texture or Sampler to a binding slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}

// BindGroupDescriptor describes a bind group for slot Group of Layout.
type BindGroupDescriptor struct {
	Label   string
	Layout  PipelineLayout
	Group   uint32
	Entries []BindGroupEntry
}

// ClearValue is the value an attachment is cleared to. Color applies to color attachments,
// Depth and Stencil to depth attachments.
type ClearValue struct {
	Color   wgpu.Color
	Depth   float32
	Stencil uint32
}
