package render_graph

import (
	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
)

// PhysicalResource is the device memory behind a resource for one compilation.
type PhysicalResource struct {
	resource Resource
	buffer   device.Buffer
	texture  device.Texture
	// images holds the swap chain images of the back buffer
	images []device.Texture
	size   uint64
}

// Resource returns the resource this memory backs.
func (p *PhysicalResource) Resource() Resource {
	return p.resource
}

// Buffer returns the device buffer, or nil for textures.
func (p *PhysicalResource) Buffer() device.Buffer {
	return p.buffer
}

// Texture returns the device texture for swap chain image i. Graph-owned textures are the same for every image.
func (p *PhysicalResource) Texture(i int) device.Texture {
	if p.images != nil {
		return p.images[i]
	}
	return p.texture
}

// External reports whether the memory belongs to the swap chain rather than the graph.
func (p *PhysicalResource) External() bool {
	return p.images != nil
}

// Size returns the byte size of a buffer's contents.
func (p *PhysicalResource) Size() uint64 {
	return p.size
}

func (p *PhysicalResource) release() {
	if p.buffer != nil {
		p.buffer.Release()
		p.buffer = nil
	}
	if p.texture != nil {
		p.texture.Release()
		p.texture = nil
	}
	p.images = nil
}

// Attachment is one resolved attachment of a stage's render target.
type Attachment struct {
	Texture    *TextureResource
	Descriptor device.AttachmentDescriptor
	Clear      device.ClearValue
}

// PhysicalStage holds the device objects a stage records with for one compilation.
type PhysicalStage struct {
	stage          *GraphicsStage
	group          int
	sampleCount    uint32
	extent         common.Extent2D
	attachments    []Attachment
	clears         []device.ClearValue
	renderTarget   device.RenderTarget
	pipelineLayout device.PipelineLayout
	pipeline       device.Pipeline
	framebuffers   []device.Framebuffer
}

// Stage returns the stage these objects belong to.
func (p *PhysicalStage) Stage() *GraphicsStage {
	return p.stage
}

// Group returns the index of the execution group the stage runs in.
func (p *PhysicalStage) Group() int {
	return p.group
}

// SampleCount returns the stage's multisample count, the largest sample count among its written textures.
func (p *PhysicalStage) SampleCount() uint32 {
	return p.sampleCount
}

// Extent returns the render area.
func (p *PhysicalStage) Extent() common.Extent2D {
	return p.extent
}

// Attachments returns the render target attachments in order.
func (p *PhysicalStage) Attachments() []Attachment {
	return p.attachments
}

// ClearValues returns one clear value per attachment, in attachment order.
func (p *PhysicalStage) ClearValues() []device.ClearValue {
	return p.clears
}

// RenderTarget returns the render target, or nil when the stage writes no texture.
func (p *PhysicalStage) RenderTarget() device.RenderTarget {
	return p.renderTarget
}

// PipelineLayout returns the pipeline layout, or nil when the stage has no pipeline.
func (p *PhysicalStage) PipelineLayout() device.PipelineLayout {
	return p.pipelineLayout
}

// Pipeline returns the device pipeline, or nil when the stage has no pipeline.
func (p *PhysicalStage) Pipeline() device.Pipeline {
	return p.pipeline
}

// Framebuffer returns the framebuffer used when rendering into swap chain image i, or nil.
func (p *PhysicalStage) Framebuffer(i int) device.Framebuffer {
	if i < 0 || i >= len(p.framebuffers) {
		return nil
	}
	return p.framebuffers[i]
}

func (p *PhysicalStage) release() {
	for _, fb := range p.framebuffers {
		fb.Release()
	}
	p.framebuffers = nil
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
		p.pipelineLayout = nil
	}
	if p.renderTarget != nil {
		p.renderTarget.Release()
		p.renderTarget = nil
	}
}
