package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

var errForeignHandle = errors.New("invalid handle: not created by this device")

// native asserts that a device handle is one of this backend's own types.
func native[T any](op string, h device.Handle) (T, error) {
	n, ok := h.(T)
	if !ok {
		var zero T
		return zero, device.NewError(op, fmt.Errorf("%w (%T)", errForeignHandle, h))
	}
	return n, nil
}

type wgpuHandle struct {
	label string
}

func (h *wgpuHandle) Label() string {
	return h.label
}

type wgpuBuffer struct {
	wgpuHandle
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

var _ device.Buffer = &wgpuBuffer{}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) Usage() wgpu.BufferUsage {
	return b.usage
}

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

// wgpuTexture is a texture plus its default view. Surface textures are owned by the surface:
// their view is swapped on every acquire and Release only drops the current view.
type wgpuTexture struct {
	wgpuHandle
	texture     *wgpu.Texture
	view        *wgpu.TextureView
	format      wgpu.TextureFormat
	sampleCount uint32
	extent      common.Extent2D
	surface     bool
}

var _ device.Texture = &wgpuTexture{}

func (t *wgpuTexture) Format() wgpu.TextureFormat {
	return t.format
}

func (t *wgpuTexture) SampleCount() uint32 {
	return t.sampleCount
}

func (t *wgpuTexture) Extent() common.Extent2D {
	return t.extent
}

func (t *wgpuTexture) Release() {
	if t.surface {
		return
	}
	t.releaseView()
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

func (t *wgpuTexture) releaseView() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
}

type wgpuSampler struct {
	wgpuHandle
	sampler *wgpu.Sampler
}

var _ device.Sampler = &wgpuSampler{}

func (s *wgpuSampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

// wgpuRenderTarget has no GPU object behind it: WebGPU describes passes per encoder call, so the
// attachment list and its pass layout are kept for BeginRenderTarget and pipeline creation.
type wgpuRenderTarget struct {
	wgpuHandle
	attachments []device.AttachmentDescriptor
	layout      renderPassLayout
}

var _ device.RenderTarget = &wgpuRenderTarget{}

func (r *wgpuRenderTarget) Attachments() []device.AttachmentDescriptor {
	return r.attachments
}

func (r *wgpuRenderTarget) Release() {}

type wgpuFramebuffer struct {
	wgpuHandle
	target      *wgpuRenderTarget
	attachments []*wgpuTexture
	extent      common.Extent2D
}

var _ device.Framebuffer = &wgpuFramebuffer{}

func (f *wgpuFramebuffer) Extent() common.Extent2D {
	return f.extent
}

func (f *wgpuFramebuffer) Release() {}

type wgpuPipelineLayout struct {
	wgpuHandle
	layout       *wgpu.PipelineLayout
	groups       []*wgpu.BindGroupLayout
	groupEntries [][]wgpu.BindGroupLayoutEntry
}

var _ device.PipelineLayout = &wgpuPipelineLayout{}

func (l *wgpuPipelineLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
	for _, g := range l.groups {
		g.Release()
	}
	l.groups = nil
}

type wgpuPipeline struct {
	wgpuHandle
	pipeline *wgpu.RenderPipeline
	layout   *wgpuPipelineLayout
}

var _ device.Pipeline = &wgpuPipeline{}

func (p *wgpuPipeline) Layout() device.PipelineLayout {
	return p.layout
}

func (p *wgpuPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

type wgpuBindGroup struct {
	wgpuHandle
	group *wgpu.BindGroup
}

var _ device.BindGroup = &wgpuBindGroup{}

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}
