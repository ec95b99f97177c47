package render_graph

import (
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

func (g *renderGraph) Compile() error {
	start := time.Now()
	plan, err := g.validate()
	if err != nil {
		return err
	}
	groups, err := schedule(g.stages, plan.producers)
	if err != nil {
		return err
	}

	g.compiled = false
	g.releasePhysical()
	g.groups = groups

	if err := g.allocateBuffers(); err != nil {
		return err
	}
	if err := g.allocateTextures(plan.sampled); err != nil {
		return err
	}
	for gi, group := range groups {
		for _, s := range group {
			if err := g.allocateStage(s, plan.stages[s], gi); err != nil {
				return err
			}
		}
	}
	for _, group := range groups {
		for _, s := range group {
			if s.onCompile == nil {
				continue
			}
			if err := s.onCompile(g.physicalStages[s.physical], g); err != nil {
				return fmt.Errorf("render graph: compile callback of stage %q: %w", s.name, err)
			}
		}
	}

	g.compiled = true
	g.logger.Info("render graph compiled",
		"graph", g.name,
		"groups", len(groups),
		"stages", len(g.stages),
		"resources", len(g.resources),
		"extent", g.swapchain.Extent().String(),
		"elapsed", time.Since(start),
	)
	return nil
}

func (g *renderGraph) allocateBuffers() error {
	for _, b := range g.buffers {
		if len(b.data) == 0 {
			b.policy = UploadCreate
			continue
		}
		if err := g.createBuffer(b); err != nil {
			return err
		}
	}
	return nil
}

// createBuffer (re)creates b's physical buffer at the size of its data and fills it.
func (g *renderGraph) createBuffer(b *BufferResource) error {
	if old := g.physicalOf(b); old != nil {
		old.release()
	}
	usage := wgpu.BufferUsageCopyDst | wgpu.BufferUsageVertex
	if b.usage == BufferUsageIndex {
		usage = wgpu.BufferUsageCopyDst | wgpu.BufferUsageIndex
	}
	size := uint64(len(b.data))
	buf, err := g.device.CreateBuffer(device.BufferDescriptor{Label: b.name, Size: size, Usage: usage})
	if err != nil {
		return &AllocationError{Resource: b.name, Op: device.OpCreateBuffer, Err: err}
	}
	g.setPhysical(b, &PhysicalResource{resource: b, buffer: buf, size: size})
	if err := g.device.WriteBuffer(buf, 0, b.data); err != nil {
		return &AllocationError{Resource: b.name, Op: device.OpWriteBuffer, Err: err}
	}
	b.policy = UploadSkip
	g.logger.Debug("buffer created", "graph", g.name, "buffer", b.name, "kind", b.Kind().String(), "size", size)
	return nil
}

func (g *renderGraph) allocateTextures(sampled map[*TextureResource]bool) error {
	extent := g.swapchain.Extent()
	for _, t := range g.textures {
		if t.usage == TextureUsageBackBuffer {
			images := make([]device.Texture, g.swapchain.ImageCount())
			for i := range images {
				images[i] = g.swapchain.Image(i)
			}
			g.setPhysical(t, &PhysicalResource{resource: t, images: images})
			continue
		}
		usage := wgpu.TextureUsageRenderAttachment
		if sampled[t] {
			usage |= wgpu.TextureUsageTextureBinding
		}
		tex, err := g.device.CreateTexture(device.TextureDescriptor{
			Label:       t.name,
			Extent:      extent,
			Format:      t.ResolvedFormat(),
			SampleCount: t.sampleCount,
			Usage:       usage,
		})
		if err != nil {
			return &AllocationError{Resource: t.name, Op: device.OpCreateTexture, Err: err}
		}
		g.setPhysical(t, &PhysicalResource{resource: t, texture: tex})
		g.logger.Debug("texture created", "graph", g.name, "texture", t.name, "usage", t.usage.String(), "samples", t.sampleCount, "extent", extent.String())
	}
	return nil
}

func (g *renderGraph) allocateStage(s *GraphicsStage, sp *stagePlan, group int) error {
	ps := &PhysicalStage{
		stage:       s,
		group:       group,
		sampleCount: sp.sampleCount,
		extent:      g.swapchain.Extent(),
		attachments: sp.attachments,
	}
	s.physical = len(g.physicalStages)
	g.physicalStages = append(g.physicalStages, ps)

	if len(sp.attachments) == 0 {
		if s.pipeline != nil {
			g.logger.Debug("stage writes no texture, no pipeline created", "graph", g.name, "stage", s.name)
		}
		return nil
	}

	descs := make([]device.AttachmentDescriptor, len(sp.attachments))
	ps.clears = make([]device.ClearValue, len(sp.attachments))
	for i, a := range sp.attachments {
		descs[i] = a.Descriptor
		ps.clears[i] = a.Clear
	}
	rt, err := g.device.CreateRenderTarget(device.RenderTargetDescriptor{Label: s.name, Attachments: descs})
	if err != nil {
		return &AllocationError{Stage: s.name, Op: device.OpCreateRenderTarget, Err: err}
	}
	ps.renderTarget = rt

	if s.pipeline != nil {
		layout, err := g.device.CreatePipelineLayout(device.PipelineLayoutDescriptor{
			Label:              common.Coalesce(s.pipeline.PipelineKey(), s.name),
			BindGroupLayouts:   s.pipeline.BindGroupLayouts(),
			PushConstantRanges: s.pipeline.PushConstantRanges(),
		})
		if err != nil {
			return &AllocationError{Stage: s.name, Op: device.OpCreatePipelineLayout, Err: err}
		}
		ps.pipelineLayout = layout

		p, err := g.device.CreatePipeline(pipelineDescriptor(s, ps))
		if err != nil {
			return &AllocationError{Stage: s.name, Op: device.OpCreatePipeline, Err: err}
		}
		ps.pipeline = p
	}

	for i := 0; i < g.swapchain.ImageCount(); i++ {
		textures := make([]device.Texture, len(sp.attachments))
		for j, a := range sp.attachments {
			textures[j] = g.physicalOf(a.Texture).Texture(i)
		}
		fb, err := g.device.CreateFramebuffer(device.FramebufferDescriptor{
			Label:        fmt.Sprintf("%s[%d]", s.name, i),
			RenderTarget: rt,
			Attachments:  textures,
			Extent:       ps.extent,
		})
		if err != nil {
			return &AllocationError{Stage: s.name, Op: device.OpCreateFramebuffer, Err: err}
		}
		ps.framebuffers = append(ps.framebuffers, fb)
	}

	g.logger.Debug("stage allocated",
		"graph", g.name,
		"stage", s.name,
		"group", group,
		"attachments", len(sp.attachments),
		"samples", sp.sampleCount,
		"framebuffers", len(ps.framebuffers),
	)
	return nil
}

// pipelineDescriptor translates a stage's pipeline state into a device pipeline description. Vertex buffer slots
// follow the order the stage reads its vertex buffers in, which is also the order Record binds them in.
func pipelineDescriptor(s *GraphicsStage, ps *PhysicalStage) device.PipelineDescriptor {
	p := s.pipeline
	vs := p.Shader(shader.ShaderTypeVertex)
	desc := device.PipelineDescriptor{
		Label:        common.Coalesce(p.PipelineKey(), s.name),
		Layout:       ps.pipelineLayout,
		RenderTarget: ps.renderTarget,
		Vertex: device.ShaderDescriptor{
			Label:      vs.Key(),
			Source:     vs.Source(),
			EntryPoint: vs.EntryPoint(),
		},
		Topology:            p.Topology(),
		FrontFace:           p.FrontFace(),
		CullMode:            p.CullMode(),
		SampleCount:         ps.sampleCount,
		Blend:               p.BlendState(),
		WriteMask:           p.WriteMask(),
		DepthTest:           p.DepthTestEnabled(),
		DepthWrite:          p.DepthWriteEnabled(),
		DepthCompare:        p.DepthCompare(),
		DepthBias:           p.DepthBias(),
		DepthBiasSlopeScale: p.DepthBiasSlopeScale(),
	}
	if fs := p.Shader(shader.ShaderTypeFragment); fs != nil {
		desc.Fragment = &device.ShaderDescriptor{
			Label:      fs.Key(),
			Source:     fs.Source(),
			EntryPoint: fs.EntryPoint(),
		}
	}
	for _, r := range s.reads {
		if b, ok := r.(*BufferResource); ok && b.usage == BufferUsageVertex {
			desc.VertexBuffers = append(desc.VertexBuffers, device.VertexLayout{Stride: b.stride, Attributes: b.attributes})
		}
	}
	return desc
}
