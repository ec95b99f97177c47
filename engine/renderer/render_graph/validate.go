package render_graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// compilePlan is everything Compile derives from the declared graph before touching the device.
type compilePlan struct {
	// producers maps every written resource, implicit resolve targets included, to its only writer
	producers map[Resource]*GraphicsStage
	// sampled holds the textures some stage reads
	sampled map[*TextureResource]bool
	stages  map[*GraphicsStage]*stagePlan
}

// stagePlan is the validated render target layout of one stage.
type stagePlan struct {
	sampleCount uint32
	attachments []Attachment
}

// validate checks every structural rule of the graph and builds the per-stage attachment plans.
func (g *renderGraph) validate() (*compilePlan, error) {
	for _, s := range g.stages {
		if s.name == "" {
			return nil, &ConfigError{Kind: KindEmptyStageName, Msg: fmt.Sprintf("stage #%d has no name", s.order)}
		}
		if len(s.errs) > 0 {
			return nil, s.errs[0]
		}
		if s.pipeline != nil && s.pipeline.Shader(shader.ShaderTypeVertex) == nil {
			return nil, &ConfigError{Kind: KindMissingShader, Stage: s.name, Msg: "pipeline has no vertex shader"}
		}
	}
	if err := g.validateTextures(); err != nil {
		return nil, err
	}
	if err := g.validateBuffers(); err != nil {
		return nil, err
	}

	plan := &compilePlan{
		producers: make(map[Resource]*GraphicsStage),
		sampled:   make(map[*TextureResource]bool),
		stages:    make(map[*GraphicsStage]*stagePlan, len(g.stages)),
	}
	for _, s := range g.stages {
		for _, w := range s.effectiveWrites() {
			if p, ok := plan.producers[w.Resource]; ok && p != s {
				return nil, &ConfigError{
					Kind:     KindMultipleWriters,
					Resource: w.Resource.Name(),
					Stages:   []string{p.name, s.name},
					Msg:      "a resource may only be written by one stage",
				}
			}
			plan.producers[w.Resource] = s
		}
		for _, r := range s.reads {
			if t, ok := r.(*TextureResource); ok {
				plan.sampled[t] = true
			}
		}
	}
	for _, s := range g.stages {
		sp, err := planStage(s, plan.sampled)
		if err != nil {
			return nil, err
		}
		plan.stages[s] = sp
	}
	return plan, nil
}

func (g *renderGraph) validateTextures() error {
	var backBuffer *TextureResource
	for _, t := range g.textures {
		if t.usage == TextureUsageBackBuffer {
			if backBuffer != nil {
				return &ConfigError{
					Kind:     KindDuplicateBackBuffer,
					Resource: t.name,
					Msg:      fmt.Sprintf("%q is already the back buffer", backBuffer.name),
				}
			}
			backBuffer = t
			if t.sampleCount != 1 {
				return &ConfigError{Kind: KindInvalidSampleCount, Resource: t.name, Msg: "the back buffer must be single-sampled"}
			}
		}
		if t.resolveTarget == nil {
			continue
		}
		rt := t.resolveTarget
		switch {
		case rt.owner != g:
			return &ConfigError{Kind: KindForeignResource, Resource: rt.name, Msg: fmt.Sprintf("resolve target of %q belongs to another graph", t.name)}
		case t.isDepth():
			return &ConfigError{Kind: KindInvalidResolve, Resource: t.name, Msg: "depth-stencil textures cannot have a resolve target"}
		case rt == t, rt.isDepth():
			return &ConfigError{Kind: KindInvalidResolve, Resource: t.name, Msg: fmt.Sprintf("%q cannot be a resolve target", rt.name)}
		case t.sampleCount <= 1:
			return &ConfigError{Kind: KindInvalidResolve, Resource: t.name, Msg: "only multisampled textures resolve"}
		case rt.sampleCount != 1:
			return &ConfigError{Kind: KindInvalidResolve, Resource: t.name, Msg: fmt.Sprintf("resolve target %q must be single-sampled", rt.name)}
		case t.ResolvedFormat() != rt.ResolvedFormat():
			return &ConfigError{Kind: KindInvalidResolve, Resource: t.name, Msg: fmt.Sprintf("format differs from resolve target %q", rt.name)}
		}
	}
	return nil
}

func (g *renderGraph) validateBuffers() error {
	for _, b := range g.buffers {
		if b.usage != BufferUsageVertex || len(b.attributes) == 0 {
			continue
		}
		if b.stride == 0 {
			return &ConfigError{Kind: KindInvalidVertexLayout, Resource: b.name, Msg: "stride must be greater than zero"}
		}
		for _, a := range b.attributes {
			size := vertexFormatSize(a.Format)
			if size == 0 {
				return &ConfigError{Kind: KindInvalidVertexLayout, Resource: b.name, Msg: fmt.Sprintf("location %d has an unsupported format", a.ShaderLocation)}
			}
			if a.Offset+size > b.stride {
				return &ConfigError{
					Kind:     KindInvalidVertexLayout,
					Resource: b.name,
					Msg:      fmt.Sprintf("location %d ends at byte %d, past the %d byte stride", a.ShaderLocation, a.Offset+size, b.stride),
				}
			}
		}
	}
	return nil
}

// planStage lays out a stage's attachments: written textures in first-write order followed by implicit resolve
// targets, each with its role, sample count and layout transitions.
func planStage(s *GraphicsStage, sampled map[*TextureResource]bool) (*stagePlan, error) {
	var writes []Write
	sp := &stagePlan{sampleCount: 1}
	for _, w := range s.effectiveWrites() {
		if t, ok := w.Resource.(*TextureResource); ok {
			writes = append(writes, w)
			sp.sampleCount = max(sp.sampleCount, t.sampleCount)
		}
	}

	index := make(map[*TextureResource]int, len(writes))
	for i, w := range writes {
		index[w.Resource.(*TextureResource)] = i
	}

	depth := ""
	for i, w := range writes {
		t := w.Resource.(*TextureResource)
		desc := device.AttachmentDescriptor{
			Format:      t.ResolvedFormat(),
			SampleCount: t.sampleCount,
			Role:        device.AttachmentRoleColor,
			LoadOp:      w.LoadOp,
			StoreOp:     w.StoreOp,
			ResolveOf:   -1,
		}
		layout := device.ImageLayoutColorAttachment

		switch {
		case t.isDepth():
			if depth != "" {
				return nil, &ConfigError{Kind: KindMultipleDepth, Stage: s.name, Resource: t.name, Msg: fmt.Sprintf("%q is already the depth attachment", depth)}
			}
			depth = t.name
			desc.Role = device.AttachmentRoleDepthStencil
			layout = device.ImageLayoutDepthStencilAttachment
		case sp.sampleCount > 1 && t.sampleCount == 1:
			src, n := resolveSource(writes, t)
			switch {
			case src == nil && t.usage == TextureUsageBackBuffer:
				return nil, &ConfigError{Kind: KindInvalidResolve, Stage: s.name, Resource: t.name, Msg: "multisampled stage writes the back buffer but nothing resolves into it"}
			case src == nil:
				return nil, &ConfigError{Kind: KindInvalidSampleCount, Stage: s.name, Resource: t.name, Msg: fmt.Sprintf("single-sampled attachment in a %dx multisampled stage", sp.sampleCount)}
			case n > 1:
				return nil, &ConfigError{Kind: KindInvalidResolve, Stage: s.name, Resource: t.name, Msg: "more than one written texture resolves into it"}
			case index[src] > i:
				return nil, &ConfigError{Kind: KindAttachmentOrder, Stage: s.name, Resource: t.name, Msg: fmt.Sprintf("resolve attachment precedes its source %q", src.name)}
			}
			desc.Role = device.AttachmentRoleResolve
			desc.ResolveOf = index[src]
		}

		if desc.Role != device.AttachmentRoleResolve && t.sampleCount != sp.sampleCount {
			return nil, &ConfigError{
				Kind:     KindInvalidSampleCount,
				Stage:    s.name,
				Resource: t.name,
				Msg:      fmt.Sprintf("attachment has %d samples, stage has %d", t.sampleCount, sp.sampleCount),
			}
		}

		desc.InitialLayout = layout
		if w.LoadOp == wgpu.LoadOpClear {
			desc.InitialLayout = device.ImageLayoutUndefined
		}
		switch {
		case t.usage == TextureUsageBackBuffer:
			desc.FinalLayout = device.ImageLayoutPresent
		case sampled[t]:
			desc.FinalLayout = device.ImageLayoutShaderReadOnly
		default:
			desc.FinalLayout = layout
		}

		sp.attachments = append(sp.attachments, Attachment{Texture: t, Descriptor: desc, Clear: t.clear})
	}
	return sp, nil
}

// resolveSource finds the written multisampled texture resolving into t and counts how many there are.
func resolveSource(writes []Write, t *TextureResource) (*TextureResource, int) {
	var src *TextureResource
	n := 0
	for _, w := range writes {
		c, ok := w.Resource.(*TextureResource)
		if ok && c.resolveTarget == t && c.sampleCount > 1 {
			if src == nil {
				src = c
			}
			n++
		}
	}
	return src, n
}
