package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// bufferAlignment is the WebGPU requirement on buffer sizes and queue write lengths.
const bufferAlignment = 4

// alignedSize rounds size up to the next multiple of bufferAlignment, never returning zero.
func alignedSize(size uint64) uint64 {
	if size == 0 {
		return bufferAlignment
	}
	return (size + bufferAlignment - 1) &^ (bufferAlignment - 1)
}

// alignedData returns data padded with zero bytes to a multiple of bufferAlignment.
// The input is returned unchanged when it is already aligned.
func alignedData(data []byte) []byte {
	n := alignedSize(uint64(len(data)))
	if uint64(len(data)) == n {
		return data
	}
	padded := make([]byte, n)
	copy(padded, data)
	return padded
}

// colorSlot pairs a color attachment with the attachment that resolves it.
type colorSlot struct {
	attachment int
	resolve    int
}

// renderPassLayout maps the attachment list of a render target onto WebGPU's render pass shape:
// color attachments in attachment order, each optionally paired with its resolve target, and at
// most one depth/stencil attachment.
type renderPassLayout struct {
	colors []colorSlot
	depth  int
}

// layoutRenderPass builds the renderPassLayout for a list of attachment descriptors.
//
// Parameters:
//   - attachments: the render target's attachments in attachment order
//
// Returns:
//   - renderPassLayout: the color slots and depth index (-1 when there is none)
//   - error: an error if a resolve attachment does not name a color attachment, or more than one
//     depth attachment is present
func layoutRenderPass(attachments []device.AttachmentDescriptor) (renderPassLayout, error) {
	layout := renderPassLayout{depth: -1}
	slotOf := make(map[int]int, len(attachments))

	for i, a := range attachments {
		switch a.Role {
		case device.AttachmentRoleColor:
			slotOf[i] = len(layout.colors)
			layout.colors = append(layout.colors, colorSlot{attachment: i, resolve: -1})
		case device.AttachmentRoleDepthStencil:
			if layout.depth >= 0 {
				return renderPassLayout{}, fmt.Errorf("invalid render target: attachments %d and %d are both depth/stencil", layout.depth, i)
			}
			layout.depth = i
		}
	}

	for i, a := range attachments {
		if a.Role != device.AttachmentRoleResolve {
			continue
		}
		slot, ok := slotOf[a.ResolveOf]
		if !ok {
			return renderPassLayout{}, fmt.Errorf("invalid render target: resolve attachment %d references %d, which is not a color attachment", i, a.ResolveOf)
		}
		if layout.colors[slot].resolve >= 0 {
			return renderPassLayout{}, fmt.Errorf("invalid render target: color attachment %d is resolved twice", a.ResolveOf)
		}
		layout.colors[slot].resolve = i
	}

	return layout, nil
}

// colorTargets derives the fragment color target states of a pipeline from its render target.
func colorTargets(attachments []device.AttachmentDescriptor, layout renderPassLayout, blend *wgpu.BlendState, mask wgpu.ColorWriteMask) []wgpu.ColorTargetState {
	targets := make([]wgpu.ColorTargetState, 0, len(layout.colors))
	for _, c := range layout.colors {
		targets = append(targets, wgpu.ColorTargetState{
			Format:    attachments[c.attachment].Format,
			Blend:     blend,
			WriteMask: mask,
		})
	}
	return targets
}

// vertexBufferLayouts converts device vertex layouts into WebGPU buffer layouts, one per slot.
func vertexBufferLayouts(layouts []device.VertexLayout) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, 0, len(layouts))
	for _, l := range layouts {
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: l.Stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  l.Attributes,
		})
	}
	return out
}

// bindingKind identifies what a bind group layout entry expects to be bound.
type bindingKind int

const (
	bindingKindBuffer bindingKind = iota
	bindingKindTexture
	bindingKindSampler
)

func (k bindingKind) String() string {
	switch k {
	case bindingKindTexture:
		return "texture"
	case bindingKindSampler:
		return "sampler"
	default:
		return "buffer"
	}
}

func layoutEntryKind(entry wgpu.BindGroupLayoutEntry) bindingKind {
	switch {
	case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
		return bindingKindTexture
	case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
		return bindingKindSampler
	default:
		return bindingKindBuffer
	}
}

func entryKind(e device.BindGroupEntry) (bindingKind, error) {
	set := 0
	kind := bindingKindBuffer
	if e.Buffer != nil {
		set++
	}
	if e.Texture != nil {
		set++
		kind = bindingKindTexture
	}
	if e.Sampler != nil {
		set++
		kind = bindingKindSampler
	}
	if set != 1 {
		return 0, fmt.Errorf("invalid bind group entry %d: exactly one of buffer, texture or sampler must be set", e.Binding)
	}
	return kind, nil
}

func wgpuPresentMode(mode PresentMode) wgpu.PresentMode {
	switch mode {
	case PresentModeVSync:
		return wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		return wgpu.PresentModeImmediate
	}
}

// depthStencilState returns nil when the render target carries no depth attachment.
func depthStencilState(desc device.PipelineDescriptor, attachments []device.AttachmentDescriptor, layout renderPassLayout) *wgpu.DepthStencilState {
	if layout.depth < 0 {
		return nil
	}
	compare := desc.DepthCompare
	if compare == wgpu.CompareFunctionUndefined {
		compare = wgpu.CompareFunctionLess
	}
	if !desc.DepthTest {
		compare = wgpu.CompareFunctionAlways
	}
	return &wgpu.DepthStencilState{
		Format:              attachments[layout.depth].Format,
		DepthWriteEnabled:   desc.DepthWrite,
		DepthCompare:        compare,
		DepthBias:           desc.DepthBias,
		DepthBiasSlopeScale: desc.DepthBiasSlopeScale,
		StencilFront: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
		StencilBack: wgpu.StencilFaceState{
			Compare: wgpu.CompareFunctionAlways,
		},
	}
}
