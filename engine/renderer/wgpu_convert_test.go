package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device/devicetest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorAttachment(format wgpu.TextureFormat, samples uint32) device.AttachmentDescriptor {
	return device.AttachmentDescriptor{
		Format:      format,
		SampleCount: samples,
		Role:        device.AttachmentRoleColor,
		LoadOp:      wgpu.LoadOpClear,
		StoreOp:     wgpu.StoreOpStore,
		ResolveOf:   -1,
	}
}

func depthAttachment(format wgpu.TextureFormat, samples uint32) device.AttachmentDescriptor {
	return device.AttachmentDescriptor{
		Format:      format,
		SampleCount: samples,
		Role:        device.AttachmentRoleDepthStencil,
		LoadOp:      wgpu.LoadOpClear,
		StoreOp:     wgpu.StoreOpDiscard,
		ResolveOf:   -1,
	}
}

func resolveAttachment(format wgpu.TextureFormat, of int) device.AttachmentDescriptor {
	return device.AttachmentDescriptor{
		Format:      format,
		SampleCount: 1,
		Role:        device.AttachmentRoleResolve,
		LoadOp:      wgpu.LoadOpClear,
		StoreOp:     wgpu.StoreOpStore,
		ResolveOf:   of,
	}
}

func TestAlignedSize(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 4},
		{1, 4},
		{4, 4},
		{5, 8},
		{36, 36},
		{38, 40},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alignedSize(tt.in), "alignedSize(%d)", tt.in)
	}
}

func TestAlignedData(t *testing.T) {
	aligned := []byte{1, 2, 3, 4}
	assert.Same(t, &aligned[0], &alignedData(aligned)[0])

	padded := alignedData([]byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0, 0}, padded)
}

func TestLayoutRenderPassMainStage(t *testing.T) {
	// colorBuffer (MSAA), depthBuffer, backBuffer resolving colorBuffer
	atts := []device.AttachmentDescriptor{
		colorAttachment(wgpu.TextureFormatBGRA8Unorm, 4),
		depthAttachment(wgpu.TextureFormatDepth32Float, 4),
		resolveAttachment(wgpu.TextureFormatBGRA8Unorm, 0),
	}
	layout, err := layoutRenderPass(atts)
	require.NoError(t, err)

	assert.Equal(t, []colorSlot{{attachment: 0, resolve: 2}}, layout.colors)
	assert.Equal(t, 1, layout.depth)
}

func TestLayoutRenderPassDepthOnly(t *testing.T) {
	layout, err := layoutRenderPass([]device.AttachmentDescriptor{
		depthAttachment(wgpu.TextureFormatDepth32Float, 1),
	})
	require.NoError(t, err)
	assert.Empty(t, layout.colors)
	assert.Equal(t, 0, layout.depth)
}

func TestLayoutRenderPassMultipleTargets(t *testing.T) {
	layout, err := layoutRenderPass([]device.AttachmentDescriptor{
		colorAttachment(wgpu.TextureFormatRGBA8Unorm, 4),
		colorAttachment(wgpu.TextureFormatRGBA16Float, 4),
		resolveAttachment(wgpu.TextureFormatRGBA16Float, 1),
		resolveAttachment(wgpu.TextureFormatRGBA8Unorm, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []colorSlot{
		{attachment: 0, resolve: 3},
		{attachment: 1, resolve: 2},
	}, layout.colors)
	assert.Equal(t, -1, layout.depth)
}

func TestLayoutRenderPassErrors(t *testing.T) {
	tests := []struct {
		name string
		atts []device.AttachmentDescriptor
	}{
		{
			name: "two depth attachments",
			atts: []device.AttachmentDescriptor{
				depthAttachment(wgpu.TextureFormatDepth32Float, 1),
				depthAttachment(wgpu.TextureFormatDepth24Plus, 1),
			},
		},
		{
			name: "resolve of depth",
			atts: []device.AttachmentDescriptor{
				depthAttachment(wgpu.TextureFormatDepth32Float, 4),
				resolveAttachment(wgpu.TextureFormatDepth32Float, 0),
			},
		},
		{
			name: "resolve out of range",
			atts: []device.AttachmentDescriptor{
				colorAttachment(wgpu.TextureFormatBGRA8Unorm, 4),
				resolveAttachment(wgpu.TextureFormatBGRA8Unorm, 5),
			},
		},
		{
			name: "resolved twice",
			atts: []device.AttachmentDescriptor{
				colorAttachment(wgpu.TextureFormatBGRA8Unorm, 4),
				resolveAttachment(wgpu.TextureFormatBGRA8Unorm, 0),
				resolveAttachment(wgpu.TextureFormatBGRA8Unorm, 0),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := layoutRenderPass(tt.atts)
			require.Error(t, err)
			assert.Equal(t, device.ErrorCodeValidation, device.Classify(err))
		})
	}
}

func TestColorTargets(t *testing.T) {
	atts := []device.AttachmentDescriptor{
		colorAttachment(wgpu.TextureFormatRGBA16Float, 4),
		depthAttachment(wgpu.TextureFormatDepth32Float, 4),
		resolveAttachment(wgpu.TextureFormatRGBA16Float, 0),
	}
	layout, err := layoutRenderPass(atts)
	require.NoError(t, err)

	blend := &wgpu.BlendState{}
	targets := colorTargets(atts, layout, blend, wgpu.ColorWriteMaskAll)
	require.Len(t, targets, 1)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, targets[0].Format)
	assert.Same(t, blend, targets[0].Blend)
	assert.Equal(t, wgpu.ColorWriteMaskAll, targets[0].WriteMask)
}

func TestDepthStencilState(t *testing.T) {
	withDepth := []device.AttachmentDescriptor{
		colorAttachment(wgpu.TextureFormatBGRA8Unorm, 1),
		depthAttachment(wgpu.TextureFormatDepth24Plus, 1),
	}
	layout, err := layoutRenderPass(withDepth)
	require.NoError(t, err)

	state := depthStencilState(device.PipelineDescriptor{
		DepthTest:           true,
		DepthWrite:          true,
		DepthBias:           2,
		DepthBiasSlopeScale: 1.5,
	}, withDepth, layout)
	require.NotNil(t, state)
	assert.Equal(t, wgpu.TextureFormatDepth24Plus, state.Format)
	assert.Equal(t, wgpu.CompareFunctionLess, state.DepthCompare)
	assert.True(t, state.DepthWriteEnabled)
	assert.Equal(t, int32(2), state.DepthBias)
	assert.Equal(t, float32(1.5), state.DepthBiasSlopeScale)

	state = depthStencilState(device.PipelineDescriptor{DepthCompare: wgpu.CompareFunctionLessEqual}, withDepth, layout)
	assert.Equal(t, wgpu.CompareFunctionAlways, state.DepthCompare)

	state = depthStencilState(device.PipelineDescriptor{DepthTest: true, DepthCompare: wgpu.CompareFunctionGreater}, withDepth, layout)
	assert.Equal(t, wgpu.CompareFunctionGreater, state.DepthCompare)

	colorOnly := withDepth[:1]
	layout, err = layoutRenderPass(colorOnly)
	require.NoError(t, err)
	assert.Nil(t, depthStencilState(device.PipelineDescriptor{DepthTest: true}, colorOnly, layout))
}

func TestVertexBufferLayouts(t *testing.T) {
	attrs := []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
	}
	out := vertexBufferLayouts([]device.VertexLayout{{Stride: 20, Attributes: attrs}})
	require.Len(t, out, 1)
	assert.Equal(t, uint64(20), out[0].ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeVertex, out[0].StepMode)
	assert.Equal(t, attrs, out[0].Attributes)
}

func TestEntryKind(t *testing.T) {
	dev := devicetest.NewDevice()
	buf, err := dev.CreateBuffer(device.BufferDescriptor{Label: "uniforms", Size: 64})
	require.NoError(t, err)
	samp, err := dev.CreateSampler(device.SamplerDescriptor{Label: "shadow"})
	require.NoError(t, err)

	kind, err := entryKind(device.BindGroupEntry{Binding: 0, Buffer: buf})
	require.NoError(t, err)
	assert.Equal(t, bindingKindBuffer, kind)

	kind, err = entryKind(device.BindGroupEntry{Binding: 1, Sampler: samp})
	require.NoError(t, err)
	assert.Equal(t, bindingKindSampler, kind)

	_, err = entryKind(device.BindGroupEntry{Binding: 2})
	assert.Error(t, err)
	_, err = entryKind(device.BindGroupEntry{Binding: 3, Buffer: buf, Sampler: samp})
	assert.Error(t, err)
}

func TestLayoutEntryKind(t *testing.T) {
	assert.Equal(t, bindingKindBuffer, layoutEntryKind(wgpu.BindGroupLayoutEntry{
		Binding: 0,
		Buffer:  wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
	}))
	assert.Equal(t, bindingKindTexture, layoutEntryKind(wgpu.BindGroupLayoutEntry{
		Binding: 1,
		Texture: wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeDepth},
	}))
	assert.Equal(t, bindingKindSampler, layoutEntryKind(wgpu.BindGroupLayoutEntry{
		Binding: 2,
		Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeComparison},
	}))
}

func TestNativeRejectsForeignHandles(t *testing.T) {
	dev := devicetest.NewDevice()
	buf, err := dev.CreateBuffer(device.BufferDescriptor{Label: "vertices", Size: 16})
	require.NoError(t, err)

	_, err = native[*wgpuBuffer](device.OpWriteBuffer, buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, device.ErrDevice))
	assert.True(t, errors.Is(err, errForeignHandle))

	var de *device.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, device.OpWriteBuffer, de.Op)
	assert.Equal(t, device.ErrorCodeValidation, de.Code)

	own := &wgpuBuffer{wgpuHandle: wgpuHandle{label: "own"}}
	got, err := native[*wgpuBuffer](device.OpWriteBuffer, own)
	require.NoError(t, err)
	assert.Same(t, own, got)
}

func TestRenderPassDescriptor(t *testing.T) {
	atts := []device.AttachmentDescriptor{
		colorAttachment(wgpu.TextureFormatBGRA8Unorm, 4),
		depthAttachment(wgpu.TextureFormatDepth24PlusStencil8, 4),
		resolveAttachment(wgpu.TextureFormatBGRA8Unorm, 0),
	}
	layout, err := layoutRenderPass(atts)
	require.NoError(t, err)

	color := &wgpuTexture{wgpuHandle: wgpuHandle{label: "colorBuffer"}, view: &wgpu.TextureView{}}
	depth := &wgpuTexture{wgpuHandle: wgpuHandle{label: "depthBuffer"}, view: &wgpu.TextureView{}}
	back := &wgpuTexture{wgpuHandle: wgpuHandle{label: "swapchain[0]"}, view: &wgpu.TextureView{}, surface: true}
	fb := &wgpuFramebuffer{
		wgpuHandle:  wgpuHandle{label: "main[0]"},
		target:      &wgpuRenderTarget{attachments: atts, layout: layout},
		attachments: []*wgpuTexture{color, depth, back},
		extent:      common.Extent2D{Width: 800, Height: 600},
	}
	clears := []device.ClearValue{
		{Color: wgpu.Color{R: 0.1, G: 0.2, B: 0.3, A: 1}},
		{Depth: 1, Stencil: 7},
		{},
	}

	desc, err := renderPassDescriptor(fb, clears)
	require.NoError(t, err)
	require.Len(t, desc.ColorAttachments, 1)
	assert.Same(t, color.view, desc.ColorAttachments[0].View)
	assert.Same(t, back.view, desc.ColorAttachments[0].ResolveTarget)
	assert.Equal(t, clears[0].Color, desc.ColorAttachments[0].ClearValue)
	assert.Equal(t, wgpu.LoadOpClear, desc.ColorAttachments[0].LoadOp)

	require.NotNil(t, desc.DepthStencilAttachment)
	assert.Same(t, depth.view, desc.DepthStencilAttachment.View)
	assert.Equal(t, float32(1), desc.DepthStencilAttachment.DepthClearValue)
	assert.Equal(t, wgpu.StoreOpDiscard, desc.DepthStencilAttachment.DepthStoreOp)
	assert.Equal(t, uint32(7), desc.DepthStencilAttachment.StencilClearValue)

	back.view = nil
	_, err = renderPassDescriptor(fb, clears)
	assert.ErrorContains(t, err, "swapchain[0]")
}

func TestCommandContextOutsideRenderTarget(t *testing.T) {
	ctx := &wgpuCommandContext{
		backend: &wgpuRendererBackendImpl{logger: common.NopLogger()},
		label:   "frame",
	}

	ctx.BindVertexBuffers(0, []device.Buffer{&wgpuBuffer{}})
	ctx.BindIndexBuffer(&wgpuBuffer{}, wgpu.IndexFormatUint32)
	ctx.Barrier()
	assert.NoError(t, ctx.err)

	ctx.DrawIndexed(3, 1, 0, 0, 0)
	ctx.EndRenderTarget()
	assert.ErrorIs(t, ctx.err, errNoRenderTarget)
}

func TestPresentModeAndSampleCount(t *testing.T) {
	assert.Equal(t, wgpu.PresentModeFifo, wgpuPresentMode(PresentModeVSync))
	assert.Equal(t, wgpu.PresentModeImmediate, wgpuPresentMode(PresentModeUncapped))

	assert.True(t, MSAA4x.Valid())
	assert.True(t, MSAAOff.Valid())
	assert.False(t, MSAASampleCount(3).Valid())
	assert.False(t, MSAASampleCount(0).Valid())

	assert.Equal(t, common.Extent2D{Width: 1, Height: 1}, clampExtent(common.Extent2D{}))
	assert.Equal(t, common.Extent2D{Width: 640, Height: 1}, clampExtent(common.Extent2D{Width: 640}))
}
