package render_graph

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileShadowScene(t *testing.T) {
	s := newShadowScene(t, 2)
	require.NoError(t, s.g.Compile())

	assert.Equal(t, []string{
		"create_buffer:vertices",
		"write_buffer:vertices",
		"create_buffer:indices",
		"write_buffer:indices",
		"create_texture:shadowMap",
		"create_texture:colorBuffer",
		"create_texture:depthBuffer",
		"create_render_target:shadow",
		"create_pipeline_layout:shadow",
		"create_pipeline:shadow",
		"create_framebuffer:shadow[0]",
		"create_framebuffer:shadow[1]",
		"create_render_target:main",
		"create_pipeline_layout:main",
		"create_pipeline:main",
		"create_framebuffer:main[0]",
		"create_framebuffer:main[1]",
	}, s.dev.Ops())

	shadow := s.g.PhysicalStage(s.shadowStage)
	require.NotNil(t, shadow)
	assert.Equal(t, uint32(1), shadow.SampleCount())
	require.Len(t, shadow.Attachments(), 1)
	sm := shadow.Attachments()[0].Descriptor
	assert.Equal(t, device.AttachmentRoleDepthStencil, sm.Role)
	assert.Equal(t, device.ImageLayoutUndefined, sm.InitialLayout)
	assert.Equal(t, device.ImageLayoutShaderReadOnly, sm.FinalLayout)
	assert.Equal(t, wgpu.TextureFormatDepth32Float, sm.Format)

	main := s.g.PhysicalStage(s.mainStage)
	require.NotNil(t, main)
	assert.Equal(t, uint32(4), main.SampleCount())
	assert.Equal(t, []string{"colorBuffer", "depthBuffer", "backBuffer"}, attachmentNames(main))

	atts := main.Attachments()
	assert.Equal(t, device.AttachmentRoleColor, atts[0].Descriptor.Role)
	assert.Equal(t, device.AttachmentRoleDepthStencil, atts[1].Descriptor.Role)
	assert.Equal(t, wgpu.StoreOpDiscard, atts[1].Descriptor.StoreOp)
	assert.Equal(t, device.AttachmentRoleResolve, atts[2].Descriptor.Role)
	assert.Equal(t, 0, atts[2].Descriptor.ResolveOf)
	assert.Equal(t, device.ImageLayoutPresent, atts[2].Descriptor.FinalLayout)
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, atts[0].Descriptor.Format)
	assert.Len(t, main.ClearValues(), 3)
	assert.Equal(t, float32(1), main.ClearValues()[1].Depth)

	// the framebuffer for each image binds that swap chain image as the resolve attachment
	for i := 0; i < 2; i++ {
		fb := main.Framebuffer(i).(*devicetest.Framebuffer)
		assert.Same(t, s.sc.Image(i), fb.Desc.Attachments[2])
		assert.Same(t, s.g.PhysicalResource(s.colorBuffer).Texture(i), fb.Desc.Attachments[0])
		assert.Equal(t, testExtent, fb.Extent())
	}

	p := main.Pipeline().(*devicetest.Pipeline)
	assert.Equal(t, uint32(4), p.Desc.SampleCount)
	require.NotNil(t, p.Desc.Fragment)
	assert.Equal(t, "fs_main", p.Desc.Fragment.EntryPoint)
	assert.Equal(t, "vs_main", p.Desc.Vertex.EntryPoint)
	require.Len(t, p.Desc.VertexBuffers, 1)
	assert.Equal(t, uint64(12), p.Desc.VertexBuffers[0].Stride)
	assert.Same(t, main.PipelineLayout(), p.Layout())

	sp := shadow.Pipeline().(*devicetest.Pipeline)
	assert.Nil(t, sp.Desc.Fragment)
	assert.Equal(t, int32(2), sp.Desc.DepthBias)

	smTex := s.g.PhysicalResource(s.shadowMap).Texture(0).(*devicetest.Texture)
	assert.NotZero(t, smTex.Desc.Usage&wgpu.TextureUsageTextureBinding, "sampled textures are bindable")
	colorTex := s.g.PhysicalResource(s.colorBuffer).Texture(0).(*devicetest.Texture)
	assert.Zero(t, colorTex.Desc.Usage&wgpu.TextureUsageTextureBinding)
	assert.Equal(t, uint32(4), colorTex.SampleCount())
	assert.Equal(t, testExtent, colorTex.Extent())

	assert.True(t, s.g.PhysicalResource(s.backBuffer).External())
	assert.Equal(t, UploadSkip, s.vertices.UploadPolicy())
}

func TestCompileIsIdempotent(t *testing.T) {
	s := newShadowScene(t, 3)
	require.NoError(t, s.g.Compile())
	live := s.dev.Live()
	groups := stageNames(s.g.ExecutionGroups())
	mainAttachments := attachmentNames(s.g.PhysicalStage(s.mainStage))

	s.dev.Reset()
	require.NoError(t, s.g.Compile())

	assert.Equal(t, live, s.dev.Live(), "recompiling must release everything the previous compile created")
	assert.Equal(t, groups, stageNames(s.g.ExecutionGroups()))
	assert.Equal(t, mainAttachments, attachmentNames(s.g.PhysicalStage(s.mainStage)))
	assert.Equal(t, live, s.dev.Count(devicetest.OpRelease))

	// retained buffer contents are written again into the recreated buffers
	buf := s.g.PhysicalResource(s.vertices).Buffer().(*devicetest.Buffer)
	assert.Equal(t, s.vertices.Data(), buf.Data)
}

func TestCompileAfterResize(t *testing.T) {
	s := newShadowScene(t, 1)
	require.NoError(t, s.g.Compile())

	bigger := testExtent
	bigger.Width, bigger.Height = 1920, 1080
	require.NoError(t, s.sc.Configure(bigger))
	require.NoError(t, s.g.Compile())

	assert.Equal(t, bigger, s.g.PhysicalResource(s.colorBuffer).Texture(0).Extent())
	assert.Equal(t, bigger, s.g.PhysicalStage(s.mainStage).Framebuffer(0).Extent())
	assert.Same(t, s.sc.Image(0), s.g.PhysicalResource(s.backBuffer).Texture(0))
}

func TestCompileAttachmentOrderFollowsWrites(t *testing.T) {
	g, _, _ := newTestGraph(t, 1)
	gbuf := []*TextureResource{
		g.AddTexture("normal", TextureUsageColor, WithFormat(wgpu.TextureFormatRGBA16Float)),
		g.AddTexture("depth", TextureUsageDepthStencil),
		g.AddTexture("albedo", TextureUsageColor),
		g.AddTexture("material", TextureUsageColor, WithFormat(wgpu.TextureFormatRGBA8Unorm)),
	}
	s := g.AddGraphicsStage("gbuffer")
	for _, tex := range gbuf {
		s.WritesTo(tex, wgpu.LoadOpClear)
	}
	// a repeated write keeps the original position
	s.WritesTo(gbuf[0], wgpu.LoadOpLoad)

	require.NoError(t, g.Compile())
	ps := g.PhysicalStage(s)
	assert.Equal(t, []string{"normal", "depth", "albedo", "material"}, attachmentNames(ps))
	assert.Equal(t, wgpu.LoadOpLoad, ps.Attachments()[0].Descriptor.LoadOp)
	assert.Equal(t, device.ImageLayoutColorAttachment, ps.Attachments()[0].Descriptor.InitialLayout)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, ps.Attachments()[0].Descriptor.Format)

	rt := ps.RenderTarget().(*devicetest.RenderTarget)
	assert.Len(t, rt.Attachments(), 4)
}

func TestCompileImplicitResolveAppended(t *testing.T) {
	g, _, _ := newTestGraph(t, 1)
	back := g.AddTexture("backBuffer", TextureUsageBackBuffer)
	color := g.AddTexture("color", TextureUsageColor, WithSampleCount(4), WithResolveTarget(back))
	s := g.AddGraphicsStage("main").WritesTo(color, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	ps := g.PhysicalStage(s)
	assert.Equal(t, []string{"color", "backBuffer"}, attachmentNames(ps))
	assert.Equal(t, device.AttachmentRoleResolve, ps.Attachments()[1].Descriptor.Role)
	assert.Equal(t, 0, ps.Attachments()[1].Descriptor.ResolveOf)
}

func TestCompileConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(g RenderGraph, other RenderGraph)
		kind  ConfigErrorKind
	}{
		{
			name: "second writer",
			build: func(g, _ RenderGraph) {
				tex := g.AddTexture("shared", TextureUsageColor)
				g.AddGraphicsStage("a").WritesTo(tex, wgpu.LoadOpClear)
				g.AddGraphicsStage("b").WritesTo(tex, wgpu.LoadOpLoad)
			},
			kind: KindMultipleWriters,
		},
		{
			name: "second writer through resolve",
			build: func(g, _ RenderGraph) {
				back := g.AddTexture("back", TextureUsageBackBuffer)
				color := g.AddTexture("color", TextureUsageColor, WithSampleCount(4), WithResolveTarget(back))
				g.AddGraphicsStage("a").WritesTo(color, wgpu.LoadOpClear)
				g.AddGraphicsStage("b").WritesTo(back, wgpu.LoadOpLoad)
			},
			kind: KindMultipleWriters,
		},
		{
			name: "foreign resource",
			build: func(g, other RenderGraph) {
				tex := other.AddTexture("elsewhere", TextureUsageColor)
				g.AddGraphicsStage("a").ReadsFrom(tex)
			},
			kind: KindForeignResource,
		},
		{
			name: "depth with resolve target",
			build: func(g, _ RenderGraph) {
				target := g.AddTexture("target", TextureUsageDepthStencil)
				g.AddTexture("depth", TextureUsageDepthStencil, WithSampleCount(4), WithResolveTarget(target))
			},
			kind: KindInvalidResolve,
		},
		{
			name: "multisampled back buffer",
			build: func(g, _ RenderGraph) {
				g.AddTexture("back", TextureUsageBackBuffer, WithSampleCount(4))
			},
			kind: KindInvalidSampleCount,
		},
		{
			name: "multisampled resolve target",
			build: func(g, _ RenderGraph) {
				target := g.AddTexture("target", TextureUsageColor, WithSampleCount(4))
				g.AddTexture("color", TextureUsageColor, WithSampleCount(4), WithResolveTarget(target))
			},
			kind: KindInvalidResolve,
		},
		{
			name: "single-sampled resolve source",
			build: func(g, _ RenderGraph) {
				target := g.AddTexture("target", TextureUsageColor)
				g.AddTexture("color", TextureUsageColor, WithResolveTarget(target))
			},
			kind: KindInvalidResolve,
		},
		{
			name: "resolve format mismatch",
			build: func(g, _ RenderGraph) {
				back := g.AddTexture("back", TextureUsageBackBuffer)
				g.AddTexture("color", TextureUsageColor, WithFormat(wgpu.TextureFormatRGBA8Unorm), WithSampleCount(4), WithResolveTarget(back))
			},
			kind: KindInvalidResolve,
		},
		{
			name: "multisampled stage writes back buffer without resolve",
			build: func(g, _ RenderGraph) {
				back := g.AddTexture("back", TextureUsageBackBuffer)
				color := g.AddTexture("color", TextureUsageColor, WithSampleCount(4))
				g.AddGraphicsStage("main").WritesTo(color, wgpu.LoadOpClear).WritesTo(back, wgpu.LoadOpClear)
			},
			kind: KindInvalidResolve,
		},
		{
			name: "resolve before source",
			build: func(g, _ RenderGraph) {
				back := g.AddTexture("back", TextureUsageBackBuffer)
				color := g.AddTexture("color", TextureUsageColor, WithSampleCount(4), WithResolveTarget(back))
				g.AddGraphicsStage("main").WritesTo(back, wgpu.LoadOpClear).WritesTo(color, wgpu.LoadOpClear)
			},
			kind: KindAttachmentOrder,
		},
		{
			name: "mismatched sample counts",
			build: func(g, _ RenderGraph) {
				back := g.AddTexture("back", TextureUsageBackBuffer)
				color := g.AddTexture("color", TextureUsageColor, WithSampleCount(4), WithResolveTarget(back))
				depth := g.AddTexture("depth", TextureUsageDepthStencil)
				g.AddGraphicsStage("main").WritesTo(color, wgpu.LoadOpClear).WritesTo(depth, wgpu.LoadOpClear)
			},
			kind: KindInvalidSampleCount,
		},
		{
			name: "two depth attachments",
			build: func(g, _ RenderGraph) {
				d1 := g.AddTexture("d1", TextureUsageDepthStencil)
				d2 := g.AddTexture("d2", TextureUsageDepthStencil)
				g.AddGraphicsStage("main").WritesTo(d1, wgpu.LoadOpClear).WritesTo(d2, wgpu.LoadOpClear)
			},
			kind: KindMultipleDepth,
		},
		{
			name: "zero stride",
			build: func(g, _ RenderGraph) {
				g.AddBuffer("v", BufferUsageVertex, WithVertexAttributes(0, wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3}))
			},
			kind: KindInvalidVertexLayout,
		},
		{
			name: "attribute past stride",
			build: func(g, _ RenderGraph) {
				g.AddBuffer("v", BufferUsageVertex, WithVertexAttributes(16,
					wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
				))
			},
			kind: KindInvalidVertexLayout,
		},
		{
			name: "two back buffers",
			build: func(g, _ RenderGraph) {
				g.AddTexture("back", TextureUsageBackBuffer)
				g.AddTexture("back2", TextureUsageBackBuffer)
			},
			kind: KindDuplicateBackBuffer,
		},
		{
			name: "unnamed stage",
			build: func(g, _ RenderGraph) {
				g.AddGraphicsStage("")
			},
			kind: KindEmptyStageName,
		},
		{
			name: "pipeline without vertex shader",
			build: func(g, _ RenderGraph) {
				tex := g.AddTexture("out", TextureUsageColor)
				g.AddGraphicsStage("main", WithPipeline(pipeline.NewPipeline("empty"))).WritesTo(tex, wgpu.LoadOpClear)
			},
			kind: KindMissingShader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, dev, sc := newTestGraph(t, 1)
			other := NewRenderGraph(dev, sc)
			tt.build(g, other)

			err := g.Compile()
			require.ErrorIs(t, err, ErrConfiguration)
			var cfg *ConfigError
			require.True(t, errors.As(err, &cfg))
			assert.Equal(t, tt.kind, cfg.Kind, err.Error())
			assert.Empty(t, dev.Calls(), "configuration errors are found before any device call")
		})
	}
}

func TestCompileMultipleWritersNamesBothStages(t *testing.T) {
	g, _, _ := newTestGraph(t, 1)
	tex := g.AddTexture("shared", TextureUsageColor)
	g.AddGraphicsStage("first").WritesTo(tex, wgpu.LoadOpClear)
	g.AddGraphicsStage("second").WritesTo(tex, wgpu.LoadOpLoad)

	var cfg *ConfigError
	require.True(t, errors.As(g.Compile(), &cfg))
	assert.Equal(t, "shared", cfg.Resource)
	assert.Equal(t, []string{"first", "second"}, cfg.Stages)
	assert.Contains(t, cfg.Error(), "multiple_writers")
}

func TestCompileAllocationError(t *testing.T) {
	s := newShadowScene(t, 1)
	cause := errors.New("Validation Error: shader entry point not found")
	s.dev.FailOn(device.OpCreatePipeline, cause)

	err := s.g.Compile()
	require.Error(t, err)

	var alloc *AllocationError
	require.True(t, errors.As(err, &alloc))
	assert.Equal(t, "shadow", alloc.Stage)
	assert.Equal(t, device.OpCreatePipeline, alloc.Op)
	assert.ErrorIs(t, err, device.ErrDevice)
	assert.ErrorIs(t, err, cause)

	var devErr *device.Error
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, device.ErrorCodeValidation, devErr.Code)

	_, err = s.g.Render()
	assert.ErrorIs(t, err, ErrNotCompiled)

	// a later compile starts from scratch
	require.NoError(t, s.g.Compile())
}

func TestCompileCallback(t *testing.T) {
	s := newShadowScene(t, 1)
	var bindGroup device.BindGroup
	s.mainStage.SetOnCompile(func(ps *PhysicalStage, g RenderGraph) error {
		require.NotNil(t, ps.PipelineLayout())
		shadowTex := g.PhysicalResource(s.shadowMap).Texture(0)
		sampler, err := g.Device().CreateSampler(device.SamplerDescriptor{Label: "shadow sampler", Compare: wgpu.CompareFunctionLess})
		if err != nil {
			return err
		}
		bindGroup, err = g.Device().CreateBindGroup(device.BindGroupDescriptor{
			Label:  "shadow bind group",
			Layout: ps.PipelineLayout(),
			Group:  0,
			Entries: []device.BindGroupEntry{
				{Binding: 0, Texture: shadowTex},
				{Binding: 1, Sampler: sampler},
			},
		})
		return err
	})
	require.NoError(t, s.g.Compile())
	require.NotNil(t, bindGroup)
	assert.Same(t, s.g.PhysicalResource(s.shadowMap).Texture(0), bindGroup.(*devicetest.BindGroup).Desc.Entries[0].Texture)

	boom := errors.New("boom")
	s.shadowStage.SetOnCompile(func(*PhysicalStage, RenderGraph) error { return boom })
	err := s.g.Compile()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"shadow"`)
}

func TestRelease(t *testing.T) {
	s := newShadowScene(t, 2)
	require.NoError(t, s.g.Compile())
	require.NotZero(t, s.dev.Live())

	s.g.Release()
	assert.Zero(t, s.dev.Live())
	assert.Nil(t, s.g.PhysicalStage(s.mainStage))
	assert.Nil(t, s.g.PhysicalResource(s.vertices))
	assert.ErrorIs(t, s.g.Upload(), ErrNotCompiled)
}
