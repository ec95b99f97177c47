package render_graph

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device/devicetest"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

const testSource = `
@vertex fn vs_main(@location(0) pos: vec3f) -> @builtin(position) vec4f { return vec4f(pos, 1.0); }
@fragment fn fs_main() -> @location(0) vec4f { return vec4f(1.0); }
`

var testExtent = common.Extent2D{Width: 800, Height: 600}

func newTestGraph(t *testing.T, imageCount int) (RenderGraph, *devicetest.Device, *devicetest.Swapchain) {
	t.Helper()
	dev := devicetest.NewDevice()
	sc := devicetest.NewSwapchain(dev, testExtent, wgpu.TextureFormatBGRA8Unorm, imageCount)
	return NewRenderGraph(dev, sc, WithName("frame")), dev, sc
}

func testPipeline(t *testing.T, key string, withFragment bool, opts ...pipeline.PipelineBuilderOption) pipeline.Pipeline {
	t.Helper()
	vs, err := shader.NewShader(key+".vs", shader.ShaderTypeVertex, testSource)
	require.NoError(t, err)
	all := []pipeline.PipelineBuilderOption{pipeline.WithVertexShader(vs)}
	if withFragment {
		fs, err := shader.NewShader(key+".fs", shader.ShaderTypeFragment, testSource)
		require.NoError(t, err)
		all = append(all, pipeline.WithFragmentShader(fs))
	}
	return pipeline.NewPipeline(key, append(all, opts...)...)
}

// shadowScene is the two-stage graph of a shadow-mapped scene: a depth-only shadow stage followed by a
// multisampled main stage that samples the shadow map and resolves into the back buffer.
type shadowScene struct {
	g                      RenderGraph
	dev                    *devicetest.Device
	sc                     *devicetest.Swapchain
	vertices, indices      *BufferResource
	shadowMap, backBuffer  *TextureResource
	colorBuffer, depthBuf  *TextureResource
	shadowStage, mainStage *GraphicsStage
}

func newShadowScene(t *testing.T, imageCount int) *shadowScene {
	t.Helper()
	g, dev, sc := newTestGraph(t, imageCount)
	s := &shadowScene{g: g, dev: dev, sc: sc}

	s.vertices = g.AddBuffer("vertices", BufferUsageVertex,
		WithVertexAttributes(12, wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0}))
	s.indices = g.AddBuffer("indices", BufferUsageIndex)
	BindSlice(s.vertices, []float32{0, 1, 0, -1, -1, 0, 1, -1, 0})
	BindSlice(s.indices, []uint32{0, 1, 2})

	s.shadowMap = g.AddTexture("shadowMap", TextureUsageDepthStencil)
	s.backBuffer = g.AddTexture("backBuffer", TextureUsageBackBuffer)
	s.colorBuffer = g.AddTexture("colorBuffer", TextureUsageColor, WithSampleCount(4), WithResolveTarget(s.backBuffer))
	s.depthBuf = g.AddTexture("depthBuffer", TextureUsageDepthStencil, WithSampleCount(4))

	draw := func(ps *PhysicalStage, cmd device.CommandContext) {
		cmd.DrawIndexed(3, 1, 0, 0, 0)
	}

	// main is registered first: only the edges decide the order
	s.mainStage = g.AddGraphicsStage("main", WithPipeline(testPipeline(t, "main", true)), WithOnRecord(draw))
	s.mainStage.
		ReadsFrom(s.shadowMap).
		ReadsFrom(s.vertices).
		ReadsFrom(s.indices).
		WritesTo(s.colorBuffer, wgpu.LoadOpClear).
		WritesTo(s.depthBuf, wgpu.LoadOpClear, wgpu.StoreOpDiscard).
		WritesTo(s.backBuffer, wgpu.LoadOpClear)

	s.shadowStage = g.AddGraphicsStage("shadow", WithPipeline(testPipeline(t, "shadow", false, pipeline.WithDepthBias(2, 2))), WithOnRecord(draw))
	s.shadowStage.
		ReadsFrom(s.vertices).
		ReadsFrom(s.indices).
		WritesTo(s.shadowMap, wgpu.LoadOpClear)
	return s
}

func stageNames(groups [][]*GraphicsStage) [][]string {
	out := make([][]string, len(groups))
	for i, group := range groups {
		for _, s := range group {
			out[i] = append(out[i], s.Name())
		}
	}
	return out
}

func attachmentNames(ps *PhysicalStage) []string {
	var out []string
	for _, a := range ps.Attachments() {
		out = append(out, a.Texture.Name())
	}
	return out
}
