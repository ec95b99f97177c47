package render_graph

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device/devicetest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderShadowScene(t *testing.T) {
	s := newShadowScene(t, 2)
	require.NoError(t, s.g.Compile())
	s.dev.Reset()

	outdated, err := s.g.Render()
	require.NoError(t, err)
	assert.False(t, outdated)

	assert.Equal(t, []string{
		"acquire:swapchain[0]",
		"begin_commands:frame",
		"begin_render_target:shadow[0]",
		"bind_index_buffer:indices",
		"bind_vertex_buffers:vertices",
		"bind_pipeline:shadow",
		"draw_indexed",
		"end_render_target",
		"barrier",
		"begin_render_target:main[0]",
		"bind_index_buffer:indices",
		"bind_vertex_buffers:vertices",
		"bind_pipeline:main",
		"draw_indexed",
		"end_render_target",
		"barrier",
		"submit",
		"present:swapchain[0]",
	}, s.dev.Ops())

	stats := s.g.LastFrameStats()
	assert.Equal(t, FrameStats{ImageIndex: 0, Groups: 2, StagesRecorded: 2, Barriers: 2}, stats)

	// the second frame renders into the next swap chain image
	s.dev.Reset()
	_, err = s.g.Render()
	require.NoError(t, err)
	assert.Contains(t, s.dev.Ops(), "begin_render_target:main[1]")
	assert.Equal(t, 1, s.g.LastFrameStats().ImageIndex)
}

func TestRenderBindsAllVertexBuffersOnce(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	positions := g.AddBuffer("positions", BufferUsageVertex, WithInitialData(make([]byte, 12)),
		WithVertexAttributes(12, wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 0}))
	normals := g.AddBuffer("normals", BufferUsageVertex, WithInitialData(make([]byte, 12)),
		WithVertexAttributes(12, wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 1}))
	indices := g.AddBuffer("indices", BufferUsageIndex, WithIndexFormat(wgpu.IndexFormatUint16), WithInitialData(make([]byte, 6)))
	out := g.AddTexture("out", TextureUsageColor)
	s := g.AddGraphicsStage("mesh", WithPipeline(testPipeline(t, "mesh", true))).
		ReadsFrom(positions).ReadsFrom(indices).ReadsFrom(normals).
		WritesTo(out, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	p := g.PhysicalStage(s).Pipeline().(*devicetest.Pipeline)
	require.Len(t, p.Desc.VertexBuffers, 2)
	assert.Equal(t, uint32(1), p.Desc.VertexBuffers[1].Attributes[0].ShaderLocation)

	dev.Reset()
	_, err := g.Render()
	require.NoError(t, err)

	binds := dev.CallsOf(devicetest.OpBindVertexBuffers)
	require.Len(t, binds, 1)
	assert.Equal(t, []string{"positions", "normals"}, binds[0].Labels)
	assert.Equal(t, 1, dev.Count(devicetest.OpBindIndexBuffer))
}

func TestRenderStageWithoutAttachments(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	recorded := false
	g.AddGraphicsStage("compute-like", WithOnRecord(func(ps *PhysicalStage, cmd device.CommandContext) {
		recorded = true
		assert.Nil(t, ps.RenderTarget())
	}))
	require.NoError(t, g.Compile())
	dev.Reset()

	_, err := g.Render()
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Zero(t, dev.Count(devicetest.OpBeginRenderTarget))
	assert.Equal(t, 1, dev.Count(devicetest.OpBarrier))
}

func TestRenderUploadPolicies(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	verts := g.AddBuffer("verts", BufferUsageVertex)
	out := g.AddTexture("out", TextureUsageColor)
	g.AddGraphicsStage("draw").ReadsFrom(verts).WritesTo(out, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	assert.Nil(t, g.PhysicalResource(verts), "buffers without data are not allocated")
	assert.Equal(t, UploadCreate, verts.UploadPolicy())

	// first data creates the buffer
	BindSlice(verts, []float32{1, 2, 3})
	assert.Equal(t, UploadCreate, verts.UploadPolicy())
	dev.Reset()
	_, err := g.Render()
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Count(device.OpCreateBuffer))
	assert.Equal(t, UploadSkip, verts.UploadPolicy())
	assert.Equal(t, 1, g.LastFrameStats().BuffersUploaded)
	assert.Equal(t, uint64(12), g.LastFrameStats().BytesUploaded)
	first := g.PhysicalResource(verts).Buffer()

	// same size writes in place
	BindSlice(verts, []float32{4, 5, 6})
	assert.Equal(t, UploadOnly, verts.UploadPolicy())
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Zero(t, dev.Count(device.OpCreateBuffer))
	assert.Equal(t, 1, dev.Count(device.OpWriteBuffer))
	assert.Same(t, first, g.PhysicalResource(verts).Buffer())
	assert.Equal(t, []float32{4, 5, 6}, bytesToFloats(first.(*devicetest.Buffer).Data))

	// unchanged data is not uploaded
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Zero(t, dev.Count(device.OpWriteBuffer))
	assert.Zero(t, g.LastFrameStats().BuffersUploaded)

	// a new size recreates the buffer
	BindSlice(verts, []float32{1, 2, 3, 4})
	assert.Equal(t, UploadCreate, verts.UploadPolicy())
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Equal(t, []string{"release:verts"}, opsOf(dev, devicetest.OpRelease))
	assert.Equal(t, uint64(16), g.PhysicalResource(verts).Size())
	assert.True(t, first.(*devicetest.Buffer).Released())
}

func TestRenderSkipsStageUntilEveryBufferHasData(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	positions := g.AddBuffer("positions", BufferUsageVertex,
		WithVertexAttributes(12, wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 0}))
	normals := g.AddBuffer("normals", BufferUsageVertex, WithInitialData(make([]byte, 12)),
		WithVertexAttributes(12, wgpu.VertexAttribute{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 1}))
	out := g.AddTexture("out", TextureUsageColor)
	recorded := 0
	s := g.AddGraphicsStage("mesh", WithPipeline(testPipeline(t, "mesh", true)),
		WithOnRecord(func(_ *PhysicalStage, cmd device.CommandContext) {
			recorded++
			cmd.Draw(3, 1, 0, 0)
		})).
		ReadsFrom(positions).ReadsFrom(normals).
		WritesTo(out, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	p := g.PhysicalStage(s).Pipeline().(*devicetest.Pipeline)
	require.Len(t, p.Desc.VertexBuffers, 2)
	assert.Equal(t, uint32(0), p.Desc.VertexBuffers[0].Attributes[0].ShaderLocation)

	dev.Reset()
	_, err := g.Render()
	require.NoError(t, err)
	assert.Zero(t, recorded)
	assert.Zero(t, dev.Count(devicetest.OpBindVertexBuffers), "normals must not take the positions slot")
	assert.Zero(t, dev.Count(devicetest.OpBindPipeline))
	assert.Zero(t, dev.Count(devicetest.OpDraw))
	assert.Equal(t, 1, dev.Count(devicetest.OpBeginRenderTarget), "attachments are still cleared")
	assert.Equal(t, 1, dev.Count(devicetest.OpEndRenderTarget))
	assert.Equal(t, 1, dev.Count(devicetest.OpBarrier))
	stats := g.LastFrameStats()
	assert.Equal(t, 1, stats.StagesSkipped)
	assert.Zero(t, stats.StagesRecorded)

	BindSlice(positions, []float32{0, 1, 0})
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)
	binds := dev.CallsOf(devicetest.OpBindVertexBuffers)
	require.Len(t, binds, 1)
	assert.Equal(t, []string{"positions", "normals"}, binds[0].Labels)
	assert.Equal(t, 1, g.LastFrameStats().StagesRecorded)
	assert.Zero(t, g.LastFrameStats().StagesSkipped)
}

func TestRenderEmptyDataReleasesBuffer(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	verts := g.AddBuffer("verts", BufferUsageVertex, WithInitialData(make([]byte, 12)))
	out := g.AddTexture("out", TextureUsageColor)
	g.AddGraphicsStage("draw").ReadsFrom(verts).WritesTo(out, wgpu.LoadOpClear)

	require.NoError(t, g.Compile())
	first := g.PhysicalResource(verts).Buffer()
	require.NotNil(t, first)

	verts.BindData(nil)
	assert.Equal(t, UploadCreate, verts.UploadPolicy())
	dev.Reset()
	_, err := g.Render()
	require.NoError(t, err)
	assert.Equal(t, UploadSkip, verts.UploadPolicy())
	assert.Equal(t, []string{"release:verts"}, opsOf(dev, devicetest.OpRelease))
	assert.True(t, first.(*devicetest.Buffer).Released())
	assert.Nil(t, g.PhysicalResource(verts).Buffer())
	assert.Zero(t, g.PhysicalResource(verts).Size())
	assert.Zero(t, g.LastFrameStats().BuffersUploaded)
	assert.Equal(t, 1, g.LastFrameStats().StagesSkipped)

	// nothing left to do on later frames
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Zero(t, dev.Count(device.OpCreateBuffer))
	assert.Zero(t, dev.Count(device.OpWriteBuffer))
	assert.Zero(t, dev.Count(devicetest.OpRelease))

	// binding empty data again is a no-op
	verts.BindData([]byte{})
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Zero(t, dev.Count(devicetest.OpRelease))
	assert.Equal(t, UploadSkip, verts.UploadPolicy())

	// new data of the old size is a fresh buffer, not an in-place write
	BindSlice(verts, []float32{1, 2, 3})
	assert.Equal(t, UploadCreate, verts.UploadPolicy())
	dev.Reset()
	_, err = g.Render()
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Count(device.OpCreateBuffer))
	assert.Equal(t, uint64(12), g.PhysicalResource(verts).Size())
	assert.Equal(t, 1, g.LastFrameStats().StagesRecorded)
}

func TestRecordImageWithoutFramebuffer(t *testing.T) {
	g, dev, _ := newTestGraph(t, 2)
	out := g.AddTexture("out", TextureUsageColor)
	recorded := false
	g.AddGraphicsStage("mesh", WithOnRecord(func(*PhysicalStage, device.CommandContext) {
		recorded = true
	})).WritesTo(out, wgpu.LoadOpClear)
	require.NoError(t, g.Compile())

	cmd, err := dev.BeginCommands("frame")
	require.NoError(t, err)
	require.NoError(t, g.Record(cmd, 1))
	recorded = false

	err = g.Record(cmd, 2)
	require.ErrorIs(t, err, ErrNoFramebuffer)
	assert.ErrorContains(t, err, `"mesh"`)
	assert.False(t, recorded)

	// stages without attachments have no framebuffers to miss
	h, hdev, _ := newTestGraph(t, 1)
	h.AddGraphicsStage("upload-only")
	require.NoError(t, h.Compile())
	hcmd, err := hdev.BeginCommands("frame")
	require.NoError(t, err)
	assert.NoError(t, h.Record(hcmd, 3))
}

func TestRenderOutOfDate(t *testing.T) {
	s := newShadowScene(t, 1)
	require.NoError(t, s.g.Compile())

	s.sc.OutOfDateOnAcquire()
	s.dev.Reset()
	outdated, err := s.g.Render()
	require.NoError(t, err)
	assert.True(t, outdated)
	assert.Zero(t, s.dev.Count(device.OpBeginCommands), "nothing is recorded for an out-of-date image")

	s.sc.OutOfDateOnPresent()
	s.dev.Reset()
	outdated, err = s.g.Render()
	require.NoError(t, err)
	assert.True(t, outdated)
	assert.Equal(t, 1, s.dev.Count(device.OpSubmit))
}

func TestRenderErrors(t *testing.T) {
	g, dev, _ := newTestGraph(t, 1)
	_, err := g.Render()
	assert.ErrorIs(t, err, ErrNotCompiled)
	assert.ErrorIs(t, g.Upload(), ErrNotCompiled)
	cmd, cmdErr := dev.BeginCommands("x")
	require.NoError(t, cmdErr)
	assert.ErrorIs(t, g.Record(cmd, 0), ErrNotCompiled)

	s := newShadowScene(t, 1)
	require.NoError(t, s.g.Compile())

	s.dev.FailOn(device.OpSubmit, errors.New("device lost"))
	_, err = s.g.Render()
	require.ErrorIs(t, err, device.ErrDevice)
	var devErr *device.Error
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, device.ErrorCodeLost, devErr.Code)

	s.dev.FailOn(device.OpAcquire, errors.New("timeout"))
	_, err = s.g.Render()
	assert.ErrorIs(t, err, device.ErrDevice)

	BindSlice(s.indices, []uint32{0, 1, 2, 2, 1, 0})
	s.dev.FailOn(device.OpCreateBuffer, errors.New("out of memory"))
	_, err = s.g.Render()
	var alloc *AllocationError
	require.True(t, errors.As(err, &alloc))
	assert.Equal(t, "indices", alloc.Resource)
	assert.Equal(t, device.OpCreateBuffer, alloc.Op)
}

func opsOf(dev *devicetest.Device, op string) []string {
	var out []string
	for _, c := range dev.CallsOf(op) {
		out = append(out, c.String())
	}
	return out
}

func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	copy(asBytes(out), b)
	return out
}
