// Package render_graph compiles a declarative description of a frame, named resources and the stages that read and
// write them, into ordered execution groups and the device objects needed to record them, then records and
// presents one frame per Render call.
//
// A graph is single-threaded: every method must be called from the same goroutine as Render.
package render_graph

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// FrameStats describes the work done by the last Render call.
type FrameStats struct {
	ImageIndex     int
	Groups         int
	StagesRecorded int
	// StagesSkipped counts stages whose callback was not run because a buffer they read has no data
	StagesSkipped   int
	Barriers        int
	BuffersUploaded int
	BytesUploaded   uint64
}

// renderGraph is the implementation of the RenderGraph interface.
type renderGraph struct {
	name      string
	logger    *slog.Logger
	device    device.Device
	swapchain device.Swapchain

	resources []Resource
	buffers   []*BufferResource
	textures  []*TextureResource
	stages    []*GraphicsStage

	// physicalResources and physicalStages are rebuilt by every Compile
	physicalResources []*PhysicalResource
	physicalStages    []*PhysicalStage
	groups            [][]*GraphicsStage
	compiled          bool

	stats FrameStats
}

// RenderGraph defines the interface for a frame graph: resources and graphics stages are declared through the Add
// methods and the stages' read/write edges, Compile orders the stages and allocates every device object, and
// Render records, submits and presents one frame.
type RenderGraph interface {
	// Name returns the graph name, used as the label of recorded command work.
	//
	// Returns:
	//   - string: the graph name
	Name() string

	// AddBuffer declares an index or vertex buffer.
	//
	// Parameters:
	//   - name: the resource name
	//   - usage: BufferUsageIndex or BufferUsageVertex
	//   - opts: a variadic list of BufferResourceOption functions
	//
	// Returns:
	//   - *BufferResource: the new buffer, valid for the life of the graph
	AddBuffer(name string, usage BufferUsage, opts ...BufferResourceOption) *BufferResource

	// AddTexture declares a texture sized to the swap chain.
	//
	// Parameters:
	//   - name: the resource name
	//   - usage: TextureUsageBackBuffer, TextureUsageColor or TextureUsageDepthStencil
	//   - opts: a variadic list of TextureResourceOption functions
	//
	// Returns:
	//   - *TextureResource: the new texture, valid for the life of the graph
	AddTexture(name string, usage TextureUsage, opts ...TextureResourceOption) *TextureResource

	// AddGraphicsStage declares a graphics stage. Stages are ordered solely by their read/write edges;
	// registration order only breaks ties inside an execution group.
	//
	// Parameters:
	//   - name: the stage name, must not be empty
	//   - opts: a variadic list of GraphicsStageOption functions
	//
	// Returns:
	//   - *GraphicsStage: the new stage, valid for the life of the graph
	AddGraphicsStage(name string, opts ...GraphicsStageOption) *GraphicsStage

	// Buffers returns every declared buffer in declaration order.
	Buffers() []*BufferResource

	// Textures returns every declared texture in declaration order.
	Textures() []*TextureResource

	// Stages returns every declared stage in declaration order.
	Stages() []*GraphicsStage

	// Compile validates the graph, schedules the stages into execution groups and (re)creates every device object.
	// A configuration error is returned before any device call. Objects from a previous Compile are released first,
	// so Compile may be called again after a resize or a topology change.
	//
	// Returns:
	//   - error: a *ConfigError, an *AllocationError, or the error of a stage's compile callback
	Compile() error

	// Render acquires a swap chain image, uploads changed buffers, records every stage and presents the image.
	//
	// Returns:
	//   - bool: true if the swap chain is out of date; reconfigure it and Compile before the next frame
	//   - error: ErrNotCompiled, or a device or upload failure
	Render() (bool, error)

	// Upload writes staged buffer data to the device, recreating buffers whose size changed.
	//
	// Returns:
	//   - error: ErrNotCompiled or an *AllocationError
	Upload() error

	// Record records every stage, in execution order, into cmd for swap chain image imageIndex. A stage reading a
	// buffer that has no data yet still clears its attachments, but its callback is not run.
	//
	// Parameters:
	//   - cmd: the open command context
	//   - imageIndex: the acquired swap chain image
	//
	// Returns:
	//   - error: ErrNotCompiled if the graph has not been compiled, ErrNoFramebuffer if imageIndex is outside the
	//     compiled swap chain images
	Record(cmd device.CommandContext, imageIndex int) error

	// ExecutionGroups returns the stages of the last successful Compile, grouped so that every stage only depends on
	// stages of earlier groups.
	//
	// Returns:
	//   - [][]*GraphicsStage: the execution groups in order
	ExecutionGroups() [][]*GraphicsStage

	// PhysicalResource returns the device memory backing r, or nil if r has none.
	PhysicalResource(r Resource) *PhysicalResource

	// PhysicalStage returns the device objects of s, or nil if s has none.
	PhysicalStage(s *GraphicsStage) *PhysicalStage

	// Device returns the device the graph allocates from.
	Device() device.Device

	// Swapchain returns the swap chain the graph renders into.
	Swapchain() device.Swapchain

	// LastFrameStats returns statistics for the last Render call.
	LastFrameStats() FrameStats

	// Release frees every device object the graph owns. The graph must be compiled again before rendering.
	Release()
}

var _ RenderGraph = &renderGraph{}

// NewRenderGraph is the entry point to create a new RenderGraph that allocates from dev and renders into sc.
//
// Parameters:
//   - dev: the device to allocate from
//   - sc: the swap chain to render into
//   - opts: a variadic list of RenderGraphBuilderOption functions
//
// Returns:
//   - RenderGraph: the new, empty graph
func NewRenderGraph(dev device.Device, sc device.Swapchain, opts ...RenderGraphBuilderOption) RenderGraph {
	g := &renderGraph{
		name:      "render graph",
		device:    dev,
		swapchain: sc,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = common.LoggerOrNop(g.logger)
	return g
}

func (g *renderGraph) Name() string {
	return g.name
}

func (g *renderGraph) AddBuffer(name string, usage BufferUsage, opts ...BufferResourceOption) *BufferResource {
	b := &BufferResource{
		resourceBase: g.newResourceBase(name),
		usage:        usage,
		indexFormat:  wgpu.IndexFormatUint32,
		policy:       UploadCreate,
	}
	for _, opt := range opts {
		opt(b)
	}
	g.resources = append(g.resources, b)
	g.buffers = append(g.buffers, b)
	return b
}

func (g *renderGraph) AddTexture(name string, usage TextureUsage, opts ...TextureResourceOption) *TextureResource {
	t := &TextureResource{
		resourceBase: g.newResourceBase(name),
		usage:        usage,
		sampleCount:  1,
	}
	switch usage {
	case TextureUsageDepthStencil:
		t.format = wgpu.TextureFormatDepth32Float
		t.clear.Depth = 1
	default:
		t.clear.Color = wgpu.Color{R: 0, G: 0, B: 0, A: 1}
	}
	for _, opt := range opts {
		opt(t)
	}
	g.resources = append(g.resources, t)
	g.textures = append(g.textures, t)
	return t
}

func (g *renderGraph) AddGraphicsStage(name string, opts ...GraphicsStageOption) *GraphicsStage {
	s := &GraphicsStage{
		name:     name,
		owner:    g,
		order:    len(g.stages),
		physical: -1,
	}
	s.SetOnRecord(nil)
	for _, opt := range opts {
		opt(s)
	}
	g.stages = append(g.stages, s)
	return s
}

func (g *renderGraph) newResourceBase(name string) resourceBase {
	return resourceBase{
		id:       ResourceID(len(g.resources)),
		name:     name,
		owner:    g,
		physical: -1,
	}
}

func (g *renderGraph) Buffers() []*BufferResource {
	return g.buffers
}

func (g *renderGraph) Textures() []*TextureResource {
	return g.textures
}

func (g *renderGraph) Stages() []*GraphicsStage {
	return g.stages
}

func (g *renderGraph) ExecutionGroups() [][]*GraphicsStage {
	return g.groups
}

func (g *renderGraph) PhysicalResource(r Resource) *PhysicalResource {
	if r == nil || r.base().owner != g {
		return nil
	}
	return g.physicalOf(r)
}

func (g *renderGraph) PhysicalStage(s *GraphicsStage) *PhysicalStage {
	if s == nil || s.owner != g || s.physical < 0 || s.physical >= len(g.physicalStages) {
		return nil
	}
	return g.physicalStages[s.physical]
}

func (g *renderGraph) Device() device.Device {
	return g.device
}

func (g *renderGraph) Swapchain() device.Swapchain {
	return g.swapchain
}

func (g *renderGraph) LastFrameStats() FrameStats {
	return g.stats
}

func (g *renderGraph) Release() {
	g.releasePhysical()
	g.groups = nil
	g.compiled = false
}

// physicalOf returns the physical entry of r, or nil.
func (g *renderGraph) physicalOf(r Resource) *PhysicalResource {
	idx := r.base().physical
	if idx < 0 || idx >= len(g.physicalResources) {
		return nil
	}
	return g.physicalResources[idx]
}

// setPhysical stores pr in the arena as r's physical resource.
func (g *renderGraph) setPhysical(r Resource, pr *PhysicalResource) {
	rb := r.base()
	if rb.physical >= 0 && rb.physical < len(g.physicalResources) {
		g.physicalResources[rb.physical] = pr
		return
	}
	rb.physical = len(g.physicalResources)
	g.physicalResources = append(g.physicalResources, pr)
}

// releasePhysical empties both physical arenas, releasing every graph-owned device object.
func (g *renderGraph) releasePhysical() {
	for _, ps := range g.physicalStages {
		ps.release()
	}
	for _, pr := range g.physicalResources {
		pr.release()
	}
	g.physicalStages = nil
	g.physicalResources = nil
	for _, r := range g.resources {
		r.base().physical = -1
	}
	for _, s := range g.stages {
		s.physical = -1
	}
}
