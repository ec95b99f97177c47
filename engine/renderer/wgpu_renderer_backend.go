package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// maxPushConstantSize is requested from adapters that support push constants.
const maxPushConstantSize = 128

type wgpuBackendConfig struct {
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	maxBindGroups        uint32
	logger               *slog.Logger
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	logger        *slog.Logger
	pushConstants bool

	surfaceFormat wgpu.TextureFormat
	alphaMode     wgpu.CompositeAlphaMode
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)
	extent        common.Extent2D

	// The surface is exposed as a single image whose texture and view are swapped on every
	// acquire, so framebuffers built on it stay valid across frames.
	image    *wgpuTexture
	acquired bool
}

type wgpuRendererBackend interface {
	rendererBackend

	Device() *wgpu.Device
	Queue() *wgpu.Queue
	Instance() *wgpu.Instance
	Adapter() *wgpu.Adapter
	Surface() *wgpu.Surface
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(cfg wgpuBackendConfig) (wgpuRendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		logger:      common.LoggerOrNop(cfg.logger),
		presentMode: wgpu.PresentModeImmediate,
		image: &wgpuTexture{
			wgpuHandle:  wgpuHandle{label: "swapchain[0]"},
			sampleCount: 1,
			surface:     true,
		},
	}
	w.surface = w.instance.CreateSurface(cfg.surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	w.adapter = a

	// Start from the WebGPU default limits and raise MaxBindGroups so pipeline layouts
	// with more than four groups are allowed.
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = cfg.maxBindGroups

	var features []wgpu.FeatureName
	pushConstants := wgpu.FeatureName(wgpu.NativeFeaturePushConstants)
	if a.HasFeature(pushConstants) {
		features = append(features, pushConstants)
		limits.MaxPushConstantSize = maxPushConstantSize
		w.pushConstants = true
	}

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: features,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	w.logger.Info("webgpu device ready",
		"fallback_adapter", cfg.forceFallbackAdapter,
		"max_bind_groups", cfg.maxBindGroups,
		"push_constants", w.pushConstants,
	)
	return w, nil
}

func (b *wgpuRendererBackendImpl) Configure(extent common.Extent2D) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	extent = clampExtent(extent)
	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return device.NewError(device.OpConfigure, errors.New("invalid surface: adapter reports no supported formats"))
	}
	b.surfaceFormat = capabilities.Formats[0]
	if len(capabilities.AlphaModes) > 0 {
		b.alphaMode = capabilities.AlphaModes[0]
	}

	b.releaseFrame()
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       extent.Width,
		Height:      extent.Height,
		PresentMode: b.presentMode,
		AlphaMode:   b.alphaMode,
	})

	b.extent = extent
	b.image.format = b.surfaceFormat
	b.image.extent = extent
	b.logger.Debug("surface configured", "format", b.surfaceFormat.String(), "extent", extent.String())
	return nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.presentMode = wgpuPresentMode(mode)
}

func (b *wgpuRendererBackendImpl) Extent() common.Extent2D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.extent
}

func (b *wgpuRendererBackendImpl) Format() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceFormat
}

func (b *wgpuRendererBackendImpl) ImageCount() int {
	return 1
}

func (b *wgpuRendererBackendImpl) Image(i int) device.Texture {
	if i != 0 {
		return nil
	}
	return b.image
}

func (b *wgpuRendererBackendImpl) AcquireNextImage() (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Acquiring twice without presenting is rejected by wgpu-native ("Surface image is already acquired").
	if b.acquired {
		return 0, false, device.NewError(device.OpAcquire, errors.New("invalid acquire: previous image not yet presented"))
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		de := device.NewError(device.OpAcquire, err)
		if de.Code == device.ErrorCodeSurfaceOutdated {
			return 0, true, nil
		}
		return 0, false, de
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return 0, false, device.NewError(device.OpAcquire, err)
	}

	b.image.texture = surfaceTexture
	b.image.view = view
	b.acquired = true
	return 0, false, nil
}

func (b *wgpuRendererBackendImpl) Present(i int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.acquired || i != 0 {
		return false, device.NewError(device.OpPresent, fmt.Errorf("invalid present: image %d is not acquired", i))
	}
	b.surface.Present()
	b.releaseFrame()
	return false, nil
}

// releaseFrame drops the acquired surface texture and its view, if any.
func (b *wgpuRendererBackendImpl) releaseFrame() {
	b.image.releaseView()
	if b.image.texture != nil {
		b.image.texture.Release()
		b.image.texture = nil
	}
	b.acquired = false
}

func (b *wgpuRendererBackendImpl) CreateBuffer(desc device.BufferDescriptor) (device.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             alignedSize(desc.Size),
		Usage:            desc.Usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, device.NewError(device.OpCreateBuffer, err)
	}
	b.logger.Debug("buffer created", "label", desc.Label, "size", desc.Size)
	return &wgpuBuffer{
		wgpuHandle: wgpuHandle{label: desc.Label},
		buffer:     buf,
		size:       desc.Size,
		usage:      desc.Usage,
	}, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	nb, err := native[*wgpuBuffer](device.OpWriteBuffer, buf)
	if err != nil {
		return err
	}
	if offset%bufferAlignment != 0 {
		return device.NewError(device.OpWriteBuffer, fmt.Errorf("invalid write to %q: offset %d is not a multiple of %d", nb.label, offset, bufferAlignment))
	}
	padded := alignedData(data)
	if offset+uint64(len(padded)) > alignedSize(nb.size) {
		return device.NewError(device.OpWriteBuffer, fmt.Errorf("invalid write to %q: %d bytes at offset %d overflow size %d", nb.label, len(data), offset, nb.size))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.WriteBuffer(nb.buffer, offset, padded)
	return nil
}

func (b *wgpuRendererBackendImpl) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sampleCount := max(desc.SampleCount, 1)
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   sampleCount,
		Dimension:     wgpu.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, device.NewError(device.OpCreateTexture, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, device.NewError(device.OpCreateTexture, err)
	}
	b.logger.Debug("texture created",
		"label", desc.Label,
		"format", desc.Format.String(),
		"samples", sampleCount,
		"extent", desc.Extent.String(),
	)
	return &wgpuTexture{
		wgpuHandle:  wgpuHandle{label: desc.Label},
		texture:     tex,
		view:        view,
		format:      desc.Format,
		sampleCount: sampleCount,
		extent:      desc.Extent,
	}, nil
}

func (b *wgpuRendererBackendImpl) CreateSampler(desc device.SamplerDescriptor) (device.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filter := common.Coalesce(desc.Filter, wgpu.FilterModeLinear)
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		Compare:       desc.Compare,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, device.NewError(device.OpCreateSampler, err)
	}
	return &wgpuSampler{wgpuHandle: wgpuHandle{label: desc.Label}, sampler: samp}, nil
}

func (b *wgpuRendererBackendImpl) CreateRenderTarget(desc device.RenderTargetDescriptor) (device.RenderTarget, error) {
	layout, err := layoutRenderPass(desc.Attachments)
	if err != nil {
		return nil, device.NewError(device.OpCreateRenderTarget, err)
	}
	return &wgpuRenderTarget{
		wgpuHandle:  wgpuHandle{label: desc.Label},
		attachments: append([]device.AttachmentDescriptor(nil), desc.Attachments...),
		layout:      layout,
	}, nil
}

func (b *wgpuRendererBackendImpl) CreatePipelineLayout(desc device.PipelineLayoutDescriptor) (device.PipelineLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := &wgpuPipelineLayout{wgpuHandle: wgpuHandle{label: desc.Label}}
	for g, groupDesc := range desc.BindGroupLayouts {
		layout, err := b.device.CreateBindGroupLayout(&groupDesc)
		if err != nil {
			l.Release()
			return nil, device.NewError(device.OpCreatePipelineLayout, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err))
		}
		l.groups = append(l.groups, layout)
		l.groupEntries = append(l.groupEntries, groupDesc.Entries)
	}

	ranges := make([]wgpu.PushConstantRange, 0, len(desc.PushConstantRanges))
	for _, r := range desc.PushConstantRanges {
		ranges = append(ranges, wgpu.PushConstantRange{Stages: r.Stages, Start: r.Start, End: r.End})
	}
	if len(ranges) > 0 && !b.pushConstants {
		l.Release()
		return nil, device.NewError(device.OpCreatePipelineLayout, errors.New("invalid layout: push constants are not supported by this adapter"))
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:              desc.Label,
		BindGroupLayouts:   l.groups,
		PushConstantRanges: ranges,
	})
	if err != nil {
		l.Release()
		return nil, device.NewError(device.OpCreatePipelineLayout, err)
	}
	l.layout = layout
	return l, nil
}

func (b *wgpuRendererBackendImpl) CreatePipeline(desc device.PipelineDescriptor) (device.Pipeline, error) {
	layout, err := native[*wgpuPipelineLayout](device.OpCreatePipeline, desc.Layout)
	if err != nil {
		return nil, err
	}
	target, err := native[*wgpuRenderTarget](device.OpCreatePipeline, desc.RenderTarget)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	vs, err := b.shaderModule(desc.Vertex)
	if err != nil {
		return nil, err
	}
	defer vs.Release()

	var fragment *wgpu.FragmentState
	if desc.Fragment != nil {
		fs, err := b.shaderModule(*desc.Fragment)
		if err != nil {
			return nil, err
		}
		defer fs.Release()

		fragment = &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    colorTargets(target.attachments, target.layout, desc.Blend, desc.WriteMask),
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    vertexBufferLayouts(desc.VertexBuffers),
		},
		Fragment: fragment,
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: desc.FrontFace,
			CullMode:  desc.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencilState(desc, target.attachments, target.layout),
	})
	if err != nil {
		return nil, device.NewError(device.OpCreatePipeline, err)
	}
	b.logger.Debug("pipeline created", "label", desc.Label, "samples", desc.SampleCount)
	return &wgpuPipeline{
		wgpuHandle: wgpuHandle{label: desc.Label},
		pipeline:   created,
		layout:     layout,
	}, nil
}

func (b *wgpuRendererBackendImpl) shaderModule(desc device.ShaderDescriptor) (*wgpu.ShaderModule, error) {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, device.NewError(device.OpCreatePipeline, fmt.Errorf("shader %q: %w", desc.Label, err))
	}
	return module, nil
}

func (b *wgpuRendererBackendImpl) CreateFramebuffer(desc device.FramebufferDescriptor) (device.Framebuffer, error) {
	target, err := native[*wgpuRenderTarget](device.OpCreateFramebuffer, desc.RenderTarget)
	if err != nil {
		return nil, err
	}
	if len(desc.Attachments) != len(target.attachments) {
		return nil, device.NewError(device.OpCreateFramebuffer, fmt.Errorf("invalid framebuffer %q: %d attachments for a render target with %d", desc.Label, len(desc.Attachments), len(target.attachments)))
	}
	fb := &wgpuFramebuffer{
		wgpuHandle:  wgpuHandle{label: desc.Label},
		target:      target,
		attachments: make([]*wgpuTexture, 0, len(desc.Attachments)),
		extent:      desc.Extent,
	}
	for _, a := range desc.Attachments {
		tex, err := native[*wgpuTexture](device.OpCreateFramebuffer, a)
		if err != nil {
			return nil, err
		}
		fb.attachments = append(fb.attachments, tex)
	}
	return fb, nil
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(desc device.BindGroupDescriptor) (device.BindGroup, error) {
	layout, err := native[*wgpuPipelineLayout](device.OpCreateBindGroup, desc.Layout)
	if err != nil {
		return nil, err
	}
	if int(desc.Group) >= len(layout.groups) {
		return nil, device.NewError(device.OpCreateBindGroup, fmt.Errorf("invalid bind group %q: layout %q has %d groups, got index %d", desc.Label, layout.label, len(layout.groups), desc.Group))
	}

	expected := make(map[uint32]bindingKind, len(layout.groupEntries[desc.Group]))
	for _, e := range layout.groupEntries[desc.Group] {
		expected[e.Binding] = layoutEntryKind(e)
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		kind, err := entryKind(e)
		if err != nil {
			return nil, device.NewError(device.OpCreateBindGroup, err)
		}
		want, ok := expected[e.Binding]
		if !ok {
			return nil, device.NewError(device.OpCreateBindGroup, fmt.Errorf("invalid bind group %q: binding %d is not in the layout", desc.Label, e.Binding))
		}
		if want != kind {
			return nil, device.NewError(device.OpCreateBindGroup, fmt.Errorf("invalid bind group %q: binding %d expects a %s, got a %s", desc.Label, e.Binding, want, kind))
		}

		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch kind {
		case bindingKindTexture:
			tex, err := native[*wgpuTexture](device.OpCreateBindGroup, e.Texture)
			if err != nil {
				return nil, err
			}
			entry.TextureView = tex.view
		case bindingKindSampler:
			samp, err := native[*wgpuSampler](device.OpCreateBindGroup, e.Sampler)
			if err != nil {
				return nil, err
			}
			entry.Sampler = samp.sampler
		default:
			buf, err := native[*wgpuBuffer](device.OpCreateBindGroup, e.Buffer)
			if err != nil {
				return nil, err
			}
			entry.Buffer = buf.buffer
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		}
		entries = append(entries, entry)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.groups[desc.Group],
		Entries: entries,
	})
	if err != nil {
		return nil, device.NewError(device.OpCreateBindGroup, err)
	}
	return &wgpuBindGroup{wgpuHandle: wgpuHandle{label: desc.Label}, group: group}, nil
}

func (b *wgpuRendererBackendImpl) BeginCommands(label string) (device.CommandContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, device.NewError(device.OpBeginCommands, err)
	}
	return &wgpuCommandContext{backend: b, label: label, encoder: encoder}, nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrame()
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Instance() *wgpu.Instance {
	return b.instance
}

func (b *wgpuRendererBackendImpl) Adapter() *wgpu.Adapter {
	return b.adapter
}

func (b *wgpuRendererBackendImpl) Surface() *wgpu.Surface {
	return b.surface
}
