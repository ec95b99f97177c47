package renderer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	logger      *slog.Logger

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	presentMode          PresentMode
	msaa                 MSAASampleCount
	maxBindGroups        uint32
}

// SurfaceSource is the window-side collaborator the Renderer needs: a platform surface descriptor
// and the current framebuffer size in pixels.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Extent() common.Extent2D
}

// Renderer owns the GPU backend for a single window surface.
//
// The Renderer does not record any drawing itself. It exposes the backend as a device.Device and
// a device.Swapchain so a render graph can allocate its resources and drive frames through it.
type Renderer interface {
	// Device returns the device context used to create GPU objects and command contexts.
	//
	// Returns:
	//   - device.Device: the backend's device context
	Device() device.Device

	// Swapchain returns the presentation surface of the window.
	//
	// Returns:
	//   - device.Swapchain: the backend's swap chain provider
	Swapchain() device.Swapchain

	// BackendType returns the backend implementation selected at construction.
	BackendType() RendererBackendType

	// SampleCount returns the MSAA sample count configured for this renderer. Render graph
	// color and depth textures that should be multisampled use this value.
	SampleCount() MSAASampleCount

	// Resize reconfigures the surface for a new framebuffer size.
	// Any render graph built on the swap chain must be recompiled afterwards.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be reconfigured
	Resize(width, height int) error

	// SetPresentMode changes how frames are delivered to the display and reconfigures the surface.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	//
	// Returns:
	//   - error: an error if the surface could not be reconfigured
	SetPresentMode(mode PresentMode) error

	// Release destroys the backend. Render graphs built on it must be released first.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer instance with the specified backend type and builder options.
// The surface is configured for the source's current extent before returning.
//
// Parameters:
//   - backendType: the type of rendering backend to use (e.g., WGPU)
//   - source: the window supplying the platform surface descriptor and framebuffer size
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if no adapter or device could be acquired, or the surface could not be configured
func NewRenderer(backendType RendererBackendType, source SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		backendType:   backendType,
		presentMode:   PresentModeUncapped,
		msaa:          MSAA4x,
		maxBindGroups: 8,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	r.logger = common.LoggerOrNop(r.logger)

	if !r.msaa.Valid() {
		return nil, fmt.Errorf("unsupported MSAA sample count %d", r.msaa)
	}

	desc := source.SurfaceDescriptor()
	if desc == nil {
		return nil, fmt.Errorf("window has no surface descriptor")
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		backend, err := newWGPURendererBackend(wgpuBackendConfig{
			surfaceDescriptor:    desc,
			forceFallbackAdapter: r.forceFallbackAdapter,
			maxBindGroups:        r.maxBindGroups,
			logger:               r.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s backend: %w", backendType, err)
		}
		r.backend = backend
	}

	r.backend.SetPresentMode(r.presentMode)
	if err := r.backend.Configure(source.Extent()); err != nil {
		r.backend.Release()
		return nil, err
	}

	r.logger.Info("renderer ready",
		"backend", backendType.String(),
		"fallback_adapter", r.forceFallbackAdapter,
		"format", r.backend.Format().String(),
		"extent", r.backend.Extent().String(),
		"present_mode", r.presentMode.String(),
		"msaa", uint32(r.msaa),
	)
	return r, nil
}

func (r *renderer) Device() device.Device {
	return r.backend
}

func (r *renderer) Swapchain() device.Swapchain {
	return r.backend
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) SampleCount() MSAASampleCount {
	return r.msaa
}

func (r *renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	extent := common.NewExtent2D(width, height)
	r.logger.Debug("resizing surface", "extent", extent.String())
	return r.backend.Configure(extent)
}

func (r *renderer) SetPresentMode(mode PresentMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.presentMode = mode
	r.backend.SetPresentMode(mode)
	return r.backend.Configure(r.backend.Extent())
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.backend != nil {
		r.backend.Release()
		r.backend = nil
	}
}
