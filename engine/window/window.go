package window

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window is the platform window the renderer presents into. It owns the OS event loop and reports
// framebuffer size changes so the render graph can be recompiled for the new extent.
type Window interface {
	// SetUpdateCallback registers the function called once per iteration of the message loop,
	// after pending OS events have been processed.
	//
	// Parameters:
	//   - callback: the function to call each loop iteration
	SetUpdateCallback(callback func())

	// SetResizeCallback registers the function called when the framebuffer size changes.
	// Sizes are in pixels, which may differ from the window size on high-DPI displays.
	//
	// Parameters:
	//   - callback: the function receiving the new framebuffer width and height
	SetResizeCallback(callback func(width, height int))

	// SetKeyDownCallback registers the function called when a key is pressed or repeats.
	// Escape always closes the window and is not forwarded.
	//
	// Parameters:
	//   - callback: the function receiving the platform key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SurfaceDescriptor returns the platform surface descriptor used to create a WebGPU surface.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil if the window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Extent returns the current framebuffer size in pixels.
	Extent() common.Extent2D

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// Close destroys the window and terminates the platform layer.
	//
	// Returns:
	//   - error: error if the window is not initialized
	Close() error

	// ProcessMessages runs the message loop on the calling thread until the window closes.
	ProcessMessages()
}

type engineWindow struct {
	title string

	maxWidth  int
	maxHeight int
	minWidth  int
	minHeight int

	width  int
	height int

	internalWindow any
	logger         *slog.Logger

	onUpdate  func()
	onResize  func(width, height int)
	onKeyDown func(keyCode uint32)
}

var _ Window = &engineWindow{}

// NewWindow creates and opens a platform window with the provided options.
// Must be called from the main thread; the calling goroutine is locked to its OS thread.
//
// Parameters:
//   - options: functional options for title, size, size limits and logger
//
// Returns:
//   - Window: the opened window
//   - error: error if the options are inconsistent or the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w, err := newEngineWindow(options...)
	if err != nil {
		return nil, err
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	w.logger.Info("window opened", "title", w.title, "extent", w.Extent().String())
	return w, nil
}

// newEngineWindow applies options over the defaults and validates the size limits.
func newEngineWindow(options ...WindowBuilderOption) (*engineWindow, error) {
	w := &engineWindow{
		title:     "Default Window Title",
		maxWidth:  1600,
		maxHeight: 1200,
		minWidth:  600,
		minHeight: 200,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	w.logger = common.LoggerOrNop(w.logger)

	if w.minWidth > w.maxWidth || w.minHeight > w.maxHeight {
		return nil, fmt.Errorf("invalid window limits: min %dx%d exceeds max %dx%d", w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)
	}
	w.width = min(max(w.width, w.minWidth), w.maxWidth)
	w.height = min(max(w.height, w.minHeight), w.maxHeight)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) Extent() common.Extent2D {
	return common.NewExtent2D(w.width, w.height)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if succ := platformProcessMessages(w); !succ {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

// resized records a new framebuffer size and forwards it to the resize callback.
func (w *engineWindow) resized(width, height int) {
	w.logger.Debug("framebuffer resized", "from", w.Extent().String(), "to", common.NewExtent2D(width, height).String())
	w.width = width
	w.height = height
	if w.onResize != nil {
		w.onResize(width, height)
	}
}
