package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/render_graph"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/window"
)

// engine implements the Engine interface.
// Frames are driven from the window's message loop; only the tick loop runs on its own goroutine.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer
	graph    render_graph.RenderGraph
	logger   *slog.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	// recompile is raised by resize notifications and out-of-date presents, and consumed
	// by the next frame on the window thread.
	recompile    atomic.Bool
	lastRender   time.Time
	windowClosed bool
	err          error
}

// Engine is the main entry point for the engine.
// It owns the window, renderer and render graph and drives one graph frame per message loop
// iteration, recompiling the graph whenever the swap chain is invalidated.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer presenting into the window.
	//
	// Returns:
	//   - renderer.Renderer: the renderer instance
	Renderer() renderer.Renderer

	// Graph returns the render graph executed each frame.
	//
	// Returns:
	//   - render_graph.RenderGraph: the graph instance
	Graph() render_graph.RenderGraph

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// The tick runs on its own goroutine and must not touch the render graph.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called on the window thread before each graph frame.
	// Use this to bind new buffer data to graph resources.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Invalidate requests a surface reconfigure and graph recompile before the next frame.
	// Safe to call from any goroutine.
	Invalidate()

	// Run compiles the graph and runs the message loop until the window closes or Quit is called.
	// Blocks the calling (main) thread.
	//
	// Returns:
	//   - error: the compile or frame error that stopped the engine, nil on a normal shutdown
	Run() error

	// Quit signals all engine goroutines to stop and closes the window on the next loop iteration.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// A window, renderer and render graph are required.
//
// Parameters:
//   - options: functional options for engine configuration (window, renderer, graph, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if a required collaborator is missing
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		wg:               sync.WaitGroup{},
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	switch {
	case e.window == nil:
		return nil, errors.New("engine: a window is required")
	case e.renderer == nil:
		return nil, errors.New("engine: a renderer is required")
	case e.graph == nil:
		return nil, errors.New("engine: a render graph is required")
	}

	e.logger = common.LoggerOrNop(e.logger)
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(e.logger)
	}

	e.window.SetResizeCallback(func(width, height int) {
		e.recompile.Store(true)
	})
	e.window.SetUpdateCallback(e.frame)

	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Graph() render_graph.RenderGraph {
	return e.graph
}

func (e *engine) Invalidate() {
	e.recompile.Store(true)
}

func (e *engine) Run() error {
	if err := e.graph.Compile(); err != nil {
		e.logger.Error("initial graph compile failed", "graph", e.graph.Name(), "err", err)
		return fmt.Errorf("engine: compile %q: %w", e.graph.Name(), err)
	}

	e.running.Store(true)
	e.lastRender = time.Now()
	e.handle()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.closeWindow()
	return e.err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

func (e *engine) quitting() bool {
	select {
	case <-e.quitChannel:
		return true
	default:
		return false
	}
}

func (e *engine) closeWindow() {
	if e.windowClosed {
		return
	}
	e.windowClosed = true
	if err := e.window.Close(); err != nil {
		e.logger.Debug("window close", "err", err)
	}
}

// fatal logs a frame error, records it for Run and stops the engine.
func (e *engine) fatal(msg string, err error) {
	e.logger.Error(msg, "graph", e.graph.Name(), "err", err)
	if e.err == nil {
		e.err = err
	}
	e.signalQuit()
}

// handle launches the tick and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// frame runs one iteration of the render loop on the window thread: consume a pending
// recompile, run the render callback, render and present the graph, then apply the frame cap.
func (e *engine) frame() {
	if e.quitting() {
		e.closeWindow()
		return
	}

	now := time.Now()
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now

	extent := e.window.Extent()
	if extent.Empty() {
		// minimized
		return
	}

	if e.recompile.Swap(false) {
		if err := e.rebuild(extent); err != nil {
			e.fatal("graph recompile failed", err)
			return
		}
	}

	if e.renderCallback != nil {
		e.renderCallback(dt)
	}

	outdated, err := e.graph.Render()
	if err != nil {
		e.fatal("frame failed", err)
		return
	}
	if outdated {
		e.recompile.Store(true)
	}

	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick(e.graph.LastFrameStats())
	}

	// Frame rate limiting
	if e.renderFrameLimit > 0 {
		elapsed := time.Since(now)
		if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// rebuild reconfigures the surface for the window's extent and recompiles the graph.
func (e *engine) rebuild(extent common.Extent2D) error {
	e.logger.Info("swap chain invalidated, recompiling", "graph", e.graph.Name(), "extent", extent.String())
	if err := e.renderer.Resize(int(extent.Width), int(extent.Height)); err != nil {
		return fmt.Errorf("engine: resize: %w", err)
	}
	if err := e.graph.Compile(); err != nil {
		return fmt.Errorf("engine: compile %q: %w", e.graph.Name(), err)
	}
	return nil
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

// frameDuration converts a rate in frames per second to a frame duration, 0 for non-positive rates.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
