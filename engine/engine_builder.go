package engine

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/render_graph"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler, e.g. to change its update interval.
//
// Parameters:
//   - p: the profiler to tick each frame
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for game logic updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = frameDuration(fps)
	}
}

// WithWindow sets the window the engine runs its message loop on.
//
// Parameters:
//   - w: an opened Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderer sets the renderer whose surface is reconfigured on resize.
//
// Parameters:
//   - r: a Renderer created on the engine's window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithGraph sets the render graph executed every frame. The graph must be built on the
// renderer's device and swap chain.
//
// Parameters:
//   - g: the RenderGraph to compile and render
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithGraph(g render_graph.RenderGraph) EngineBuilderOption {
	return func(e *engine) {
		e.graph = g
	}
}

// WithLogger sets the logger for lifecycle events and fatal frame errors.
//
// Parameters:
//   - logger: the slog.Logger to use; nil discards output
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameDuration(fps)
	}
}

// withTickInterval is used by tests that need sub-millisecond tick precision.
func withTickInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = d
	}
}
