package render_graph

import "log/slog"

// RenderGraphBuilderOption is a functional option used to configure a RenderGraph during construction.
type RenderGraphBuilderOption func(*renderGraph)

// WithName sets the graph name, used to label recorded work and log lines.
//
// Parameters:
//   - name: the graph name
//
// Returns:
//   - RenderGraphBuilderOption: a function that sets the name
func WithName(name string) RenderGraphBuilderOption {
	return func(g *renderGraph) {
		g.name = name
	}
}

// WithLogger sets the logger compile summaries and allocation details are written to. Defaults to a silent logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RenderGraphBuilderOption: a function that sets the logger
func WithLogger(logger *slog.Logger) RenderGraphBuilderOption {
	return func(g *renderGraph) {
		g.logger = logger
	}
}
