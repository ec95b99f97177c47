package render_graph

import "github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/pipeline"

// GraphicsStageOption is a functional option used to configure a GraphicsStage during AddGraphicsStage.
type GraphicsStageOption func(*GraphicsStage)

// WithPipeline sets the fixed-function state and shaders the stage draws with. A stage without a pipeline still
// begins and ends its render target, which is enough to clear attachments.
//
// Parameters:
//   - p: the pipeline state
//
// Returns:
//   - GraphicsStageOption: a function that sets the pipeline
func WithPipeline(p pipeline.Pipeline) GraphicsStageOption {
	return func(s *GraphicsStage) {
		s.pipeline = p
	}
}

// WithOnRecord sets the callback that records the stage's draw calls.
//
// Parameters:
//   - fn: the record callback
//
// Returns:
//   - GraphicsStageOption: a function that sets the callback
func WithOnRecord(fn RecordFunc) GraphicsStageOption {
	return func(s *GraphicsStage) {
		s.SetOnRecord(fn)
	}
}

// WithOnCompile sets the callback run after the stage's physical objects are created.
//
// Parameters:
//   - fn: the compile callback
//
// Returns:
//   - GraphicsStageOption: a function that sets the callback
func WithOnCompile(fn CompileFunc) GraphicsStageOption {
	return func(s *GraphicsStage) {
		s.onCompile = fn
	}
}
