package render_graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// RecordFunc records a stage's draw calls. It runs between the stage's render target begin and end, after the
// graph has bound the stage's buffers and pipeline.
type RecordFunc func(ps *PhysicalStage, cmd device.CommandContext)

// CompileFunc runs after a stage's physical objects are created, so the stage can build objects that depend on them,
// such as bind groups sampling a texture another stage writes.
type CompileFunc func(ps *PhysicalStage, g RenderGraph) error

// Write is one write edge of a stage. LoadOp and StoreOp only matter for textures.
type Write struct {
	Resource Resource
	LoadOp   wgpu.LoadOp
	StoreOp  wgpu.StoreOp
}

// GraphicsStage is a unit of GPU command recording: it reads and writes graph resources through one pipeline.
type GraphicsStage struct {
	name  string
	owner *renderGraph
	// order is the registration index, used to keep scheduling deterministic
	order     int
	reads     []Resource
	writes    []Write
	pipeline  pipeline.Pipeline
	onRecord  RecordFunc
	onCompile CompileFunc
	// errs collects misuse of the builder methods, reported by Compile
	errs []error
	// physical indexes owner.physicalStages, -1 when unallocated
	physical int
}

// Name returns the stage name.
func (s *GraphicsStage) Name() string {
	return s.name
}

// Reads returns the resources the stage reads, in first-declaration order.
func (s *GraphicsStage) Reads() []Resource {
	return s.reads
}

// Writes returns the stage's explicit writes, in declaration order. Implicit resolve targets are not included.
func (s *GraphicsStage) Writes() []Write {
	return s.writes
}

// Pipeline returns the stage's fixed-function state, or nil.
func (s *GraphicsStage) Pipeline() pipeline.Pipeline {
	return s.pipeline
}

// WritesTo declares that the stage writes r. For textures, the order of first writes is the stage's attachment order,
// loadOp decides whether the attachment is cleared or loaded, and storeOp (default wgpu.StoreOpStore) whether the
// result is kept. Writing the same resource again only updates its ops.
//
// Parameters:
//   - r: the written resource
//   - loadOp: the attachment load op
//   - storeOp: optional attachment store op
//
// Returns:
//   - *GraphicsStage: the stage, for chaining
func (s *GraphicsStage) WritesTo(r Resource, loadOp wgpu.LoadOp, storeOp ...wgpu.StoreOp) *GraphicsStage {
	if !s.owns(r) {
		return s
	}
	w := Write{Resource: r, LoadOp: loadOp, StoreOp: wgpu.StoreOpStore}
	if len(storeOp) > 0 {
		w.StoreOp = storeOp[0]
	}
	for i := range s.writes {
		if s.writes[i].Resource == r {
			s.writes[i] = w
			return s
		}
	}
	s.writes = append(s.writes, w)
	return s
}

// ReadsFrom declares that the stage reads r. Texture reads order the stage after r's producer; buffer reads do not.
// Reading a resource twice has no further effect.
//
// Parameters:
//   - r: the read resource
//
// Returns:
//   - *GraphicsStage: the stage, for chaining
func (s *GraphicsStage) ReadsFrom(r Resource) *GraphicsStage {
	if !s.owns(r) {
		return s
	}
	for _, existing := range s.reads {
		if existing == r {
			return s
		}
	}
	s.reads = append(s.reads, r)
	return s
}

// SetOnRecord sets the callback that records the stage's draw calls.
func (s *GraphicsStage) SetOnRecord(fn RecordFunc) *GraphicsStage {
	if fn == nil {
		fn = func(*PhysicalStage, device.CommandContext) {}
	}
	s.onRecord = fn
	return s
}

// SetOnCompile sets the callback run after the stage's physical objects are created.
func (s *GraphicsStage) SetOnCompile(fn CompileFunc) *GraphicsStage {
	s.onCompile = fn
	return s
}

func (s *GraphicsStage) owns(r Resource) bool {
	if r == nil {
		s.errs = append(s.errs, &ConfigError{Kind: KindForeignResource, Stage: s.name, Msg: "nil resource"})
		return false
	}
	if r.base().owner != s.owner {
		s.errs = append(s.errs, &ConfigError{
			Kind:     KindForeignResource,
			Stage:    s.name,
			Resource: r.Name(),
			Msg:      "resource belongs to another graph",
		})
		return false
	}
	return true
}

// writesResource reports whether r is one of the stage's explicit writes.
func (s *GraphicsStage) writesResource(r Resource) bool {
	for _, w := range s.writes {
		if w.Resource == r {
			return true
		}
	}
	return false
}

// effectiveWrites returns the explicit writes followed by implicit resolve targets of written multisampled textures.
func (s *GraphicsStage) effectiveWrites() []Write {
	out := append([]Write(nil), s.writes...)
	for _, w := range s.writes {
		tex, ok := w.Resource.(*TextureResource)
		if !ok || tex.resolveTarget == nil || tex.sampleCount <= 1 {
			continue
		}
		if s.writesResource(tex.resolveTarget) || containsWrite(out, tex.resolveTarget) {
			continue
		}
		out = append(out, Write{Resource: tex.resolveTarget, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore})
	}
	return out
}

func containsWrite(ws []Write, r Resource) bool {
	for _, w := range ws {
		if w.Resource == r {
			return true
		}
	}
	return false
}

func (s *GraphicsStage) String() string {
	return fmt.Sprintf("stage %q", s.name)
}
