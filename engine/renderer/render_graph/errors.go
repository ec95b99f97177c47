package render_graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic error checking via errors.Is().
var (
	// ErrConfiguration indicates the declared graph cannot be compiled: a cycle, a second writer, an invalid
	// resolve or attachment arrangement. Every *ConfigError unwraps to it.
	ErrConfiguration = errors.New("render graph configuration error")

	// ErrNotCompiled is returned by frame operations called before a successful Compile.
	ErrNotCompiled = errors.New("render graph not compiled")

	// ErrNoFramebuffer is returned by Record when a stage with a render target has no framebuffer for the
	// requested swap chain image, e.g. after the image count changed without a Compile.
	ErrNoFramebuffer = errors.New("render graph stage has no framebuffer for swap chain image")
)

// ConfigErrorKind names the rule a configuration error violates.
type ConfigErrorKind string

const (
	KindCycle               ConfigErrorKind = "cycle"
	KindMultipleWriters     ConfigErrorKind = "multiple_writers"
	KindForeignResource     ConfigErrorKind = "foreign_resource"
	KindInvalidResolve      ConfigErrorKind = "invalid_resolve"
	KindInvalidSampleCount  ConfigErrorKind = "invalid_sample_count"
	KindAttachmentOrder     ConfigErrorKind = "attachment_order"
	KindInvalidVertexLayout ConfigErrorKind = "invalid_vertex_layout"
	KindDuplicateBackBuffer ConfigErrorKind = "duplicate_back_buffer"
	KindMultipleDepth       ConfigErrorKind = "multiple_depth"
	KindEmptyStageName      ConfigErrorKind = "empty_stage_name"
	KindMissingShader       ConfigErrorKind = "missing_shader"
)

// ConfigError is a violation of the graph's structural rules, found by Compile before any device call.
// Wraps ErrConfiguration for errors.Is() compatibility.
type ConfigError struct {
	Kind     ConfigErrorKind
	Stage    string   // offending stage, if any
	Resource string   // offending resource, if any
	Stages   []string // every stage involved, for cycles and multiple writers
	Msg      string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(ErrConfiguration.Error())
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		fmt.Fprintf(&b, ": stage %q", e.Stage)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ": resource %q", e.Resource)
	}
	if len(e.Stages) > 0 {
		fmt.Fprintf(&b, ": stages %q", e.Stages)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// AllocationError is a device failure while Compile or Upload created a physical object. Err is the
// device's error, normally a *device.Error.
type AllocationError struct {
	Stage    string
	Resource string
	Op       string
	Err      error
}

func (e *AllocationError) Error() string {
	if e == nil {
		return ""
	}
	subject := ""
	switch {
	case e.Stage != "":
		subject = fmt.Sprintf("stage %q", e.Stage)
	case e.Resource != "":
		subject = fmt.Sprintf("resource %q", e.Resource)
	}
	return fmt.Sprintf("render graph: %s %s: %v", e.Op, subject, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
