package shader

import (
	"fmt"
	"os"
)

// ShaderType identifies which programmable stage of a graphics pipeline a shader feeds.
type ShaderType int

const (
	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex ShaderType = iota

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderType(%d)", int(t))
	}
}

// shader is the implementation of the Shader interface.
type shader struct {
	key        string
	source     string
	shaderType ShaderType
	entryPoint string
}

// Shader defines the interface for a WGSL shader handed to a graphics pipeline. Compilation is the
// device's job; a Shader only carries the source and the entry point the pipeline should call.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoint returns the entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "vs_main")
	EntryPoint() string

	// ShaderType returns the type of the shader (vertex or fragment).
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex or ShaderTypeFragment
	ShaderType() ShaderType
}

var _ Shader = &shader{}

// NewShader creates a new Shader from in-memory WGSL source. The entry point is found by scanning the
// source for the first function tagged with the attribute matching shaderType, unless WithEntryPoint overrides it.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the pipeline stage the shader feeds
//   - source: the WGSL source code
//   - opts: a variadic list of ShaderBuilderOption functions
//
// Returns:
//   - Shader: the new shader
//   - error: an error if the source is empty or no entry point could be found
func NewShader(key string, shaderType ShaderType, source string, opts ...ShaderBuilderOption) (Shader, error) {
	if source == "" {
		return nil, fmt.Errorf("shader: %s has no source", key)
	}
	s := &shader{
		key:        key,
		shaderType: shaderType,
		source:     source,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.entryPoint == "" {
		s.entryPoint = parseEntryPoint(source, shaderType)
	}
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader: %s has no @%s entry point", key, shaderType)
	}
	return s, nil
}

// NewShaderFromPath reads WGSL source from a file and creates a Shader from it.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the pipeline stage the shader feeds
//   - sourcePath: the file path to read WGSL source from
//   - opts: a variadic list of ShaderBuilderOption functions
//
// Returns:
//   - Shader: the new shader
//   - error: an error if the file could not be read or the source is invalid
func NewShaderFromPath(key string, shaderType ShaderType, sourcePath string, opts ...ShaderBuilderOption) (Shader, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read source file %q: %w", sourcePath, err)
	}
	return NewShader(key, shaderType, string(data), opts...)
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}
