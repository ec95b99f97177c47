package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDevice is the sentinel every *Error unwraps to.
var ErrDevice = errors.New("device error")

// ErrorCode classifies a device failure.
type ErrorCode string

const (
	ErrorCodeUnknown         ErrorCode = "unknown"
	ErrorCodeValidation      ErrorCode = "validation"
	ErrorCodeOutOfMemory     ErrorCode = "out_of_memory"
	ErrorCodeLost            ErrorCode = "lost"
	ErrorCodeSurfaceOutdated ErrorCode = "surface_outdated"
)

// Operation names used in Error.Op.
const (
	OpCreateBuffer         = "create_buffer"
	OpWriteBuffer          = "write_buffer"
	OpCreateTexture        = "create_texture"
	OpCreateSampler        = "create_sampler"
	OpCreateRenderTarget   = "create_render_target"
	OpCreatePipelineLayout = "create_pipeline_layout"
	OpCreatePipeline       = "create_pipeline"
	OpCreateFramebuffer    = "create_framebuffer"
	OpCreateBindGroup      = "create_bind_group"
	OpBeginCommands        = "begin_commands"
	OpSubmit               = "submit"
	OpAcquire              = "acquire"
	OpPresent              = "present"
	OpConfigure            = "configure"
)

// Error is a failed device operation.
type Error struct {
	// Op is the device operation, e.g. "create_texture".
	Op   string
	Code ErrorCode
	Err  error
}

// NewError wraps err as a device error for op, classifying it from its message.
//
// Parameters:
//   - op: the failed operation
//   - err: the underlying error
//
// Returns:
//   - *Error: the wrapped error
func NewError(op string, err error) *Error {
	return &Error{Op: op, Code: Classify(err), Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device: %s failed (%s)", e.Op, e.Code)
	}
	return fmt.Sprintf("device: %s failed (%s): %v", e.Op, e.Code, e.Err)
}

// Unwrap exposes both ErrDevice and the underlying error to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDevice}
	}
	return []error{ErrDevice, e.Err}
}

// Classify maps a backend error message onto an ErrorCode.
//
// Parameters:
//   - err: the backend error
//
// Returns:
//   - ErrorCode: the best matching code, ErrorCodeUnknown if nothing matches
func Classify(err error) ErrorCode {
	if err == nil {
		return ErrorCodeUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "outdated"), strings.Contains(msg, "out of date"), strings.Contains(msg, "surface lost"):
		return ErrorCodeSurfaceOutdated
	case strings.Contains(msg, "out of memory"), strings.Contains(msg, "outofmemory"):
		return ErrorCodeOutOfMemory
	case strings.Contains(msg, "device lost"), strings.Contains(msg, "devicelost"):
		return ErrorCodeLost
	case strings.Contains(msg, "validation"), strings.Contains(msg, "invalid"):
		return ErrorCodeValidation
	default:
		return ErrorCodeUnknown
	}
}
