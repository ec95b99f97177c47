// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// Extent2D is a width/height pair in pixels, used for surface, render target, and framebuffer sizes.
type Extent2D struct {
	// Width is the horizontal size in pixels.
	Width uint32
	// Height is the vertical size in pixels.
	Height uint32
}

// NewExtent2D builds an Extent2D from signed window dimensions, clamping negatives to zero.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - Extent2D: the clamped extent
func NewExtent2D(width, height int) Extent2D {
	return Extent2D{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
}

// Empty reports whether either dimension is zero, e.g. for a minimized window.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Aspect returns width/height, or 1 for an empty extent.
func (e Extent2D) Aspect() float32 {
	if e.Empty() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
