package light

import "github.com/chewxy/math32"

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	direction  [3]float32
	color      [3]float32
	intensity  float32
	halfExtent float32
	near       float32
	far        float32
	bias       float32
}

// Light defines the interface for the directional light that casts the scene's shadows.
//
// A directional light has no position, only a direction, so its shadow frustum is an
// orthographic box centered on a point of interest. The shadow stage renders depth with
// ShadowMatrix and the main stage samples the result with the same matrix.
type Light interface {
	// Direction returns the normalized direction the light travels in.
	//
	// Returns:
	//   - [3]float32: normalized direction as (x, y, z)
	Direction() [3]float32

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - [3]float32: color as (r, g, b)
	Color() [3]float32

	// Intensity returns the scalar intensity multiplier for the light.
	//
	// Returns:
	//   - float32: the intensity value
	Intensity() float32

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - x, y, z: direction components (will be normalized)
	SetDirection(x, y, z float32)

	// ShadowMatrix returns the light-space view-projection that maps the shadow box around center
	// into clip space with depth in [0, 1].
	//
	// Parameters:
	//   - center: the world-space point the shadow box is centered on
	//
	// Returns:
	//   - [16]float32: the light view-projection matrix (column-major)
	ShadowMatrix(center [3]float32) [16]float32

	// Uniform returns the light laid out for a uniform buffer.
	//
	// Parameters:
	//   - center: the world-space point the shadow box is centered on
	//
	// Returns:
	//   - GPUShadowLight: the shadow matrix, direction, color and bias
	Uniform(center [3]float32) GPUShadowLight
}

var _ Light = &lightImpl{}

// NewLight creates a white directional light pointing straight down with the default shadow box.
//
// Parameters:
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(opts ...LightBuilderOption) Light {
	l := &lightImpl{
		direction:  [3]float32{0, -1, 0},
		color:      [3]float32{1, 1, 1},
		intensity:  1.0,
		halfExtent: DefaultShadowHalfExtent,
		near:       DefaultShadowNear,
		far:        DefaultShadowFar,
		bias:       DefaultShadowBias,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Direction() [3]float32 {
	return l.direction
}

func (l *lightImpl) Color() [3]float32 {
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	return l.intensity
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.direction = normalize3(x, y, z)
}

func (l *lightImpl) ShadowMatrix(center [3]float32) [16]float32 {
	return shadowMatrix(l.direction, center, l.halfExtent, l.near, l.far)
}

func (l *lightImpl) Uniform(center [3]float32) GPUShadowLight {
	return GPUShadowLight{
		LightViewProj: l.ShadowMatrix(center),
		Direction:     l.direction,
		Intensity:     l.intensity,
		Color:         l.color,
		Bias:          l.bias,
	}
}

// normalize3 returns the unit vector of (x, y, z), or straight down for a zero vector.
func normalize3(x, y, z float32) [3]float32 {
	l := math32.Sqrt(x*x + y*y + z*z)
	if l == 0 {
		return [3]float32{0, -1, 0}
	}
	return [3]float32{x / l, y / l, z / l}
}
