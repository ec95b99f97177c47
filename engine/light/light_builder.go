package light

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithDirection is an option builder that sets the direction of the light.
// The direction is normalized before storing.
//
// Parameters:
//   - x: the x direction component
//   - y: the y direction component
//   - z: the z direction component
//
// Returns:
//   - LightBuilderOption: a function that applies the direction option to a lightImpl
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.direction = normalize3(x, y, z)
	}
}

// WithColor is an option builder that sets the RGB color of the light.
//
// Parameters:
//   - r: the red color component
//   - g: the green color component
//   - b: the blue color component
//
// Returns:
//   - LightBuilderOption: a function that applies the color option to a lightImpl
func WithColor(r, g, b float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.color = [3]float32{r, g, b}
	}
}

// WithIntensity is an option builder that sets the scalar intensity multiplier.
//
// Parameters:
//   - intensity: the intensity value
//
// Returns:
//   - LightBuilderOption: a function that applies the intensity option to a lightImpl
func WithIntensity(intensity float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.intensity = intensity
	}
}

// WithShadowBox sets the orthographic shadow frustum.
//
// Parameters:
//   - halfExtent: half the width and height of the box in world units
//   - near: the near plane distance
//   - far: the far plane distance
//
// Returns:
//   - LightBuilderOption: a function that applies the shadow box to a lightImpl
func WithShadowBox(halfExtent, near, far float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.halfExtent = halfExtent
		l.near = near
		l.far = far
	}
}

// WithShadowBias sets the constant depth bias used when sampling the shadow map.
//
// Parameters:
//   - bias: the bias in depth units
//
// Returns:
//   - LightBuilderOption: a function that applies the bias to a lightImpl
func WithShadowBias(bias float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.bias = bias
	}
}
