package light

import "github.com/Carmen-Shannon/oxy-rendergraph/common"

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units)
// used for the directional light shadow frustum. Controls how much of the scene
// around the shadow center is captured in the shadow map.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane for the directional light's
// orthographic shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane for the directional light's
// orthographic shadow projection.
const DefaultShadowFar float32 = 200.0

// DefaultShadowBias is the constant depth bias applied to shadow comparisons
// to reduce shadow acne artifacts.
const DefaultShadowBias float32 = 0.001

// shadowMatrix builds the light-space view-projection for a directional light looking along dir at center.
// The eye sits half the depth range back from center so the frustum straddles it.
func shadowMatrix(dir, center [3]float32, halfExtent, near, far float32) common.Mat4 {
	back := (near + far) / 2
	eye := [3]float32{center[0] - dir[0]*back, center[1] - dir[1]*back, center[2] - dir[2]*back}

	up := [3]float32{0, 1, 0}
	if dir[0] == 0 && dir[2] == 0 {
		// straight down or up
		up = [3]float32{0, 0, 1}
	}
	view := common.LookAt(eye, center, up)
	proj := common.Orthographic(-halfExtent, halfExtent, -halfExtent, halfExtent, near, far)
	return proj.Mul(view)
}
