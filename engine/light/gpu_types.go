package light

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUShadowLightSource is the WGSL declaration matching GPUShadowLight.
const GPUShadowLightSource = `
struct ShadowLight {
	light_view_proj: mat4x4<f32>,
	direction: vec3<f32>,
	intensity: f32,
	color: vec3<f32>,
	bias: f32,
}
`

// GPUShadowLight is the GPU-aligned representation of the shadow-casting light.
// Size: 96 bytes (WGSL aligned).
type GPUShadowLight struct {
	LightViewProj [16]float32 // offset  0: light view-projection (mat4x4<f32>)
	Direction     [3]float32  // offset 64: normalized direction
	Intensity     float32     // offset 76: scalar multiplier
	Color         [3]float32  // offset 80: RGB color
	Bias          float32     // offset 92: shadow depth bias
}

// Size returns the size of the GPUShadowLight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (96)
func (g *GPUShadowLight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUShadowLight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload
func (g *GPUShadowLight) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.LightViewProj[i]))
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.Direction[i]))
		binary.LittleEndian.PutUint32(buf[80+i*4:], math.Float32bits(g.Color[i]))
	}
	binary.LittleEndian.PutUint32(buf[76:], math.Float32bits(g.Intensity))
	binary.LittleEndian.PutUint32(buf[92:], math.Float32bits(g.Bias))
	return buf
}
