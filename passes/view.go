package passes

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ViewUniformsSize is the size of the per-view uniform block:
//
//	  0  proj      mat4x4<f32>
//	 64  inv_proj  mat4x4<f32>
//	128  viewport  vec4<f32>  width, height, 1/width, 1/height
const ViewUniformsSize = 144

// Default projection parameters.
const (
	DefaultFovY = 60.0 // degrees
	DefaultNear = 0.1
	DefaultFar  = 100.0
)

// Perspective returns a right-handed perspective projection for a
// width x height viewport.
func Perspective(fovYDeg, near, far float32, width, height uint32) mgl32.Mat4 {
	aspect := float32(max(width, 1)) / float32(max(height, 1))
	return mgl32.Perspective(mgl32.DegToRad(fovYDeg), aspect, near, far)
}

// EncodeViewUniforms packs the uniform block for proj and the viewport size.
func EncodeViewUniforms(proj mgl32.Mat4, width, height uint32) []byte {
	buf := make([]byte, ViewUniformsSize)
	putMat4(buf[0:], proj)
	putMat4(buf[64:], proj.Inv())

	w, h := float32(max(width, 1)), float32(max(height, 1))
	for i, v := range [4]float32{w, h, 1 / w, 1 / h} {
		binary.LittleEndian.PutUint32(buf[128+i*4:], math.Float32bits(v))
	}
	return buf
}

// putMat4 writes m in column-major order, matching WGSL mat4x4 layout.
func putMat4(dst []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func putFloats(dst []byte, vals ...float32) {
	for i, v := range vals {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
