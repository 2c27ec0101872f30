// Package native is a gles.Device backed by the system OpenGL ES driver.
//
// The device owns an EGL context created with gogpu's EGL loader and draws
// into an offscreen framebuffer, multisampled when antialiasing is on. GL
// entry points are called through goffi from a single goroutine locked to
// its OS thread, since a GL context is current on one thread only. WGSL
// sources are translated to GLSL ES 3.00 with naga before they reach the
// driver.
//
// The device is only available on Linux; elsewhere New reports it as
// unavailable.
package native

import (
	"github.com/gogpu/wgpu/hal/gles/gl"

	"renderworker/internal/gles"
)

const (
	maxAttribs      = 16
	maxTextureUnits = 8
	defaultSamples  = 4

	// GL_CONTEXT_LOST, reported by robust contexts after a reset.
	contextLost = 0x0507
)

// Options configure a Device.
type Options struct {
	Antialiasing bool
	// Samples is the multisample count used when Antialiasing is set. Zero
	// means 4; the driver maximum caps it.
	Samples int
}

func errorCode(e uint32) gles.ErrorCode {
	switch e {
	case gl.NO_ERROR:
		return gles.NoError
	case gl.INVALID_ENUM:
		return gles.InvalidEnum
	case gl.INVALID_VALUE:
		return gles.InvalidValue
	case gl.OUT_OF_MEMORY:
		return gles.OutOfMemory
	case gl.INVALID_FRAMEBUFFER_OPERATION:
		return gles.InvalidFramebufferOperation
	case contextLost:
		return gles.ContextLostError
	default:
		return gles.InvalidOperation
	}
}

func primitive(mode gles.Primitive) (uint32, bool) {
	switch mode {
	case gles.Triangles:
		return gl.TRIANGLES, true
	case gles.TriangleStrip:
		return gl.TRIANGLE_STRIP, true
	case gles.TriangleFan:
		return gl.TRIANGLE_FAN, true
	}
	return 0, false
}

func bufferTarget(t gles.BufferTarget) (uint32, bool) {
	switch t {
	case gles.ArrayBuffer:
		return gl.ARRAY_BUFFER, true
	case gles.ElementArrayBuffer:
		return gl.ELEMENT_ARRAY_BUFFER, true
	}
	return 0, false
}

func bufferUsage(u gles.BufferUsage) (uint32, bool) {
	switch u {
	case gles.StaticDraw:
		return gl.STATIC_DRAW, true
	case gles.DynamicDraw:
		return gl.DYNAMIC_DRAW, true
	case gles.StreamDraw:
		return gl.STREAM_DRAW, true
	}
	return 0, false
}

func textureParam(p gles.TextureParam) (uint32, bool) {
	switch p {
	case gles.TextureMinFilter:
		return gl.TEXTURE_MIN_FILTER, true
	case gles.TextureMagFilter:
		return gl.TEXTURE_MAG_FILTER, true
	case gles.TextureWrapS:
		return gl.TEXTURE_WRAP_S, true
	case gles.TextureWrapT:
		return gl.TEXTURE_WRAP_T, true
	}
	return 0, false
}

// textureValue maps a parameter value, rejecting filters for wrap modes and
// the reverse.
func textureValue(p gles.TextureParam, v gles.TextureValue) (int32, bool) {
	filter := p == gles.TextureMinFilter || p == gles.TextureMagFilter
	switch {
	case filter && v == gles.Nearest:
		return gl.NEAREST, true
	case filter && v == gles.Linear:
		return gl.LINEAR, true
	case !filter && v == gles.Repeat:
		return gl.REPEAT, true
	case !filter && v == gles.ClampToEdge:
		return gl.CLAMP_TO_EDGE, true
	}
	return 0, false
}

// flipRows reverses the row order of tightly packed RGBA8 pixels in place.
// GL reads back bottom row first.
func flipRows(pix []byte, width, height int) {
	stride := 4 * width
	tmp := make([]byte, stride)
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// fits reports whether attribute data for vertex index lies inside a
// buffer of n bytes.
func fits(n, index, size, stride, offset int) bool {
	if stride == 0 {
		stride = 4 * size
	}
	return offset+index*stride+4*size <= n
}
