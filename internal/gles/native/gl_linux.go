//go:build linux

package native

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
	"github.com/gogpu/wgpu/hal/gles/egl"
	"github.com/gogpu/wgpu/hal/gles/gl"
)

var (
	tVoid = types.VoidTypeDescriptor
	tU8   = types.UInt8TypeDescriptor
	tU32  = types.UInt32TypeDescriptor
	tI32  = types.SInt32TypeDescriptor
	tF32  = types.FloatTypeDescriptor
	tPtr  = types.PointerTypeDescriptor
)

// proc is a GL entry point with its prepared call interface.
type proc struct {
	fn  unsafe.Pointer
	cif types.CallInterface
}

// call passes each argument as a pointer to its value, pointers included.
func (p *proc) call(ret unsafe.Pointer, args ...unsafe.Pointer) {
	_ = ffi.CallFunction(&p.cif, p.fn, ret, args)
}

// api holds the GL ES 3.0 entry points the device uses. Its methods must
// run on the thread the context is current on.
type api struct {
	getError, getString, getIntegerv                          *proc
	viewport, clearColor, clear                               *proc
	createShader, shaderSource, compileShader, deleteShader   *proc
	getShaderiv, getShaderInfoLog                             *proc
	createProgram, attachShader, linkProgram, deleteProgram   *proc
	useProgram, getProgramiv, getProgramInfoLog               *proc
	getUniformLocation, getAttribLocation, bindAttribLocation *proc
	uniformfv                                                 [4]*proc
	uniformiv                                                 [4]*proc
	uniformMatrix                                             [3]*proc
	vertexAttrib4f, vertexAttribPointer                       *proc
	enableVertexAttribArray, disableVertexAttribArray         *proc
	genBuffers, deleteBuffers, bindBuffer, bufferData         *proc
	genTextures, deleteTextures, activeTexture, bindTexture   *proc
	texImage2D, texParameteri, pixelStorei                    *proc
	drawElements, readPixels                                  *proc
	genFramebuffers, deleteFramebuffers, bindFramebuffer      *proc
	framebufferRenderbuffer, checkFramebufferStatus           *proc
	genRenderbuffers, deleteRenderbuffers, bindRenderbuffer   *proc
	renderbufferStorage, renderbufferStorageMultisample       *proc
	blitFramebuffer, genVertexArrays, bindVertexArray         *proc
}

type entry struct {
	dst  **proc
	name string
	ret  *types.TypeDescriptor
	args []*types.TypeDescriptor
}

func sig(dst **proc, name string, ret *types.TypeDescriptor, args ...*types.TypeDescriptor) entry {
	if args == nil {
		args = []*types.TypeDescriptor{}
	}
	return entry{dst: dst, name: name, ret: ret, args: args}
}

// load resolves every entry point through eglGetProcAddress.
func (a *api) load() error {
	entries := []entry{
		sig(&a.getError, "glGetError", tU32),
		sig(&a.getString, "glGetString", tPtr, tU32),
		sig(&a.getIntegerv, "glGetIntegerv", tVoid, tU32, tPtr),
		sig(&a.viewport, "glViewport", tVoid, tI32, tI32, tI32, tI32),
		sig(&a.clearColor, "glClearColor", tVoid, tF32, tF32, tF32, tF32),
		sig(&a.clear, "glClear", tVoid, tU32),

		sig(&a.createShader, "glCreateShader", tU32, tU32),
		sig(&a.shaderSource, "glShaderSource", tVoid, tU32, tI32, tPtr, tPtr),
		sig(&a.compileShader, "glCompileShader", tVoid, tU32),
		sig(&a.deleteShader, "glDeleteShader", tVoid, tU32),
		sig(&a.getShaderiv, "glGetShaderiv", tVoid, tU32, tU32, tPtr),
		sig(&a.getShaderInfoLog, "glGetShaderInfoLog", tVoid, tU32, tI32, tPtr, tPtr),
		sig(&a.createProgram, "glCreateProgram", tU32),
		sig(&a.attachShader, "glAttachShader", tVoid, tU32, tU32),
		sig(&a.linkProgram, "glLinkProgram", tVoid, tU32),
		sig(&a.deleteProgram, "glDeleteProgram", tVoid, tU32),
		sig(&a.useProgram, "glUseProgram", tVoid, tU32),
		sig(&a.getProgramiv, "glGetProgramiv", tVoid, tU32, tU32, tPtr),
		sig(&a.getProgramInfoLog, "glGetProgramInfoLog", tVoid, tU32, tI32, tPtr, tPtr),
		sig(&a.getUniformLocation, "glGetUniformLocation", tI32, tU32, tPtr),
		sig(&a.getAttribLocation, "glGetAttribLocation", tI32, tU32, tPtr),
		sig(&a.bindAttribLocation, "glBindAttribLocation", tVoid, tU32, tU32, tPtr),

		sig(&a.uniformfv[0], "glUniform1fv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformfv[1], "glUniform2fv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformfv[2], "glUniform3fv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformfv[3], "glUniform4fv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformiv[0], "glUniform1iv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformiv[1], "glUniform2iv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformiv[2], "glUniform3iv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformiv[3], "glUniform4iv", tVoid, tI32, tI32, tPtr),
		sig(&a.uniformMatrix[0], "glUniformMatrix2fv", tVoid, tI32, tI32, tU8, tPtr),
		sig(&a.uniformMatrix[1], "glUniformMatrix3fv", tVoid, tI32, tI32, tU8, tPtr),
		sig(&a.uniformMatrix[2], "glUniformMatrix4fv", tVoid, tI32, tI32, tU8, tPtr),

		sig(&a.vertexAttrib4f, "glVertexAttrib4f", tVoid, tU32, tF32, tF32, tF32, tF32),
		sig(&a.vertexAttribPointer, "glVertexAttribPointer", tVoid, tU32, tI32, tU32, tU8, tI32, tPtr),
		sig(&a.enableVertexAttribArray, "glEnableVertexAttribArray", tVoid, tU32),
		sig(&a.disableVertexAttribArray, "glDisableVertexAttribArray", tVoid, tU32),

		sig(&a.genBuffers, "glGenBuffers", tVoid, tI32, tPtr),
		sig(&a.deleteBuffers, "glDeleteBuffers", tVoid, tI32, tPtr),
		sig(&a.bindBuffer, "glBindBuffer", tVoid, tU32, tU32),
		sig(&a.bufferData, "glBufferData", tVoid, tU32, tPtr, tPtr, tU32),

		sig(&a.genTextures, "glGenTextures", tVoid, tI32, tPtr),
		sig(&a.deleteTextures, "glDeleteTextures", tVoid, tI32, tPtr),
		sig(&a.activeTexture, "glActiveTexture", tVoid, tU32),
		sig(&a.bindTexture, "glBindTexture", tVoid, tU32, tU32),
		sig(&a.texImage2D, "glTexImage2D", tVoid, tU32, tI32, tI32, tI32, tI32, tI32, tU32, tU32, tPtr),
		sig(&a.texParameteri, "glTexParameteri", tVoid, tU32, tU32, tI32),
		sig(&a.pixelStorei, "glPixelStorei", tVoid, tU32, tI32),

		sig(&a.drawElements, "glDrawElements", tVoid, tU32, tI32, tU32, tPtr),
		sig(&a.readPixels, "glReadPixels", tVoid, tI32, tI32, tI32, tI32, tU32, tU32, tPtr),

		sig(&a.genFramebuffers, "glGenFramebuffers", tVoid, tI32, tPtr),
		sig(&a.deleteFramebuffers, "glDeleteFramebuffers", tVoid, tI32, tPtr),
		sig(&a.bindFramebuffer, "glBindFramebuffer", tVoid, tU32, tU32),
		sig(&a.framebufferRenderbuffer, "glFramebufferRenderbuffer", tVoid, tU32, tU32, tU32, tU32),
		sig(&a.checkFramebufferStatus, "glCheckFramebufferStatus", tU32, tU32),
		sig(&a.genRenderbuffers, "glGenRenderbuffers", tVoid, tI32, tPtr),
		sig(&a.deleteRenderbuffers, "glDeleteRenderbuffers", tVoid, tI32, tPtr),
		sig(&a.bindRenderbuffer, "glBindRenderbuffer", tVoid, tU32, tU32),
		sig(&a.renderbufferStorage, "glRenderbufferStorage", tVoid, tU32, tU32, tI32, tI32),
		sig(&a.renderbufferStorageMultisample, "glRenderbufferStorageMultisample", tVoid, tU32, tI32, tU32, tI32, tI32),
		sig(&a.blitFramebuffer, "glBlitFramebuffer", tVoid, tI32, tI32, tI32, tI32, tI32, tI32, tI32, tI32, tU32, tU32),
		sig(&a.genVertexArrays, "glGenVertexArrays", tVoid, tI32, tPtr),
		sig(&a.bindVertexArray, "glBindVertexArray", tVoid, tU32),
	}
	for _, e := range entries {
		p := &proc{fn: egl.GetGLProcAddress(e.name)}
		if p.fn == nil {
			return fmt.Errorf("missing GL entry point %s", e.name)
		}
		if err := ffi.PrepareCallInterface(&p.cif, types.DefaultCall, e.ret, e.args); err != nil {
			return fmt.Errorf("prepare %s: %w", e.name, err)
		}
		*e.dst = p
	}
	return nil
}

func ptr[T any](v *T) unsafe.Pointer { return unsafe.Pointer(v) }

// cstr returns a NUL-terminated copy of s.
func cstr(s string) []byte {
	return append([]byte(s), 0)
}

func (a *api) GetError() uint32 {
	var r uint32
	a.getError.call(ptr(&r))
	return r
}

func (a *api) GetString(name uint32) string {
	var p uintptr
	a.getString.call(ptr(&p), ptr(&name))
	if p == 0 {
		return ""
	}
	var b []byte
	//nolint:govet // the driver owns the string for the life of the context
	for s := unsafe.Pointer(p); *(*byte)(s) != 0; s = unsafe.Add(s, 1) {
		b = append(b, *(*byte)(s))
	}
	return string(b)
}

func (a *api) GetInteger(name uint32) int32 {
	var v int32
	p := unsafe.Pointer(&v)
	a.getIntegerv.call(nil, ptr(&name), ptr(&p))
	return v
}

func (a *api) Viewport(x, y, w, h int32) {
	a.viewport.call(nil, ptr(&x), ptr(&y), ptr(&w), ptr(&h))
}

func (a *api) ClearColor(r, g, b, al float32) {
	a.clearColor.call(nil, ptr(&r), ptr(&g), ptr(&b), ptr(&al))
}

func (a *api) Clear(mask uint32) {
	a.clear.call(nil, ptr(&mask))
}

func (a *api) CreateShader(kind uint32) uint32 {
	var id uint32
	a.createShader.call(ptr(&id), ptr(&kind))
	return id
}

func (a *api) ShaderSource(id uint32, source string) {
	src := cstr(source)
	str := unsafe.Pointer(&src[0])
	strs := unsafe.Pointer(&str)
	var lengths unsafe.Pointer
	count := int32(1)
	a.shaderSource.call(nil, ptr(&id), ptr(&count), ptr(&strs), ptr(&lengths))
	runtime.KeepAlive(src)
}

func (a *api) CompileShader(id uint32) {
	a.compileShader.call(nil, ptr(&id))
}

func (a *api) DeleteShader(id uint32) {
	a.deleteShader.call(nil, ptr(&id))
}

func (a *api) ShaderStatus(id uint32) (bool, string) {
	return a.status(a.getShaderiv, a.getShaderInfoLog, id, gl.COMPILE_STATUS)
}

func (a *api) CreateProgram() uint32 {
	var id uint32
	a.createProgram.call(ptr(&id))
	return id
}

func (a *api) AttachShader(program, shader uint32) {
	a.attachShader.call(nil, ptr(&program), ptr(&shader))
}

func (a *api) LinkProgram(id uint32) {
	a.linkProgram.call(nil, ptr(&id))
}

func (a *api) DeleteProgram(id uint32) {
	a.deleteProgram.call(nil, ptr(&id))
}

func (a *api) UseProgram(id uint32) {
	a.useProgram.call(nil, ptr(&id))
}

func (a *api) ProgramStatus(id uint32) (bool, string) {
	return a.status(a.getProgramiv, a.getProgramInfoLog, id, gl.LINK_STATUS)
}

// status reads a compile or link status and the matching info log.
func (a *api) status(getiv, getLog *proc, id, pname uint32) (bool, string) {
	var ok, length int32
	okp, lenp := unsafe.Pointer(&ok), unsafe.Pointer(&length)
	getiv.call(nil, ptr(&id), ptr(&pname), ptr(&okp))
	logLen := uint32(gl.INFO_LOG_LENGTH)
	getiv.call(nil, ptr(&id), ptr(&logLen), ptr(&lenp))
	if length <= 1 {
		return ok == gl.TRUE, ""
	}
	buf := make([]byte, length)
	bufp := unsafe.Pointer(&buf[0])
	var written int32
	writtenp := unsafe.Pointer(&written)
	getLog.call(nil, ptr(&id), ptr(&length), ptr(&writtenp), ptr(&bufp))
	return ok == gl.TRUE, string(buf[:written])
}

func (a *api) UniformLocation(program uint32, name string) int32 {
	return a.nameQuery(a.getUniformLocation, program, name)
}

func (a *api) AttribLocation(program uint32, name string) int32 {
	return a.nameQuery(a.getAttribLocation, program, name)
}

func (a *api) nameQuery(p *proc, program uint32, name string) int32 {
	s := cstr(name)
	sp := unsafe.Pointer(&s[0])
	var r int32
	p.call(ptr(&r), ptr(&program), ptr(&sp))
	runtime.KeepAlive(s)
	return r
}

func (a *api) BindAttribLocation(program, index uint32, name string) {
	s := cstr(name)
	sp := unsafe.Pointer(&s[0])
	a.bindAttribLocation.call(nil, ptr(&program), ptr(&index), ptr(&sp))
	runtime.KeepAlive(s)
}

// Uniformfv uploads count vectors of n floats.
func (a *api) Uniformfv(n int, loc, count int32, v []float32) {
	data := unsafe.Pointer(&v[0])
	a.uniformfv[n-1].call(nil, ptr(&loc), ptr(&count), ptr(&data))
	runtime.KeepAlive(v)
}

// Uniformiv uploads count vectors of n ints.
func (a *api) Uniformiv(n int, loc, count int32, v []int32) {
	data := unsafe.Pointer(&v[0])
	a.uniformiv[n-1].call(nil, ptr(&loc), ptr(&count), ptr(&data))
	runtime.KeepAlive(v)
}

// UniformMatrix uploads count column-major n by n matrices.
func (a *api) UniformMatrix(n int, loc, count int32, v []float32) {
	data := unsafe.Pointer(&v[0])
	transpose := uint8(gl.FALSE)
	a.uniformMatrix[n-2].call(nil, ptr(&loc), ptr(&count), ptr(&transpose), ptr(&data))
	runtime.KeepAlive(v)
}

func (a *api) VertexAttrib4f(index uint32, v [4]float32) {
	a.vertexAttrib4f.call(nil, ptr(&index), ptr(&v[0]), ptr(&v[1]), ptr(&v[2]), ptr(&v[3]))
}

func (a *api) VertexAttribPointer(index uint32, size, stride int32, offset uintptr) {
	typ := uint32(gl.FLOAT)
	normalized := uint8(gl.FALSE)
	a.vertexAttribPointer.call(nil, ptr(&index), ptr(&size), ptr(&typ), ptr(&normalized), ptr(&stride), ptr(&offset))
}

func (a *api) EnableVertexAttribArray(index uint32) {
	a.enableVertexAttribArray.call(nil, ptr(&index))
}

func (a *api) DisableVertexAttribArray(index uint32) {
	a.disableVertexAttribArray.call(nil, ptr(&index))
}

// gen creates one object through a glGen* entry point.
func (a *api) gen(p *proc) uint32 {
	var id uint32
	n := int32(1)
	idp := unsafe.Pointer(&id)
	p.call(nil, ptr(&n), ptr(&idp))
	return id
}

// del deletes one object through a glDelete* entry point.
func (a *api) del(p *proc, id uint32) {
	n := int32(1)
	idp := unsafe.Pointer(&id)
	p.call(nil, ptr(&n), ptr(&idp))
}

func (a *api) BindBuffer(target, id uint32) {
	a.bindBuffer.call(nil, ptr(&target), ptr(&id))
}

func (a *api) BufferData(target uint32, data []byte, usage uint32) {
	size := uintptr(len(data))
	var p unsafe.Pointer
	if len(data) > 0 {
		p = unsafe.Pointer(&data[0])
	}
	a.bufferData.call(nil, ptr(&target), ptr(&size), ptr(&p), ptr(&usage))
	runtime.KeepAlive(data)
}

func (a *api) ActiveTexture(unit uint32) {
	a.activeTexture.call(nil, ptr(&unit))
}

func (a *api) BindTexture(target, id uint32) {
	a.bindTexture.call(nil, ptr(&target), ptr(&id))
}

func (a *api) TexImage2D(width, height int32, pixels []byte) {
	target := uint32(gl.TEXTURE_2D)
	level, border := int32(0), int32(0)
	internal := int32(gl.RGBA)
	format, typ := uint32(gl.RGBA), uint32(gl.UNSIGNED_BYTE)
	p := unsafe.Pointer(&pixels[0])
	a.texImage2D.call(nil, ptr(&target), ptr(&level), ptr(&internal), ptr(&width), ptr(&height),
		ptr(&border), ptr(&format), ptr(&typ), ptr(&p))
	runtime.KeepAlive(pixels)
}

func (a *api) TexParameteri(pname uint32, value int32) {
	target := uint32(gl.TEXTURE_2D)
	a.texParameteri.call(nil, ptr(&target), ptr(&pname), ptr(&value))
}

func (a *api) PixelStorei(pname uint32, value int32) {
	a.pixelStorei.call(nil, ptr(&pname), ptr(&value))
}

func (a *api) DrawElements(mode uint32, count int32, offset uintptr) {
	typ := uint32(gl.UNSIGNED_SHORT)
	a.drawElements.call(nil, ptr(&mode), ptr(&count), ptr(&typ), ptr(&offset))
}

func (a *api) ReadPixels(width, height int32, pix []byte) {
	x, y := int32(0), int32(0)
	format, typ := uint32(gl.RGBA), uint32(gl.UNSIGNED_BYTE)
	p := unsafe.Pointer(&pix[0])
	a.readPixels.call(nil, ptr(&x), ptr(&y), ptr(&width), ptr(&height), ptr(&format), ptr(&typ), ptr(&p))
	runtime.KeepAlive(pix)
}

func (a *api) BindFramebuffer(target, id uint32) {
	a.bindFramebuffer.call(nil, ptr(&target), ptr(&id))
}

// AttachColor attaches renderbuffer rb as color attachment 0 of the bound
// framebuffer and reports whether it is complete.
func (a *api) AttachColor(rb uint32) bool {
	target, attachment, rbTarget := uint32(gl.FRAMEBUFFER), uint32(gl.COLOR_ATTACHMENT0), uint32(gl.RENDERBUFFER)
	a.framebufferRenderbuffer.call(nil, ptr(&target), ptr(&attachment), ptr(&rbTarget), ptr(&rb))
	var status uint32
	a.checkFramebufferStatus.call(ptr(&status), ptr(&target))
	return status == gl.FRAMEBUFFER_COMPLETE
}

// RenderbufferStorage sizes the bound renderbuffer as RGBA8, multisampled
// when samples is positive.
func (a *api) RenderbufferStorage(rb uint32, samples, width, height int32) {
	target, format := uint32(gl.RENDERBUFFER), uint32(gl.RGBA8)
	a.bindRenderbuffer.call(nil, ptr(&target), ptr(&rb))
	if samples > 0 {
		a.renderbufferStorageMultisample.call(nil, ptr(&target), ptr(&samples), ptr(&format), ptr(&width), ptr(&height))
		return
	}
	a.renderbufferStorage.call(nil, ptr(&target), ptr(&format), ptr(&width), ptr(&height))
}

// Resolve blits the color of framebuffer src into dst.
func (a *api) Resolve(src, dst uint32, width, height int32) {
	a.BindFramebuffer(gl.READ_FRAMEBUFFER, src)
	a.BindFramebuffer(gl.DRAW_FRAMEBUFFER, dst)
	x0, y0 := int32(0), int32(0)
	mask, filter := uint32(gl.COLOR_BUFFER_BIT), uint32(gl.NEAREST)
	a.blitFramebuffer.call(nil, ptr(&x0), ptr(&y0), ptr(&width), ptr(&height),
		ptr(&x0), ptr(&y0), ptr(&width), ptr(&height), ptr(&mask), ptr(&filter))
}

func (a *api) BindVertexArray(id uint32) {
	a.bindVertexArray.call(nil, ptr(&id))
}
