// Package gles models the small slice of an OpenGL ES style API the render
// worker needs.
//
// A Device is the raw backend: it owns objects, bound state and the error
// flag, and reports problems the way GL does, through GetError. Context wraps a
// Device with the state the worker tracks itself and converts the error flag
// into coded errors at the points where callers choose to check.
package gles

// Device is a graphics backend. Methods never return errors; failures set the
// device error flag, which GetError reads and clears. Once the device has
// lost its context every call is a no-op and GetError keeps reporting
// ContextLostError.
type Device interface {
	Info() Info

	// Resize replaces the drawing surface. Contents are undefined afterwards.
	Resize(width, height int)
	Viewport(x, y, width, height int)

	// CompileShader returns a handle even when compilation fails so the info
	// log stays reachable, as GL does.
	CompileShader(kind ShaderKind, source string) (h Handle, ok bool, infoLog string)
	// LinkProgram links a vertex and fragment shader into a program.
	LinkProgram(vs, fs Handle) (h Handle, ok bool, infoLog string)
	DeleteShader(h Handle)
	// DeleteProgram frees a program. Deleting the current program unbinds
	// it.
	DeleteProgram(h Handle)
	UseProgram(p Handle)

	UniformLocation(p Handle, name string) Location
	AttribLocation(p Handle, name string) int
	BindAttribLocation(p Handle, index int, name string)

	// Uniform uploads values to the current program. Integer setters receive
	// their values already truncated.
	Uniform(loc Location, fn UniformFunc, values []float64)
	VertexAttrib(index int, value [4]float32)
	VertexAttribPointer(index, size, stride, offset int)
	EnableVertexAttribArray(index int)
	DisableVertexAttribArray(index int)

	CreateBuffer() Handle
	BindBuffer(target BufferTarget, b Handle)
	BufferData(target BufferTarget, data []byte, usage BufferUsage)
	// DeleteBuffer frees a buffer and detaches it from every binding point
	// and attribute.
	DeleteBuffer(b Handle)

	CreateTexture() Handle
	ActiveTexture(unit int)
	BindTexture(t Handle)
	// TexImage2D uploads tightly packed, non-premultiplied RGBA8 rows, top row
	// first.
	TexImage2D(width, height int, pixels []byte)
	TexParameter(param TextureParam, value TextureValue)
	DeleteTexture(t Handle)

	ClearColor(r, g, b, a float32)
	Clear()
	// DrawElements draws count vertices using uint16 indices read from the
	// bound element buffer at byte offset.
	DrawElements(mode Primitive, count, offset int)

	// ReadPixels returns the surface as RGBA8 rows, top row first.
	ReadPixels() (width, height int, pixels []byte)

	GetError() ErrorCode
	// Release frees every object the device owns.
	Release()
}

// Loser is implemented by devices that can simulate context loss.
type Loser interface {
	LoseContext()
}
