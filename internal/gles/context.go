package gles

import (
	"encoding/binary"
	"math"

	"renderworker/internal/pkg/errors"
	"renderworker/internal/pkg/logger"
)

// Shader is a compiled shader object.
type Shader struct {
	handle Handle
	Kind   ShaderKind
}

// Program is a linked program. The zero value means "no program".
type Program struct {
	handle Handle
}

// Valid reports whether p refers to a linked program.
func (p Program) Valid() bool { return p.handle != 0 }

// Handle returns the device handle.
func (p Program) Handle() Handle { return p.handle }

// Buffer is an uploaded vertex or index buffer.
type Buffer struct {
	handle Handle
	target BufferTarget
}

// Texture is an uploaded 2D texture.
type Texture struct {
	handle Handle
	Width  int
	Height int
}

// Uniform is a named uniform assignment in call order.
type Uniform struct {
	Name string
	Func string
	Args []float64
}

// DefaultMaxSize bounds surface and texture dimensions when no limit is
// configured.
const DefaultMaxSize = 4096

// Limits cap the sizes a Context accepts. Zero fields fall back to
// DefaultMaxSize.
type Limits struct {
	MaxSurfaceSize int
	MaxTextureSize int
}

func (l Limits) withDefaults() Limits {
	if l.MaxSurfaceSize < 1 {
		l.MaxSurfaceSize = DefaultMaxSize
	}
	if l.MaxTextureSize < 1 {
		l.MaxTextureSize = DefaultMaxSize
	}
	return l
}

// Option configures a Context.
type Option func(*Context)

// WithLimits sets the size limits of a Context.
func WithLimits(l Limits) Option {
	return func(c *Context) { c.limits = l.withDefaults() }
}

// Context is the graphics context a worker slot renders with. It owns a
// Device and tracks the state the worker needs to answer questions without
// asking the device: surface size, current program and buffer bindings.
//
// Errors are not checked after every call. Invalid arguments and device
// failures accumulate until CheckError is called; only shader compilation and
// program linking report failures immediately.
type Context struct {
	dev    Device
	log    *logger.Logger
	limits Limits

	width, height int
	program       Program
	arrayBuffer   Handle
	elementBuffer Handle

	// Objects created through the context, freed by ReleaseObjects.
	programs []Handle
	buffers  []Handle
	textures []Handle

	pending ErrorCode
	lost    bool
}

// NewContext wraps dev and sizes its surface.
func NewContext(dev Device, width, height int, log *logger.Logger, opts ...Option) *Context {
	if log == nil {
		log = logger.Discard()
	}
	c := &Context{dev: dev, log: log.WithComponent("gles"), limits: Limits{}.withDefaults()}
	for _, opt := range opts {
		opt(c)
	}
	c.Resize(width, height)
	return c
}

// Limits returns the size limits in force.
func (c *Context) Limits() Limits { return c.limits }

// Device returns the underlying device.
func (c *Context) Device() Device { return c.dev }

// Info describes the device.
func (c *Context) Info() Info { return c.dev.Info() }

// Size returns the surface size.
func (c *Context) Size() (width, height int) { return c.width, c.height }

// Resize sets the surface size and viewport. Sizes outside
// [1, MaxSurfaceSize] record INVALID_VALUE and leave the surface alone.
func (c *Context) Resize(width, height int) {
	limit := c.limits.MaxSurfaceSize
	if width < 1 || height < 1 || width > limit || height > limit {
		c.record(InvalidValue)
		return
	}
	c.width, c.height = width, height
	c.dev.Resize(width, height)
	c.dev.Viewport(0, 0, width, height)
}

// SetWidth changes the surface width, keeping the height.
func (c *Context) SetWidth(width int) { c.Resize(width, c.height) }

// SetHeight changes the surface height, keeping the width.
func (c *Context) SetHeight(height int) { c.Resize(c.width, height) }

// CompileShader compiles source for kind. A compile failure returns a
// COMPILE_ERROR carrying the info log.
func (c *Context) CompileShader(kind ShaderKind, source string) (Shader, error) {
	h, ok, infoLog := c.dev.CompileShader(kind, source)
	if c.checkLost() {
		return Shader{}, errors.ContextLost("gles.compile")
	}
	if !ok {
		c.dev.DeleteShader(h)
		return Shader{}, errors.Compile(kind.String(), infoLog).WithOp("gles.compile")
	}
	return Shader{handle: h, Kind: kind}, nil
}

// LinkProgram links vs and fs. A link failure returns a LINK_ERROR carrying
// the info log.
func (c *Context) LinkProgram(vs, fs Shader) (Program, error) {
	h, ok, infoLog := c.dev.LinkProgram(vs.handle, fs.handle)
	if c.checkLost() {
		return Program{}, errors.ContextLost("gles.link")
	}
	if !ok {
		if h != 0 {
			c.dev.DeleteProgram(h)
		}
		return Program{}, errors.Link(infoLog).WithOp("gles.link")
	}
	c.programs = append(c.programs, h)
	return Program{handle: h}, nil
}

// DeleteProgram frees p. Deleting the current program leaves no program
// current.
func (c *Context) DeleteProgram(p Program) {
	if !p.Valid() {
		return
	}
	if c.program == p {
		c.UseProgram(Program{})
	}
	c.dev.DeleteProgram(p.handle)
	c.programs = forget(c.programs, p.handle)
}

// DeleteShader releases a shader once it has been linked.
func (c *Context) DeleteShader(s Shader) {
	if s.handle != 0 {
		c.dev.DeleteShader(s.handle)
	}
}

// UseProgram makes p current.
func (c *Context) UseProgram(p Program) {
	c.dev.UseProgram(p.handle)
	c.program = p
}

// CurrentProgram returns the current program, if any.
func (c *Context) CurrentProgram() (Program, bool) {
	return c.program, c.program.Valid()
}

// SetUniform assigns a uniform of the current program. It returns false when
// nothing was uploaded: the function is unknown (logged), the uniform is not
// active in the program, or the arguments do not fit the function.
func (c *Context) SetUniform(name, funcName string, args []float64) bool {
	if !c.program.Valid() {
		c.record(InvalidOperation)
		return false
	}

	fn := ParseUniformFunc(funcName)
	if fn == UniformUnknown {
		c.log.Warn("unknown uniform function", "uniform", name, "func", funcName)
		return false
	}

	loc := c.dev.UniformLocation(c.program.handle, name)
	if loc == NoLocation {
		c.log.Debug("uniform not active, skipping", "uniform", name)
		return false
	}

	if !fn.validArgs(len(args)) {
		c.record(InvalidValue)
		return false
	}

	values := args
	if fn.Integer() {
		values = make([]float64, len(args))
		for i, a := range args {
			values[i] = math.Trunc(a)
		}
	}
	c.dev.Uniform(loc, fn, values)
	return true
}

// ApplyUniforms assigns each uniform of us to the current program, in order.
func (c *Context) ApplyUniforms(us []Uniform) {
	for _, u := range us {
		c.SetUniform(u.Name, u.Func, u.Args)
	}
}

// BindAttribute binds attribute name of p to index.
func (c *Context) BindAttribute(p Program, index int, name string) {
	c.dev.BindAttribLocation(p.handle, index, name)
}

// AttribLocation returns the index of an active attribute of p.
func (c *Context) AttribLocation(p Program, name string) (int, bool) {
	idx := c.dev.AttribLocation(p.handle, name)
	return idx, idx >= 0
}

// SetAttribConstant disables the array for index and gives it a constant
// value. Unknown functions are logged and ignored.
func (c *Context) SetAttribConstant(index int, funcName string, args []float32) {
	fn := ParseAttribFunc(funcName)
	if fn == AttribUnknown {
		c.log.Warn("unknown vertex attribute function", "index", index, "func", funcName)
		return
	}
	v, ok := fn.expand(args)
	if !ok {
		c.record(InvalidValue)
		return
	}
	c.dev.DisableVertexAttribArray(index)
	c.dev.VertexAttrib(index, v)
}

// SetAttribArray sources attribute index from the bound array buffer as
// size floats per vertex. A negative index, which is what AttribLocation
// reports for an inactive attribute, records INVALID_VALUE.
func (c *Context) SetAttribArray(index, size, stride, offset int) {
	if index < 0 {
		c.record(InvalidValue)
		return
	}
	if c.arrayBuffer == 0 {
		c.record(InvalidOperation)
		return
	}
	c.dev.VertexAttribPointer(index, size, stride, offset)
	c.dev.EnableVertexAttribArray(index)
}

// UploadArray creates an array buffer holding data and leaves it bound.
func (c *Context) UploadArray(data []float32, usage BufferUsage) Buffer {
	raw := make([]byte, 4*len(data))
	for i, f := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}
	return c.upload(ArrayBuffer, raw, usage)
}

// UploadIndices creates an element buffer holding indices and leaves it
// bound.
func (c *Context) UploadIndices(indices []uint16) Buffer {
	raw := make([]byte, 2*len(indices))
	for i, v := range indices {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	return c.upload(ElementArrayBuffer, raw, StaticDraw)
}

func (c *Context) upload(target BufferTarget, raw []byte, usage BufferUsage) Buffer {
	b := Buffer{handle: c.dev.CreateBuffer(), target: target}
	if b.handle != 0 {
		c.buffers = append(c.buffers, b.handle)
	}
	c.BindBuffer(b)
	c.dev.BufferData(target, raw, usage)
	return b
}

// DeleteBuffer frees b and clears the binding it occupied.
func (c *Context) DeleteBuffer(b Buffer) {
	if b.handle == 0 {
		return
	}
	c.dev.DeleteBuffer(b.handle)
	c.unbindBuffer(b.handle)
	c.buffers = forget(c.buffers, b.handle)
}

func (c *Context) unbindBuffer(h Handle) {
	if c.arrayBuffer == h {
		c.arrayBuffer = 0
	}
	if c.elementBuffer == h {
		c.elementBuffer = 0
	}
}

// BindBuffer binds b to the target it was created for.
func (c *Context) BindBuffer(b Buffer) {
	c.dev.BindBuffer(b.target, b.handle)
	switch b.target {
	case ArrayBuffer:
		c.arrayBuffer = b.handle
	case ElementArrayBuffer:
		c.elementBuffer = b.handle
	}
}

// ArrayBufferBound reports whether an array buffer is bound.
func (c *Context) ArrayBufferBound() bool { return c.arrayBuffer != 0 }

// UploadTexture creates a texture on unit 0 with nearest filtering and
// repeat wrapping. pixels are tightly packed RGBA8 rows, top row first.
// Dimensions above MaxTextureSize record INVALID_VALUE.
func (c *Context) UploadTexture(width, height int, pixels []byte) Texture {
	limit := c.limits.MaxTextureSize
	if width < 1 || height < 1 || width > limit || height > limit || len(pixels) != width*height*4 {
		c.record(InvalidValue)
		return Texture{}
	}
	t := Texture{handle: c.dev.CreateTexture(), Width: width, Height: height}
	if t.handle != 0 {
		c.textures = append(c.textures, t.handle)
	}
	c.dev.ActiveTexture(0)
	c.dev.BindTexture(t.handle)
	c.dev.TexParameter(TextureMinFilter, Nearest)
	c.dev.TexParameter(TextureMagFilter, Nearest)
	c.dev.TexParameter(TextureWrapS, Repeat)
	c.dev.TexParameter(TextureWrapT, Repeat)
	c.dev.TexImage2D(width, height, pixels)
	return t
}

// DeleteTexture frees t.
func (c *Context) DeleteTexture(t Texture) {
	if t.handle == 0 {
		return
	}
	c.dev.DeleteTexture(t.handle)
	c.textures = forget(c.textures, t.handle)
}

// Objects reports how many programs, buffers and textures created through
// c are still alive.
func (c *Context) Objects() (programs, buffers, textures int) {
	return len(c.programs), len(c.buffers), len(c.textures)
}

// ReleaseObjects deletes every program, buffer and texture created through
// c and leaves no program current and no buffer bound. Shaders are deleted
// once linked, so nothing else a job creates survives it.
func (c *Context) ReleaseObjects() {
	c.UseProgram(Program{})
	for _, h := range c.programs {
		c.dev.DeleteProgram(h)
	}
	for _, h := range c.buffers {
		c.dev.DeleteBuffer(h)
	}
	for _, h := range c.textures {
		c.dev.DeleteTexture(h)
	}
	c.programs, c.buffers, c.textures = c.programs[:0], c.buffers[:0], c.textures[:0]
	c.arrayBuffer, c.elementBuffer = 0, 0
}

// Clear fills the surface with a solid color.
func (c *Context) Clear(r, g, b, a float32) {
	c.dev.ClearColor(r, g, b, a)
	c.dev.Clear()
}

// DrawIndexed draws count indexed vertices from the bound element buffer.
func (c *Context) DrawIndexed(mode Primitive, count int) {
	if c.elementBuffer == 0 {
		c.record(InvalidOperation)
		return
	}
	c.dev.DrawElements(mode, count, 0)
}

// CaptureFrame reads the surface back.
func (c *Context) CaptureFrame() Frame {
	w, h, pix := c.dev.ReadPixels()
	return Frame{Width: w, Height: h, Pix: pix}
}

// CheckError reports and clears accumulated errors. Context loss yields a
// CONTEXT_LOST error, and keeps doing so on every later check; any other
// device error yields a GL_ERROR.
func (c *Context) CheckError(op string) error {
	code := c.pending
	c.pending = NoError

	if dc := c.dev.GetError(); dc != NoError && (code == NoError || dc == ContextLostError) {
		code = dc
	}
	if code == ContextLostError {
		c.lost = true
	}
	if c.lost {
		return errors.ContextLost(op)
	}
	if code != NoError {
		return errors.GL(op, code.String())
	}
	return nil
}

// Lost reports whether context loss has already been observed.
func (c *Context) Lost() bool { return c.lost }

// LoseContext forces context loss on devices that support it.
func (c *Context) LoseContext() bool {
	l, ok := c.dev.(Loser)
	if ok {
		l.LoseContext()
	}
	return ok
}

// Release frees every device object.
func (c *Context) Release() {
	c.dev.Release()
	c.program = Program{}
	c.arrayBuffer, c.elementBuffer = 0, 0
	c.programs, c.buffers, c.textures = nil, nil, nil
}

// checkLost polls the device for context loss without discarding other
// errors.
func (c *Context) checkLost() bool {
	if c.lost {
		return true
	}
	code := c.dev.GetError()
	switch code {
	case NoError:
	case ContextLostError:
		c.lost = true
	default:
		c.record(code)
	}
	return c.lost
}

func forget(hs []Handle, h Handle) []Handle {
	for i, v := range hs {
		if v == h {
			return append(hs[:i], hs[i+1:]...)
		}
	}
	return hs
}

// record keeps the first error, as the GL error flag does.
func (c *Context) record(code ErrorCode) {
	if c.pending == NoError {
		c.pending = code
	}
}
