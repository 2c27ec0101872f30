//go:build linux

package native

import (
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/gogpu/wgpu/hal/gles/egl"
	"github.com/gogpu/wgpu/hal/gles/gl"

	"renderworker/internal/gles"
	"renderworker/internal/pkg/errors"
)

var (
	eglOnce sync.Once
	eglErr  error
)

// thread runs functions on one goroutine locked to its OS thread.
type thread struct {
	calls chan func()
	done  chan struct{}
}

// startThread locks a new goroutine to its thread and runs open there. The
// thread exits if open fails.
func startThread(open func() error) (*thread, error) {
	t := &thread{calls: make(chan func()), done: make(chan struct{})}
	opened := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer close(t.done)
		if err := open(); err != nil {
			opened <- err
			return
		}
		opened <- nil
		for fn := range t.calls {
			fn()
		}
	}()
	if err := <-opened; err != nil {
		return nil, err
	}
	return t, nil
}

func (t *thread) do(fn func()) {
	done := make(chan struct{})
	t.calls <- func() {
		fn()
		close(done)
	}
	<-done
}

func (t *thread) stop() {
	close(t.calls)
	<-t.done
}

type shader struct {
	id       uint32
	kind     gles.ShaderKind
	wgsl     bool
	compiled bool
}

type uniformValue struct {
	fn     gles.UniformFunc
	values []float64
}

// program keeps uniform locations stable across relinks: callers hold an
// index into names, which maps to whatever GL location the last link gave.
type program struct {
	id     uint32
	wgsl   bool
	linked bool
	names  []string
	gl     map[string]int32
	values map[gles.Location]uniformValue
}

type attrib struct {
	enabled              bool
	buffer               gles.Handle
	size, stride, offset int
}

// Device is a gles.Device on an EGL context. Like soft.Device it is not
// safe for concurrent use; each worker slot owns its own.
type Device struct {
	info gles.Info
	th   *thread
	ctx  *egl.Context
	gl   api

	samples       int32
	maxSize       int
	width, height int
	fbo, color    uint32
	// resolve receives the multisampled color before readback.
	resolve, resolveColor uint32

	shaders  map[gles.Handle]*shader
	programs map[gles.Handle]*program
	buffers  map[gles.Handle][]byte
	textures map[gles.Handle]bool

	current       *program
	arrayBuffer   gles.Handle
	elementBuffer gles.Handle
	attribs       [maxAttribs]attrib
	activeUnit    int
	units         [maxTextureUnits]gles.Handle

	err  gles.ErrorCode
	lost bool
}

var _ gles.Device = (*Device)(nil)
var _ gles.Loser = (*Device)(nil)

// New creates an EGL context and a device drawing into a 1x1 offscreen
// surface.
func New(opts Options) (gles.Device, error) {
	eglOnce.Do(func() { eglErr = egl.Init() })
	if eglErr != nil {
		return nil, errors.WrapWithCode(eglErr, errors.CodeUnavailable, "native.New", "cannot load EGL")
	}
	d := &Device{
		shaders:  map[gles.Handle]*shader{},
		programs: map[gles.Handle]*program{},
		buffers:  map[gles.Handle][]byte{},
		textures: map[gles.Handle]bool{},
	}
	th, err := startThread(func() error { return d.open(opts) })
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "native.New", "cannot create GL context")
	}
	d.th = th
	d.Resize(1, 1)
	d.Viewport(0, 0, 1, 1)
	if code := d.GetError(); code != gles.NoError {
		d.Release()
		return nil, errors.Newf(errors.CodeUnavailable, "offscreen surface failed: %s", code).WithOp("native.New")
	}
	return d, nil
}

// open runs on the device thread.
func (d *Device) open(opts Options) error {
	ctx, err := egl.NewContext(egl.ContextConfig{
		GLVersionMajor: 3,
		GLVersionMinor: 0,
		GLES:           true,
		Surfaceless:    true,
	})
	if err != nil {
		return err
	}
	if err := ctx.MakeCurrent(); err != nil {
		ctx.Destroy()
		return err
	}
	if err := d.gl.load(); err != nil {
		ctx.Destroy()
		return err
	}
	d.ctx = ctx
	a := &d.gl

	d.info = gles.Info{
		Platform:               "egl/" + ctx.WindowKind().String(),
		Version:                a.GetString(gl.VERSION),
		ShadingLanguageVersion: a.GetString(gl.SHADING_LANGUAGE_VERSION),
		Vendor:                 a.GetString(gl.VENDOR),
		Renderer:               a.GetString(gl.RENDERER),
		Antialiasing:           opts.Antialiasing,
	}
	d.maxSize = int(a.GetInteger(gl.MAX_RENDERBUFFER_SIZE))
	if opts.Antialiasing {
		n := opts.Samples
		if n <= 0 {
			n = defaultSamples
		}
		d.samples = min(int32(n), a.GetInteger(gl.MAX_SAMPLES))
	}

	a.BindVertexArray(a.gen(a.genVertexArrays))
	a.PixelStorei(gl.PACK_ALIGNMENT, 1)
	a.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	d.fbo, d.color = a.gen(a.genFramebuffers), a.gen(a.genRenderbuffers)
	if d.samples > 0 {
		d.resolve, d.resolveColor = a.gen(a.genFramebuffers), a.gen(a.genRenderbuffers)
	}
	return nil
}

func (d *Device) setError(code gles.ErrorCode) {
	if d.err == gles.NoError {
		d.err = code
	}
}

func (d *Device) Info() gles.Info { return d.info }

func (d *Device) Resize(width, height int) {
	if d.lost {
		return
	}
	if width < 1 || height < 1 || width > d.maxSize || height > d.maxSize {
		d.setError(gles.InvalidValue)
		return
	}
	complete := true
	d.th.do(func() {
		a := &d.gl
		w, h := int32(width), int32(height)
		if d.samples > 0 {
			a.RenderbufferStorage(d.resolveColor, 0, w, h)
			a.BindFramebuffer(gl.FRAMEBUFFER, d.resolve)
			complete = a.AttachColor(d.resolveColor)
		}
		a.RenderbufferStorage(d.color, d.samples, w, h)
		a.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
		complete = a.AttachColor(d.color) && complete
	})
	if !complete {
		d.setError(gles.InvalidFramebufferOperation)
		return
	}
	d.width, d.height = width, height
}

func (d *Device) Viewport(x, y, width, height int) {
	if d.lost {
		return
	}
	if width < 0 || height < 0 {
		d.setError(gles.InvalidValue)
		return
	}
	d.th.do(func() { d.gl.Viewport(int32(x), int32(y), int32(width), int32(height)) })
}

func (d *Device) CompileShader(kind gles.ShaderKind, source string) (gles.Handle, bool, string) {
	if d.lost {
		return 0, false, ""
	}
	var glKind uint32
	switch kind {
	case gles.VertexShader:
		glKind = gl.VERTEX_SHADER
	case gles.FragmentShader:
		glKind = gl.FRAGMENT_SHADER
	default:
		d.setError(gles.InvalidEnum)
		return 0, false, ""
	}

	s := &shader{kind: kind, wgsl: isWGSL(source)}
	var log string
	if s.wgsl {
		translated, err := translateWGSL(kind, source)
		if err != nil {
			log = "ERROR: " + err.Error() + "\n"
		}
		source = translated
	}
	d.th.do(func() {
		s.id = d.gl.CreateShader(glKind)
		if log != "" {
			return
		}
		d.gl.ShaderSource(s.id, source)
		d.gl.CompileShader(s.id)
		s.compiled, log = d.gl.ShaderStatus(s.id)
	})
	h := gles.Handle(s.id)
	d.shaders[h] = s
	return h, s.compiled, log
}

func (d *Device) DeleteShader(h gles.Handle) {
	if d.lost || h == 0 {
		return
	}
	s, ok := d.shaders[h]
	if !ok {
		d.setError(gles.InvalidValue)
		return
	}
	delete(d.shaders, h)
	d.th.do(func() { d.gl.DeleteShader(s.id) })
}

func (d *Device) LinkProgram(vs, fs gles.Handle) (gles.Handle, bool, string) {
	if d.lost {
		return 0, false, ""
	}
	v, f := d.shaders[vs], d.shaders[fs]
	var problem string
	switch {
	case v == nil || f == nil:
		problem = "ERROR: program is missing a shader stage\n"
	case v.kind != gles.VertexShader || f.kind != gles.FragmentShader:
		problem = "ERROR: attached shaders are not a vertex and fragment pair\n"
	case !v.compiled || !f.compiled:
		problem = "ERROR: attached shader was not compiled successfully\n"
	case v.wgsl != f.wgsl:
		problem = "ERROR: cannot link GLSL and WGSL stages together\n"
	}

	p := &program{gl: map[string]int32{}, values: map[gles.Location]uniformValue{}}
	log := problem
	d.th.do(func() {
		p.id = d.gl.CreateProgram()
		if problem != "" {
			return
		}
		p.wgsl = v.wgsl
		d.gl.AttachShader(p.id, v.id)
		d.gl.AttachShader(p.id, f.id)
		d.gl.LinkProgram(p.id)
		p.linked, log = d.gl.ProgramStatus(p.id)
	})
	h := gles.Handle(p.id)
	d.programs[h] = p
	return h, p.linked, log
}

func (d *Device) DeleteProgram(h gles.Handle) {
	if d.lost || h == 0 {
		return
	}
	p, ok := d.programs[h]
	if !ok {
		d.setError(gles.InvalidValue)
		return
	}
	unbind := d.current == p
	if unbind {
		d.current = nil
	}
	delete(d.programs, h)
	d.th.do(func() {
		if unbind {
			d.gl.UseProgram(0)
		}
		d.gl.DeleteProgram(p.id)
	})
}

func (d *Device) UseProgram(h gles.Handle) {
	if d.lost {
		return
	}
	var p *program
	if h != 0 {
		var ok bool
		p, ok = d.programs[h]
		if !ok || !p.linked {
			d.setError(gles.InvalidOperation)
			return
		}
	}
	d.current = p
	d.th.do(func() { d.gl.UseProgram(uint32(h)) })
}

func (d *Device) UniformLocation(h gles.Handle, name string) gles.Location {
	if d.lost {
		return gles.NoLocation
	}
	p, ok := d.programs[h]
	if !ok || !p.linked {
		d.setError(gles.InvalidOperation)
		return gles.NoLocation
	}
	var loc int32
	d.th.do(func() { loc = d.gl.UniformLocation(p.id, name) })
	if loc < 0 {
		return gles.NoLocation
	}
	p.gl[name] = loc
	for i, n := range p.names {
		if n == name {
			return gles.Location(i)
		}
	}
	p.names = append(p.names, name)
	return gles.Location(len(p.names) - 1)
}

func (d *Device) AttribLocation(h gles.Handle, name string) int {
	if d.lost {
		return -1
	}
	p, ok := d.programs[h]
	if !ok || !p.linked {
		d.setError(gles.InvalidOperation)
		return -1
	}
	var idx int32
	d.th.do(func() { idx = d.gl.AttribLocation(p.id, name) })
	return int(idx)
}

// BindAttribLocation takes effect immediately: a linked program is linked
// again and its uniform values uploaded anew.
func (d *Device) BindAttribLocation(h gles.Handle, index int, name string) {
	if d.lost {
		return
	}
	p, ok := d.programs[h]
	if !ok {
		d.setError(gles.InvalidOperation)
		return
	}
	if index < 0 || index >= maxAttribs {
		d.setError(gles.InvalidValue)
		return
	}
	d.th.do(func() {
		d.gl.BindAttribLocation(p.id, uint32(index), name)
		if !p.linked {
			return
		}
		d.gl.LinkProgram(p.id)
		if p.linked, _ = d.gl.ProgramStatus(p.id); !p.linked {
			return
		}
		for n := range p.gl {
			p.gl[n] = d.gl.UniformLocation(p.id, n)
		}
		d.gl.UseProgram(p.id)
		for loc, v := range p.values {
			d.upload(p, loc, v.fn, v.values)
		}
		restore := uint32(0)
		if d.current != nil {
			restore = d.current.id
		}
		d.gl.UseProgram(restore)
	})
	if !p.linked && d.current == p {
		d.current = nil
	}
}

func (d *Device) Uniform(loc gles.Location, fn gles.UniformFunc, values []float64) {
	if d.lost {
		return
	}
	p := d.current
	if p == nil || loc < 0 || int(loc) >= len(p.names) {
		d.setError(gles.InvalidOperation)
		return
	}
	n := fn.Components()
	if n == 0 || len(values) == 0 || len(values)%n != 0 || (!fn.Vector() && len(values) != n) {
		d.setError(gles.InvalidValue)
		return
	}
	var before, after []uint32
	d.th.do(func() {
		before = d.drain()
		d.upload(p, loc, fn, values)
		after = d.drain()
	})
	d.record(before)
	d.record(after)
	if len(after) == 0 {
		p.values[loc] = uniformValue{fn: fn, values: append([]float64(nil), values...)}
	}
}

// upload sends values to the current GL program. It runs on the device
// thread.
func (d *Device) upload(p *program, loc gles.Location, fn gles.UniformFunc, values []float64) {
	at, ok := p.gl[p.names[loc]]
	if !ok || at < 0 {
		return
	}
	n := fn.Components()
	count := int32(len(values) / n)
	switch {
	case fn.Matrix():
		d.gl.UniformMatrix(matrixSize(n), at, count, float32s(values))
	case fn.Integer():
		ints := make([]int32, len(values))
		for i, v := range values {
			ints[i] = int32(v)
		}
		d.gl.Uniformiv(n, at, count, ints)
	default:
		d.gl.Uniformfv(n, at, count, float32s(values))
	}
}

func matrixSize(components int) int {
	switch components {
	case 4:
		return 2
	case 9:
		return 3
	}
	return 4
}

func float32s(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func (d *Device) VertexAttrib(index int, value [4]float32) {
	if d.lost {
		return
	}
	if index < 0 || index >= maxAttribs {
		d.setError(gles.InvalidValue)
		return
	}
	d.th.do(func() { d.gl.VertexAttrib4f(uint32(index), value) })
}

func (d *Device) VertexAttribPointer(index, size, stride, offset int) {
	if d.lost {
		return
	}
	if index < 0 || index >= maxAttribs || size < 1 || size > 4 || stride < 0 || offset < 0 {
		d.setError(gles.InvalidValue)
		return
	}
	if d.arrayBuffer == 0 {
		d.setError(gles.InvalidOperation)
		return
	}
	a := &d.attribs[index]
	a.buffer, a.size, a.stride, a.offset = d.arrayBuffer, size, stride, offset
	d.th.do(func() { d.gl.VertexAttribPointer(uint32(index), int32(size), int32(stride), uintptr(offset)) })
}

func (d *Device) EnableVertexAttribArray(index int) {
	d.setAttribEnabled(index, true)
}

func (d *Device) DisableVertexAttribArray(index int) {
	d.setAttribEnabled(index, false)
}

func (d *Device) setAttribEnabled(index int, on bool) {
	if d.lost {
		return
	}
	if index < 0 || index >= maxAttribs {
		d.setError(gles.InvalidValue)
		return
	}
	d.attribs[index].enabled = on
	d.th.do(func() {
		if on {
			d.gl.EnableVertexAttribArray(uint32(index))
		} else {
			d.gl.DisableVertexAttribArray(uint32(index))
		}
	})
}

func (d *Device) CreateBuffer() gles.Handle {
	if d.lost {
		return 0
	}
	var id uint32
	d.th.do(func() { id = d.gl.gen(d.gl.genBuffers) })
	h := gles.Handle(id)
	d.buffers[h] = nil
	return h
}

func (d *Device) BindBuffer(target gles.BufferTarget, h gles.Handle) {
	if d.lost {
		return
	}
	if _, ok := d.buffers[h]; h != 0 && !ok {
		d.setError(gles.InvalidOperation)
		return
	}
	t, ok := bufferTarget(target)
	if !ok {
		d.setError(gles.InvalidEnum)
		return
	}
	if target == gles.ArrayBuffer {
		d.arrayBuffer = h
	} else {
		d.elementBuffer = h
	}
	d.th.do(func() { d.gl.BindBuffer(t, uint32(h)) })
}

func (d *Device) BufferData(target gles.BufferTarget, data []byte, usage gles.BufferUsage) {
	if d.lost {
		return
	}
	t, ok := bufferTarget(target)
	u, uok := bufferUsage(usage)
	if !ok || !uok {
		d.setError(gles.InvalidEnum)
		return
	}
	h := d.arrayBuffer
	if target == gles.ElementArrayBuffer {
		h = d.elementBuffer
	}
	if h == 0 {
		d.setError(gles.InvalidOperation)
		return
	}
	// The copy bounds vertex fetches and supplies indices for validation.
	d.buffers[h] = append([]byte(nil), data...)
	d.th.do(func() { d.gl.BufferData(t, data, u) })
}

func (d *Device) DeleteBuffer(h gles.Handle) {
	if d.lost || h == 0 {
		return
	}
	if _, ok := d.buffers[h]; !ok {
		d.setError(gles.InvalidValue)
		return
	}
	delete(d.buffers, h)
	if d.arrayBuffer == h {
		d.arrayBuffer = 0
	}
	if d.elementBuffer == h {
		d.elementBuffer = 0
	}
	for i := range d.attribs {
		if d.attribs[i].buffer == h {
			d.attribs[i].buffer = 0
		}
	}
	d.th.do(func() { d.gl.del(d.gl.deleteBuffers, uint32(h)) })
}

// CreateTexture creates a texture with the same defaults as soft.Device:
// nearest minification, so a texture without mipmaps is complete.
func (d *Device) CreateTexture() gles.Handle {
	if d.lost {
		return 0
	}
	var id uint32
	d.th.do(func() {
		id = d.gl.gen(d.gl.genTextures)
		d.gl.BindTexture(gl.TEXTURE_2D, id)
		d.gl.TexParameteri(gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		d.gl.BindTexture(gl.TEXTURE_2D, uint32(d.units[d.activeUnit]))
	})
	h := gles.Handle(id)
	d.textures[h] = true
	return h
}

func (d *Device) ActiveTexture(unit int) {
	if d.lost {
		return
	}
	if unit < 0 || unit >= maxTextureUnits {
		d.setError(gles.InvalidEnum)
		return
	}
	d.activeUnit = unit
	d.th.do(func() { d.gl.ActiveTexture(gl.TEXTURE0 + uint32(unit)) })
}

func (d *Device) BindTexture(h gles.Handle) {
	if d.lost {
		return
	}
	if h != 0 && !d.textures[h] {
		d.setError(gles.InvalidOperation)
		return
	}
	d.units[d.activeUnit] = h
	d.th.do(func() { d.gl.BindTexture(gl.TEXTURE_2D, uint32(h)) })
}

func (d *Device) TexImage2D(width, height int, pixels []byte) {
	if d.lost {
		return
	}
	if d.units[d.activeUnit] == 0 {
		d.setError(gles.InvalidOperation)
		return
	}
	if width < 1 || height < 1 || len(pixels) != width*height*4 {
		d.setError(gles.InvalidValue)
		return
	}
	d.th.do(func() { d.gl.TexImage2D(int32(width), int32(height), pixels) })
}

func (d *Device) TexParameter(param gles.TextureParam, value gles.TextureValue) {
	if d.lost {
		return
	}
	if d.units[d.activeUnit] == 0 {
		d.setError(gles.InvalidOperation)
		return
	}
	pname, ok := textureParam(param)
	v, vok := textureValue(param, value)
	if !ok || !vok {
		d.setError(gles.InvalidEnum)
		return
	}
	d.th.do(func() { d.gl.TexParameteri(pname, v) })
}

func (d *Device) DeleteTexture(h gles.Handle) {
	if d.lost || h == 0 {
		return
	}
	if !d.textures[h] {
		d.setError(gles.InvalidValue)
		return
	}
	delete(d.textures, h)
	for i, u := range d.units {
		if u == h {
			d.units[i] = 0
		}
	}
	d.th.do(func() { d.gl.del(d.gl.deleteTextures, uint32(h)) })
}

// Objects counts the live objects of each kind.
type Objects struct {
	Shaders, Programs, Buffers, Textures int
}

// Objects reports how many objects the device holds.
func (d *Device) Objects() Objects {
	return Objects{
		Shaders:  len(d.shaders),
		Programs: len(d.programs),
		Buffers:  len(d.buffers),
		Textures: len(d.textures),
	}
}

func (d *Device) ClearColor(r, g, b, a float32) {
	if d.lost {
		return
	}
	d.th.do(func() { d.gl.ClearColor(r, g, b, a) })
}

func (d *Device) Clear() {
	if d.lost {
		return
	}
	d.th.do(func() { d.gl.Clear(gl.COLOR_BUFFER_BIT) })
}

// DrawElements checks indices and vertex fetches against the uploaded data
// before the draw reaches the driver, where an out-of-range fetch is
// undefined behavior.
func (d *Device) DrawElements(mode gles.Primitive, count, offset int) {
	if d.lost {
		return
	}
	m, ok := primitive(mode)
	if !ok {
		d.setError(gles.InvalidEnum)
		return
	}
	if count < 0 || offset < 0 {
		d.setError(gles.InvalidValue)
		return
	}
	if d.current == nil || d.elementBuffer == 0 {
		d.setError(gles.InvalidOperation)
		return
	}
	raw := d.buffers[d.elementBuffer]
	if offset+2*count > len(raw) {
		d.setError(gles.InvalidOperation)
		return
	}
	top := -1
	for i := range count {
		top = max(top, int(binary.LittleEndian.Uint16(raw[offset+2*i:])))
	}
	if top >= 0 {
		for _, a := range d.attribs {
			if a.enabled && !fits(len(d.buffers[a.buffer]), top, a.size, a.stride, a.offset) {
				d.setError(gles.InvalidOperation)
				return
			}
		}
	}
	d.th.do(func() { d.gl.DrawElements(m, int32(count), uintptr(offset)) })
}

func (d *Device) ReadPixels() (int, int, []byte) {
	if d.lost {
		return 0, 0, nil
	}
	w, h := d.width, d.height
	pix := make([]byte, 4*w*h)
	d.th.do(func() {
		a := &d.gl
		if d.samples > 0 {
			a.Resolve(d.fbo, d.resolve, int32(w), int32(h))
			a.BindFramebuffer(gl.READ_FRAMEBUFFER, d.resolve)
		}
		a.ReadPixels(int32(w), int32(h), pix)
		a.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
	})
	flipRows(pix, w, h)
	return w, h, pix
}

// GetError moves the driver's error flags into the device flag, keeping
// the first, and returns it. A reset context is reported as lost.
func (d *Device) GetError() gles.ErrorCode {
	if d.lost {
		return gles.ContextLostError
	}
	var codes []uint32
	d.th.do(func() { codes = d.drain() })
	d.record(codes)
	if d.lost {
		return gles.ContextLostError
	}
	e := d.err
	d.err = gles.NoError
	return e
}

// drain reads pending driver errors. It runs on the device thread.
func (d *Device) drain() []uint32 {
	var codes []uint32
	for range 8 {
		e := d.gl.GetError()
		if e == gl.NO_ERROR {
			break
		}
		codes = append(codes, e)
	}
	return codes
}

func (d *Device) record(codes []uint32) {
	for _, e := range codes {
		code := errorCode(e)
		if code == gles.ContextLostError {
			d.LoseContext()
			return
		}
		d.setError(code)
	}
}

// LoseContext destroys the EGL context. It cannot be restored; callers
// create a new Device.
func (d *Device) LoseContext() {
	if d.lost {
		return
	}
	d.close()
	d.lost = true
}

// Release deletes every object and destroys the context. Later calls are
// no-ops and GetError reports CONTEXT_LOST.
func (d *Device) Release() {
	d.LoseContext()
}

func (d *Device) close() {
	d.th.do(func() {
		a := &d.gl
		a.UseProgram(0)
		for _, p := range d.programs {
			a.DeleteProgram(p.id)
		}
		for _, s := range d.shaders {
			a.DeleteShader(s.id)
		}
		for h := range d.buffers {
			a.del(a.deleteBuffers, uint32(h))
		}
		for h := range d.textures {
			a.del(a.deleteTextures, uint32(h))
		}
		a.del(a.deleteFramebuffers, d.fbo)
		a.del(a.deleteRenderbuffers, d.color)
		if d.samples > 0 {
			a.del(a.deleteFramebuffers, d.resolve)
			a.del(a.deleteRenderbuffers, d.resolveColor)
		}
		d.ctx.Destroy()
	})
	d.th.stop()
	d.shaders = map[gles.Handle]*shader{}
	d.programs = map[gles.Handle]*program{}
	d.buffers = map[gles.Handle][]byte{}
	d.textures = map[gles.Handle]bool{}
	d.current = nil
	d.arrayBuffer, d.elementBuffer = 0, 0
	d.attribs = [maxAttribs]attrib{}
	d.units = [maxTextureUnits]gles.Handle{}
}
