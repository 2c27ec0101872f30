// Package soft is a pure Go gles.Device.
//
// GLSL shaders are compiled and executed by package glsl: vertices run
// through the vertex stage, triangles are clipped in homogeneous space and
// every covered pixel runs the fragment stage with perspective-correct
// varyings. WGSL modules are validated with naga; they cannot be executed,
// so their draws are filled with a color derived from the program sources
// and uniform values. Edge coverage for antialiased surfaces comes from
// golang.org/x/image/vector.
package soft

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"renderworker/internal/gles"
)

const (
	maxAttribs      = 16
	maxTextureUnits = 8
)

// Options configure a Device.
type Options struct {
	Vendor       string
	Renderer     string
	Antialiasing bool
	// StepBudget bounds the shader steps one draw call may take. A draw
	// that exceeds it loses the context, as a GPU watchdog reset would.
	// Zero means glsl.DefaultBudget.
	StepBudget int64
}

type attribState struct {
	enabled  bool
	buffer   gles.Handle
	size     int
	stride   int
	offset   int
	constant [4]float32
}

type texture struct {
	width, height int
	pix           []byte
	params        map[gles.TextureParam]gles.TextureValue
}

// Device is a software gles.Device. It is not safe for concurrent use; each
// worker slot owns its own.
type Device struct {
	info   gles.Info
	budget int64

	fb       *image.NRGBA
	viewport image.Rectangle

	next     gles.Handle
	shaders  map[gles.Handle]*shaderObj
	programs map[gles.Handle]*programObj
	buffers  map[gles.Handle][]byte
	textures map[gles.Handle]*texture

	current       *programObj
	arrayBuffer   gles.Handle
	elementBuffer gles.Handle
	attribs       [maxAttribs]attribState
	activeUnit    int
	units         [maxTextureUnits]gles.Handle
	clearColor    color.NRGBA

	err  gles.ErrorCode
	lost bool
}

var _ gles.Device = (*Device)(nil)
var _ gles.Loser = (*Device)(nil)

// New creates a device with a 1x1 surface.
func New(opts Options) *Device {
	if opts.Vendor == "" {
		opts.Vendor = "renderworker"
	}
	if opts.Renderer == "" {
		opts.Renderer = "soft rasterizer"
	}
	d := &Device{
		info: gles.Info{
			Platform:               "soft",
			Version:                "OpenGL ES 2.0 (soft)",
			ShadingLanguageVersion: "OpenGL ES GLSL ES 1.00",
			Vendor:                 opts.Vendor,
			Renderer:               opts.Renderer,
			Antialiasing:           opts.Antialiasing,
		},
		budget: opts.StepBudget,
	}
	d.reset()
	d.Resize(1, 1)
	d.viewport = d.fb.Bounds()
	return d
}

func (d *Device) reset() {
	d.shaders = map[gles.Handle]*shaderObj{}
	d.programs = map[gles.Handle]*programObj{}
	d.buffers = map[gles.Handle][]byte{}
	d.textures = map[gles.Handle]*texture{}
	d.current = nil
	d.arrayBuffer, d.elementBuffer = 0, 0
	for i := range d.attribs {
		d.attribs[i] = attribState{constant: [4]float32{0, 0, 0, 1}}
	}
	d.units = [maxTextureUnits]gles.Handle{}
	d.activeUnit = 0
}

func (d *Device) setError(code gles.ErrorCode) {
	if d.err == gles.NoError {
		d.err = code
	}
}

func (d *Device) handle() gles.Handle {
	d.next++
	return d.next
}

func (d *Device) Info() gles.Info { return d.info }

func (d *Device) Resize(width, height int) {
	if d.lost {
		return
	}
	if width < 1 || height < 1 {
		d.setError(gles.InvalidValue)
		return
	}
	d.fb = image.NewNRGBA(image.Rect(0, 0, width, height))
}

func (d *Device) Viewport(x, y, width, height int) {
	if d.lost {
		return
	}
	if width < 0 || height < 0 {
		d.setError(gles.InvalidValue)
		return
	}
	d.viewport = image.Rect(x, y, x+width, y+height)
}

func (d *Device) CompileShader(kind gles.ShaderKind, source string) (gles.Handle, bool, string) {
	if d.lost {
		return 0, false, ""
	}
	if kind != gles.VertexShader && kind != gles.FragmentShader {
		d.setError(gles.InvalidEnum)
		return 0, false, ""
	}
	s := compileShader(kind, source)
	h := d.handle()
	d.shaders[h] = s
	return h, s.compiled, s.log
}

func (d *Device) DeleteShader(h gles.Handle) {
	if d.lost || h == 0 {
		return
	}
	if _, ok := d.shaders[h]; !ok {
		d.setError(gles.InvalidValue)
		return
	}
	delete(d.shaders, h)
}

func (d *Device) LinkProgram(vs, fs gles.Handle) (gles.Handle, bool, string) {
	if d.lost {
		return 0, false, ""
	}
	p := linkProgram(d.shaders[vs], d.shaders[fs], map[string]int{})
	if p.prog != nil {
		p.prog.SetTextures(samplers{d})
	}
	h := d.handle()
	d.programs[h] = p
	return h, p.linked, p.log
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
	if d.current == p {
		d.current = nil
	}
	delete(d.programs, h)
}

func (d *Device) UseProgram(h gles.Handle) {
	if d.lost {
		return
	}
	if h == 0 {
		d.current = nil
		return
	}
	p, ok := d.programs[h]
	if !ok || !p.linked {
		d.setError(gles.InvalidOperation)
		return
	}
	d.current = p
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
	return p.location(name)
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
	if idx, ok := p.attribs[name]; ok {
		return idx
	}
	return -1
}

// BindAttribLocation takes effect immediately on linked programs rather than
// at the next link.
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
	p.bind(name, index)
}

func (d *Device) Uniform(loc gles.Location, fn gles.UniformFunc, values []float64) {
	if d.lost {
		return
	}
	if d.current == nil {
		d.setError(gles.InvalidOperation)
		return
	}
	if p := d.current.prog; p != nil {
		if code := p.SetUniform(int(loc), fn, values, maxTextureUnits); code != gles.NoError {
			d.setError(code)
		}
		return
	}
	if loc < 0 || int(loc) >= len(d.current.uniforms) {
		d.setError(gles.InvalidOperation)
		return
	}
	d.current.values[loc] = uniformValue{fn: fn, values: append([]float64(nil), values...)}
}

func (d *Device) VertexAttrib(index int, value [4]float32) {
	if d.lost {
		return
	}
	if index < 0 || index >= maxAttribs {
		d.setError(gles.InvalidValue)
		return
	}
	d.attribs[index].constant = value
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
}

// AttribBinding reports the buffer sourcing attribute index and whether its
// array is enabled.
func (d *Device) AttribBinding(index int) (buffer gles.Handle, enabled bool) {
	if index < 0 || index >= maxAttribs {
		return 0, false
	}
	return d.attribs[index].buffer, d.attribs[index].enabled
}

func (d *Device) CreateBuffer() gles.Handle {
	if d.lost {
		return 0
	}
	h := d.handle()
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
	switch target {
	case gles.ArrayBuffer:
		d.arrayBuffer = h
	case gles.ElementArrayBuffer:
		d.elementBuffer = h
	default:
		d.setError(gles.InvalidEnum)
	}
}

func (d *Device) BufferData(target gles.BufferTarget, data []byte, usage gles.BufferUsage) {
	if d.lost {
		return
	}
	var h gles.Handle
	switch target {
	case gles.ArrayBuffer:
		h = d.arrayBuffer
	case gles.ElementArrayBuffer:
		h = d.elementBuffer
	default:
		d.setError(gles.InvalidEnum)
		return
	}
	if usage < gles.StaticDraw || usage > gles.StreamDraw {
		d.setError(gles.InvalidEnum)
		return
	}
	if h == 0 {
		d.setError(gles.InvalidOperation)
		return
	}
	d.buffers[h] = append([]byte(nil), data...)
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
}

func (d *Device) CreateTexture() gles.Handle {
	if d.lost {
		return 0
	}
	h := d.handle()
	d.textures[h] = &texture{params: map[gles.TextureParam]gles.TextureValue{
		gles.TextureMinFilter: gles.Nearest,
		gles.TextureMagFilter: gles.Linear,
		gles.TextureWrapS:     gles.Repeat,
		gles.TextureWrapT:     gles.Repeat,
	}}
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
}

func (d *Device) BindTexture(h gles.Handle) {
	if d.lost {
		return
	}
	if _, ok := d.textures[h]; h != 0 && !ok {
		d.setError(gles.InvalidOperation)
		return
	}
	d.units[d.activeUnit] = h
}

func (d *Device) boundTexture() *texture {
	return d.textures[d.units[d.activeUnit]]
}

func (d *Device) TexImage2D(width, height int, pixels []byte) {
	if d.lost {
		return
	}
	t := d.boundTexture()
	if t == nil {
		d.setError(gles.InvalidOperation)
		return
	}
	if width < 1 || height < 1 || len(pixels) != width*height*4 {
		d.setError(gles.InvalidValue)
		return
	}
	t.width, t.height = width, height
	t.pix = append([]byte(nil), pixels...)
}

func (d *Device) TexParameter(param gles.TextureParam, value gles.TextureValue) {
	if d.lost {
		return
	}
	t := d.boundTexture()
	if t == nil {
		d.setError(gles.InvalidOperation)
		return
	}
	if param < gles.TextureMinFilter || param > gles.TextureWrapT || value < gles.Nearest || value > gles.ClampToEdge {
		d.setError(gles.InvalidEnum)
		return
	}
	t.params[param] = value
}

func (d *Device) DeleteTexture(h gles.Handle) {
	if d.lost || h == 0 {
		return
	}
	if _, ok := d.textures[h]; !ok {
		d.setError(gles.InvalidValue)
		return
	}
	delete(d.textures, h)
	for i, u := range d.units {
		if u == h {
			d.units[i] = 0
		}
	}
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
	d.clearColor = color.NRGBA{R: unit8(r), G: unit8(g), B: unit8(b), A: unit8(a)}
}

func (d *Device) Clear() {
	if d.lost {
		return
	}
	c := d.clearColor
	pix := d.fb.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
}

func (d *Device) DrawElements(mode gles.Primitive, count, offset int) {
	if d.lost {
		return
	}
	if mode < gles.Triangles || mode > gles.TriangleFan {
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
	indices := make([]int, count)
	for i := range indices {
		indices[i] = int(binary.LittleEndian.Uint16(raw[offset+2*i:]))
	}

	d.draw(mode, indices)
}

// attribValue reads attribute location loc for vertex index: the enabled
// array's components padded with (0, 0, 0, 1), or the constant value.
func (d *Device) attribValue(loc, index int) ([4]float64, bool) {
	if loc < 0 || loc >= maxAttribs {
		return [4]float64{0, 0, 0, 1}, true
	}
	a := d.attribs[loc]
	if !a.enabled {
		c := a.constant
		return [4]float64{float64(c[0]), float64(c[1]), float64(c[2]), float64(c[3])}, true
	}
	buf := d.buffers[a.buffer]
	stride := a.stride
	if stride == 0 {
		stride = 4 * a.size
	}
	at := a.offset + index*stride
	if at+4*a.size > len(buf) {
		return [4]float64{}, false
	}
	v := [4]float64{0, 0, 0, 1}
	for i := range a.size {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[at+4*i:])))
	}
	return v, true
}

func (d *Device) ReadPixels() (int, int, []byte) {
	if d.lost {
		return 0, 0, nil
	}
	b := d.fb.Bounds()
	return b.Dx(), b.Dy(), append([]byte(nil), d.fb.Pix...)
}

func (d *Device) GetError() gles.ErrorCode {
	if d.lost {
		return gles.ContextLostError
	}
	e := d.err
	d.err = gles.NoError
	return e
}

// LoseContext simulates losing the context. It cannot be restored; callers
// create a new Device.
func (d *Device) LoseContext() {
	d.reset()
	d.lost = true
}

func (d *Device) Release() {
	d.reset()
}

func unit8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(v*0xff + 0.5)
}
