// Package glsl compiles and runs OpenGL ES shading language shaders.
//
// Compile runs the preprocessor, parser and type checker and reports
// problems in the info log format GLES drivers use. Link checks a vertex and
// fragment shader against each other and builds an executable Program whose
// stages run as closures over per-variable storage: floats are computed in
// single precision, integers wrap at 32 bits, and every loop iteration and
// call is charged against a step budget so runaway shaders stop instead of
// hanging the caller.
package glsl

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"renderworker/internal/gles"
)

// Stage is the pipeline stage a shader belongs to.
type Stage int

const (
	Vertex Stage = iota + 1
	Fragment
)

func (s Stage) String() string {
	if s == Vertex {
		return "vertex"
	}
	return "fragment"
}

// DefaultBudget is the step budget used when none is set.
const DefaultBudget = 1 << 24

var (
	// ErrBudget is returned when a shader exhausts its step budget.
	ErrBudget = errors.New("glsl: shader step budget exhausted")
	// ErrRuntime is returned when execution fails in an unexpected way.
	ErrRuntime = errors.New("glsl: shader execution failed")
)

type (
	discarded       struct{}
	budgetExhausted struct{}
)

// machine is the execution state shared by the stages of a program.
type machine struct {
	textures Textures
	budget   int64
	steps    int64
}

func (m *machine) tick() {
	m.steps++
	if m.steps > m.budget {
		panic(budgetExhausted{})
	}
}

// Shader is a compiled shader. Failed shaders keep their info log.
type Shader struct {
	Stage   Stage
	Version string
	OK      bool
	Log     string

	pp   *preprocessed
	unit *Unit
}

// Compile checks src as a shader of the given stage.
func Compile(stage Stage, src string) *Shader {
	var diag diagnostics
	s := &Shader{Stage: stage}
	pp := preprocess(stage, src, &diag)
	s.pp = pp
	s.Version = pp.versionStr
	if !diag.failed() {
		s.unit = newParser(pp, &diag).parse()
	}
	if !diag.failed() {
		newChecker(stage, pp, &diag, nil, &machine{budget: DefaultBudget}).check(s.unit)
	}
	s.Log = diag.String()
	s.OK = !diag.failed()
	return s
}

// Uniform is one uniform location. Array elements each get a location;
// Count is the number of elements from this one to the end of the array.
type Uniform struct {
	Name  string
	Type  *Type
	Count int
	data  []float64
}

// Attrib is an active vertex input.
type Attrib struct {
	Name string
	Type *Type
	v    *variable
}

// Columns is the number of attribute locations the input occupies.
func (a *Attrib) Columns() int {
	if a.Type.isMatrix() {
		return a.Type.Size
	}
	return 1
}

// SetColumn loads one location's worth of values, converting to the
// declared component type.
func (a *Attrib) SetColumn(col int, v [4]float64) {
	n := a.Type.Size
	if a.Type.isMatrix() {
		n = a.Type.Rows
	}
	dst := a.v.data[col*n : (col+1)*n]
	for i := range dst {
		dst[i] = convert(Float, a.Type.Basic, v[i])
	}
}

// varying links a vertex output to the fragment input reading it.
type varying struct {
	out, in *variable
	flat    bool
}

// Program is a linked vertex and fragment shader pair.
type Program struct {
	Uniforms []Uniform
	Attribs  []*Attrib

	vs, fs   *module
	m        *machine
	varyings []varying
	slots    int
	color    *variable
}

// Link checks vs and fs against each other and builds an executable
// program. On failure the returned log explains why.
func Link(vs, fs *Shader) (*Program, string) {
	var problems []string
	switch {
	case vs == nil || fs == nil:
		problems = append(problems, "ERROR: program is missing a shader stage")
	case vs.Stage != Vertex || fs.Stage != Fragment:
		problems = append(problems, "ERROR: attached shaders are not a vertex and fragment pair")
	case !vs.OK || !fs.OK:
		problems = append(problems, "ERROR: attached shader was not compiled successfully")
	case vs.Version != fs.Version:
		problems = append(problems, fmt.Sprintf("ERROR: Shader versions differ: vertex %s, fragment %s", vs.Version, fs.Version))
	}
	if len(problems) > 0 {
		return nil, strings.Join(problems, "\n") + "\n"
	}

	m := &machine{budget: DefaultBudget}
	env := &linkEnv{uniforms: map[string]*variable{}}
	var diag diagnostics
	p := &Program{m: m}
	p.vs = newChecker(Vertex, vs.pp, &diag, env, m).check(vs.unit)
	p.fs = newChecker(Fragment, fs.pp, &diag, env, m).check(fs.unit)
	if diag.failed() || p.vs == nil || p.fs == nil {
		return nil, diag.String()
	}
	problems = append(problems, env.problems...)

	outs := map[string]*variable{}
	for _, v := range p.vs.outputs {
		outs[v.name] = v
	}
	ins := append([]*variable(nil), p.fs.inputs...)
	sort.Slice(ins, func(i, j int) bool { return ins[i].name < ins[j].name })
	for _, in := range ins {
		out, ok := outs[in.name]
		switch {
		case !ok:
			if in.used {
				problems = append(problems, fmt.Sprintf("ERROR: Input of fragment shader '%s' not written by vertex shader", in.name))
			}
		case !out.t.Equal(in.t):
			problems = append(problems, fmt.Sprintf("ERROR: Types of varying '%s' differ between vertex and fragment shaders", in.name))
		case out.flat != in.flat && vs.pp.es && vs.pp.version >= 300:
			problems = append(problems, fmt.Sprintf("ERROR: Interpolation types for varying '%s' differ between vertex and fragment shaders", in.name))
		default:
			p.varyings = append(p.varyings, varying{out: out, in: in, flat: in.flat})
			p.slots += in.t.Slots()
		}
	}
	if len(problems) > 0 {
		return nil, strings.Join(problems, "\n") + "\n"
	}

	p.collectUniforms()
	for _, v := range p.vs.inputs {
		if v.used {
			p.Attribs = append(p.Attribs, &Attrib{Name: v.name, Type: v.t, v: v})
		}
	}
	sort.Slice(p.Attribs, func(i, j int) bool { return p.Attribs[i].Name < p.Attribs[j].Name })
	p.pickColorOutput()
	return p, ""
}

// collectUniforms lists every settable location of the statically used
// uniforms of both stages, sorted by name.
func (p *Program) collectUniforms() {
	seen := map[*variable]bool{}
	for _, mod := range []*module{p.vs, p.fs} {
		for _, v := range mod.uniforms {
			if !v.used || seen[v] {
				continue
			}
			seen[v] = true
			p.flatten(v.name, v.t, v.data)
		}
	}
	// Uniforms used by both stages share storage and appear twice.
	sort.Slice(p.Uniforms, func(i, j int) bool { return p.Uniforms[i].Name < p.Uniforms[j].Name })
	p.Uniforms = dedupe(p.Uniforms)
}

func dedupe(us []Uniform) []Uniform {
	var out []Uniform
	for _, u := range us {
		if len(out) > 0 && out[len(out)-1].Name == u.Name {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (p *Program) flatten(name string, t *Type, data []float64) {
	switch t.Kind {
	case KindStruct:
		for _, f := range t.Struct.Fields {
			p.flatten(name+"."+f.Name, f.Type, data[f.Offset:f.Offset+f.Type.Slots()])
		}
	case KindArray:
		stride := t.Elem.Slots()
		for i := 0; i < t.Len; i++ {
			elem := name + "[" + strconv.Itoa(i) + "]"
			if t.Elem.Kind == KindStruct || t.Elem.Kind == KindArray {
				p.flatten(elem, t.Elem, data[i*stride:(i+1)*stride])
				continue
			}
			p.Uniforms = append(p.Uniforms, Uniform{Name: elem, Type: t.Elem, Count: t.Len - i, data: data[i*stride:]})
		}
	default:
		p.Uniforms = append(p.Uniforms, Uniform{Name: name, Type: t, Count: 1, data: data})
	}
}

// Location returns the uniform location for name, accepting "a" for "a[0]".
// It returns -1 when the uniform is not active.
func (p *Program) Location(name string) int {
	find := func(n string) int {
		i := sort.Search(len(p.Uniforms), func(i int) bool { return p.Uniforms[i].Name >= n })
		if i < len(p.Uniforms) && p.Uniforms[i].Name == n {
			return i
		}
		return -1
	}
	if i := find(name); i >= 0 {
		return i
	}
	if !strings.HasSuffix(name, "]") {
		return find(name + "[0]")
	}
	return -1
}

// SetUniform loads values through the setter fn at location loc. It
// returns the GL error the call raises, if any.
func (p *Program) SetUniform(loc int, fn gles.UniformFunc, values []float64, maxUnits int) gles.ErrorCode {
	if loc < 0 || loc >= len(p.Uniforms) {
		return gles.InvalidOperation
	}
	u := p.Uniforms[loc]
	t := u.Type
	comps := fn.Components()
	if comps == 0 || len(values) < comps {
		return gles.InvalidValue
	}
	count := 1
	if fn.Vector() {
		count = len(values) / comps
	}
	if count > 1 && u.Count == 1 && !strings.HasSuffix(u.Name, "]") {
		return gles.InvalidOperation
	}
	count = min(count, u.Count)

	switch {
	case t.Kind == KindSampler:
		if fn != gles.Uniform1i && fn != gles.Uniform1iv {
			return gles.InvalidOperation
		}
		for _, v := range values[:count] {
			if v < 0 || int(v) >= maxUnits {
				return gles.InvalidValue
			}
		}
	case t.Slots() != comps || fn.Matrix() != t.isMatrix():
		return gles.InvalidOperation
	case t.Basic == Float && fn.Integer(), (t.Basic == Int || t.Basic == Uint) && !fn.Integer():
		return gles.InvalidOperation
	case t.Basic == Uint:
		return gles.InvalidOperation
	}

	for i := range count * comps {
		v := values[i]
		switch t.Basic {
		case Bool:
			v = b2f(v != 0)
		case Float:
			v = f32(v)
		}
		u.data[i] = v
	}
	return gles.NoError
}

// SetTextures sets the texel source for sampling built-ins.
func (p *Program) SetTextures(t Textures) { p.m.textures = t }

// SetBudget resets the step budget shared by every following invocation.
func (p *Program) SetBudget(steps int64) {
	if steps <= 0 {
		steps = DefaultBudget
	}
	p.m.budget, p.m.steps = steps, 0
}

// VaryingSlots is the number of interpolated values RunVertex produces.
func (p *Program) VaryingSlots() int { return p.slots }

// Flat reports which varying slots use flat interpolation.
func (p *Program) Flat() []bool {
	out := make([]bool, 0, p.slots)
	for _, v := range p.varyings {
		for range v.in.t.Slots() {
			out = append(out, v.flat)
		}
	}
	return out
}

// run executes main of mod after resetting its globals, converting panics
// raised by discard and the step budget.
func (p *Program) run(mod *module) (discard bool, err error) {
	defer func() {
		switch r := recover(); r.(type) {
		case nil:
		case discarded:
			discard = true
		case budgetExhausted:
			err = ErrBudget
		default:
			err = fmt.Errorf("%w: %v", ErrRuntime, r)
		}
	}()
	for _, v := range mod.resets {
		clear(v.data)
	}
	for _, f := range mod.inits {
		f()
	}
	mod.main.body()
	return false, nil
}

// RunVertex runs the vertex stage for one vertex whose attributes have been
// loaded. The varyings are written to out, which must hold VaryingSlots
// values.
func (p *Program) RunVertex(vertexID int, out []float64) ([4]float64, error) {
	if v := p.vs.builtins["gl_VertexID"]; v != nil {
		v.data[0] = float64(vertexID)
	}
	if _, err := p.run(p.vs); err != nil {
		return [4]float64{}, err
	}
	k := 0
	for _, v := range p.varyings {
		k += copy(out[k:], v.out.data)
	}
	pos := p.vs.builtins["gl_Position"].data
	return [4]float64{pos[0], pos[1], pos[2], pos[3]}, nil
}

// FragmentInput is the input to one fragment invocation.
type FragmentInput struct {
	// Coord is gl_FragCoord: window x, y, depth and 1/w.
	Coord    [4]float64
	Front    bool
	Varyings []float64
}

// RunFragment shades one fragment. keep is false when the shader
// discarded it.
func (p *Program) RunFragment(f *FragmentInput) (color [4]float64, keep bool, err error) {
	b := p.fs.builtins
	copy(b["gl_FragCoord"].data, f.Coord[:])
	b["gl_FrontFacing"].data[0] = b2f(f.Front)
	copy(b["gl_PointCoord"].data, []float64{0.5, 0.5})
	k := 0
	for _, v := range p.varyings {
		k += copy(v.in.data, f.Varyings[k:])
	}
	discard, err := p.run(p.fs)
	if err != nil || discard {
		return color, false, err
	}
	color = [4]float64{0, 0, 0, 1}
	if p.color != nil {
		d := p.color.data
		copy(color[:], d[:min(len(d), 4)])
	}
	return color, true, nil
}

// pickColorOutput selects the value written to the color buffer:
// gl_FragColor, gl_FragData[0], or the output at location 0.
func (p *Program) pickColorOutput() {
	b := p.fs.builtins
	switch {
	case p.fs.fragData:
		p.color = b["gl_FragData"]
	case b["gl_FragColor"] != nil && b["gl_FragColor"].used:
		p.color = b["gl_FragColor"]
	}
	if p.color != nil {
		return
	}
	for _, v := range p.fs.outputs {
		if v.location == 0 || (v.location < 0 && len(p.fs.outputs) == 1) {
			p.color = v
			return
		}
	}
}
