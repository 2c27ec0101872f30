package soft

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gogpu/naga"

	"renderworker/internal/gles"
	"renderworker/internal/gles/glsl"
)

type language int

const (
	langGLSL language = iota
	langWGSL
)

// shaderObj is a compiled (or failed) shader.
type shaderObj struct {
	kind     gles.ShaderKind
	lang     language
	source   string
	compiled bool
	log      string

	glsl *glsl.Shader
	// WGSL modules are validated by naga and keep their uniform names.
	spirv    []byte
	uniforms map[string]string
}

var (
	wgslStageRe = regexp.MustCompile(`@(vertex|fragment|compute)\b`)
	wgslUniRe   = regexp.MustCompile(`var<uniform>\s+(\w+)\s*:\s*([^;]+);`)
)

func compileShader(kind gles.ShaderKind, source string) *shaderObj {
	if wgslStageRe.MatchString(source) && !strings.Contains(source, "void main") {
		return compileWGSL(kind, source)
	}
	return compileGLSL(kind, source)
}

func compileWGSL(kind gles.ShaderKind, source string) *shaderObj {
	s := &shaderObj{kind: kind, lang: langWGSL, source: source, uniforms: map[string]string{}}

	want := "@vertex"
	if kind == gles.FragmentShader {
		want = "@fragment"
	}
	if !strings.Contains(source, want) {
		s.log = fmt.Sprintf("ERROR: no %s entry point\n", want)
		return s
	}

	spirv, err := naga.Compile(source)
	if err != nil {
		s.log = "ERROR: " + err.Error() + "\n"
		return s
	}
	for _, m := range wgslUniRe.FindAllStringSubmatch(source, -1) {
		s.uniforms[m[1]] = strings.TrimSpace(m[2])
	}
	s.spirv = spirv
	s.compiled = true
	return s
}

func compileGLSL(kind gles.ShaderKind, source string) *shaderObj {
	stage := glsl.Vertex
	if kind == gles.FragmentShader {
		stage = glsl.Fragment
	}
	sh := glsl.Compile(stage, source)
	return &shaderObj{kind: kind, lang: langGLSL, source: source, glsl: sh, compiled: sh.OK, log: sh.Log}
}

// programObj is a linked program. GLSL programs execute through prog; WGSL
// programs only record uniform values, which feed their fill color.
type programObj struct {
	vs, fs *shaderObj
	linked bool
	log    string

	prog *glsl.Program
	// attribs maps each active attribute to its first location; matrices
	// take one location per column.
	attribs  map[string]int
	bindings map[string]int

	uniforms []string
	values   map[gles.Location]uniformValue
}

type uniformValue struct {
	fn     gles.UniformFunc
	values []float64
}

func linkProgram(vs, fs *shaderObj, bindings map[string]int) *programObj {
	p := &programObj{vs: vs, fs: fs, bindings: bindings, attribs: map[string]int{}, values: map[gles.Location]uniformValue{}}

	var problem string
	switch {
	case vs == nil || fs == nil:
		problem = "ERROR: program is missing a shader stage\n"
	case vs.kind != gles.VertexShader || fs.kind != gles.FragmentShader:
		problem = "ERROR: attached shaders are not a vertex and fragment pair\n"
	case !vs.compiled || !fs.compiled:
		problem = "ERROR: attached shader was not compiled successfully\n"
	case vs.lang != fs.lang:
		problem = "ERROR: cannot link GLSL and WGSL stages together\n"
	}
	if problem != "" {
		p.log = problem
		return p
	}

	if vs.lang == langWGSL {
		merged := map[string]bool{}
		for n := range vs.uniforms {
			merged[n] = true
		}
		for n := range fs.uniforms {
			merged[n] = true
		}
		p.uniforms = sortedKeys(merged)
		p.linked = true
		return p
	}

	prog, log := glsl.Link(vs.glsl, fs.glsl)
	if prog == nil {
		p.log = log
		return p
	}
	p.prog = prog
	if err := p.assignAttribs(); err != "" {
		p.log = err
		return p
	}
	p.linked = true
	return p
}

// assignAttribs gives bound attributes their bound location and packs the
// rest, in name order, into the lowest free locations.
func (p *programObj) assignAttribs() string {
	used := [maxAttribs]bool{}
	take := func(base, n int) bool {
		if base < 0 || base+n > maxAttribs {
			return false
		}
		for i := base; i < base+n; i++ {
			if used[i] {
				return false
			}
		}
		for i := base; i < base+n; i++ {
			used[i] = true
		}
		return true
	}

	var free []*glsl.Attrib
	for _, a := range p.prog.Attribs {
		idx, ok := p.bindings[a.Name]
		if !ok {
			free = append(free, a)
			continue
		}
		if !take(idx, a.Columns()) {
			return fmt.Sprintf("ERROR: Attribute '%s' cannot be bound to location %d\n", a.Name, idx)
		}
		p.attribs[a.Name] = idx
	}
	for _, a := range free {
		placed := false
		for base := 0; base < maxAttribs && !placed; base++ {
			if take(base, a.Columns()) {
				p.attribs[a.Name] = base
				placed = true
			}
		}
		if !placed {
			return "ERROR: Too many attributes\n"
		}
	}
	return ""
}

// bind moves an active attribute to index, as a relink after
// glBindAttribLocation would.
func (p *programObj) bind(name string, index int) {
	p.bindings[name] = index
	if _, active := p.attribs[name]; active {
		p.attribs[name] = index
	}
}

func (p *programObj) location(name string) gles.Location {
	if p.prog != nil {
		if i := p.prog.Location(name); i >= 0 {
			return gles.Location(i)
		}
		return gles.NoLocation
	}
	i := sort.SearchStrings(p.uniforms, name)
	if i < len(p.uniforms) && p.uniforms[i] == name {
		return gles.Location(i)
	}
	return gles.NoLocation
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
