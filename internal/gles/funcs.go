package gles

// UniformFunc is one of the closed set of uniform setters a pipeline or job
// may name.
type UniformFunc int

const (
	UniformUnknown UniformFunc = iota
	Uniform1f
	Uniform2f
	Uniform3f
	Uniform4f
	Uniform1fv
	Uniform2fv
	Uniform3fv
	Uniform4fv
	Uniform1i
	Uniform2i
	Uniform3i
	Uniform4i
	Uniform1iv
	Uniform2iv
	Uniform3iv
	Uniform4iv
	UniformMatrix2fv
	UniformMatrix3fv
	UniformMatrix4fv
)

type uniformShape struct {
	name       string
	components int
	vector     bool
	integer    bool
}

var uniformShapes = map[UniformFunc]uniformShape{
	Uniform1f:        {"glUniform1f", 1, false, false},
	Uniform2f:        {"glUniform2f", 2, false, false},
	Uniform3f:        {"glUniform3f", 3, false, false},
	Uniform4f:        {"glUniform4f", 4, false, false},
	Uniform1fv:       {"glUniform1fv", 1, true, false},
	Uniform2fv:       {"glUniform2fv", 2, true, false},
	Uniform3fv:       {"glUniform3fv", 3, true, false},
	Uniform4fv:       {"glUniform4fv", 4, true, false},
	Uniform1i:        {"glUniform1i", 1, false, true},
	Uniform2i:        {"glUniform2i", 2, false, true},
	Uniform3i:        {"glUniform3i", 3, false, true},
	Uniform4i:        {"glUniform4i", 4, false, true},
	Uniform1iv:       {"glUniform1iv", 1, true, true},
	Uniform2iv:       {"glUniform2iv", 2, true, true},
	Uniform3iv:       {"glUniform3iv", 3, true, true},
	Uniform4iv:       {"glUniform4iv", 4, true, true},
	UniformMatrix2fv: {"glUniformMatrix2fv", 4, true, false},
	UniformMatrix3fv: {"glUniformMatrix3fv", 9, true, false},
	UniformMatrix4fv: {"glUniformMatrix4fv", 16, true, false},
}

var uniformByName = func() map[string]UniformFunc {
	m := make(map[string]UniformFunc, len(uniformShapes))
	for f, s := range uniformShapes {
		m[s.name] = f
	}
	return m
}()

// ParseUniformFunc maps a function name such as "glUniform2f" to its
// UniformFunc. Unrecognized names map to UniformUnknown.
func ParseUniformFunc(name string) UniformFunc {
	return uniformByName[name]
}

func (f UniformFunc) String() string {
	if s, ok := uniformShapes[f]; ok {
		return s.name
	}
	return "unknown"
}

// Integer reports whether the setter uploads integer values.
func (f UniformFunc) Integer() bool {
	return uniformShapes[f].integer
}

// Components is the number of values one element takes: 1 to 4 for
// vectors, 4, 9 or 16 for matrices.
func (f UniformFunc) Components() int {
	return uniformShapes[f].components
}

// Vector reports whether the setter takes an array of elements.
func (f UniformFunc) Vector() bool {
	return uniformShapes[f].vector
}

// Matrix reports whether the setter uploads a square matrix.
func (f UniformFunc) Matrix() bool {
	return f >= UniformMatrix2fv && f <= UniformMatrix4fv
}

// validArgs reports whether n arguments fit the setter's shape. Scalar forms
// need exactly as many arguments as components; vector forms need a
// non-empty multiple.
func (f UniformFunc) validArgs(n int) bool {
	s, ok := uniformShapes[f]
	if !ok {
		return false
	}
	if !s.vector {
		return n == s.components
	}
	return n > 0 && n%s.components == 0
}

// AttribFunc is one of the constant vertex attribute setters.
type AttribFunc int

const (
	AttribUnknown AttribFunc = iota
	Attrib1f
	Attrib2f
	Attrib3f
	Attrib4f
	Attrib1fv
	Attrib2fv
	Attrib3fv
	Attrib4fv
)

var attribNames = map[AttribFunc]string{
	Attrib1f:  "glVertexAttrib1f",
	Attrib2f:  "glVertexAttrib2f",
	Attrib3f:  "glVertexAttrib3f",
	Attrib4f:  "glVertexAttrib4f",
	Attrib1fv: "glVertexAttrib1fv",
	Attrib2fv: "glVertexAttrib2fv",
	Attrib3fv: "glVertexAttrib3fv",
	Attrib4fv: "glVertexAttrib4fv",
}

var attribByName = func() map[string]AttribFunc {
	m := make(map[string]AttribFunc, len(attribNames))
	for f, n := range attribNames {
		m[n] = f
	}
	return m
}()

// ParseAttribFunc maps a function name such as "glVertexAttrib3f" to its
// AttribFunc. Unrecognized names map to AttribUnknown.
func ParseAttribFunc(name string) AttribFunc {
	return attribByName[name]
}

func (f AttribFunc) String() string {
	if n, ok := attribNames[f]; ok {
		return n
	}
	return "unknown"
}

func (f AttribFunc) components() int {
	switch f {
	case Attrib1f, Attrib1fv:
		return 1
	case Attrib2f, Attrib2fv:
		return 2
	case Attrib3f, Attrib3fv:
		return 3
	case Attrib4f, Attrib4fv:
		return 4
	default:
		return 0
	}
}

// expand fills the missing components of a constant attribute the way GL
// does: y and z default to 0, w to 1.
func (f AttribFunc) expand(args []float32) ([4]float32, bool) {
	v := [4]float32{0, 0, 0, 1}
	n := f.components()
	if n == 0 || len(args) < n {
		return v, false
	}
	copy(v[:n], args[:n])
	return v, true
}
