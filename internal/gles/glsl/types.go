package glsl

import (
	"strconv"
	"strings"
)

// Kind classifies a Type.
type Kind int

const (
	KindVoid Kind = iota
	KindScalar
	KindVector
	KindMatrix
	KindSampler
	KindStruct
	KindArray
)

// Basic is the component type of scalars, vectors and matrices, or the
// dimensionality of a sampler.
type Basic int

const (
	Float Basic = iota + 1
	Int
	Uint
	Bool

	Sampler2D
	SamplerCube
	Sampler3D
	Sampler2DArray
	Sampler2DShadow
	SamplerCubeShadow
	ISampler2D
	USampler2D
)

var samplerNames = map[Basic]string{
	Sampler2D:         "sampler2D",
	SamplerCube:       "samplerCube",
	Sampler3D:         "sampler3D",
	Sampler2DArray:    "sampler2DArray",
	Sampler2DShadow:   "sampler2DShadow",
	SamplerCubeShadow: "samplerCubeShadow",
	ISampler2D:        "isampler2D",
	USampler2D:        "usampler2D",
}

// Type is a GLSL type. Types are compared structurally with Equal.
type Type struct {
	Kind  Kind
	Basic Basic
	// Size is the component count of a vector or the column count of a
	// matrix.
	Size int
	// Rows is the row count of a matrix.
	Rows int
	// Elem and Len describe arrays.
	Elem   *Type
	Len    int
	Struct *Struct
}

// Struct is a user-defined structure.
type Struct struct {
	Name   string
	Fields []Field
}

// Field is a structure member at a fixed slot offset.
type Field struct {
	Name   string
	Type   *Type
	Offset int
}

var (
	tVoid  = &Type{Kind: KindVoid}
	tFloat = &Type{Kind: KindScalar, Basic: Float, Size: 1}
	tInt   = &Type{Kind: KindScalar, Basic: Int, Size: 1}
	tUint  = &Type{Kind: KindScalar, Basic: Uint, Size: 1}
	tBool  = &Type{Kind: KindScalar, Basic: Bool, Size: 1}
)

func scalarOf(b Basic) *Type {
	switch b {
	case Float:
		return tFloat
	case Int:
		return tInt
	case Uint:
		return tUint
	case Bool:
		return tBool
	}
	return tVoid
}

// vecOf returns a vector of n components, or the scalar when n is 1.
func vecOf(b Basic, n int) *Type {
	if n == 1 {
		return scalarOf(b)
	}
	return &Type{Kind: KindVector, Basic: b, Size: n}
}

func matOf(cols, rows int) *Type {
	return &Type{Kind: KindMatrix, Basic: Float, Size: cols, Rows: rows}
}

func arrayOf(elem *Type, n int) *Type {
	return &Type{Kind: KindArray, Elem: elem, Len: n}
}

func samplerOf(b Basic) *Type {
	return &Type{Kind: KindSampler, Basic: b, Size: 1}
}

// builtinTypes maps type keywords to types.
var builtinTypes = func() map[string]*Type {
	m := map[string]*Type{
		"void":  tVoid,
		"float": tFloat,
		"int":   tInt,
		"uint":  tUint,
		"bool":  tBool,
	}
	prefixes := map[Basic]string{Float: "", Int: "i", Uint: "u", Bool: "b"}
	for b, p := range prefixes {
		for n := 2; n <= 4; n++ {
			m[p+"vec"+strconv.Itoa(n)] = vecOf(b, n)
		}
	}
	for c := 2; c <= 4; c++ {
		m["mat"+strconv.Itoa(c)] = matOf(c, c)
		for r := 2; r <= 4; r++ {
			m["mat"+strconv.Itoa(c)+"x"+strconv.Itoa(r)] = matOf(c, r)
		}
	}
	for b, name := range samplerNames {
		m[name] = samplerOf(b)
	}
	return m
}()

// es3Types are type keywords that do not exist in GLSL ES 1.00.
var es3Types = map[string]bool{
	"uint": true, "uvec2": true, "uvec3": true, "uvec4": true,
	"mat2x2": true, "mat2x3": true, "mat2x4": true,
	"mat3x2": true, "mat3x3": true, "mat3x4": true,
	"mat4x2": true, "mat4x3": true, "mat4x4": true,
	"sampler3D": true, "sampler2DArray": true, "sampler2DShadow": true,
	"samplerCubeShadow": true, "isampler2D": true, "usampler2D": true,
}

// Slots is the number of scalar components a value of t occupies.
func (t *Type) Slots() int {
	switch t.Kind {
	case KindScalar, KindSampler:
		return 1
	case KindVector:
		return t.Size
	case KindMatrix:
		return t.Size * t.Rows
	case KindArray:
		return t.Len * t.Elem.Slots()
	case KindStruct:
		n := 0
		for _, f := range t.Struct.Fields {
			n += f.Type.Slots()
		}
		return n
	}
	return 0
}

// Equal reports whether t and u are the same type.
func (t *Type) Equal(u *Type) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Len == u.Len && t.Elem.Equal(u.Elem)
	case KindStruct:
		return t.Struct == u.Struct
	case KindMatrix:
		return t.Size == u.Size && t.Rows == u.Rows
	case KindVoid:
		return true
	}
	return t.Basic == u.Basic && t.Size == u.Size
}

func (t *Type) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindScalar:
		switch t.Basic {
		case Float:
			return "float"
		case Int:
			return "int"
		case Uint:
			return "uint"
		case Bool:
			return "bool"
		}
	case KindVector:
		p := map[Basic]string{Float: "", Int: "i", Uint: "u", Bool: "b"}[t.Basic]
		return p + "vec" + strconv.Itoa(t.Size)
	case KindMatrix:
		if t.Size == t.Rows {
			return "mat" + strconv.Itoa(t.Size)
		}
		return "mat" + strconv.Itoa(t.Size) + "x" + strconv.Itoa(t.Rows)
	case KindSampler:
		return samplerNames[t.Basic]
	case KindStruct:
		return t.Struct.Name
	case KindArray:
		return t.Elem.String() + "[" + strconv.Itoa(t.Len) + "]"
	}
	return "?"
}

// component returns the scalar type of a scalar, vector or matrix.
func (t *Type) component() *Type { return scalarOf(t.Basic) }

// column returns the column vector type of a matrix.
func (t *Type) column() *Type { return vecOf(Float, t.Rows) }

func (t *Type) isScalar() bool  { return t.Kind == KindScalar }
func (t *Type) isVector() bool  { return t.Kind == KindVector }
func (t *Type) isMatrix() bool  { return t.Kind == KindMatrix }
func (t *Type) isArray() bool   { return t.Kind == KindArray }
func (t *Type) isSampler() bool { return t.Kind == KindSampler }

// isNumeric reports scalars, vectors and matrices of float, int or uint.
func (t *Type) isNumeric() bool {
	return (t.Kind == KindScalar || t.Kind == KindVector || t.Kind == KindMatrix) && t.Basic != Bool
}

// isBasic reports scalars, vectors and matrices of any component type.
func (t *Type) isBasic() bool {
	return t.Kind == KindScalar || t.Kind == KindVector || t.Kind == KindMatrix
}

func (t *Type) isBoolScalar() bool { return t.Kind == KindScalar && t.Basic == Bool }

func (t *Type) isInteger() bool {
	return (t.Kind == KindScalar || t.Kind == KindVector) && (t.Basic == Int || t.Basic == Uint)
}

// containsSampler reports whether t holds a sampler anywhere.
func (t *Type) containsSampler() bool {
	switch t.Kind {
	case KindSampler:
		return true
	case KindArray:
		return t.Elem.containsSampler()
	case KindStruct:
		for _, f := range t.Struct.Fields {
			if f.Type.containsSampler() {
				return true
			}
		}
	}
	return false
}

func (t *Type) containsArray() bool {
	switch t.Kind {
	case KindArray:
		return true
	case KindStruct:
		for _, f := range t.Struct.Fields {
			if f.Type.containsArray() {
				return true
			}
		}
	}
	return false
}

// field looks up a structure member.
func (t *Type) field(name string) (Field, bool) {
	if t.Kind != KindStruct {
		return Field{}, false
	}
	for _, f := range t.Struct.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// typeList renders types for diagnostics.
func typeList(ts []*Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
