package glsl

import (
	"math"
	"slices"
)

// Textures supplies texel data to the sampling built-ins. Coordinates are
// normalized except for Fetch, which takes texel indices.
type Textures interface {
	Sample(unit int, target Basic, coord [3]float64, lod float64) [4]float64
	Size(unit int, target Basic, lod int) [3]int
	Fetch(unit int, target Basic, coord [3]int, lod int) [4]float64
}

type impl func(m *machine, out []float64, a [][]float64, t *Type)

// overload is one signature of a built-in function. match returns the
// result type and the type handed to impl, or nil when the arguments do not
// fit.
type overload struct {
	match  func(ts []*Type) (ret, t *Type)
	impl   impl
	es3    bool
	legacy bool
	stage  Stage
	ext    string
	outs   []int
	// dynamic overloads depend on runtime state and are never folded.
	dynamic bool
}

var (
	fT  = []Basic{Float}
	iT  = []Basic{Int}
	uT  = []Basic{Uint}
	bT  = []Basic{Bool}
	iuT = []Basic{Int, Uint}
	fiT = []Basic{Float, Int}
)

// gen builds a matcher from an argument pattern, one letter per argument:
//
//	T  the generic type (scalar or vector of one of bases)
//	V  the generic type, vectors only
//	s  the scalar of T's component type
//	f  float
//	B  bool vector the size of T; I, U and F likewise for int, uint, float
//
// ret uses the same letters plus b for bool.
func gen(args string, bases []Basic, ret byte) func([]*Type) (*Type, *Type) {
	return func(ts []*Type) (*Type, *Type) {
		if len(ts) != len(args) {
			return nil, nil
		}
		var T *Type
		for i := range args {
			if args[i] == 'T' || args[i] == 'V' {
				T = ts[i]
				break
			}
		}
		if T == nil || (T.Kind != KindScalar && T.Kind != KindVector) || !slices.Contains(bases, T.Basic) {
			return nil, nil
		}
		for i := range args {
			if args[i] == 'V' && T.Kind != KindVector {
				return nil, nil
			}
			if !ts[i].Equal(shaped(args[i], T)) {
				return nil, nil
			}
		}
		return shaped(ret, T), T
	}
}

func shaped(letter byte, T *Type) *Type {
	switch letter {
	case 'T', 'V':
		return T
	case 's':
		return T.component()
	case 'f':
		return tFloat
	case 'b':
		return tBool
	case 'B':
		return vecOf(Bool, T.Size)
	case 'I':
		return vecOf(Int, T.Size)
	case 'U':
		return vecOf(Uint, T.Size)
	case 'F':
		return vecOf(Float, T.Size)
	}
	return tVoid
}

// fixed matches one exact signature.
func fixed(ret *Type, params ...*Type) func([]*Type) (*Type, *Type) {
	return func(ts []*Type) (*Type, *Type) {
		if len(ts) != len(params) {
			return nil, nil
		}
		for i, p := range params {
			if !ts[i].Equal(p) {
				return nil, nil
			}
		}
		return ret, ret
	}
}

func at(v []float64, i int) float64 { return v[i%len(v)] }

// Componentwise implementations. The float forms round to single
// precision.

func f1(f func(x float64) float64) impl {
	return func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f32(f(at(a[0], i)))
		}
	}
}

func f2(f func(x, y float64) float64) impl {
	return func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f32(f(at(a[0], i), at(a[1], i)))
		}
	}
}

func f3(f func(x, y, z float64) float64) impl {
	return func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f32(f(at(a[0], i), at(a[1], i), at(a[2], i)))
		}
	}
}

// n1, n2 and n3 are the exact forms used for integer and mixed results.
func n1(f func(x float64) float64) impl {
	return func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f(at(a[0], i))
		}
	}
}

func n2(f func(x, y float64) float64) impl {
	return func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f(at(a[0], i), at(a[1], i))
		}
	}
}

func n3(f func(x, y, z float64) float64) impl {
	return func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f(at(a[0], i), at(a[1], i), at(a[2], i))
		}
	}
}

func fmin(x, y float64) float64 {
	if y < x {
		return y
	}
	return x
}

func fmax(x, y float64) float64 {
	if x < y {
		return y
	}
	return x
}

func clampF(x, lo, hi float64) float64 { return fmin(fmax(x, lo), hi) }

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

var builtins = map[string][]overload{}

func def(name string, o ...overload) { builtins[name] = append(builtins[name], o...) }

func es3(o overload) overload    { o.es3 = true; return o }
func legacy(o overload) overload { o.legacy = true; return o }

func init() {
	unary := func(name string, f func(float64) float64) {
		def(name, overload{match: gen("T", fT, 'T'), impl: f1(f)})
	}
	unary("radians", func(x float64) float64 { return x * math.Pi / 180 })
	unary("degrees", func(x float64) float64 { return x * 180 / math.Pi })
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	def("atan", overload{match: gen("TT", fT, 'T'), impl: f2(math.Atan2)})
	for name, f := range map[string]func(float64) float64{
		"sinh": math.Sinh, "cosh": math.Cosh, "tanh": math.Tanh,
		"asinh": math.Asinh, "acosh": math.Acosh, "atanh": math.Atanh,
		"trunc": math.Trunc, "round": math.Round, "roundEven": math.RoundToEven,
	} {
		def(name, es3(overload{match: gen("T", fT, 'T'), impl: f1(f)}))
	}

	def("pow", overload{match: gen("TT", fT, 'T'), impl: f2(math.Pow)})
	unary("exp", math.Exp)
	unary("log", math.Log)
	unary("exp2", math.Exp2)
	unary("log2", math.Log2)
	unary("sqrt", math.Sqrt)
	unary("inversesqrt", func(x float64) float64 { return 1 / math.Sqrt(x) })

	unary("abs", math.Abs)
	def("abs", es3(overload{match: gen("T", iT, 'T'), impl: n1(func(x float64) float64 {
		return float64(int32(int64(math.Abs(x))))
	})}))
	unary("sign", sign)
	def("sign", es3(overload{match: gen("T", iT, 'T'), impl: n1(sign)}))
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("fract", func(x float64) float64 { return x - math.Floor(x) })
	mod := func(x, y float64) float64 { return x - y*math.Floor(x/y) }
	def("mod",
		overload{match: gen("TT", fT, 'T'), impl: f2(mod)},
		overload{match: gen("Ts", fT, 'T'), impl: f2(mod)},
	)
	def("modf", es3(overload{match: gen("TT", fT, 'T'), outs: []int{1}, impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			ip, frac := math.Modf(a[0][i])
			a[1][i] = f32(ip)
			out[i] = f32(frac)
		}
	}}))
	for name, f := range map[string]func(x, y float64) float64{"min": fmin, "max": fmax} {
		def(name,
			overload{match: gen("TT", fT, 'T'), impl: f2(f)},
			overload{match: gen("Ts", fT, 'T'), impl: f2(f)},
			es3(overload{match: gen("TT", iuT, 'T'), impl: n2(f)}),
			es3(overload{match: gen("Ts", iuT, 'T'), impl: n2(f)}),
		)
	}
	def("clamp",
		overload{match: gen("TTT", fT, 'T'), impl: f3(clampF)},
		overload{match: gen("Tss", fT, 'T'), impl: f3(clampF)},
		es3(overload{match: gen("TTT", iuT, 'T'), impl: n3(clampF)}),
		es3(overload{match: gen("Tss", iuT, 'T'), impl: n3(clampF)}),
	)
	mix := func(x, y, a float64) float64 { return x*(1-a) + y*a }
	def("mix",
		overload{match: gen("TTT", fT, 'T'), impl: f3(mix)},
		overload{match: gen("TTs", fT, 'T'), impl: f3(mix)},
		es3(overload{match: gen("TTB", fT, 'T'), impl: n3(func(x, y, a float64) float64 {
			if a != 0 {
				return y
			}
			return x
		})}),
	)
	step := func(edge, x float64) float64 { return b2f(x >= edge) }
	def("step",
		overload{match: gen("TT", fT, 'T'), impl: f2(step)},
		overload{match: gen("sT", fT, 'T'), impl: f2(step)},
	)
	smooth := func(e0, e1, x float64) float64 {
		t := clampF((x-e0)/(e1-e0), 0, 1)
		return t * t * (3 - 2*t)
	}
	def("smoothstep",
		overload{match: gen("TTT", fT, 'T'), impl: f3(smooth)},
		overload{match: gen("ssT", fT, 'T'), impl: f3(smooth)},
	)
	def("isnan", es3(overload{match: gen("T", fT, 'B'), impl: n1(func(x float64) float64 { return b2f(math.IsNaN(x)) })}))
	def("isinf", es3(overload{match: gen("T", fT, 'B'), impl: n1(func(x float64) float64 { return b2f(math.IsInf(x, 0)) })}))
	def("floatBitsToInt", es3(overload{match: gen("T", fT, 'I'), impl: n1(func(x float64) float64 {
		return float64(int32(math.Float32bits(float32(x))))
	})}))
	def("floatBitsToUint", es3(overload{match: gen("T", fT, 'U'), impl: n1(func(x float64) float64 {
		return float64(math.Float32bits(float32(x)))
	})}))
	def("intBitsToFloat", es3(overload{match: gen("T", iT, 'F'), impl: n1(func(x float64) float64 {
		return float64(math.Float32frombits(uint32(int32(x))))
	})}))
	def("uintBitsToFloat", es3(overload{match: gen("T", uT, 'F'), impl: n1(func(x float64) float64 {
		return float64(math.Float32frombits(uint32(x)))
	})}))

	defPacking()
	defGeometric()
	defMatrix()
	defRelational()
	defTextures()

	for _, name := range []string{"dFdx", "dFdy", "fwidth"} {
		def(name, overload{
			match: gen("T", fT, 'T'),
			stage: Fragment,
			ext:   "GL_OES_standard_derivatives",
			impl:  func(_ *machine, out []float64, _ [][]float64, _ *Type) { clear(out) },
		})
	}
}

func isBuiltinFunction(name string) bool { return builtins[name] != nil }

func defPacking() {
	vec2, u32 := vecOf(Float, 2), tUint
	snorm := func(v float64) uint32 { return uint32(uint16(int16(math.Round(clampF(v, -1, 1) * 32767)))) }
	unorm := func(v float64) uint32 { return uint32(math.Round(clampF(v, 0, 1) * 65535)) }
	half := func(v float64) uint32 { return uint32(toHalf(float32(v))) }
	pack := func(f func(float64) uint32) impl {
		return func(_ *machine, out []float64, a [][]float64, _ *Type) {
			out[0] = float64(f(a[0][0]) | f(a[0][1])<<16)
		}
	}
	unpack := func(f func(uint16) float64) impl {
		return func(_ *machine, out []float64, a [][]float64, _ *Type) {
			v := uint32(a[0][0])
			out[0] = f32(f(uint16(v)))
			out[1] = f32(f(uint16(v >> 16)))
		}
	}
	def("packSnorm2x16", es3(overload{match: fixed(u32, vec2), impl: pack(snorm)}))
	def("packUnorm2x16", es3(overload{match: fixed(u32, vec2), impl: pack(unorm)}))
	def("packHalf2x16", es3(overload{match: fixed(u32, vec2), impl: pack(half)}))
	def("unpackSnorm2x16", es3(overload{match: fixed(vec2, u32), impl: unpack(func(h uint16) float64 {
		return clampF(float64(int16(h))/32767, -1, 1)
	})}))
	def("unpackUnorm2x16", es3(overload{match: fixed(vec2, u32), impl: unpack(func(h uint16) float64 {
		return float64(h) / 65535
	})}))
	def("unpackHalf2x16", es3(overload{match: fixed(vec2, u32), impl: unpack(func(h uint16) float64 {
		return float64(fromHalf(h))
	})}))
}

// toHalf converts to IEEE 754 binary16, rounding to nearest even.
func toHalf(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int(b>>23&0xff) - 127 + 15
	mant := b & 0x7fffff
	switch {
	case b&0x7fffffff > 0x7f800000:
		return sign | 0x7e00
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint(14 - exp)
		h := mant >> shift
		if rem := mant & (1<<shift - 1); rem > 1<<(shift-1) || rem == 1<<(shift-1) && h&1 == 1 {
			h++
		}
		return sign | uint16(h)
	}
	h := uint32(exp)<<10 | mant>>13
	if rem := mant & 0x1fff; rem > 0x1000 || rem == 0x1000 && h&1 == 1 {
		h++
	}
	return sign | uint16(h)
}

func fromHalf(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)
	switch {
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	case exp == 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		v := float32(mant) / (1 << 24)
		if sign != 0 {
			return -v
		}
		return v
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}

func defGeometric() {
	vec3 := vecOf(Float, 3)
	def("length", overload{match: gen("T", fT, 'f'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		out[0] = f32(math.Sqrt(dot(a[0], a[0])))
	}})
	def("distance", overload{match: gen("TT", fT, 'f'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		s := 0.0
		for i := range a[0] {
			d := a[0][i] - a[1][i]
			s += d * d
		}
		out[0] = f32(math.Sqrt(s))
	}})
	def("dot", overload{match: gen("TT", fT, 'f'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		out[0] = f32(dot(a[0], a[1]))
	}})
	def("cross", overload{match: fixed(vec3, vec3, vec3), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		x, y := a[0], a[1]
		out[0] = f32(x[1]*y[2] - y[1]*x[2])
		out[1] = f32(x[2]*y[0] - y[2]*x[0])
		out[2] = f32(x[0]*y[1] - y[0]*x[1])
	}})
	def("normalize", overload{match: gen("T", fT, 'T'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		l := math.Sqrt(dot(a[0], a[0]))
		for i := range out {
			out[i] = f32(a[0][i] / l)
		}
	}})
	def("faceforward", overload{match: gen("TTT", fT, 'T'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		s := 1.0
		if dot(a[2], a[1]) >= 0 {
			s = -1
		}
		for i := range out {
			out[i] = s * a[0][i]
		}
	}})
	def("reflect", overload{match: gen("TT", fT, 'T'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		d := dot(a[1], a[0])
		for i := range out {
			out[i] = f32(a[0][i] - 2*d*a[1][i])
		}
	}})
	def("refract", overload{match: gen("TTf", fT, 'T'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		I, N, eta := a[0], a[1], a[2][0]
		d := dot(N, I)
		k := 1 - eta*eta*(1-d*d)
		if k < 0 {
			clear(out)
			return
		}
		for i := range out {
			out[i] = f32(eta*I[i] - (eta*d+math.Sqrt(k))*N[i])
		}
	}})
}

func defMatrix() {
	anyMat := func(square bool, ret func(*Type) *Type) func([]*Type) (*Type, *Type) {
		return func(ts []*Type) (*Type, *Type) {
			if len(ts) == 0 || !ts[0].isMatrix() || (square && ts[0].Size != ts[0].Rows) {
				return nil, nil
			}
			for _, t := range ts[1:] {
				if !t.Equal(ts[0]) {
					return nil, nil
				}
			}
			return ret(ts[0]), ts[0]
		}
	}
	same := func(t *Type) *Type { return t }
	compMult := func(_ *machine, out []float64, a [][]float64, _ *Type) {
		for i := range out {
			out[i] = f32(a[0][i] * a[1][i])
		}
	}
	def("matrixCompMult",
		overload{match: anyMat(true, same), impl: compMult},
		es3(overload{match: anyMat(false, same), impl: compMult}),
	)
	def("transpose", es3(overload{
		match: anyMat(false, func(t *Type) *Type { return matOf(t.Rows, t.Size) }),
		impl: func(_ *machine, out []float64, a [][]float64, t *Type) {
			for j := 0; j < t.Size; j++ {
				for i := 0; i < t.Rows; i++ {
					out[i*t.Size+j] = a[0][j*t.Rows+i]
				}
			}
		},
	}))
	def("determinant", es3(overload{
		match: anyMat(true, func(*Type) *Type { return tFloat }),
		impl: func(_ *machine, out []float64, a [][]float64, t *Type) {
			out[0] = f32(determinant(a[0], t.Size))
		},
	}))
	def("inverse", es3(overload{
		match: anyMat(true, same),
		impl: func(_ *machine, out []float64, a [][]float64, t *Type) {
			inverse(out, a[0], t.Size)
		},
	}))
	def("outerProduct", es3(overload{
		match: func(ts []*Type) (*Type, *Type) {
			if len(ts) != 2 || !ts[0].isVector() || !ts[1].isVector() || ts[0].Basic != Float || ts[1].Basic != Float {
				return nil, nil
			}
			t := matOf(ts[1].Size, ts[0].Size)
			return t, t
		},
		impl: func(_ *machine, out []float64, a [][]float64, t *Type) {
			for j := 0; j < t.Size; j++ {
				for i := 0; i < t.Rows; i++ {
					out[j*t.Rows+i] = f32(a[0][i] * a[1][j])
				}
			}
		},
	}))
}

// determinant of an n×n column-major matrix by Gaussian elimination.
func determinant(m []float64, n int) float64 {
	a := slices.Clone(m)
	det := 1.0
	for c := 0; c < n; c++ {
		p := c
		for r := c + 1; r < n; r++ {
			if math.Abs(a[c*n+r]) > math.Abs(a[c*n+p]) {
				p = r
			}
		}
		if a[c*n+p] == 0 {
			return 0
		}
		if p != c {
			for k := 0; k < n; k++ {
				a[k*n+p], a[k*n+c] = a[k*n+c], a[k*n+p]
			}
			det = -det
		}
		det *= a[c*n+c]
		for r := c + 1; r < n; r++ {
			f := a[c*n+r] / a[c*n+c]
			for k := c; k < n; k++ {
				a[k*n+r] -= f * a[k*n+c]
			}
		}
	}
	return det
}

// inverse writes the inverse of an n×n column-major matrix into out. A
// singular matrix yields NaNs, which GLSL leaves undefined.
func inverse(out, m []float64, n int) {
	a := slices.Clone(m)
	inv := make([]float64, n*n)
	for i := 0; i < n; i++ {
		inv[i*n+i] = 1
	}
	for c := 0; c < n; c++ {
		p := c
		for r := c + 1; r < n; r++ {
			if math.Abs(a[c*n+r]) > math.Abs(a[c*n+p]) {
				p = r
			}
		}
		if p != c {
			for k := 0; k < n; k++ {
				a[k*n+p], a[k*n+c] = a[k*n+c], a[k*n+p]
				inv[k*n+p], inv[k*n+c] = inv[k*n+c], inv[k*n+p]
			}
		}
		d := a[c*n+c]
		for k := 0; k < n; k++ {
			a[k*n+c] /= d
			inv[k*n+c] /= d
		}
		for r := 0; r < n; r++ {
			if r == c {
				continue
			}
			f := a[c*n+r]
			for k := 0; k < n; k++ {
				a[k*n+r] -= f * a[k*n+c]
				inv[k*n+r] -= f * inv[k*n+c]
			}
		}
	}
	for i, v := range inv {
		out[i] = f32(v)
	}
}

func defRelational() {
	cmp := func(name string, f func(x, y float64) bool) {
		k := n2(func(x, y float64) float64 { return b2f(f(x, y)) })
		def(name,
			overload{match: gen("VV", fiT, 'B'), impl: k},
			es3(overload{match: gen("VV", uT, 'B'), impl: k}),
		)
	}
	cmp("lessThan", func(x, y float64) bool { return x < y })
	cmp("lessThanEqual", func(x, y float64) bool { return x <= y })
	cmp("greaterThan", func(x, y float64) bool { return x > y })
	cmp("greaterThanEqual", func(x, y float64) bool { return x >= y })
	for name, want := range map[string]bool{"equal": true, "notEqual": false} {
		k := n2(func(x, y float64) float64 { return b2f((x == y) == want) })
		def(name,
			overload{match: gen("VV", []Basic{Float, Int, Bool}, 'B'), impl: k},
			es3(overload{match: gen("VV", uT, 'B'), impl: k}),
		)
	}
	def("any", overload{match: gen("V", bT, 'b'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		out[0] = b2f(slices.Contains(a[0], 1))
	}})
	def("all", overload{match: gen("V", bT, 'b'), impl: func(_ *machine, out []float64, a [][]float64, _ *Type) {
		out[0] = b2f(!slices.Contains(a[0], 0))
	}})
	def("not", overload{match: gen("V", bT, 'T'), impl: n1(func(x float64) float64 { return 1 - x })})
}

// Texture built-ins.

// texCall describes how a sampling function reads its coordinate argument.
type texCall struct {
	target Basic
	// coord is the number of coordinate components used for lookup; proj
	// is set when the last component divides the others.
	coord int
	proj  bool
	// lod selects the argument carrying an explicit level or bias; -1 when
	// there is none.
	lod int
}

func sample(tc texCall) impl {
	return func(m *machine, out []float64, a [][]float64, _ *Type) {
		unit := int(a[0][0])
		c := a[1]
		var coord [3]float64
		q := 1.0
		if tc.proj {
			q = c[len(c)-1]
		}
		for i := 0; i < tc.coord && i < 3; i++ {
			coord[i] = c[i] / q
		}
		lod := 0.0
		if tc.lod >= 0 {
			lod = a[tc.lod][0]
		}
		var texel [4]float64
		if m.textures != nil {
			texel = m.textures.Sample(unit, tc.target, coord, lod)
		} else {
			texel = [4]float64{0, 0, 0, 1}
		}
		switch tc.target {
		case Sampler2DShadow:
			out[0] = b2f(c[2]/q <= texel[0])
		case SamplerCubeShadow:
			out[0] = b2f(c[3] <= texel[0])
		case ISampler2D, USampler2D:
			out[0], out[1], out[2], out[3] = 0, 0, 0, 1
		default:
			for i := range out {
				out[i] = f32(texel[i])
			}
		}
	}
}

func defTextures() {
	vec2, vec3, vec4 := vecOf(Float, 2), vecOf(Float, 3), vecOf(Float, 4)
	ivec2, ivec3 := vecOf(Int, 2), vecOf(Int, 3)
	s2D, sCube := samplerOf(Sampler2D), samplerOf(SamplerCube)
	s3D, s2DArray := samplerOf(Sampler3D), samplerOf(Sampler2DArray)
	s2DShadow, sCubeShadow := samplerOf(Sampler2DShadow), samplerOf(SamplerCubeShadow)
	is2D, us2D := samplerOf(ISampler2D), samplerOf(USampler2D)
	ivec4, uvec4 := vecOf(Int, 4), vecOf(Uint, 4)

	tex := func(ret *Type, params []*Type, tc texCall) overload {
		return overload{match: fixed(ret, params...), impl: sample(tc), dynamic: true}
	}
	frag := func(o overload) overload { o.stage = Fragment; return o }
	vert := func(o overload) overload { o.stage = Vertex; return o }
	lodExt := func(o overload) overload {
		o.stage, o.ext, o.legacy = Fragment, "GL_EXT_shader_texture_lod", true
		return o
	}

	def("texture2D",
		legacy(tex(vec4, []*Type{s2D, vec2}, texCall{Sampler2D, 2, false, -1})),
		legacy(frag(tex(vec4, []*Type{s2D, vec2, tFloat}, texCall{Sampler2D, 2, false, 2}))),
	)
	def("texture2DProj",
		legacy(tex(vec4, []*Type{s2D, vec3}, texCall{Sampler2D, 2, true, -1})),
		legacy(tex(vec4, []*Type{s2D, vec4}, texCall{Sampler2D, 2, true, -1})),
		legacy(frag(tex(vec4, []*Type{s2D, vec3, tFloat}, texCall{Sampler2D, 2, true, 2}))),
		legacy(frag(tex(vec4, []*Type{s2D, vec4, tFloat}, texCall{Sampler2D, 2, true, 2}))),
	)
	def("textureCube",
		legacy(tex(vec4, []*Type{sCube, vec3}, texCall{SamplerCube, 3, false, -1})),
		legacy(frag(tex(vec4, []*Type{sCube, vec3, tFloat}, texCall{SamplerCube, 3, false, 2}))),
	)
	def("texture2DLod", legacy(vert(tex(vec4, []*Type{s2D, vec2, tFloat}, texCall{Sampler2D, 2, false, 2}))))
	def("texture2DProjLod",
		legacy(vert(tex(vec4, []*Type{s2D, vec3, tFloat}, texCall{Sampler2D, 2, true, 2}))),
		legacy(vert(tex(vec4, []*Type{s2D, vec4, tFloat}, texCall{Sampler2D, 2, true, 2}))),
	)
	def("textureCubeLod", legacy(vert(tex(vec4, []*Type{sCube, vec3, tFloat}, texCall{SamplerCube, 3, false, 2}))))
	def("texture2DLodEXT", lodExt(tex(vec4, []*Type{s2D, vec2, tFloat}, texCall{Sampler2D, 2, false, 2})))
	def("texture2DProjLodEXT",
		lodExt(tex(vec4, []*Type{s2D, vec3, tFloat}, texCall{Sampler2D, 2, true, 2})),
		lodExt(tex(vec4, []*Type{s2D, vec4, tFloat}, texCall{Sampler2D, 2, true, 2})),
	)
	def("textureCubeLodEXT", lodExt(tex(vec4, []*Type{sCube, vec3, tFloat}, texCall{SamplerCube, 3, false, 2})))

	type form struct {
		s     *Type
		coord *Type
		ret   *Type
		n     int
	}
	forms := []form{
		{s2D, vec2, vec4, 2},
		{sCube, vec3, vec4, 3},
		{s3D, vec3, vec4, 3},
		{s2DArray, vec3, vec4, 3},
		{s2DShadow, vec3, tFloat, 2},
		{sCubeShadow, vec4, tFloat, 3},
		{is2D, vec2, ivec4, 2},
		{us2D, vec2, uvec4, 2},
	}
	for _, f := range forms {
		def("texture",
			es3(tex(f.ret, []*Type{f.s, f.coord}, texCall{f.s.Basic, f.n, false, -1})),
			es3(frag(tex(f.ret, []*Type{f.s, f.coord, tFloat}, texCall{f.s.Basic, f.n, false, 2}))),
		)
		if f.s.Basic != SamplerCubeShadow {
			def("textureLod", es3(tex(f.ret, []*Type{f.s, f.coord, tFloat}, texCall{f.s.Basic, f.n, false, 2})))
		}
	}
	def("textureProj",
		es3(tex(vec4, []*Type{s2D, vec3}, texCall{Sampler2D, 2, true, -1})),
		es3(tex(vec4, []*Type{s2D, vec4}, texCall{Sampler2D, 2, true, -1})),
		es3(tex(vec4, []*Type{s3D, vec4}, texCall{Sampler3D, 3, true, -1})),
		es3(tex(tFloat, []*Type{s2DShadow, vec4}, texCall{Sampler2DShadow, 2, true, -1})),
		es3(frag(tex(vec4, []*Type{s2D, vec3, tFloat}, texCall{Sampler2D, 2, true, 2}))),
		es3(frag(tex(vec4, []*Type{s2D, vec4, tFloat}, texCall{Sampler2D, 2, true, 2}))),
	)

	size := func(s, ret *Type) overload {
		return es3(overload{match: fixed(ret, s, tInt), dynamic: true, impl: func(m *machine, out []float64, a [][]float64, _ *Type) {
			var sz [3]int
			if m.textures != nil {
				sz = m.textures.Size(int(a[0][0]), s.Basic, int(a[1][0]))
			}
			for i := range out {
				out[i] = float64(sz[i])
			}
		}})
	}
	def("textureSize",
		size(s2D, ivec2), size(sCube, ivec2), size(s2DShadow, ivec2), size(sCubeShadow, ivec2),
		size(is2D, ivec2), size(us2D, ivec2), size(s3D, ivec3), size(s2DArray, ivec3),
	)

	fetch := func(s, coord, ret *Type) overload {
		return es3(overload{match: fixed(ret, s, coord, tInt), dynamic: true, impl: func(m *machine, out []float64, a [][]float64, _ *Type) {
			var c [3]int
			for i, v := range a[1] {
				c[i] = int(v)
			}
			texel := [4]float64{0, 0, 0, 1}
			if m.textures != nil && s.Basic != ISampler2D && s.Basic != USampler2D {
				texel = m.textures.Fetch(int(a[0][0]), s.Basic, c, int(a[2][0]))
			}
			for i := range out {
				out[i] = f32(texel[i])
			}
		}})
	}
	def("texelFetch",
		fetch(s2D, ivec2, vec4), fetch(s3D, ivec3, vec4), fetch(s2DArray, ivec3, vec4),
		fetch(is2D, ivec2, ivec4), fetch(us2D, ivec2, uvec4),
	)
}

// available reports whether o exists for the shader being checked.
func (c *checker) available(o overload) bool {
	switch {
	case o.es3 && c.es && !c.es3:
		return false
	case o.es3 && c.desktop() && c.version < 130:
		return false
	case o.legacy && c.es3:
		return false
	case o.stage != 0 && o.stage != c.stage:
		return false
	case o.ext != "" && c.es && !c.es3 && !c.enabled(o.ext):
		return false
	}
	return true
}

func (c *checker) builtinCall(name string, args []*operand, line int) *operand {
	ts := make([]*Type, len(args))
	for i, a := range args {
		ts[i] = a.t
	}
	for _, o := range builtins[name] {
		if !c.available(o) {
			continue
		}
		ret, t := o.match(ts)
		if ret == nil {
			continue
		}
		return c.emitBuiltin(name, o, ret, t, args, line)
	}
	c.diag.errorf(line, name, "no matching overloaded function found")
	return nil
}

func (c *checker) emitBuiltin(name string, o overload, ret, t *Type, args []*operand, line int) *operand {
	n := len(args)
	scratch := make([][]float64, n)
	lvs := make([]*lvalue, n)
	for _, i := range o.outs {
		if why := c.writable(args[i]); why != "" {
			c.diag.errorf(line, name, "Constant value cannot be passed for 'out' or 'inout' parameters.")
			return nil
		}
		scratch[i] = make([]float64, args[i].t.Slots())
		lvs[i] = args[i].lv
	}
	evals := make([]func() []float64, n)
	bufs := make([][]float64, n)
	side := anySide(args...)
	for i, a := range args {
		evals[i] = a.eval
		if side {
			bufs[i] = make([]float64, a.t.Slots())
		}
	}
	vals := make([][]float64, n)
	out := make([]float64, ret.Slots())
	m, f := c.rt, o.impl
	res := &operand{t: ret, side: side || len(o.outs) > 0, line: line, eval: func() []float64 {
		for i, ev := range evals {
			switch {
			case scratch[i] != nil:
				vals[i] = scratch[i]
			case bufs[i] != nil:
				vals[i] = bufs[i]
				copy(bufs[i], ev())
			default:
				vals[i] = ev()
			}
		}
		f(m, out, vals, t)
		for i, s := range scratch {
			if s != nil {
				lvs[i].store(s)
			}
		}
		return out
	}}
	if o.dynamic || len(o.outs) > 0 {
		return res
	}
	return fold(res, args...)
}

// declareBuiltins adds the built-in variables, constants and default
// precisions of the stage.
func (c *checker) declareBuiltins() {
	g := c.global
	add := func(name string, t *Type, storage, readonly string) *variable {
		v := &variable{name: name, t: t, storage: storage, builtin: true, readonly: readonly, location: -1}
		v.data = make([]float64, t.Slots())
		g.vars[name] = v
		c.mod.builtins[name] = v
		return v
	}
	konst := func(name string, value float64) {
		v := add(name, tInt, storeConst, "a const")
		v.konst = []float64{value}
		v.data[0] = value
	}

	vec2, vec4 := vecOf(Float, 2), vecOf(Float, 4)
	if c.stage == Vertex {
		c.mod.resets = append(c.mod.resets, add("gl_Position", vec4, storeOut, ""), add("gl_PointSize", tFloat, storeOut, ""))
		if c.es3 || c.desktop() && c.version >= 130 {
			add("gl_VertexID", tInt, storeIn, "a built-in input")
			add("gl_InstanceID", tInt, storeIn, "a built-in input")
		}
		g.prec[Float], g.prec[Int] = "highp", "highp"
	} else {
		add("gl_FragCoord", vec4, storeIn, "a built-in input")
		add("gl_FrontFacing", tBool, storeIn, "a built-in input")
		add("gl_PointCoord", vec2, storeIn, "a built-in input")
		if !c.es3 {
			c.mod.resets = append(c.mod.resets,
				add("gl_FragColor", vec4, storeOut, ""),
				add("gl_FragData", arrayOf(vec4, 1), storeOut, ""),
			)
		}
		switch {
		case c.es3 || c.desktop():
			c.mod.resets = append(c.mod.resets, add("gl_FragDepth", tFloat, storeOut, ""))
		case c.enabled("GL_EXT_frag_depth"):
			c.mod.resets = append(c.mod.resets, add("gl_FragDepthEXT", tFloat, storeOut, ""))
		}
		g.prec[Int] = "mediump"
	}
	g.prec[Sampler2D], g.prec[SamplerCube] = "lowp", "lowp"

	depth := &Type{Kind: KindStruct, Struct: &Struct{Name: "gl_DepthRangeParameters", Fields: []Field{
		{Name: "near", Type: tFloat, Offset: 0},
		{Name: "far", Type: tFloat, Offset: 1},
		{Name: "diff", Type: tFloat, Offset: 2},
	}}}
	copy(add("gl_DepthRange", depth, storeGlobal, "a uniform").data, []float64{0, 1, 1})

	konst("gl_MaxVertexAttribs", 16)
	konst("gl_MaxVertexUniformVectors", 256)
	konst("gl_MaxVaryingVectors", 15)
	konst("gl_MaxVertexTextureImageUnits", 8)
	konst("gl_MaxCombinedTextureImageUnits", 8)
	konst("gl_MaxTextureImageUnits", 8)
	konst("gl_MaxFragmentUniformVectors", 224)
	konst("gl_MaxDrawBuffers", 1)
	if c.es3 {
		konst("gl_MaxVertexOutputVectors", 16)
		konst("gl_MaxFragmentInputVectors", 15)
		konst("gl_MinProgramTexelOffset", -8)
		konst("gl_MaxProgramTexelOffset", 7)
	}
}
