package glsl

import "strings"

// operand is a checked expression: its type and a closure producing its
// value. Constant operands carry their folded value in konst.
type operand struct {
	t     *Type
	eval  func() []float64
	konst []float64
	lv    *lvalue
	// side is set when evaluation may write variables.
	side bool
	line int
}

// lvalue locates writable storage: a backing slice and offset, optionally
// through a swizzle.
type lvalue struct {
	v   *variable
	loc func() ([]float64, int)
	swz []int
}

func (l *lvalue) store(src []float64) {
	buf, off := l.loc()
	if l.swz == nil {
		copy(buf[off:off+len(src)], src)
		return
	}
	for i, k := range l.swz {
		buf[off+k] = src[i]
	}
}

func constOp(t *Type, v []float64, line int) *operand {
	return &operand{t: t, konst: v, eval: func() []float64 { return v }, line: line}
}

// fold replaces o by its value when every input is constant.
func fold(o *operand, inputs ...*operand) *operand {
	for _, in := range inputs {
		if in.konst == nil {
			return o
		}
	}
	v := append([]float64(nil), o.eval()...)
	return constOp(o.t, v, o.line)
}

func anySide(ops ...*operand) bool {
	for _, o := range ops {
		if o.side {
			return true
		}
	}
	return false
}

// coerce converts x to t where the language allows an implicit conversion.
func (c *checker) coerce(x *operand, t *Type) *operand {
	if x.t.Equal(t) {
		return x
	}
	if c.es || !t.isBasic() || !x.t.isBasic() || t.Basic != Float || x.t.Basic == Bool || x.t.Basic == Float {
		return nil
	}
	if x.t.Kind != t.Kind || x.t.Size != t.Size || x.t.Rows != t.Rows {
		return nil
	}
	from := x.t.Basic
	src := x.eval
	out := make([]float64, t.Slots())
	o := &operand{t: t, side: x.side, line: x.line, eval: func() []float64 {
		for i, v := range src() {
			out[i] = convert(from, Float, v)
		}
		return out
	}}
	return fold(o, x)
}

func (c *checker) expr(e Expr) *operand {
	switch e := e.(type) {
	case *Ident:
		return c.ident(e)
	case *Literal:
		return constOp(e.Type, []float64{e.Value}, e.Line)
	case *Unary:
		return c.unary(e)
	case *Binary:
		return c.binary(e)
	case *Assign:
		return c.assign(e)
	case *Cond:
		return c.cond(e)
	case *Call:
		return c.call(e)
	case *Index:
		return c.index(e)
	case *Selector:
		return c.selector(e)
	}
	return nil
}

func (c *checker) ident(e *Ident) *operand {
	v := c.lookup(e.Name)
	if v == nil {
		if _, ok := c.funcs[e.Name]; ok || isBuiltinFunction(e.Name) {
			c.diag.errorf(e.Line, e.Name, "function name used as a variable")
			return nil
		}
		c.diag.errorf(e.Line, e.Name, "undeclared identifier")
		return nil
	}
	c.ref(v)
	if v.konst != nil {
		return constOp(v.t, v.konst, e.Line)
	}
	data := v.data
	return &operand{
		t:    v.t,
		eval: func() []float64 { return data },
		lv:   &lvalue{v: v, loc: func() ([]float64, int) { return data, 0 }},
		line: e.Line,
	}
}

// writable reports why x cannot be assigned, or "" when it can.
func (c *checker) writable(x *operand) string {
	if x.lv == nil {
		return "l-value required"
	}
	v := x.lv.v
	if v.readonly != "" {
		return "l-value required (can't modify " + v.readonly + " \"" + v.name + "\")"
	}
	if x.lv.swz != nil {
		seen := map[int]bool{}
		for _, k := range x.lv.swz {
			if seen[k] {
				return "l-value of swizzle cannot have duplicate components"
			}
			seen[k] = true
		}
	}
	if x.t.containsSampler() {
		return "l-value required (can't modify a sampler)"
	}
	return ""
}

func (c *checker) unary(e *Unary) *operand {
	x := c.expr(e.X)
	if x == nil {
		return nil
	}
	bad := func() *operand {
		c.diag.errorf(e.Line, e.Op, "wrong operand type - no operation '%s' exists that takes an operand of type %s (or there is no acceptable conversion)", e.Op, x.t)
		return nil
	}
	switch e.Op {
	case "+":
		if !x.t.isNumeric() {
			return bad()
		}
		return x
	case "-":
		if !x.t.isNumeric() {
			return bad()
		}
		neg := arith("-", x.t.Basic)
		return fold(c.mapOp(x, func(v float64) float64 { return neg(0, v) }), x)
	case "!":
		if !x.t.isBoolScalar() {
			return bad()
		}
		return fold(c.mapOp(x, func(v float64) float64 { return 1 - v }), x)
	case "~":
		if !x.t.isInteger() || (c.es && !c.es3) {
			return bad()
		}
		b := x.t.Basic
		return fold(c.mapOp(x, func(v float64) float64 {
			if b == Uint {
				return float64(^uint32(v))
			}
			return float64(^int32(v))
		}), x)
	}

	// ++ and --
	if !x.t.isNumeric() {
		return bad()
	}
	if why := c.writable(x); why != "" {
		c.diag.errorf(e.Line, e.Op, "%s", why)
		return nil
	}
	op := "+"
	if e.Op == "--" {
		op = "-"
	}
	k := arith(op, x.t.Basic)
	src, lv := x.eval, x.lv
	out := make([]float64, x.t.Slots())
	postfix := e.Postfix
	return &operand{t: x.t, side: true, line: e.Line, eval: func() []float64 {
		cur := src()
		next := make([]float64, len(cur))
		for i, v := range cur {
			next[i] = k(v, 1)
		}
		if postfix {
			copy(out, cur)
		} else {
			copy(out, next)
		}
		lv.store(next)
		return out
	}}
}

// mapOp applies f to each component of x.
func (c *checker) mapOp(x *operand, f func(float64) float64) *operand {
	src := x.eval
	out := make([]float64, x.t.Slots())
	return &operand{t: x.t, side: x.side, line: x.line, eval: func() []float64 {
		for i, v := range src() {
			out[i] = f(v)
		}
		return out
	}}
}

func (c *checker) assign(e *Assign) *operand {
	l := c.expr(e.L)
	r := c.expr(e.R)
	if l == nil || r == nil {
		return nil
	}
	tok := e.Op
	if tok == "=" {
		tok = "assign"
	}
	if why := c.writable(l); why != "" {
		c.diag.errorf(e.Line, tok, "%s", why)
		return nil
	}
	if c.es && !c.es3 && l.t.containsArray() {
		c.diag.errorf(e.Line, tok, "l-value required (can't modify an array)")
		return nil
	}
	lv := l.lv
	if e.Op == "=" {
		rr := c.coerce(r, l.t)
		if rr == nil {
			c.diag.errorf(e.Line, tok, "cannot convert from '%s' to '%s'", r.t, l.t)
			return nil
		}
		src := rr.eval
		return &operand{t: l.t, side: true, line: e.Line, eval: func() []float64 {
			v := src()
			lv.store(v)
			return v
		}}
	}
	op := strings.TrimSuffix(e.Op, "=")
	res := c.binaryOp(op, l, r, e.Line)
	if res == nil {
		return nil
	}
	if !res.t.Equal(l.t) {
		c.diag.errorf(e.Line, e.Op, "wrong operand types - no operation '%s' exists that takes a left-hand operand of type '%s' and a right operand of type '%s' (or there is no acceptable conversion)", e.Op, l.t, r.t)
		return nil
	}
	src := res.eval
	return &operand{t: l.t, side: true, line: e.Line, eval: func() []float64 {
		v := src()
		lv.store(v)
		return v
	}}
}

func (c *checker) cond(e *Cond) *operand {
	cnd := c.expr(e.C)
	a := c.expr(e.A)
	b := c.expr(e.B)
	if cnd == nil || a == nil || b == nil {
		return nil
	}
	if !cnd.t.isBoolScalar() {
		c.diag.errorf(e.Line, "?:", "boolean expression expected")
		return nil
	}
	if !a.t.Equal(b.t) {
		c.diag.errorf(e.Line, "?:", "wrong operand types - no operation '?:' exists that takes a left-hand operand of type '%s' and a right operand of type '%s' (or there is no acceptable conversion)", a.t, b.t)
		return nil
	}
	if c.es && !c.es3 && (a.t.containsArray() || a.t.Kind == KindStruct) {
		c.diag.errorf(e.Line, "?:", "ternary operator is not allowed for structures or arrays")
		return nil
	}
	cf, af, bf := cnd.eval, a.eval, b.eval
	o := &operand{t: a.t, side: anySide(cnd, a, b), line: e.Line, eval: func() []float64 {
		if cf()[0] != 0 {
			return af()
		}
		return bf()
	}}
	if cnd.konst != nil {
		if cnd.konst[0] != 0 {
			return fold(o, a)
		}
		return fold(o, b)
	}
	return o
}

func (c *checker) index(e *Index) *operand {
	x := c.expr(e.X)
	idx := c.expr(e.Index)
	if x == nil || idx == nil {
		return nil
	}
	if !idx.t.isScalar() || (idx.t.Basic != Int && idx.t.Basic != Uint) {
		c.diag.errorf(e.Line, "[]", "integer expression required")
		return nil
	}
	var elem *Type
	var n int
	switch x.t.Kind {
	case KindArray:
		elem, n = x.t.Elem, x.t.Len
	case KindVector:
		elem, n = x.t.component(), x.t.Size
	case KindMatrix:
		elem, n = x.t.column(), x.t.Size
	default:
		c.diag.errorf(e.Line, "[]", "left of '[' is not of type array, matrix, or vector")
		return nil
	}
	if x.t.Kind == KindArray && x.t.Elem.containsSampler() && idx.konst == nil && c.es {
		c.diag.errorf(e.Line, "[]", "array indexes for samplers must be constant integral expressions")
		return nil
	}
	stride := elem.Slots()
	src := x.eval
	if idx.konst != nil {
		k := int(idx.konst[0])
		if k < 0 || k >= n {
			c.diag.errorf(e.Line, "[]", "array index out of range '%d'", k)
			return nil
		}
		o := &operand{t: elem, side: x.side, line: e.Line, eval: func() []float64 {
			return src()[k*stride : (k+1)*stride]
		}}
		if x.lv != nil {
			if x.lv.swz != nil {
				o.lv = &lvalue{v: x.lv.v, loc: x.lv.loc, swz: []int{x.lv.swz[k]}}
			} else {
				loc := x.lv.loc
				o.lv = &lvalue{v: x.lv.v, loc: func() ([]float64, int) {
					buf, off := loc()
					return buf, off + k*stride
				}}
			}
		}
		return fold(o, x)
	}
	at := idx.eval
	clampIdx := func() int {
		k := int(at()[0])
		if k < 0 {
			return 0
		}
		if k >= n {
			return n - 1
		}
		return k
	}
	o := &operand{t: elem, side: x.side || idx.side, line: e.Line, eval: func() []float64 {
		v := src()
		k := clampIdx()
		return v[k*stride : (k+1)*stride]
	}}
	if x.lv != nil && x.lv.swz == nil {
		loc := x.lv.loc
		o.lv = &lvalue{v: x.lv.v, loc: func() ([]float64, int) {
			buf, off := loc()
			return buf, off + clampIdx()*stride
		}}
	}
	return o
}

var swizzleSets = []string{"xyzw", "rgba", "stpq"}

func (c *checker) selector(e *Selector) *operand {
	x := c.expr(e.X)
	if x == nil {
		return nil
	}
	switch x.t.Kind {
	case KindStruct:
		f, ok := x.t.field(e.Name)
		if !ok {
			c.diag.errorf(e.Line, e.Name, "no such field in structure")
			return nil
		}
		src, off, size := x.eval, f.Offset, f.Type.Slots()
		o := &operand{t: f.Type, side: x.side, line: e.Line, eval: func() []float64 {
			return src()[off : off+size]
		}}
		if x.lv != nil {
			loc := x.lv.loc
			o.lv = &lvalue{v: x.lv.v, loc: func() ([]float64, int) {
				buf, base := loc()
				return buf, base + off
			}}
		}
		return fold(o, x)
	case KindVector, KindScalar:
		if x.t.Kind == KindScalar && c.es {
			break
		}
		idx, ok := parseSwizzle(e.Name, x.t.Size)
		if !ok {
			c.diag.errorf(e.Line, e.Name, "vector field selection out of range")
			return nil
		}
		t := vecOf(x.t.Basic, len(idx))
		src := x.eval
		out := make([]float64, len(idx))
		o := &operand{t: t, side: x.side, line: e.Line, eval: func() []float64 {
			v := src()
			for i, k := range idx {
				out[i] = v[k]
			}
			return out
		}}
		if x.lv != nil {
			swz := idx
			if x.lv.swz != nil {
				swz = make([]int, len(idx))
				for i, k := range idx {
					swz[i] = x.lv.swz[k]
				}
			}
			o.lv = &lvalue{v: x.lv.v, loc: x.lv.loc, swz: swz}
		}
		return fold(o, x)
	}
	c.diag.errorf(e.Line, e.Name, "field selection requires structure or vector on left hand side")
	return nil
}

// parseSwizzle resolves a component selection such as "xyz" or "bgra".
func parseSwizzle(name string, size int) ([]int, bool) {
	if len(name) == 0 || len(name) > 4 {
		return nil, false
	}
	for _, set := range swizzleSets {
		if strings.IndexByte(set, name[0]) < 0 {
			continue
		}
		idx := make([]int, len(name))
		for i := 0; i < len(name); i++ {
			k := strings.IndexByte(set, name[i])
			if k < 0 || k >= size {
				return nil, false
			}
			idx[i] = k
		}
		return idx, true
	}
	return nil, false
}

// Calls.

func (c *checker) call(e *Call) *operand {
	if e.Recv != nil {
		return c.method(e)
	}
	args := make([]*operand, len(e.Args))
	for i, a := range e.Args {
		if args[i] = c.expr(a); args[i] == nil {
			return nil
		}
		if args[i].t.Kind == KindVoid {
			c.diag.errorf(e.Line, e.Name, "cannot use a void expression as an argument")
			return nil
		}
	}
	if e.Ctor != nil {
		t := c.resolveType(&TypeSpec{Name: e.Ctor.Name, Line: e.Line})
		if t == nil {
			return nil
		}
		if e.Ctor.Array != nil {
			if c.es && !c.es3 {
				c.diag.errorf(e.Line, "[", "array constructor supported in GLSL ES 3.00 and above only")
				return nil
			}
			n, ok := c.arraySize(e.Ctor.Array, e.Line)
			if !ok {
				return nil
			}
			if n == 0 {
				n = len(args)
			}
			t = arrayOf(t, n)
		}
		return c.construct(t, args, e.Line)
	}
	if c.lookup(e.Name) != nil {
		c.diag.errorf(e.Line, e.Name, "function name expected")
		return nil
	}
	for _, f := range c.funcs[e.Name] {
		if matchParams(f, args) {
			return c.userCall(f, args, e.Line)
		}
	}
	return c.builtinCall(e.Name, args, e.Line)
}

func (c *checker) method(e *Call) *operand {
	x := c.expr(e.Recv)
	if x == nil {
		return nil
	}
	if e.Name != "length" {
		c.diag.errorf(e.Line, e.Name, "invalid method")
		return nil
	}
	if x.t.Kind != KindArray || (c.es && !c.es3) {
		c.diag.errorf(e.Line, "length", "missing input primitive declaration or array-size")
		return nil
	}
	return constOp(tInt, []float64{float64(x.t.Len)}, e.Line)
}

func matchParams(f *function, args []*operand) bool {
	if len(f.params) != len(args) {
		return false
	}
	for i, p := range f.params {
		if !p.t.Equal(args[i].t) {
			return false
		}
	}
	return true
}

func (c *checker) userCall(f *function, args []*operand, line int) *operand {
	for i, p := range f.params {
		if p.dir == "in" {
			continue
		}
		if why := c.writable(args[i]); why != "" {
			c.diag.errorf(line, p.dir, "Constant value cannot be passed for 'out' or 'inout' parameters.")
			return nil
		}
	}
	caller := c.fn
	if caller == nil {
		caller = c.init
	}
	caller.calls[f] = true

	n := len(args)
	evals := make([]func() []float64, n)
	lvs := make([]*lvalue, n)
	tmps := make([][]float64, n)
	dirs := make([]string, n)
	for i, a := range args {
		evals[i] = a.eval
		lvs[i] = a.lv
		tmps[i] = make([]float64, a.t.Slots())
		dirs[i] = f.params[i].dir
	}
	out := make([]float64, f.ret.Slots())
	rt := c.rt
	return &operand{t: f.ret, side: true, line: line, eval: func() []float64 {
		rt.tick()
		for i, ev := range evals {
			if dirs[i] == "out" {
				clear(tmps[i])
				continue
			}
			copy(tmps[i], ev())
		}
		for i, p := range f.params {
			copy(p.data, tmps[i])
		}
		f.body()
		for i, p := range f.params {
			if dirs[i] != "in" {
				lvs[i].store(p.data)
			}
		}
		copy(out, f.retVal)
		return out
	}}
}

// Constructors.

func (c *checker) construct(t *Type, args []*operand, line int) *operand {
	const tok = "constructor"
	if len(args) == 0 {
		c.diag.errorf(line, tok, "constructor does not have any arguments")
		return nil
	}
	for _, a := range args {
		if a.t.containsSampler() {
			c.diag.errorf(line, tok, "cannot convert a sampler")
			return nil
		}
	}
	side := anySide(args...)
	switch t.Kind {
	case KindArray:
		if len(args) != t.Len {
			c.diag.errorf(line, tok, "array constructor needs one argument per array element")
			return nil
		}
		for _, a := range args {
			if !a.t.Equal(t.Elem) {
				c.diag.errorf(line, tok, "cannot convert parameter from '%s' to '%s'", a.t, t.Elem)
				return nil
			}
		}
		return fold(c.concat(t, args, side, line), args...)
	case KindStruct:
		fs := t.Struct.Fields
		if len(args) != len(fs) {
			if len(args) < len(fs) {
				c.diag.errorf(line, tok, "Number of constructor parameters does not match the number of structure fields")
			} else {
				c.diag.errorf(line, tok, "too many arguments")
			}
			return nil
		}
		for i, a := range args {
			if !a.t.Equal(fs[i].Type) {
				c.diag.errorf(line, tok, "cannot convert parameter %d from '%s' to '%s'", i+1, a.t, fs[i].Type)
				return nil
			}
		}
		return fold(c.concat(t, args, side, line), args...)
	case KindScalar, KindVector, KindMatrix:
	default:
		c.diag.errorf(line, tok, "cannot construct this type")
		return nil
	}

	for _, a := range args {
		if !a.t.isBasic() {
			c.diag.errorf(line, tok, "cannot convert a structure or array")
			return nil
		}
	}
	size := t.Slots()
	to := t.Basic
	out := make([]float64, size)

	if len(args) == 1 && args[0].t.isScalar() && t.Kind != KindScalar {
		a := args[0]
		from, src := a.t.Basic, a.eval
		diag := t.Kind == KindMatrix
		rows := t.Rows
		o := &operand{t: t, side: side, line: line, eval: func() []float64 {
			v := convert(from, to, src()[0])
			if !diag {
				for i := range out {
					out[i] = v
				}
				return out
			}
			clear(out)
			for i := 0; i*rows+i < len(out) && i < rows; i++ {
				out[i*rows+i] = v
			}
			return out
		}}
		return fold(o, a)
	}

	if t.Kind == KindMatrix && len(args) == 1 && args[0].t.isMatrix() {
		a := args[0]
		src := a.eval
		ac, ar := a.t.Size, a.t.Rows
		cols, rows := t.Size, t.Rows
		o := &operand{t: t, side: side, line: line, eval: func() []float64 {
			v := src()
			for j := 0; j < cols; j++ {
				for i := 0; i < rows; i++ {
					switch {
					case j < ac && i < ar:
						out[j*rows+i] = v[j*ar+i]
					case i == j:
						out[j*rows+i] = 1
					default:
						out[j*rows+i] = 0
					}
				}
			}
			return out
		}}
		return fold(o, a)
	}

	if t.Kind == KindMatrix {
		for _, a := range args {
			if a.t.isMatrix() {
				c.diag.errorf(line, tok, "cannot construct matrix from matrix and other arguments")
				return nil
			}
		}
	}
	total := 0
	for _, a := range args {
		if total >= size {
			c.diag.errorf(line, tok, "too many arguments")
			return nil
		}
		total += a.t.Slots()
	}
	if total < size {
		c.diag.errorf(line, tok, "not enough data provided for construction")
		return nil
	}
	if t.Kind == KindMatrix && total != size && c.es {
		c.diag.errorf(line, tok, "too many arguments")
		return nil
	}
	if t.Kind == KindScalar && len(args) > 1 {
		c.diag.errorf(line, tok, "too many arguments")
		return nil
	}

	evals := make([]func() []float64, len(args))
	froms := make([]Basic, len(args))
	for i, a := range args {
		evals[i], froms[i] = a.eval, a.t.Basic
	}
	o := &operand{t: t, side: side, line: line, eval: func() []float64 {
		k := 0
		for i, ev := range evals {
			for _, v := range ev() {
				if k == size {
					break
				}
				out[k] = convert(froms[i], to, v)
				k++
			}
		}
		return out
	}}
	return fold(o, args...)
}

// concat lays the arguments out one after the other, as for arrays and
// structures.
func (c *checker) concat(t *Type, args []*operand, side bool, line int) *operand {
	out := make([]float64, t.Slots())
	evals := make([]func() []float64, len(args))
	for i, a := range args {
		evals[i] = a.eval
	}
	return &operand{t: t, side: side, line: line, eval: func() []float64 {
		k := 0
		for _, ev := range evals {
			k += copy(out[k:], ev())
		}
		return out
	}}
}
