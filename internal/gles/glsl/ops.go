package glsl

import "math"

func (c *checker) binary(e *Binary) *operand {
	x := c.expr(e.X)
	y := c.expr(e.Y)
	if x == nil || y == nil {
		return nil
	}
	return c.binaryOp(e.Op, x, y, e.Line)
}

func (c *checker) badOperands(op string, x, y *operand, line int) *operand {
	c.diag.errorf(line, op, "wrong operand types - no operation '%s' exists that takes a left-hand operand of type '%s' and a right operand of type '%s' (or there is no acceptable conversion)", op, x.t, y.t)
	return nil
}

// binaryOp type-checks and generates x op y.
func (c *checker) binaryOp(op string, x, y *operand, line int) *operand {
	if x.t.containsSampler() || y.t.containsSampler() {
		return c.badOperands(op, x, y, line)
	}
	switch op {
	case ",":
		xf, yf := x.eval, y.eval
		return &operand{t: y.t, side: anySide(x, y), line: line, eval: func() []float64 {
			xf()
			return yf()
		}}
	case "&&", "||", "^^":
		if !x.t.isBoolScalar() || !y.t.isBoolScalar() {
			return c.badOperands(op, x, y, line)
		}
		return fold(logical(op, x, y, line), x, y)
	case "==", "!=":
		if !x.t.Equal(y.t) || x.t.Kind == KindVoid {
			return c.badOperands(op, x, y, line)
		}
		if c.es && !c.es3 && x.t.containsArray() {
			return c.badOperands(op, x, y, line)
		}
		return fold(equality(op == "!=", x, y, line), x, y)
	case "<", ">", "<=", ">=":
		if !x.t.isScalar() || !x.t.Equal(y.t) || x.t.Basic == Bool {
			return c.badOperands(op, x, y, line)
		}
		return fold(compare(op, x, y, line), x, y)
	case "<<", ">>":
		if c.es && !c.es3 || !x.t.isInteger() || !y.t.isInteger() {
			return c.badOperands(op, x, y, line)
		}
		if !y.t.isScalar() && y.t.Size != x.t.Size {
			return c.badOperands(op, x, y, line)
		}
		return fold(componentwise(x.t, x, y, shift(op, x.t.Basic), line), x, y)
	case "&", "|", "^", "%":
		if c.es && !c.es3 || !x.t.isInteger() || !y.t.isInteger() || x.t.Basic != y.t.Basic {
			return c.badOperands(op, x, y, line)
		}
		t := broadcastType(x.t, y.t)
		if t == nil {
			return c.badOperands(op, x, y, line)
		}
		return fold(componentwise(t, x, y, arith(op, x.t.Basic), line), x, y)
	case "+", "-", "*", "/":
	default:
		return c.badOperands(op, x, y, line)
	}

	if !x.t.isNumeric() || !y.t.isNumeric() {
		return c.badOperands(op, x, y, line)
	}
	if x.t.Basic != y.t.Basic {
		if c.es {
			return c.badOperands(op, x, y, line)
		}
		px, py := c.promote(x, y.t.Basic), c.promote(y, x.t.Basic)
		if px == nil || py == nil {
			return c.badOperands(op, x, y, line)
		}
		x, y = px, py
	}
	if op == "*" && (x.t.isMatrix() || y.t.isMatrix()) && !x.t.isScalar() && !y.t.isScalar() {
		return c.linearAlgebra(x, y, line)
	}
	t := broadcastType(x.t, y.t)
	if t == nil {
		return c.badOperands(op, x, y, line)
	}
	return fold(componentwise(t, x, y, arith(op, x.t.Basic), line), x, y)
}

// promote converts an integer operand to float for desktop mixed-type
// arithmetic. Float operands are returned unchanged.
func (c *checker) promote(x *operand, other Basic) *operand {
	if x.t.Basic == Float || other != Float {
		return x
	}
	t := vecOf(Float, x.t.Size)
	return c.coerce(x, t)
}

// broadcastType is the result of a componentwise operation, where a scalar
// operand applies to every component of the other.
func broadcastType(x, y *Type) *Type {
	switch {
	case x.Equal(y):
		return x
	case x.isScalar():
		return y
	case y.isScalar():
		return x
	}
	return nil
}

type kernel func(x, y float64) float64

// componentwise evaluates k over the components of x and y, broadcasting
// scalars.
func componentwise(t *Type, x, y *operand, k kernel, line int) *operand {
	out := make([]float64, t.Slots())
	xf, yf := x.eval, y.eval
	var tmp []float64
	copyLeft := y.side
	return &operand{t: t, side: anySide(x, y), line: line, eval: func() []float64 {
		a := xf()
		if copyLeft {
			tmp = append(tmp[:0], a...)
			a = tmp
		}
		b := yf()
		for i := range out {
			out[i] = k(a[i%len(a)], b[i%len(b)])
		}
		return out
	}}
}

func logical(op string, x, y *operand, line int) *operand {
	out := []float64{0}
	xf, yf := x.eval, y.eval
	var f func() []float64
	switch op {
	case "&&":
		f = func() []float64 {
			out[0] = 0
			if xf()[0] != 0 && yf()[0] != 0 {
				out[0] = 1
			}
			return out
		}
	case "||":
		f = func() []float64 {
			out[0] = 0
			if xf()[0] != 0 || yf()[0] != 0 {
				out[0] = 1
			}
			return out
		}
	default:
		f = func() []float64 {
			a := xf()[0] != 0
			b := yf()[0] != 0
			out[0] = b2f(a != b)
			return out
		}
	}
	return &operand{t: tBool, side: anySide(x, y), line: line, eval: f}
}

func equality(negate bool, x, y *operand, line int) *operand {
	out := []float64{0}
	xf, yf := x.eval, y.eval
	var tmp []float64
	copyLeft := y.side
	return &operand{t: tBool, side: anySide(x, y), line: line, eval: func() []float64 {
		a := xf()
		if copyLeft {
			tmp = append(tmp[:0], a...)
			a = tmp
		}
		b := yf()
		eq := true
		for i := range a {
			if a[i] != b[i] {
				eq = false
				break
			}
		}
		out[0] = b2f(eq != negate)
		return out
	}}
}

func compare(op string, x, y *operand, line int) *operand {
	var k func(a, b float64) bool
	switch op {
	case "<":
		k = func(a, b float64) bool { return a < b }
	case ">":
		k = func(a, b float64) bool { return a > b }
	case "<=":
		k = func(a, b float64) bool { return a <= b }
	default:
		k = func(a, b float64) bool { return a >= b }
	}
	out := []float64{0}
	xf, yf := x.eval, y.eval
	return &operand{t: tBool, side: anySide(x, y), line: line, eval: func() []float64 {
		a := xf()[0]
		b := yf()[0]
		out[0] = b2f(k(a, b))
		return out
	}}
}

// linearAlgebra generates matrix-matrix, matrix-vector and vector-matrix
// products. Matrices are column-major.
func (c *checker) linearAlgebra(x, y *operand, line int) *operand {
	xt, yt := x.t, y.t
	var t *Type
	switch {
	case xt.isMatrix() && yt.isMatrix():
		if xt.Size != yt.Rows {
			return c.badOperands("*", x, y, line)
		}
		t = matOf(yt.Size, xt.Rows)
	case xt.isMatrix():
		if xt.Size != yt.Size {
			return c.badOperands("*", x, y, line)
		}
		t = vecOf(Float, xt.Rows)
	default:
		if yt.Rows != xt.Size {
			return c.badOperands("*", x, y, line)
		}
		t = vecOf(Float, yt.Size)
	}
	out := make([]float64, t.Slots())
	xf, yf := x.eval, y.eval
	var tmp []float64
	copyLeft := y.side
	o := &operand{t: t, side: anySide(x, y), line: line, eval: func() []float64 {
		a := xf()
		if copyLeft {
			tmp = append(tmp[:0], a...)
			a = tmp
		}
		b := yf()
		switch {
		case xt.isMatrix() && yt.isMatrix():
			mulMatMat(out, a, b, xt.Rows, xt.Size, yt.Size)
		case xt.isMatrix():
			mulMatVec(out, a, b, xt.Rows, xt.Size)
		default:
			mulVecMat(out, a, b, yt.Rows, yt.Size)
		}
		return out
	}}
	return fold(o, x, y)
}

// mulMatMat computes out = a*b for an r×k matrix a and k×n matrix b.
func mulMatMat(out, a, b []float64, r, k, n int) {
	for j := 0; j < n; j++ {
		for i := 0; i < r; i++ {
			s := 0.0
			for m := 0; m < k; m++ {
				s += a[m*r+i] * b[j*k+m]
			}
			out[j*r+i] = f32(s)
		}
	}
}

func mulMatVec(out, m, v []float64, rows, cols int) {
	for i := 0; i < rows; i++ {
		s := 0.0
		for k := 0; k < cols; k++ {
			s += m[k*rows+i] * v[k]
		}
		out[i] = f32(s)
	}
}

func mulVecMat(out, v, m []float64, rows, cols int) {
	for j := 0; j < cols; j++ {
		s := 0.0
		for k := 0; k < rows; k++ {
			s += v[k] * m[j*rows+k]
		}
		out[j] = f32(s)
	}
}

// arith returns the componentwise kernel for an arithmetic or bitwise
// operator on b. Integer results wrap at 32 bits and integer division by
// zero yields zero.
func arith(op string, b Basic) kernel {
	switch b {
	case Float:
		switch op {
		case "+":
			return func(x, y float64) float64 { return f32(x + y) }
		case "-":
			return func(x, y float64) float64 { return f32(x - y) }
		case "*":
			return func(x, y float64) float64 { return f32(x * y) }
		case "/":
			return func(x, y float64) float64 { return f32(x / y) }
		}
	case Int:
		var k func(a, b int64) int64
		switch op {
		case "+":
			k = func(a, b int64) int64 { return a + b }
		case "-":
			k = func(a, b int64) int64 { return a - b }
		case "*":
			k = func(a, b int64) int64 { return a * b }
		case "/":
			k = func(a, b int64) int64 {
				if b == 0 {
					return 0
				}
				return a / b
			}
		case "%":
			k = func(a, b int64) int64 {
				if b == 0 {
					return 0
				}
				return a % b
			}
		case "&":
			k = func(a, b int64) int64 { return a & b }
		case "|":
			k = func(a, b int64) int64 { return a | b }
		case "^":
			k = func(a, b int64) int64 { return a ^ b }
		}
		return func(x, y float64) float64 { return float64(int32(k(int64(x), int64(y)))) }
	case Uint:
		var k func(a, b uint64) uint64
		switch op {
		case "+":
			k = func(a, b uint64) uint64 { return a + b }
		case "-":
			k = func(a, b uint64) uint64 { return a - b }
		case "*":
			k = func(a, b uint64) uint64 { return a * b }
		case "/":
			k = func(a, b uint64) uint64 {
				if b == 0 {
					return 0
				}
				return a / b
			}
		case "%":
			k = func(a, b uint64) uint64 {
				if b == 0 {
					return 0
				}
				return a % b
			}
		case "&":
			k = func(a, b uint64) uint64 { return a & b }
		case "|":
			k = func(a, b uint64) uint64 { return a | b }
		case "^":
			k = func(a, b uint64) uint64 { return a ^ b }
		}
		return func(x, y float64) float64 { return float64(uint32(k(uint64(uint32(x)), uint64(uint32(y))))) }
	}
	return func(x, y float64) float64 { return 0 }
}

func shift(op string, b Basic) kernel {
	left := op == "<<"
	if b == Uint {
		return func(x, y float64) float64 {
			n := uint64(int64(y))
			if left {
				return float64(uint32(x) << n)
			}
			return float64(uint32(x) >> n)
		}
	}
	return func(x, y float64) float64 {
		n := uint64(int64(y))
		if left {
			return float64(int32(x) << n)
		}
		return float64(int32(x) >> n)
	}
}

// convert changes a component from one basic type to another, as
// constructors do.
func convert(from, to Basic, v float64) float64 {
	switch to {
	case Float:
		return f32(v)
	case Int:
		switch from {
		case Float:
			return float64(truncInt32(v))
		case Uint:
			return float64(int32(uint32(v)))
		}
		return v
	case Uint:
		switch from {
		case Float:
			return float64(uint32(truncInt64(v)))
		case Int:
			return float64(uint32(int32(v)))
		}
		return v
	case Bool:
		return b2f(v != 0)
	}
	return v
}

func truncInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func truncInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int64(v)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
