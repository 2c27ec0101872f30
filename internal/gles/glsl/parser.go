package glsl

import (
	"math"
	"strconv"
	"strings"
)

var qualifierWords = map[string]bool{
	"const": true, "attribute": true, "varying": true, "uniform": true,
	"in": true, "out": true, "inout": true, "buffer": true, "shared": true,
	"centroid": true, "flat": true, "smooth": true, "invariant": true,
	"layout": true, "highp": true, "mediump": true, "lowp": true,
}

var precisions = map[string]bool{"highp": true, "mediump": true, "lowp": true}

// keywords are words that can never be identifiers.
var keywords = map[string]bool{
	"break": true, "continue": true, "do": true, "for": true, "while": true,
	"if": true, "else": true, "true": true, "false": true, "discard": true,
	"return": true, "struct": true, "precision": true, "switch": true,
	"case": true, "default": true,
}

var reservedCommon = []string{
	"asm", "class", "union", "enum", "typedef", "template", "this", "goto",
	"inline", "noinline", "volatile", "public", "static", "extern", "external",
	"interface", "long", "short", "double", "half", "fixed", "unsigned",
	"superp", "input", "output", "hvec2", "hvec3", "hvec4", "dvec2", "dvec3",
	"dvec4", "fvec2", "fvec3", "fvec4", "sampler1D", "sampler1DShadow",
	"sampler2DRect", "sampler3DRect", "sampler2DRectShadow", "sizeof", "cast",
	"namespace", "using",
}

var reservedES1 = []string{"packed", "switch", "default", "flat"}

var reservedES3 = []string{
	"attribute", "varying", "coherent", "restrict", "readonly", "writeonly",
	"resource", "atomic_uint", "noperspective", "patch", "sample", "subroutine",
	"common", "partition", "active", "filter", "image1D", "image2D", "image3D",
	"imageCube", "iimage1D", "iimage2D", "iimage3D", "iimageCube", "uimage1D",
	"uimage2D", "uimage3D", "uimageCube", "image1DArray", "image2DArray",
	"iimage1DArray", "iimage2DArray", "uimage1DArray", "uimage2DArray",
	"imageBuffer", "iimageBuffer", "uimageBuffer", "sampler1DArray",
	"sampler1DArrayShadow", "isampler1D", "isampler1DArray", "usampler1D",
	"usampler1DArray", "isampler2DRect", "usampler2DRect", "samplerBuffer",
	"isamplerBuffer", "usamplerBuffer", "sampler2DMS", "isampler2DMS",
	"usampler2DMS", "sampler2DMSArray", "isampler2DMSArray", "usampler2DMSArray",
	"trueSampler", "buffer", "shared",
}

type parser struct {
	toks     []token
	pos      int
	diag     *diagnostics
	version  int
	es       bool
	es3      bool
	reserved map[string]bool
	structs  []map[string]bool
	lastLine int
}

func newParser(pp *preprocessed, diag *diagnostics) *parser {
	p := &parser{
		toks:     pp.tokens,
		diag:     diag,
		version:  pp.version,
		es:       pp.es,
		es3:      pp.es && pp.version >= 300,
		reserved: map[string]bool{},
		structs:  []map[string]bool{{}},
		lastLine: pp.lines,
	}
	for _, w := range reservedCommon {
		p.reserved[w] = true
	}
	switch {
	case p.es3:
		for _, w := range reservedES3 {
			p.reserved[w] = true
		}
	case p.es:
		for _, w := range reservedES1 {
			p.reserved[w] = true
		}
		for w := range es3Types {
			p.reserved[w] = true
		}
		for _, w := range []string{"sampler3D", "sampler2DShadow"} {
			p.reserved[w] = true
		}
	}
	return p
}

// parse builds the translation unit. It stops at the first syntax error.
func (p *parser) parse() (u *Unit) {
	u = &Unit{}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
		}
	}()
	for p.peek().kind != tEOF {
		if p.peek().is(";") {
			p.next()
			continue
		}
		u.Decls = append(u.Decls, p.external())
	}
	return u
}

func (p *parser) peek() token { return p.at(0) }

func (p *parser) at(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return token{kind: tEOF, line: p.lastLine}
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token, msg string) {
	p.diag.errorf(t.line, t.text, "%s", msg)
	panic(bailout{})
}

func (p *parser) syntax(t token) {
	p.fail(t, "syntax error")
}

func (p *parser) expect(text string) token {
	t := p.next()
	if !t.is(text) {
		p.syntax(t)
	}
	return t
}

func (p *parser) accept(text string) bool {
	if p.peek().is(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) word(t token) bool {
	return t.kind == tIdent
}

// checkReserved rejects words reserved for the current language version.
func (p *parser) checkReserved(t token) {
	if t.kind == tIdent && p.reserved[t.text] {
		p.fail(t, "Illegal use of reserved word")
	}
}

func (p *parser) ident() token {
	t := p.next()
	p.checkReserved(t)
	if t.kind != tIdent || keywords[t.text] || qualifierWords[t.text] || builtinTypes[t.text] != nil {
		p.syntax(t)
	}
	return t
}

func (p *parser) isStructName(name string) bool {
	for i := len(p.structs) - 1; i >= 0; i-- {
		if p.structs[i][name] {
			return true
		}
	}
	return false
}

func (p *parser) isTypeName(t token) bool {
	if t.kind != tIdent {
		return false
	}
	if p.reserved[t.text] {
		return false
	}
	return builtinTypes[t.text] != nil || t.text == "struct" || p.isStructName(t.text)
}

func (p *parser) isQualifier(t token) bool {
	if t.kind != tIdent || p.reserved[t.text] {
		return false
	}
	return qualifierWords[t.text]
}

func (p *parser) pushScope() { p.structs = append(p.structs, map[string]bool{}) }
func (p *parser) popScope()  { p.structs = p.structs[:len(p.structs)-1] }

// external parses a global declaration or function definition.
func (p *parser) external() Decl {
	t := p.peek()
	p.checkReserved(t)
	if t.kind == tIdent && t.text == "precision" {
		return p.precisionDecl()
	}
	if t.kind == tIdent && t.text == "invariant" && p.at(1).kind == tIdent && !p.isTypeName(p.at(1)) && !p.isQualifier(p.at(1)) {
		return p.invariantDecl()
	}

	q := p.qualifiers()
	if !q.empty() && p.peek().is(";") {
		p.next()
		return &VarDecl{Qual: q, Line: t.line}
	}
	if !q.empty() && p.peek().kind == tIdent && !p.isTypeName(p.peek()) && p.at(1).is("{") {
		return p.blockDecl(q)
	}
	ts := p.typeSpec()
	if q.Precision != "" && ts.Precision == "" {
		ts.Precision = q.Precision
	}

	if p.peek().is(";") {
		p.next()
		return &VarDecl{Qual: q, Type: ts, Line: t.line}
	}
	name := p.ident()
	if p.peek().is("(") {
		return p.function(q, ts, name)
	}
	return p.varDeclRest(q, ts, name, t.line)
}

func (p *parser) precisionDecl() *PrecisionDecl {
	t := p.next()
	pt := p.next()
	if !precisions[pt.text] {
		p.syntax(pt)
	}
	ts := p.typeSpec()
	p.expect(";")
	return &PrecisionDecl{Precision: pt.text, Type: ts, Line: t.line}
}

func (p *parser) invariantDecl() *InvariantDecl {
	t := p.next()
	d := &InvariantDecl{Line: t.line}
	for {
		d.Names = append(d.Names, p.ident().text)
		if !p.accept(",") {
			break
		}
	}
	p.expect(";")
	return d
}

func (p *parser) blockDecl(q Qualifier) *BlockDecl {
	name := p.ident()
	d := &BlockDecl{Qual: q, Name: name.text, Line: name.line}
	p.expect("{")
	for !p.peek().is("}") {
		d.Members = append(d.Members, p.memberDecl())
	}
	p.expect("}")
	if p.peek().kind == tIdent {
		d.Instance = p.ident().text
		if p.peek().is("[") {
			d.Array = p.arraySpec()
		}
	}
	p.expect(";")
	return d
}

func (p *parser) qualifiers() Qualifier {
	q := Qualifier{Line: p.peek().line}
	for {
		t := p.peek()
		p.checkReserved(t)
		if !p.isQualifier(t) {
			return q
		}
		p.next()
		switch t.text {
		case "highp", "mediump", "lowp":
			q.Precision = t.text
		case "flat", "smooth":
			q.Interp = t.text
		case "centroid":
			q.Centroid = true
		case "invariant":
			q.Invariant = true
		case "layout":
			p.expect("(")
			for {
				n := p.next()
				if n.kind != tIdent {
					p.syntax(n)
				}
				l := Layout{Name: n.text}
				if p.accept("=") {
					v := p.next()
					if v.kind != tokInt {
						p.syntax(v)
					}
					iv, err := strconv.ParseInt(strings.TrimRight(v.text, "uU"), 0, 64)
					if err != nil {
						p.syntax(v)
					}
					l.Value, l.Set = int(iv), true
				}
				q.Layout = append(q.Layout, l)
				if !p.accept(",") {
					break
				}
			}
			p.expect(")")
		default:
			if q.Storage != "" {
				p.fail(t, "too many storage qualifiers")
			}
			q.Storage = t.text
		}
	}
}

func (p *parser) typeSpec() *TypeSpec {
	t := p.peek()
	p.checkReserved(t)
	ts := &TypeSpec{Line: t.line}
	if precisions[t.text] && t.kind == tIdent {
		ts.Precision = p.next().text
		t = p.peek()
		p.checkReserved(t)
	}
	switch {
	case t.kind == tIdent && t.text == "struct":
		ts.Struct = p.structSpec()
		ts.Name = ts.Struct.Name
	case p.isTypeName(t):
		p.next()
		ts.Name = t.text
	default:
		p.syntax(t)
	}
	if p.peek().is("[") {
		ts.Array = p.arraySpec()
	}
	return ts
}

func (p *parser) structSpec() *StructSpec {
	t := p.next()
	s := &StructSpec{Line: t.line}
	if p.peek().kind == tIdent {
		n := p.ident()
		s.Name = n.text
	}
	p.expect("{")
	p.pushScope()
	for !p.peek().is("}") {
		s.Members = append(s.Members, p.memberDecl())
	}
	p.popScope()
	p.expect("}")
	if s.Name != "" {
		p.structs[len(p.structs)-1][s.Name] = true
	}
	return s
}

func (p *parser) memberDecl() *VarDecl {
	q := p.qualifiers()
	ts := p.typeSpec()
	if q.Precision != "" && ts.Precision == "" {
		ts.Precision = q.Precision
	}
	d := &VarDecl{Qual: q, Type: ts, Line: ts.Line}
	for {
		n := p.ident()
		dc := &Declarator{Name: n.text, Line: n.line}
		if p.peek().is("[") {
			dc.Array = p.arraySpec()
		}
		d.Vars = append(d.Vars, dc)
		if !p.accept(",") {
			break
		}
	}
	p.expect(";")
	return d
}

func (p *parser) arraySpec() *ArraySpec {
	p.expect("[")
	a := &ArraySpec{}
	if !p.peek().is("]") {
		a.Size = p.conditional()
	}
	p.expect("]")
	if p.peek().is("[") {
		p.fail(p.peek(), "multi-dimensional arrays are not supported")
	}
	return a
}

func (p *parser) varDeclRest(q Qualifier, ts *TypeSpec, first token, line int) *VarDecl {
	d := &VarDecl{Qual: q, Type: ts, Line: line}
	name := first
	for {
		dc := &Declarator{Name: name.text, Line: name.line}
		if p.peek().is("[") {
			dc.Array = p.arraySpec()
		}
		if p.accept("=") {
			dc.Init = p.assignment()
		}
		d.Vars = append(d.Vars, dc)
		if !p.accept(",") {
			break
		}
		name = p.ident()
	}
	p.expect(";")
	return d
}

func (p *parser) function(q Qualifier, ret *TypeSpec, name token) *FuncDecl {
	if q.Storage != "" && q.Storage != "const" || q.Interp != "" || q.Invariant || len(q.Layout) > 0 {
		p.fail(name, "no qualifiers allowed for function return")
	}
	f := &FuncDecl{Ret: ret, Name: name.text, Line: name.line}
	p.expect("(")
	if p.peek().kind == tIdent && p.peek().text == "void" && p.at(1).is(")") {
		p.next()
	}
	if !p.peek().is(")") {
		for {
			f.Params = append(f.Params, p.param())
			if !p.accept(",") {
				break
			}
		}
	}
	p.expect(")")
	if p.accept(";") {
		return f
	}
	if !p.peek().is("{") {
		p.syntax(p.peek())
	}
	p.pushScope()
	f.Body = p.block(false)
	p.popScope()
	return f
}

func (p *parser) param() *Param {
	q := p.qualifiers()
	ts := p.typeSpec()
	if q.Precision != "" && ts.Precision == "" {
		ts.Precision = q.Precision
	}
	prm := &Param{Qual: q, Type: ts, Line: ts.Line}
	if p.peek().kind == tIdent {
		n := p.ident()
		prm.Name, prm.Line = n.text, n.line
		if p.peek().is("[") {
			prm.Array = p.arraySpec()
		}
	}
	return prm
}

func (p *parser) block(scoped bool) *Block {
	t := p.expect("{")
	b := &Block{Scoped: scoped, Line: t.line}
	if scoped {
		p.pushScope()
		defer p.popScope()
	}
	for !p.peek().is("}") {
		if p.peek().kind == tEOF {
			p.syntax(p.peek())
		}
		b.Stmts = append(b.Stmts, p.statement())
	}
	b.End = p.next().line
	return b
}

// declStart reports whether the statement at the cursor is a declaration.
func (p *parser) declStart() bool {
	t := p.peek()
	p.checkReserved(t)
	if t.kind != tIdent {
		return false
	}
	if p.isQualifier(t) || t.text == "precision" || t.text == "struct" {
		return true
	}
	if !p.isTypeName(t) {
		return false
	}
	n := 1
	if p.at(n).is("[") {
		depth := 0
		for ; ; n++ {
			tt := p.at(n)
			if tt.kind == tEOF {
				return false
			}
			if tt.is("[") {
				depth++
			}
			if tt.is("]") {
				depth--
				if depth == 0 {
					n++
					break
				}
			}
		}
	}
	return p.at(n).kind == tIdent
}

func (p *parser) statement() Stmt {
	t := p.peek()
	p.checkReserved(t)
	if t.is("{") {
		return p.block(true)
	}
	if t.is(";") {
		p.next()
		return &EmptyStmt{Line: t.line}
	}
	if t.kind == tIdent {
		switch t.text {
		case "if":
			p.next()
			p.expect("(")
			s := &IfStmt{Cond: p.expression(), Line: t.line}
			p.expect(")")
			s.Then = p.substatement()
			if p.peek().kind == tIdent && p.peek().text == "else" {
				p.next()
				s.Else = p.substatement()
			}
			return s
		case "for":
			return p.forStmt()
		case "while":
			p.next()
			p.expect("(")
			s := &WhileStmt{Line: t.line}
			p.pushScope()
			defer p.popScope()
			s.Cond, s.CondDecl = p.condition()
			p.expect(")")
			s.Body = p.substatementNoScope()
			return s
		case "do":
			p.next()
			s := &DoStmt{Line: t.line, Body: p.substatement()}
			w := p.next()
			if w.kind != tIdent || w.text != "while" {
				p.syntax(w)
			}
			p.expect("(")
			s.Cond = p.expression()
			p.expect(")")
			p.expect(";")
			return s
		case "switch":
			p.next()
			p.expect("(")
			s := &SwitchStmt{X: p.expression(), Line: t.line}
			p.expect(")")
			if !p.peek().is("{") {
				p.syntax(p.peek())
			}
			s.Body = p.block(true)
			return s
		case "case":
			p.next()
			s := &CaseStmt{X: p.expression(), Line: t.line}
			p.expect(":")
			return s
		case "default":
			p.next()
			p.expect(":")
			return &CaseStmt{Line: t.line}
		case "break", "continue", "discard":
			p.next()
			p.expect(";")
			return &BranchStmt{Tok: t.text, Line: t.line}
		case "return":
			p.next()
			s := &ReturnStmt{Line: t.line}
			if !p.peek().is(";") {
				s.X = p.expression()
			}
			p.expect(";")
			return s
		case "precision":
			return &DeclStmt{Decl: p.precisionDecl()}
		}
	}
	if p.declStart() {
		return &DeclStmt{Decl: p.localDecl()}
	}
	x := p.expression()
	p.expect(";")
	return &ExprStmt{X: x}
}

// substatement parses the body of a selection or iteration statement. It
// opens a scope of its own even when it is not a compound statement.
func (p *parser) substatement() Stmt {
	p.pushScope()
	defer p.popScope()
	return p.statement()
}

// substatementNoScope parses a loop body that shares the scope of the loop
// header, as a compound body does not open a new one in that position.
func (p *parser) substatementNoScope() Stmt {
	if p.peek().is("{") {
		b := p.block(false)
		return b
	}
	return p.statement()
}

func (p *parser) localDecl() Decl {
	line := p.peek().line
	q := p.qualifiers()
	ts := p.typeSpec()
	if q.Precision != "" && ts.Precision == "" {
		ts.Precision = q.Precision
	}
	if p.accept(";") {
		return &VarDecl{Qual: q, Type: ts, Line: line}
	}
	name := p.ident()
	if p.peek().is("(") {
		p.fail(name, "function definitions are only allowed at global scope")
	}
	return p.varDeclRest(q, ts, name, line)
}

// condition parses a loop condition, which may declare a variable.
func (p *parser) condition() (Expr, *CondInit) {
	if p.declStart() {
		ts := p.typeSpec()
		n := p.ident()
		p.expect("=")
		return nil, &CondInit{Type: ts, Name: n.text, Init: p.assignment(), Line: n.line}
	}
	return p.expression(), nil
}

func (p *parser) forStmt() Stmt {
	t := p.next()
	p.expect("(")
	p.pushScope()
	defer p.popScope()
	s := &ForStmt{Line: t.line}
	switch {
	case p.peek().is(";"):
		p.next()
	case p.declStart():
		s.Init = &DeclStmt{Decl: p.localDecl()}
	default:
		x := p.expression()
		p.expect(";")
		s.Init = &ExprStmt{X: x}
	}
	if !p.peek().is(";") {
		s.Cond, s.CondDecl = p.condition()
	}
	p.expect(";")
	if !p.peek().is(")") {
		s.Post = p.expression()
	}
	p.expect(")")
	s.Body = p.substatementNoScope()
	return s
}

// Expressions.

func (p *parser) expression() Expr {
	x := p.assignment()
	for p.peek().is(",") {
		t := p.next()
		x = &Binary{Op: ",", X: x, Y: p.assignment(), Line: t.line}
	}
	return x
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"<<=": true, ">>=": true, "&=": true, "|=": true, "^=": true,
}

func (p *parser) assignment() Expr {
	x := p.conditional()
	if t := p.peek(); t.kind == tPunct && assignOps[t.text] {
		p.next()
		return &Assign{Op: t.text, L: x, R: p.assignment(), Line: t.line}
	}
	return x
}

func (p *parser) conditional() Expr {
	c := p.binary(1)
	if t := p.peek(); t.is("?") {
		p.next()
		a := p.expression()
		p.expect(":")
		b := p.assignment()
		return &Cond{C: c, A: a, B: b, Line: t.line}
	}
	return c
}

var binPrec = map[string]int{
	"||": 1, "^^": 2, "&&": 3, "|": 4, "^": 5, "&": 6, "==": 7, "!=": 7,
	"<": 8, ">": 8, "<=": 8, ">=": 8, "<<": 9, ">>": 9, "+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
}

func (p *parser) binary(minPrec int) Expr {
	x := p.unary()
	for {
		t := p.peek()
		prec, ok := binPrec[t.text]
		if t.kind != tPunct || !ok || prec < minPrec {
			return x
		}
		p.next()
		y := p.binary(prec + 1)
		x = &Binary{Op: t.text, X: x, Y: y, Line: t.line}
	}
}

func (p *parser) unary() Expr {
	t := p.peek()
	if t.kind == tPunct {
		switch t.text {
		case "++", "--", "+", "-", "!", "~":
			p.next()
			return &Unary{Op: t.text, X: p.unary(), Line: t.line}
		}
	}
	return p.postfix()
}

func (p *parser) postfix() Expr {
	x := p.primary()
	for {
		t := p.peek()
		switch {
		case t.is("["):
			p.next()
			idx := p.expression()
			p.expect("]")
			x = &Index{X: x, Index: idx, Line: t.line}
		case t.is("."):
			p.next()
			n := p.next()
			if n.kind != tIdent {
				p.syntax(n)
			}
			if p.peek().is("(") {
				p.next()
				p.expect(")")
				x = &Call{Name: n.text, Recv: x, Line: n.line}
				continue
			}
			x = &Selector{X: x, Name: n.text, Line: n.line}
		case t.is("++") || t.is("--"):
			p.next()
			x = &Unary{Op: t.text, X: x, Postfix: true, Line: t.line}
		default:
			return x
		}
	}
}

func (p *parser) primary() Expr {
	t := p.peek()
	p.checkReserved(t)
	switch t.kind {
	case tokInt:
		p.next()
		return p.intLiteral(t)
	case tokFloat:
		p.next()
		return p.floatLiteral(t)
	case tPunct:
		if t.is("(") {
			p.next()
			x := p.expression()
			p.expect(")")
			return x
		}
		p.syntax(t)
	case tIdent:
		switch {
		case t.text == "true" || t.text == "false":
			p.next()
			v := 0.0
			if t.text == "true" {
				v = 1
			}
			return &Literal{Type: tBool, Value: v, Text: t.text, Line: t.line}
		case p.isTypeName(t) && t.text != "struct":
			ts := &TypeSpec{Name: t.text, Line: t.line}
			p.next()
			if p.peek().is("[") {
				ts.Array = p.arraySpec()
			}
			if !p.peek().is("(") {
				p.syntax(p.peek())
			}
			return &Call{Name: t.text, Ctor: ts, Args: p.args(), Line: t.line}
		case keywords[t.text] || qualifierWords[t.text] || t.text == "struct":
			p.syntax(t)
		}
		p.next()
		if p.peek().is("(") {
			return &Call{Name: t.text, Args: p.args(), Line: t.line}
		}
		return &Ident{Name: t.text, Line: t.line}
	}
	p.syntax(t)
	return nil
}

func (p *parser) args() []Expr {
	p.expect("(")
	if p.peek().kind == tIdent && p.peek().text == "void" && p.at(1).is(")") {
		p.next()
	}
	var args []Expr
	if !p.peek().is(")") {
		for {
			args = append(args, p.assignment())
			if !p.accept(",") {
				break
			}
		}
	}
	p.expect(")")
	return args
}

func (p *parser) intLiteral(t token) *Literal {
	text := t.text
	typ := tInt
	if strings.HasSuffix(text, "u") || strings.HasSuffix(text, "U") {
		if p.es && !p.es3 {
			p.fail(t, "invalid integer literal suffix")
		}
		typ = tUint
		text = text[:len(text)-1]
	}
	base := 10
	digits := text
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		base, digits = 16, text[2:]
	case len(text) > 1 && text[0] == '0':
		base, digits = 8, text[1:]
	}
	if digits == "" {
		p.fail(t, "invalid integer literal")
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			p.fail(t, "Integer overflow")
		}
		p.fail(t, "invalid integer literal")
	}
	if v > math.MaxUint32 {
		p.fail(t, "Integer overflow")
	}
	val := float64(v)
	if typ == tInt {
		if base == 10 && v > math.MaxInt32+1 && !p.es3 && p.es {
			p.fail(t, "Integer overflow")
		}
		val = float64(int32(uint32(v)))
	}
	return &Literal{Type: typ, Value: val, Text: t.text, Line: t.line}
}

func (p *parser) floatLiteral(t token) *Literal {
	text := t.text
	if strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F") {
		if p.es && !p.es3 {
			p.fail(t, "Floating-point suffix unsupported prior to GLSL ES 3.00")
		}
		text = text[:len(text)-1]
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			p.fail(t, "invalid float literal")
		}
	}
	return &Literal{Type: tFloat, Value: f32(v), Text: t.text, Line: t.line}
}

// f32 rounds to single precision.
func f32(v float64) float64 { return float64(float32(v)) }
