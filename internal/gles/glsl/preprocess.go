package glsl

import (
	"strconv"
	"strings"
)

// Versions accepted by #version.
var versions = map[string]bool{
	"100": true, "110": true, "120": true, "130": true, "140": true, "150": true,
	"300 es": true, "310 es": true, "320 es": true,
	"330": true, "400": true, "410": true, "420": true, "430": true, "440": true, "450": true, "460": true,
}

// extensions lists the extensions shaders may enable.
var extensions = map[string]bool{
	"GL_OES_standard_derivatives":                    true,
	"GL_EXT_shader_texture_lod":                      true,
	"GL_EXT_frag_depth":                              true,
	"GL_EXT_draw_buffers":                            true,
	"GL_OES_texture_3D":                              true,
	"GL_EXT_shadow_samplers":                         true,
	"GL_OES_EGL_image_external":                      true,
	"GL_EXT_shader_non_constant_global_initializers": true,
}

type macro struct {
	name   string
	fn     bool
	params []string
	body   []token
}

func (m *macro) same(o *macro) bool {
	if m.fn != o.fn || len(m.params) != len(o.params) || len(m.body) != len(o.body) {
		return false
	}
	for i := range m.params {
		if m.params[i] != o.params[i] {
			return false
		}
	}
	for i := range m.body {
		if m.body[i].text != o.body[i].text {
			return false
		}
	}
	return true
}

type cond struct {
	active  bool // this group is being emitted
	taken   bool // some group of this conditional was emitted
	sawElse bool
	outer   bool // the enclosing group is active
}

// preprocessed is the output of preprocess.
type preprocessed struct {
	tokens     []token
	version    int
	es         bool
	versionStr string
	extensions map[string]string
	lines      int
}

type preprocessor struct {
	diag       *diagnostics
	stage      Stage
	macros     map[string]*macro
	conds      []cond
	out        []token
	pending    []token
	sawCode    bool
	sawTokens  bool
	sawVersion bool
	version    int
	es         bool
	versionStr string
	ext        map[string]string
}

// preprocess strips comments, runs directives and expands macros.
func preprocess(stage Stage, src string, diag *diagnostics) *preprocessed {
	clean, ok := stripComments(src)
	lines := strings.Split(clean, "\n")
	if !ok {
		diag.errorf(len(lines), "/*", "unterminated comment")
	}
	joinContinuations(lines)

	p := &preprocessor{
		diag:       diag,
		stage:      stage,
		macros:     map[string]*macro{},
		version:    100,
		es:         true,
		versionStr: "100",
		ext:        map[string]string{},
	}
	p.predefine("GL_ES", "1")
	if stage == Fragment {
		p.predefine("GL_FRAGMENT_PRECISION_HIGH", "1")
	}
	for name := range extensions {
		p.predefine(name, "1")
	}

	for i, raw := range lines {
		lineNo := i + 1
		t := strings.TrimSpace(raw)
		if strings.HasPrefix(t, "#") {
			p.flush()
			p.directive(t[1:], lineNo)
			p.sawCode = true
			continue
		}
		if !p.active() {
			continue
		}
		toks := lexLine(raw, lineNo, diag)
		if len(toks) > 0 {
			p.sawCode = true
			p.sawTokens = true
		}
		p.pending = append(p.pending, toks...)
	}
	p.flush()
	if len(p.conds) > 0 {
		diag.errorf(len(lines), "", "unexpected end of file found in conditional block")
	}
	return &preprocessed{
		tokens:     p.out,
		version:    p.version,
		es:         p.es,
		versionStr: p.versionStr,
		extensions: p.ext,
		lines:      len(lines),
	}
}

// joinContinuations folds backslash-newline sequences into the first line,
// leaving the consumed lines empty.
func joinContinuations(lines []string) {
	for i := 0; i < len(lines); i++ {
		k := i + 1
		for strings.HasSuffix(lines[i], "\\") && k < len(lines) {
			lines[i] = strings.TrimSuffix(lines[i], "\\") + lines[k]
			lines[k] = ""
			k++
		}
	}
}

func (p *preprocessor) predefine(name, value string) {
	p.macros[name] = &macro{name: name, body: []token{{kind: tokInt, text: value}}}
}

func (p *preprocessor) active() bool {
	return len(p.conds) == 0 || p.conds[len(p.conds)-1].active
}

func (p *preprocessor) flush() {
	if len(p.pending) == 0 {
		return
	}
	p.out = append(p.out, p.expand(p.pending, nil)...)
	p.pending = p.pending[:0]
}

func (p *preprocessor) directive(text string, line int) {
	toks := lexLine(text, line, &diagnostics{})
	name := ""
	if len(toks) > 0 {
		name = toks[0].text
		toks = toks[1:]
	}

	switch name {
	case "if", "ifdef", "ifndef":
		outer := p.active()
		c := cond{outer: outer}
		if outer {
			c.active = p.condition(name, toks, line)
			c.taken = c.active
		}
		p.conds = append(p.conds, c)
		return
	case "elif":
		if len(p.conds) == 0 {
			p.diag.errorf(line, "#elif", "unexpected #elif found without a matching #if")
			return
		}
		c := &p.conds[len(p.conds)-1]
		if c.sawElse {
			p.diag.errorf(line, "#elif", "unexpected #elif found after #else")
			return
		}
		c.active = false
		if c.outer && !c.taken {
			c.active = p.condition("if", toks, line)
			c.taken = c.active
		}
		return
	case "else":
		if len(p.conds) == 0 {
			p.diag.errorf(line, "#else", "unexpected #else found without a matching #if")
			return
		}
		c := &p.conds[len(p.conds)-1]
		if c.sawElse {
			p.diag.errorf(line, "#else", "unexpected #else found after another #else")
			return
		}
		c.sawElse = true
		c.active = c.outer && !c.taken
		c.taken = true
		return
	case "endif":
		if len(p.conds) == 0 {
			p.diag.errorf(line, "#endif", "unexpected #endif found without a matching #if")
			return
		}
		p.conds = p.conds[:len(p.conds)-1]
		return
	}

	if !p.active() {
		return
	}

	switch name {
	case "":
	case "version":
		p.versionDirective(toks, line)
	case "define":
		p.define(toks, line)
	case "undef":
		if len(toks) == 0 || toks[0].kind != tIdent {
			p.diag.errorf(line, "#undef", "invalid macro name")
			return
		}
		if n := toks[0].text; strings.HasPrefix(n, "GL_") || n == "__LINE__" || n == "__FILE__" || n == "__VERSION__" {
			p.diag.errorf(line, n, "predefined macro undefined")
			return
		}
		delete(p.macros, toks[0].text)
	case "error":
		p.diag.errorf(line, "#error", "%s", strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "error")))
	case "pragma":
	case "extension":
		p.extension(toks, line)
	case "line":
		if len(toks) == 0 || toks[0].kind != tokInt {
			p.diag.errorf(line, "#line", "invalid line number")
		}
	default:
		p.diag.errorf(line, "#"+name, "invalid directive name")
	}
}

func (p *preprocessor) versionDirective(toks []token, line int) {
	if p.sawCode || p.sawVersion {
		p.diag.errorf(line, "#version", "#version directive must occur before anything else, except for comments and white space")
		return
	}
	p.sawVersion = true
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.text
	}
	rest := strings.Join(parts, " ")
	if !versions[rest] {
		p.diag.errorf(line, rest, "version number not supported")
		return
	}
	n, _ := strconv.Atoi(toks[0].text)
	p.version = n
	p.es = n == 100 || strings.HasSuffix(rest, " es")
	p.versionStr = rest
}

func (p *preprocessor) define(toks []token, line int) {
	if len(toks) == 0 || toks[0].kind != tIdent {
		p.diag.errorf(line, "#define", "invalid macro name")
		return
	}
	name := toks[0].text
	if strings.HasPrefix(name, "GL_") || name == "defined" || name == "__LINE__" || name == "__FILE__" || name == "__VERSION__" {
		p.diag.errorf(line, name, "macro name is reserved")
		return
	}
	m := &macro{name: name}
	rest := toks[1:]
	if len(rest) > 0 && rest[0].is("(") && !rest[0].space {
		m.fn = true
		i := 1
		for ; i < len(rest) && !rest[i].is(")"); i++ {
			if len(m.params) > 0 {
				if !rest[i].is(",") {
					p.diag.errorf(line, rest[i].text, "invalid macro parameter list")
					return
				}
				i++
			}
			if i >= len(rest) || rest[i].kind != tIdent {
				p.diag.errorf(line, name, "invalid macro parameter list")
				return
			}
			for _, prev := range m.params {
				if prev == rest[i].text {
					p.diag.errorf(line, prev, "duplicate macro parameter name")
					return
				}
			}
			m.params = append(m.params, rest[i].text)
		}
		if i >= len(rest) {
			p.diag.errorf(line, name, "invalid macro parameter list")
			return
		}
		rest = rest[i+1:]
	}
	m.body = append([]token(nil), rest...)
	if old, ok := p.macros[name]; ok && !old.same(m) {
		p.diag.errorf(line, name, "Macro redefined")
		return
	}
	p.macros[name] = m
}

func (p *preprocessor) extension(toks []token, line int) {
	if len(toks) != 3 || toks[0].kind != tIdent || !toks[1].is(":") || toks[2].kind != tIdent {
		p.diag.errorf(line, "#extension", "invalid extension directive")
		return
	}
	name, behavior := toks[0].text, toks[2].text
	switch behavior {
	case "require", "enable", "warn", "disable":
	default:
		p.diag.errorf(line, behavior, "invalid extension behavior")
		return
	}
	if p.es && p.version >= 300 && p.sawTokens {
		p.diag.errorf(line, "#extension", "extension directive must occur before any non-preprocessor tokens in ESSL3")
		return
	}
	if name == "all" {
		if behavior == "require" || behavior == "enable" {
			p.diag.errorf(line, name, "extension 'all' cannot have 'require' or 'enable' behavior")
		}
		return
	}
	if !extensions[name] {
		if behavior == "require" {
			p.diag.errorf(line, name, "extension is not supported")
			return
		}
		p.diag.warnf(line, name, "extension is not supported")
		return
	}
	p.ext[name] = behavior
}

// condition evaluates the controlling expression of #if, #ifdef or #ifndef.
func (p *preprocessor) condition(kind string, toks []token, line int) bool {
	if kind == "ifdef" || kind == "ifndef" {
		if len(toks) == 0 || toks[0].kind != tIdent {
			p.diag.errorf(line, "#"+kind, "invalid macro name")
			return false
		}
		_, defined := p.macros[toks[0].text]
		if toks[0].text == "__LINE__" || toks[0].text == "__FILE__" || toks[0].text == "__VERSION__" {
			defined = true
		}
		return defined == (kind == "ifdef")
	}
	if len(toks) == 0 {
		p.diag.errorf(line, "#if", "no expression in #if")
		return false
	}

	var resolved []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tIdent || t.text != "defined" {
			resolved = append(resolved, t)
			continue
		}
		j := i + 1
		paren := j < len(toks) && toks[j].is("(")
		if paren {
			j++
		}
		if j >= len(toks) || toks[j].kind != tIdent {
			p.diag.errorf(line, "defined", "invalid macro name")
			return false
		}
		_, ok := p.macros[toks[j].text]
		if toks[j].text == "__LINE__" || toks[j].text == "__FILE__" || toks[j].text == "__VERSION__" {
			ok = true
		}
		if paren {
			j++
			if j >= len(toks) || !toks[j].is(")") {
				p.diag.errorf(line, "defined", "missing ')'")
				return false
			}
		}
		v := "0"
		if ok {
			v = "1"
		}
		resolved = append(resolved, token{kind: tokInt, text: v, line: line})
		i = j
	}

	e := &condEval{toks: p.expand(resolved, nil), diag: p.diag, line: line}
	v, ok := e.eval()
	return ok && v != 0
}

// expand performs macro replacement on toks. hide holds the macros being
// expanded, which are not replaced again.
func (p *preprocessor) expand(toks []token, hide map[string]bool) []token {
	var out []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tIdent || hide[t.text] {
			out = append(out, t)
			continue
		}
		switch t.text {
		case "__LINE__":
			out = append(out, token{kind: tokInt, text: strconv.Itoa(t.line), line: t.line, space: t.space})
			continue
		case "__FILE__":
			out = append(out, token{kind: tokInt, text: "0", line: t.line, space: t.space})
			continue
		case "__VERSION__":
			out = append(out, token{kind: tokInt, text: strconv.Itoa(p.version), line: t.line, space: t.space})
			continue
		}
		m, ok := p.macros[t.text]
		if !ok {
			out = append(out, t)
			continue
		}
		inner := with(hide, m.name)
		if !m.fn {
			out = append(out, p.expand(relocate(m.body, t.line), inner)...)
			continue
		}

		j := i + 1
		if j >= len(toks) || !toks[j].is("(") {
			out = append(out, t)
			continue
		}
		args, end, ok := collectArgs(toks, j)
		if !ok {
			p.diag.errorf(t.line, t.text, "unexpected end of input while collecting macro arguments")
			return out
		}
		if len(m.params) == 0 && len(args) == 1 && len(args[0]) == 0 {
			args = nil
		}
		if len(args) != len(m.params) {
			if len(args) < len(m.params) {
				p.diag.errorf(t.line, t.text, "macro has too few arguments")
			} else {
				p.diag.errorf(t.line, t.text, "macro has too many arguments")
			}
			i = end
			continue
		}
		expanded := make([][]token, len(args))
		for k, a := range args {
			expanded[k] = p.expand(a, hide)
		}
		body := p.substitute(m, args, expanded, t.line)
		out = append(out, p.expand(body, inner)...)
		i = end
	}
	return out
}

// substitute replaces parameters in a function-like macro body and applies
// token pasting.
func (p *preprocessor) substitute(m *macro, raw, expanded [][]token, line int) []token {
	param := func(name string) int {
		for i, n := range m.params {
			if n == name {
				return i
			}
		}
		return -1
	}
	var out []token
	body := relocate(m.body, line)
	for i := 0; i < len(body); i++ {
		t := body[i]
		if t.is("##") && len(out) > 0 && i+1 < len(body) {
			next := []token{body[i+1]}
			if k := param(body[i+1].text); k >= 0 && body[i+1].kind == tIdent {
				next = relocate(raw[k], line)
			}
			left := out[len(out)-1]
			out = out[:len(out)-1]
			if len(next) == 0 {
				out = append(out, left)
			} else {
				glued := lexLine(left.text+next[0].text, line, p.diag)
				out = append(out, glued...)
				out = append(out, next[1:]...)
			}
			i++
			continue
		}
		if t.kind == tIdent {
			if k := param(t.text); k >= 0 {
				if i+1 < len(body) && body[i+1].is("##") {
					out = append(out, relocate(raw[k], line)...)
				} else {
					out = append(out, relocate(expanded[k], line)...)
				}
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// collectArgs reads a parenthesized argument list starting at the '(' at
// index open. It returns the arguments and the index of the closing ')'.
func collectArgs(toks []token, open int) ([][]token, int, bool) {
	depth := 0
	var args [][]token
	var cur []token
	for i := open; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.is("("):
			depth++
			if depth == 1 {
				continue
			}
		case t.is(")"):
			depth--
			if depth == 0 {
				return append(args, cur), i, true
			}
		case t.is(",") && depth == 1:
			args = append(args, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return nil, 0, false
}

func relocate(toks []token, line int) []token {
	out := make([]token, len(toks))
	for i, t := range toks {
		t.line = line
		out[i] = t
	}
	return out
}

func with(hide map[string]bool, name string) map[string]bool {
	m := make(map[string]bool, len(hide)+1)
	for k := range hide {
		m[k] = true
	}
	m[name] = true
	return m
}

// condEval evaluates #if expressions over 64-bit integers.
type condEval struct {
	toks []token
	pos  int
	diag *diagnostics
	line int
	err  bool
}

var condPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5, "==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7, "<<": 8, ">>": 8, "+": 9, "-": 9, "*": 10, "/": 10, "%": 10,
}

func (e *condEval) eval() (int64, bool) {
	v := e.binary(1)
	if !e.err && e.pos < len(e.toks) {
		e.fail(e.toks[e.pos].text, "unexpected token after conditional expression")
	}
	return v, !e.err
}

func (e *condEval) fail(tok, msg string) {
	if !e.err {
		e.diag.errorf(e.line, tok, "%s", msg)
	}
	e.err = true
}

func (e *condEval) peek() token {
	if e.pos < len(e.toks) {
		return e.toks[e.pos]
	}
	return token{kind: tEOF}
}

func (e *condEval) binary(minPrec int) int64 {
	x := e.unary()
	for !e.err {
		t := e.peek()
		prec, ok := condPrec[t.text]
		if t.kind != tPunct || !ok || prec < minPrec {
			break
		}
		e.pos++
		y := e.binary(prec + 1)
		x = e.apply(t.text, x, y)
	}
	if minPrec == 1 && e.peek().is("?") {
		e.pos++
		a := e.binary(1)
		if !e.peek().is(":") {
			e.fail(e.peek().text, "missing ':' in conditional expression")
			return 0
		}
		e.pos++
		b := e.binary(1)
		if x != 0 {
			return a
		}
		return b
	}
	return x
}

func (e *condEval) apply(op string, x, y int64) int64 {
	b := func(v bool) int64 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case "||":
		return b(x != 0 || y != 0)
	case "&&":
		return b(x != 0 && y != 0)
	case "|":
		return x | y
	case "^":
		return x ^ y
	case "&":
		return x & y
	case "==":
		return b(x == y)
	case "!=":
		return b(x != y)
	case "<":
		return b(x < y)
	case ">":
		return b(x > y)
	case "<=":
		return b(x <= y)
	case ">=":
		return b(x >= y)
	case "<<":
		return x << uint64(y&63)
	case ">>":
		return x >> uint64(y&63)
	case "+":
		return x + y
	case "-":
		return x - y
	case "*":
		return x * y
	case "/", "%":
		if y == 0 {
			e.fail(op, "division by zero in preprocessor expression")
			return 0
		}
		if op == "/" {
			return x / y
		}
		return x % y
	}
	return 0
}

func (e *condEval) unary() int64 {
	t := e.peek()
	switch {
	case t.kind == tEOF:
		e.fail("", "unexpected end of conditional expression")
		return 0
	case t.is("("):
		e.pos++
		v := e.binary(1)
		if !e.peek().is(")") {
			e.fail(e.peek().text, "missing ')'")
			return 0
		}
		e.pos++
		return v
	case t.is("-"):
		e.pos++
		return -e.unary()
	case t.is("+"):
		e.pos++
		return e.unary()
	case t.is("!"):
		e.pos++
		if e.unary() == 0 {
			return 1
		}
		return 0
	case t.is("~"):
		e.pos++
		return ^e.unary()
	case t.kind == tokInt:
		e.pos++
		v, err := strconv.ParseInt(strings.TrimRight(t.text, "uU"), 0, 64)
		if err != nil {
			e.fail(t.text, "invalid integer literal")
		}
		return v
	case t.kind == tIdent:
		e.fail(t.text, "undefined identifier in preprocessor expression")
		return 0
	}
	e.fail(t.text, "invalid token in preprocessor expression")
	return 0
}
