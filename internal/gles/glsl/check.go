package glsl

import (
	"sort"
	"strings"
)

type ctrl int

const (
	ctrlNext ctrl = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

type stmtFn func() ctrl

// Storage classes of variables.
const (
	storeGlobal  = "global"
	storeLocal   = "local"
	storeParam   = "param"
	storeConst   = "const"
	storeUniform = "uniform"
	storeIn      = "in"
	storeOut     = "out"
	storeBlock   = "block"
)

type variable struct {
	name    string
	t       *Type
	data    []float64
	konst   []float64
	storage string
	builtin bool
	// readonly names what the variable is when it cannot be written.
	readonly string
	flat     bool
	location int
	line     int
	used     bool
}

type scope struct {
	parent  *scope
	vars    map[string]*variable
	structs map[string]*Type
	prec    map[Basic]string
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: map[string]*variable{}, structs: map[string]*Type{}, prec: map[Basic]string{}}
}

type funcParam struct {
	t     *Type
	dir   string
	konst bool
	data  []float64
}

type function struct {
	name    string
	ret     *Type
	params  []*funcParam
	defined bool
	body    stmtFn
	retVal  []float64
	line    int
	refs    map[*variable]bool
	calls   map[*function]bool
}

func (f *function) signature() string {
	ts := make([]*Type, len(f.params))
	for i, p := range f.params {
		ts[i] = p.t
	}
	return f.name + "(" + typeList(ts) + ")"
}

// linkEnv is shared by the stages of a program being linked.
type linkEnv struct {
	uniforms map[string]*variable
	problems []string
}

// module is the executable form of one checked stage.
type module struct {
	stage    Stage
	main     *function
	inits    []stmtFn
	resets   []*variable
	uniforms []*variable
	inputs   []*variable
	outputs  []*variable
	builtins map[string]*variable
	fragData bool
}

type checker struct {
	stage   Stage
	version int
	es      bool
	es3     bool
	ext     map[string]string
	diag    *diagnostics
	env     *linkEnv
	rt      *machine

	scope    *scope
	global   *scope
	funcs    map[string][]*function
	mod      *module
	fn       *function
	init     *function
	loops    int
	switches int
	lastLine int
}

func newChecker(stage Stage, pp *preprocessed, diag *diagnostics, env *linkEnv, rt *machine) *checker {
	c := &checker{
		stage:    stage,
		version:  pp.version,
		es:       pp.es,
		es3:      pp.es && pp.version >= 300,
		ext:      pp.extensions,
		diag:     diag,
		env:      env,
		rt:       rt,
		funcs:    map[string][]*function{},
		mod:      &module{stage: stage, builtins: map[string]*variable{}},
		init:     &function{name: "", refs: map[*variable]bool{}, calls: map[*function]bool{}},
		lastLine: pp.lines,
	}
	c.global = newScope(nil)
	c.scope = c.global
	c.declareBuiltins()
	return c
}

func (c *checker) desktop() bool { return !c.es }

func (c *checker) enabled(ext string) bool {
	b := c.ext[ext]
	return b == "enable" || b == "require" || b == "warn"
}

func (c *checker) push() { c.scope = newScope(c.scope) }
func (c *checker) pop()  { c.scope = c.scope.parent }

func (c *checker) lookup(name string) *variable {
	for s := c.scope; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v
		}
	}
	return nil
}

func (c *checker) lookupStruct(name string) *Type {
	for s := c.scope; s != nil; s = s.parent {
		if t, ok := s.structs[name]; ok {
			return t
		}
	}
	return nil
}

func (c *checker) defaultPrecision(b Basic) string {
	for s := c.scope; s != nil; s = s.parent {
		if p, ok := s.prec[b]; ok {
			return p
		}
	}
	return ""
}

// ref records a static use of v by the code being checked.
func (c *checker) ref(v *variable) {
	f := c.fn
	if f == nil {
		f = c.init
	}
	f.refs[v] = true
}

// declare adds a variable to the current scope.
func (c *checker) declare(name string, t *Type, storage string, line int) *variable {
	if strings.HasPrefix(name, "gl_") {
		c.diag.errorf(line, name, "reserved built-in name")
		return nil
	}
	if strings.Contains(name, "__") && c.es {
		c.diag.errorf(line, name, "identifiers containing two consecutive underscores (__) are reserved as possible future keywords")
		return nil
	}
	if _, dup := c.scope.vars[name]; dup {
		c.diag.errorf(line, name, "redefinition")
		return nil
	}
	if _, dup := c.scope.structs[name]; dup {
		c.diag.errorf(line, name, "redefinition")
		return nil
	}
	if c.scope == c.global {
		if _, fn := c.funcs[name]; fn {
			c.diag.errorf(line, name, "redefinition")
			return nil
		}
	}
	v := &variable{name: name, t: t, storage: storage, line: line, location: -1}
	v.data = make([]float64, t.Slots())
	c.scope.vars[name] = v
	return v
}

// check runs semantic analysis over u and generates code for it.
func (c *checker) check(u *Unit) *module {
	for _, d := range u.Decls {
		c.external(d)
	}

	mains := c.funcs["main"]
	var main *function
	for _, f := range mains {
		if f.defined {
			main = f
		}
	}
	if main == nil {
		c.diag.errorf(c.lastLine, "", "Missing main()")
		return nil
	}
	c.mod.main = main

	c.checkRecursion()
	c.markUsed(main)
	c.checkFragmentOutputs()
	return c.mod
}

// markUsed flags the variables statically used by code reachable from
// main or global initializers.
func (c *checker) markUsed(main *function) {
	seen := map[*function]bool{}
	var visit func(f *function)
	visit = func(f *function) {
		if seen[f] {
			return
		}
		seen[f] = true
		for v := range f.refs {
			v.used = true
		}
		for g := range f.calls {
			if !g.defined {
				c.diag.errorf(g.line, g.name, "no definition found for function %s", g.signature())
				continue
			}
			visit(g)
		}
	}
	visit(c.init)
	visit(main)
}

func (c *checker) checkRecursion() {
	const (
		white = iota
		grey
		black
	)
	state := map[*function]int{}
	var visit func(f *function) bool
	visit = func(f *function) bool {
		switch state[f] {
		case grey:
			return true
		case black:
			return false
		}
		state[f] = grey
		callees := make([]*function, 0, len(f.calls))
		for g := range f.calls {
			callees = append(callees, g)
		}
		sort.Slice(callees, func(i, j int) bool { return callees[i].line < callees[j].line })
		for _, g := range callees {
			if visit(g) {
				if state[f] != black {
					c.diag.errorf(f.line, f.name, "Recursive function call in the following call chain: %s", f.signature())
				}
				state[f] = black
				return false
			}
		}
		state[f] = black
		return false
	}
	var all []*function
	for _, fs := range c.funcs {
		all = append(all, fs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].line < all[j].line })
	for _, f := range all {
		visit(f)
	}
}

func (c *checker) checkFragmentOutputs() {
	if c.stage != Fragment {
		return
	}
	color, data := c.mod.builtins["gl_FragColor"], c.mod.builtins["gl_FragData"]
	if color != nil && data != nil && color.used && data.used {
		c.diag.errorf(c.lastLine, "", "cannot use both gl_FragData and gl_FragColor")
	}
	c.mod.fragData = data != nil && data.used
	if c.es3 {
		var outs []*variable
		for _, v := range c.mod.outputs {
			outs = append(outs, v)
		}
		if len(outs) > 1 {
			for _, v := range outs {
				if v.location < 0 {
					c.diag.errorf(v.line, v.name, "must explicitly specify all locations when using multiple fragment outputs")
					return
				}
			}
		}
	}
}

// Types.

// resolveType turns a written type into a Type, declaring inline structs.
func (c *checker) resolveType(ts *TypeSpec) *Type {
	var t *Type
	switch {
	case ts.Struct != nil:
		t = c.structType(ts.Struct)
	case builtinTypes[ts.Name] != nil:
		t = builtinTypes[ts.Name]
		if c.es && !c.es3 && es3Types[ts.Name] {
			c.diag.errorf(ts.Line, ts.Name, "Illegal use of reserved word")
			return nil
		}
	default:
		t = c.lookupStruct(ts.Name)
		if t == nil {
			c.diag.errorf(ts.Line, ts.Name, "undeclared identifier")
			return nil
		}
	}
	if t == nil {
		return nil
	}
	if ts.Precision != "" && !precisionApplies(t) {
		c.diag.errorf(ts.Line, ts.Precision, "precision qualifier is only valid for float, int and sampler types")
		return nil
	}
	if ts.Array != nil {
		if c.es && !c.es3 {
			c.diag.errorf(ts.Line, "[", "array type syntax requires GLSL ES 3.00")
			return nil
		}
		n, ok := c.arraySize(ts.Array, ts.Line)
		if !ok {
			return nil
		}
		if n == 0 {
			return arrayOf(t, 0)
		}
		return arrayOf(t, n)
	}
	return t
}

func precisionApplies(t *Type) bool {
	for t.Kind == KindArray {
		t = t.Elem
	}
	return t.Kind == KindSampler || ((t.Kind == KindScalar || t.Kind == KindVector || t.Kind == KindMatrix) && t.Basic != Bool)
}

func (c *checker) structType(s *StructSpec) *Type {
	st := &Struct{Name: s.Name}
	if st.Name == "" {
		st.Name = "<anonymous>"
	}
	seen := map[string]bool{}
	off := 0
	for _, m := range s.Members {
		if !m.Qual.empty() && (m.Qual.Storage != "" || m.Qual.Interp != "" || m.Qual.Invariant || len(m.Qual.Layout) > 0) {
			c.diag.errorf(m.Line, m.Qual.Storage, "qualifiers are not allowed on structure members")
			return nil
		}
		if m.Type.Struct != nil {
			c.diag.errorf(m.Line, "struct", "embedded struct definitions are not allowed")
			return nil
		}
		base := c.resolveType(m.Type)
		if base == nil {
			return nil
		}
		if base.Kind == KindVoid {
			c.diag.errorf(m.Line, m.Vars[0].Name, "illegal use of type 'void'")
			return nil
		}
		for _, d := range m.Vars {
			t := base
			if d.Array != nil {
				n, ok := c.arraySize(d.Array, d.Line)
				if !ok {
					return nil
				}
				if n == 0 {
					c.diag.errorf(d.Line, d.Name, "implicitly sized arrays are not allowed as structure members")
					return nil
				}
				t = arrayOf(base, n)
			}
			if t.Kind == KindArray && t.Len == 0 {
				c.diag.errorf(d.Line, d.Name, "implicitly sized arrays are not allowed as structure members")
				return nil
			}
			if seen[d.Name] {
				c.diag.errorf(d.Line, d.Name, "duplicate field name in structure")
				return nil
			}
			seen[d.Name] = true
			st.Fields = append(st.Fields, Field{Name: d.Name, Type: t, Offset: off})
			off += t.Slots()
		}
	}
	t := &Type{Kind: KindStruct, Struct: st}
	if s.Name != "" {
		if strings.HasPrefix(s.Name, "gl_") {
			c.diag.errorf(s.Line, s.Name, "reserved built-in name")
			return nil
		}
		if _, dup := c.scope.structs[s.Name]; dup {
			c.diag.errorf(s.Line, s.Name, "redefinition of struct")
			return nil
		}
		if _, dup := c.scope.vars[s.Name]; dup {
			c.diag.errorf(s.Line, s.Name, "redefinition")
			return nil
		}
		c.scope.structs[s.Name] = t
	}
	return t
}

// arraySize evaluates an array dimension. Zero means unsized.
func (c *checker) arraySize(a *ArraySpec, line int) (int, bool) {
	if a.Size == nil {
		return 0, true
	}
	x := c.expr(a.Size)
	if x == nil {
		return 0, false
	}
	if x.konst == nil || !x.t.isScalar() || (x.t.Basic != Int && x.t.Basic != Uint) {
		c.diag.errorf(line, "", "array size must be a constant integer expression")
		return 0, false
	}
	n := int(x.konst[0])
	if n <= 0 {
		c.diag.errorf(line, "", "array size must be greater than zero")
		return 0, false
	}
	if n > 1<<16 {
		c.diag.errorf(line, "", "array size too large")
		return 0, false
	}
	return n, true
}

// checkPrecision reports float and sampler declarations with no precision
// in stages that have no default.
func (c *checker) checkPrecision(t *Type, ts *TypeSpec, line int) bool {
	if !c.es || ts.Precision != "" {
		return true
	}
	for t.Kind == KindArray {
		t = t.Elem
	}
	var b Basic
	switch {
	case t.Kind == KindSampler:
		b = t.Basic
	case (t.isBasic()) && t.Basic != Bool:
		b = t.Basic
	default:
		return true
	}
	if c.defaultPrecision(b) != "" {
		return true
	}
	name := t.component().String()
	if t.Kind == KindSampler {
		name = t.String()
	}
	c.diag.errorf(line, "", "No precision specified for (%s)", name)
	return false
}

// External declarations.

func (c *checker) external(d Decl) {
	switch d := d.(type) {
	case *PrecisionDecl:
		c.precision(d)
	case *InvariantDecl:
		if c.scope != c.global {
			c.diag.errorf(d.Line, "invariant", "only allowed at global scope")
			return
		}
		for _, n := range d.Names {
			v := c.lookup(n)
			if v == nil {
				c.diag.errorf(d.Line, n, "undeclared identifier")
				continue
			}
			if v.storage != storeOut {
				c.diag.errorf(d.Line, n, "can only declare a varying or output invariant")
			}
		}
	case *BlockDecl:
		c.blockDecl(d)
	case *FuncDecl:
		c.funcDecl(d)
	case *VarDecl:
		c.globalVarDecl(d)
	}
}

func (c *checker) precision(d *PrecisionDecl) {
	t := c.resolveType(d.Type)
	if t == nil {
		return
	}
	switch {
	case t.Kind == KindScalar && (t.Basic == Float || t.Basic == Int):
		c.scope.prec[t.Basic] = d.Precision
	case t.Kind == KindSampler:
		c.scope.prec[t.Basic] = d.Precision
	default:
		c.diag.errorf(d.Line, t.String(), "illegal type argument for default precision qualifier")
	}
}

func (c *checker) blockDecl(d *BlockDecl) {
	if !c.es3 && c.es {
		c.diag.errorf(d.Line, d.Name, "interface blocks supported in GLSL ES 3.00 and above only")
		return
	}
	if d.Qual.Storage != "uniform" {
		c.diag.errorf(d.Line, d.Name, "only uniform interface blocks are supported")
		return
	}
	for _, l := range d.Qual.Layout {
		switch l.Name {
		case "std140", "shared", "packed", "row_major", "column_major":
		default:
			c.diag.errorf(d.Line, l.Name, "invalid layout qualifier")
			return
		}
	}
	st := &StructSpec{Name: d.Name, Members: d.Members, Line: d.Line}
	t := c.structType(st)
	if t == nil {
		return
	}
	delete(c.scope.structs, d.Name)
	if t.containsSampler() {
		c.diag.errorf(d.Line, d.Name, "samplers are not allowed in interface blocks")
		return
	}
	if d.Instance != "" {
		bt := t
		if d.Array != nil {
			n, ok := c.arraySize(d.Array, d.Line)
			if !ok || n == 0 {
				return
			}
			bt = arrayOf(t, n)
		}
		if v := c.declare(d.Instance, bt, storeBlock, d.Line); v != nil {
			v.readonly = "a uniform"
		}
		return
	}
	for _, f := range t.Struct.Fields {
		if v := c.declare(f.Name, f.Type, storeBlock, d.Line); v != nil {
			v.readonly = "a uniform"
		}
	}
}

func (c *checker) globalVarDecl(d *VarDecl) {
	q := d.Qual
	if d.Type == nil {
		if len(q.Layout) > 0 && q.Storage == "uniform" {
			return
		}
		c.diag.errorf(d.Line, q.Storage, "declaration does not declare anything")
		return
	}
	base := c.resolveType(d.Type)
	if base == nil {
		return
	}
	if len(d.Vars) == 0 {
		if d.Type.Struct == nil {
			c.diag.errorf(d.Line, d.Type.Name, "declaration does not declare anything")
		}
		return
	}

	storage, ok := c.globalStorage(q, d.Line)
	if !ok {
		return
	}
	for _, dc := range d.Vars {
		c.globalDeclarator(q, storage, base, d.Type, dc)
	}
}

// globalStorage maps a global qualifier to a storage class, enforcing the
// per-version and per-stage rules.
func (c *checker) globalStorage(q Qualifier, line int) (string, bool) {
	switch q.Storage {
	case "":
		if q.Interp != "" || q.Centroid {
			c.diag.errorf(line, q.Interp, "interpolation qualifiers require a storage qualifier")
			return "", false
		}
		return storeGlobal, true
	case "const":
		return storeConst, true
	case "uniform":
		return storeUniform, true
	case "attribute":
		if c.stage != Vertex {
			c.diag.errorf(line, "attribute", "supported in vertex shaders only")
			return "", false
		}
		if c.desktop() && c.version >= 140 {
			c.diag.errorf(line, "attribute", "deprecated storage qualifier")
			return "", false
		}
		return storeIn, true
	case "varying":
		if c.desktop() && c.version >= 140 {
			c.diag.errorf(line, "varying", "deprecated storage qualifier")
			return "", false
		}
		if c.stage == Vertex {
			return storeOut, true
		}
		return storeIn, true
	case "in", "out":
		if c.es && !c.es3 || c.desktop() && c.version < 130 {
			c.diag.errorf(line, q.Storage, "storage qualifier supported in GLSL ES 3.00 and above only")
			return "", false
		}
		if q.Storage == "in" {
			return storeIn, true
		}
		return storeOut, true
	case "inout":
		c.diag.errorf(line, "inout", "only allowed on function parameters")
		return "", false
	}
	c.diag.errorf(line, q.Storage, "storage qualifier not supported")
	return "", false
}

func (c *checker) globalDeclarator(q Qualifier, storage string, base *Type, ts *TypeSpec, dc *Declarator) {
	t := base
	if dc.Array != nil {
		if base.Kind == KindArray {
			c.diag.errorf(dc.Line, dc.Name, "multi-dimensional arrays are not supported")
			return
		}
		n, ok := c.arraySize(dc.Array, dc.Line)
		if !ok {
			return
		}
		t = arrayOf(base, n)
	}
	if t.Kind == KindVoid {
		c.diag.errorf(dc.Line, dc.Name, "illegal use of type 'void'")
		return
	}

	var init *operand
	if dc.Init != nil {
		if storage == storeUniform || storage == storeIn || storage == storeOut {
			if c.es || storage != storeUniform {
				c.diag.errorf(dc.Line, "=", "cannot initialize this type of qualifier")
				return
			}
		}
		init = c.expr(dc.Init)
		if init == nil {
			return
		}
		if t.Kind == KindArray && t.Len == 0 && init.t.Kind == KindArray {
			t = arrayOf(t.Elem, init.t.Len)
		}
		from := init.t
		if init = c.coerce(init, t); init == nil {
			c.diag.errorf(dc.Line, "=", "cannot convert from '%s' to '%s'", from, t)
			return
		}
	}
	if t.Kind == KindArray && t.Len == 0 {
		c.diag.errorf(dc.Line, dc.Name, "implicitly sized arrays need to be initialized")
		return
	}
	if !c.interfaceType(storage, q, t, dc) {
		return
	}
	if !c.checkPrecision(t, ts, dc.Line) && storage != storeConst {
		return
	}
	if t.containsSampler() && storage != storeUniform {
		c.diag.errorf(dc.Line, dc.Name, "samplers must be uniform")
		return
	}

	switch storage {
	case storeConst:
		if init == nil {
			c.diag.errorf(dc.Line, dc.Name, "variables with qualifier 'const' must be initialized")
			return
		}
		if init.konst == nil {
			c.diag.errorf(dc.Line, "=", "assigning non-constant to 'const %s'", t)
			return
		}
	case storeGlobal:
		if init != nil && init.konst == nil && c.es && !c.enabled("GL_EXT_shader_non_constant_global_initializers") {
			c.diag.warnf(dc.Line, "=", "global variable initializers should be constant expressions")
		}
	}

	if storage == storeUniform && c.env != nil {
		if prev, ok := c.env.uniforms[dc.Name]; ok {
			if !prev.t.Equal(t) {
				c.env.problems = append(c.env.problems, "ERROR: Types of uniform '"+dc.Name+"' differ between vertex and fragment shaders")
			}
		}
	}

	v := c.declare(dc.Name, t, storage, dc.Line)
	if v == nil {
		return
	}
	v.flat = q.Interp == "flat"
	for _, l := range q.Layout {
		if l.Name == "location" && l.Set {
			v.location = l.Value
		}
	}

	switch storage {
	case storeConst:
		v.konst = append([]float64(nil), init.konst...)
		copy(v.data, v.konst)
		v.readonly = "a const"
	case storeUniform:
		v.readonly = "a uniform"
		if c.env != nil {
			if prev, ok := c.env.uniforms[dc.Name]; ok && prev.t.Equal(t) {
				v.data = prev.data
			} else if !ok {
				c.env.uniforms[dc.Name] = v
			}
		}
		if init != nil {
			copy(v.data, init.eval())
		}
		c.mod.uniforms = append(c.mod.uniforms, v)
	case storeIn:
		if c.stage == Vertex {
			v.readonly = "an attribute"
		} else {
			v.readonly = "a varying"
		}
		c.mod.inputs = append(c.mod.inputs, v)
	case storeOut:
		c.mod.outputs = append(c.mod.outputs, v)
		c.mod.resets = append(c.mod.resets, v)
	default:
		c.mod.resets = append(c.mod.resets, v)
		if init != nil {
			dst, src := v.data, init.eval
			c.mod.inits = append(c.mod.inits, func() ctrl {
				copy(dst, src())
				return ctrlNext
			})
		}
	}
}

// interfaceType enforces the types allowed for stage inputs and outputs.
func (c *checker) interfaceType(storage string, q Qualifier, t *Type, dc *Declarator) bool {
	if storage != storeIn && storage != storeOut {
		if q.Interp != "" || q.Centroid {
			c.diag.errorf(dc.Line, q.Interp, "interpolation qualifiers are only valid on varyings")
			return false
		}
		for _, l := range q.Layout {
			if l.Name == "location" {
				c.diag.errorf(dc.Line, "location", "location is only valid on stage inputs and outputs")
				return false
			}
		}
		return true
	}
	for _, l := range q.Layout {
		if l.Name != "location" {
			c.diag.errorf(dc.Line, l.Name, "invalid layout qualifier")
			return false
		}
		if c.stage == Vertex && storage == storeOut || c.stage == Fragment && storage == storeIn {
			c.diag.errorf(dc.Line, "location", "location is only valid on vertex inputs and fragment outputs")
			return false
		}
	}
	elem := t
	if t.Kind == KindArray {
		elem = t.Elem
	}
	word := q.Storage
	switch {
	case elem.Kind == KindStruct:
		c.diag.errorf(dc.Line, word, "cannot be used with a structure")
		return false
	case elem.Kind == KindSampler:
		c.diag.errorf(dc.Line, word, "cannot be used with a sampler")
		return false
	case elem.Basic == Bool:
		c.diag.errorf(dc.Line, word, "cannot be bool")
		return false
	}
	vertexIn := c.stage == Vertex && storage == storeIn
	fragOut := c.stage == Fragment && storage == storeOut
	if vertexIn && t.Kind == KindArray {
		c.diag.errorf(dc.Line, word, "cannot declare arrays of this qualifier")
		return false
	}
	if (elem.Basic == Int || elem.Basic == Uint) && !fragOut && !vertexIn && q.Interp != "flat" {
		if storage == storeIn || c.es3 {
			c.diag.errorf(dc.Line, dc.Name, "must use 'flat' interpolation here")
			return false
		}
	}
	if c.es && !c.es3 && (elem.Basic == Int || elem.Basic == Uint) {
		c.diag.errorf(dc.Line, word, "cannot be used with integer types")
		return false
	}
	if fragOut && elem.Kind == KindMatrix {
		c.diag.errorf(dc.Line, word, "cannot be used with a matrix")
		return false
	}
	return true
}

// Functions.

func (c *checker) funcDecl(d *FuncDecl) {
	if c.scope != c.global {
		c.diag.errorf(d.Line, d.Name, "function definitions are only allowed at global scope")
		return
	}
	ret := c.resolveType(d.Ret)
	if ret == nil {
		return
	}
	if ret.Kind == KindArray && c.es && !c.es3 {
		c.diag.errorf(d.Line, d.Name, "function cannot return an array")
		return
	}
	if ret.Kind != KindVoid && !c.checkPrecision(ret, d.Ret, d.Line) {
		return
	}
	if ret.containsSampler() {
		c.diag.errorf(d.Line, d.Name, "function return type cannot be a sampler")
		return
	}
	if strings.HasPrefix(d.Name, "gl_") {
		c.diag.errorf(d.Line, d.Name, "reserved built-in name")
		return
	}
	if strings.Contains(d.Name, "__") && c.es {
		c.diag.errorf(d.Line, d.Name, "identifiers containing two consecutive underscores (__) are reserved as possible future keywords")
		return
	}
	if c.es && isBuiltinFunction(d.Name) {
		c.diag.errorf(d.Line, d.Name, "Name of a built-in function cannot be redeclared as function")
		return
	}
	if _, clash := c.global.vars[d.Name]; clash {
		c.diag.errorf(d.Line, d.Name, "redefinition")
		return
	}
	if _, clash := c.global.structs[d.Name]; clash {
		c.diag.errorf(d.Line, d.Name, "redefinition")
		return
	}

	params := make([]*funcParam, len(d.Params))
	for i, p := range d.Params {
		t := c.resolveType(p.Type)
		if t == nil {
			return
		}
		if p.Array != nil {
			n, ok := c.arraySize(p.Array, p.Line)
			if !ok {
				return
			}
			if n == 0 {
				c.diag.errorf(p.Line, p.Name, "function parameters must have an explicit array size")
				return
			}
			t = arrayOf(t, n)
		}
		if t.Kind == KindArray && t.Len == 0 {
			c.diag.errorf(p.Line, p.Name, "function parameters must have an explicit array size")
			return
		}
		if t.Kind == KindVoid {
			c.diag.errorf(p.Line, "void", "illegal use of type 'void'")
			return
		}
		if !c.checkPrecision(t, p.Type, p.Line) {
			return
		}
		fp := &funcParam{t: t, dir: "in"}
		switch p.Qual.Storage {
		case "", "in":
		case "out", "inout":
			fp.dir = p.Qual.Storage
			if t.containsSampler() {
				c.diag.errorf(p.Line, p.Qual.Storage, "samplers cannot be output parameters")
				return
			}
		case "const":
			fp.konst = true
		default:
			c.diag.errorf(p.Line, p.Qual.Storage, "qualifier not allowed on function parameters")
			return
		}
		if p.Qual.Interp != "" || p.Qual.Invariant || p.Qual.Centroid || len(p.Qual.Layout) > 0 {
			c.diag.errorf(p.Line, p.Name, "qualifier not allowed on function parameters")
			return
		}
		params[i] = fp
	}

	if d.Name == "main" {
		if len(params) > 0 {
			c.diag.errorf(d.Line, "main", "function cannot take any parameter(s)")
			return
		}
		if ret.Kind != KindVoid {
			c.diag.errorf(d.Line, "main", "main function cannot return a value")
			return
		}
	}

	f := c.findOverload(d.Name, params)
	if f != nil {
		if !f.ret.Equal(ret) {
			c.diag.errorf(d.Line, d.Name, "overloaded functions must have the same return type")
			return
		}
		for i, p := range f.params {
			if p.dir != params[i].dir || p.konst != params[i].konst {
				c.diag.errorf(d.Line, d.Name, "function must have the same parameter qualifiers in all of its declarations")
				return
			}
		}
		if d.Body != nil && f.defined {
			c.diag.errorf(d.Line, d.Name, "function already has a body")
			return
		}
	} else {
		f = &function{
			name:   d.Name,
			ret:    ret,
			params: params,
			retVal: make([]float64, ret.Slots()),
			line:   d.Line,
			refs:   map[*variable]bool{},
			calls:  map[*function]bool{},
		}
		for _, p := range params {
			p.data = make([]float64, p.t.Slots())
		}
		c.funcs[d.Name] = append(c.funcs[d.Name], f)
	}
	if d.Body == nil {
		return
	}
	f.defined = true
	f.line = d.Line

	c.fn = f
	c.push()
	for i, p := range d.Params {
		if p.Name == "" {
			continue
		}
		v := c.declare(p.Name, f.params[i].t, storeParam, p.Line)
		if v == nil {
			continue
		}
		v.data = f.params[i].data
		if f.params[i].konst {
			v.readonly = "a const"
		}
	}
	body := c.block(d.Body)
	c.pop()
	c.fn = nil
	if body == nil {
		body = func() ctrl { return ctrlNext }
	}
	f.body = body
}

func (c *checker) findOverload(name string, params []*funcParam) *function {
	for _, f := range c.funcs[name] {
		if len(f.params) != len(params) {
			continue
		}
		same := true
		for i := range params {
			if !f.params[i].t.Equal(params[i].t) {
				same = false
				break
			}
		}
		if same {
			return f
		}
	}
	return nil
}

// Statements.

func seq(fns []stmtFn) stmtFn {
	var live []stmtFn
	for _, f := range fns {
		if f != nil {
			live = append(live, f)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	case 2:
		a, b := live[0], live[1]
		return func() ctrl {
			if r := a(); r != ctrlNext {
				return r
			}
			return b()
		}
	}
	return func() ctrl {
		for _, f := range live {
			if r := f(); r != ctrlNext {
				return r
			}
		}
		return ctrlNext
	}
}

func (c *checker) block(b *Block) stmtFn {
	if b.Scoped {
		c.push()
		defer c.pop()
	}
	fns := make([]stmtFn, 0, len(b.Stmts))
	for _, s := range b.Stmts {
		fns = append(fns, c.stmt(s))
	}
	return seq(fns)
}

func (c *checker) stmt(s Stmt) stmtFn {
	switch s := s.(type) {
	case *Block:
		return c.block(s)
	case *EmptyStmt:
		return nil
	case *ExprStmt:
		x := c.expr(s.X)
		if x == nil || x.konst != nil {
			return nil
		}
		f := x.eval
		return func() ctrl {
			f()
			return ctrlNext
		}
	case *DeclStmt:
		return c.localDecl(s.Decl)
	case *IfStmt:
		return c.ifStmt(s)
	case *ForStmt:
		return c.forStmt(s)
	case *WhileStmt:
		return c.whileStmt(s)
	case *DoStmt:
		return c.doStmt(s)
	case *SwitchStmt:
		return c.switchStmt(s)
	case *CaseStmt:
		c.diag.errorf(s.Line, "case", "case labels need to be inside switch statements")
		return nil
	case *BranchStmt:
		return c.branch(s)
	case *ReturnStmt:
		return c.returnStmt(s)
	}
	return nil
}

func (c *checker) localDecl(d Decl) stmtFn {
	switch d := d.(type) {
	case *PrecisionDecl:
		c.precision(d)
		return nil
	case *VarDecl:
		return c.localVarDecl(d)
	}
	c.diag.errorf(d.declPos(), "", "declaration not allowed here")
	return nil
}

func (c *checker) localVarDecl(d *VarDecl) stmtFn {
	q := d.Qual
	base := c.resolveType(d.Type)
	if base == nil {
		return nil
	}
	if q.Storage != "" && q.Storage != "const" {
		c.diag.errorf(d.Line, q.Storage, "only allowed at global scope")
		return nil
	}
	if q.Interp != "" || q.Invariant || q.Centroid || len(q.Layout) > 0 {
		c.diag.errorf(d.Line, "", "qualifier not allowed on local variables")
		return nil
	}
	var fns []stmtFn
	for _, dc := range d.Vars {
		fns = append(fns, c.localDeclarator(q.Storage == "const", base, d.Type, dc))
	}
	return seq(fns)
}

func (c *checker) localDeclarator(konst bool, base *Type, ts *TypeSpec, dc *Declarator) stmtFn {
	t := base
	if dc.Array != nil {
		if base.Kind == KindArray {
			c.diag.errorf(dc.Line, dc.Name, "multi-dimensional arrays are not supported")
			return nil
		}
		n, ok := c.arraySize(dc.Array, dc.Line)
		if !ok {
			return nil
		}
		t = arrayOf(base, n)
	}
	if t.Kind == KindVoid {
		c.diag.errorf(dc.Line, dc.Name, "illegal use of type 'void'")
		return nil
	}
	if t.containsSampler() {
		c.diag.errorf(dc.Line, dc.Name, "samplers must be uniform")
		return nil
	}
	var init *operand
	if dc.Init != nil {
		init = c.expr(dc.Init)
		if init == nil {
			return nil
		}
		if t.Kind == KindArray && t.Len == 0 && init.t.Kind == KindArray {
			t = arrayOf(t.Elem, init.t.Len)
		}
		from := init.t
		if init = c.coerce(init, t); init == nil {
			c.diag.errorf(dc.Line, "=", "cannot convert from '%s' to '%s'", from, t)
			return nil
		}
	}
	if t.Kind == KindArray && t.Len == 0 {
		c.diag.errorf(dc.Line, dc.Name, "implicitly sized arrays need to be initialized")
		return nil
	}
	if !c.checkPrecision(t, ts, dc.Line) {
		return nil
	}
	if konst {
		if init == nil {
			c.diag.errorf(dc.Line, dc.Name, "variables with qualifier 'const' must be initialized")
			return nil
		}
		if init.konst == nil {
			c.diag.errorf(dc.Line, "=", "assigning non-constant to 'const %s'", t)
			return nil
		}
	}
	v := c.declare(dc.Name, t, storeLocal, dc.Line)
	if v == nil {
		return nil
	}
	if konst {
		v.storage = storeConst
		v.konst = append([]float64(nil), init.konst...)
		copy(v.data, v.konst)
		v.readonly = "a const"
		return nil
	}
	dst := v.data
	if init == nil {
		return func() ctrl {
			clear(dst)
			return ctrlNext
		}
	}
	src := init.eval
	return func() ctrl {
		copy(dst, src())
		return ctrlNext
	}
}

// condition checks a boolean condition and returns its evaluator.
func (c *checker) condition(e Expr, what string) func() bool {
	x := c.expr(e)
	if x == nil {
		return nil
	}
	if !x.t.isBoolScalar() {
		c.diag.errorf(e.pos(), what, "boolean expression expected")
		return nil
	}
	f := x.eval
	return func() bool { return f()[0] != 0 }
}

// condInit declares the variable of a loop condition such as
// while (bool b = f()).
func (c *checker) condInit(ci *CondInit, what string) func() bool {
	t := c.resolveType(ci.Type)
	if t == nil {
		return nil
	}
	init := c.expr(ci.Init)
	if init == nil {
		return nil
	}
	if !t.isBoolScalar() || !init.t.isBoolScalar() {
		c.diag.errorf(ci.Line, what, "boolean expression expected")
		return nil
	}
	v := c.declare(ci.Name, t, storeLocal, ci.Line)
	if v == nil {
		return nil
	}
	dst, src := v.data, init.eval
	return func() bool {
		copy(dst, src())
		return dst[0] != 0
	}
}

func (c *checker) ifStmt(s *IfStmt) stmtFn {
	cond := c.condition(s.Cond, "if")
	then := c.scoped(s.Then)
	var els stmtFn
	if s.Else != nil {
		els = c.scoped(s.Else)
	}
	if cond == nil {
		return nil
	}
	if then == nil {
		then = func() ctrl { return ctrlNext }
	}
	if els == nil {
		return func() ctrl {
			if cond() {
				return then()
			}
			return ctrlNext
		}
	}
	return func() ctrl {
		if cond() {
			return then()
		}
		return els()
	}
}

// scoped checks a sub-statement in a scope of its own.
func (c *checker) scoped(s Stmt) stmtFn {
	c.push()
	defer c.pop()
	return c.stmt(s)
}

// body checks a loop body, which shares the scope of the loop header.
func (c *checker) body(s Stmt) stmtFn {
	c.loops++
	defer func() { c.loops-- }()
	if b, ok := s.(*Block); ok {
		return c.block(b)
	}
	return c.stmt(s)
}

func (c *checker) forStmt(s *ForStmt) stmtFn {
	c.push()
	defer c.pop()
	var init stmtFn
	if s.Init != nil {
		init = c.stmt(s.Init)
	}
	var cond func() bool
	switch {
	case s.CondDecl != nil:
		cond = c.condInit(s.CondDecl, "for")
	case s.Cond != nil:
		cond = c.condition(s.Cond, "for")
	}
	var post func() []float64
	if s.Post != nil {
		if x := c.expr(s.Post); x != nil {
			post = x.eval
		}
	}
	body := c.body(s.Body)
	return c.loop(init, cond, body, post, false)
}

func (c *checker) whileStmt(s *WhileStmt) stmtFn {
	c.push()
	defer c.pop()
	var cond func() bool
	if s.CondDecl != nil {
		cond = c.condInit(s.CondDecl, "while")
	} else {
		cond = c.condition(s.Cond, "while")
	}
	if cond == nil {
		c.body(s.Body)
		return nil
	}
	return c.loop(nil, cond, c.body(s.Body), nil, false)
}

func (c *checker) doStmt(s *DoStmt) stmtFn {
	c.push()
	body := c.body(s.Body)
	c.pop()
	cond := c.condition(s.Cond, "while")
	if cond == nil {
		return nil
	}
	return c.loop(nil, cond, body, nil, true)
}

func (c *checker) loop(init stmtFn, cond func() bool, body stmtFn, post func() []float64, bodyFirst bool) stmtFn {
	rt := c.rt
	return func() ctrl {
		if init != nil {
			if r := init(); r != ctrlNext {
				return r
			}
		}
		for first := true; ; first = false {
			rt.tick()
			if cond != nil && !(bodyFirst && first) && !cond() {
				return ctrlNext
			}
			if body != nil {
				switch body() {
				case ctrlBreak:
					return ctrlNext
				case ctrlReturn:
					return ctrlReturn
				}
			}
			if post != nil {
				post()
			}
		}
	}
}

func (c *checker) switchStmt(s *SwitchStmt) stmtFn {
	if c.es && !c.es3 {
		c.diag.errorf(s.Line, "switch", "Illegal use of reserved word")
		return nil
	}
	x := c.expr(s.X)
	if x == nil {
		return nil
	}
	if !x.t.isScalar() || (x.t.Basic != Int && x.t.Basic != Uint) {
		c.diag.errorf(s.Line, "switch", "init-expression in a switch statement must be a scalar integer")
		return nil
	}

	c.push()
	c.switches++
	defer func() {
		c.switches--
		c.pop()
	}()

	labels := map[float64]int{}
	def := -1
	var fns []stmtFn
	for i, st := range s.Body.Stmts {
		cs, ok := st.(*CaseStmt)
		if !ok {
			if i == 0 {
				c.diag.errorf(st.stmtPos(), "switch", "statement before the first label")
				return nil
			}
			fns = append(fns, c.stmt(st))
			continue
		}
		if cs.X == nil {
			if def >= 0 {
				c.diag.errorf(cs.Line, "default", "duplicate default label")
				return nil
			}
			def = len(fns)
			continue
		}
		l := c.expr(cs.X)
		if l == nil {
			return nil
		}
		if l.konst == nil || !l.t.Equal(x.t) {
			c.diag.errorf(cs.Line, "case", "case label must be a constant integer expression of the same type as the init-expression")
			return nil
		}
		if _, dup := labels[l.konst[0]]; dup {
			c.diag.errorf(cs.Line, "case", "duplicate case label")
			return nil
		}
		labels[l.konst[0]] = len(fns)
	}
	if len(s.Body.Stmts) > 0 {
		if _, ok := s.Body.Stmts[len(s.Body.Stmts)-1].(*CaseStmt); ok {
			c.diag.errorf(s.Body.End, "switch", "label must be followed by a statement")
			return nil
		}
	}

	sel := x.eval
	return func() ctrl {
		start, ok := labels[sel()[0]]
		if !ok {
			if def < 0 {
				return ctrlNext
			}
			start = def
		}
		for _, f := range fns[start:] {
			if f == nil {
				continue
			}
			switch r := f(); r {
			case ctrlNext:
			case ctrlBreak:
				return ctrlNext
			default:
				return r
			}
		}
		return ctrlNext
	}
}

func (c *checker) branch(s *BranchStmt) stmtFn {
	switch s.Tok {
	case "break":
		if c.loops == 0 && c.switches == 0 {
			c.diag.errorf(s.Line, "break", "break statement only allowed in loops and switch statements")
			return nil
		}
		return func() ctrl { return ctrlBreak }
	case "continue":
		if c.loops == 0 {
			c.diag.errorf(s.Line, "continue", "continue statement only allowed in loops")
			return nil
		}
		return func() ctrl { return ctrlContinue }
	}
	if c.stage != Fragment {
		c.diag.errorf(s.Line, "discard", "discard supported in fragment shaders only")
		return nil
	}
	return func() ctrl { panic(discarded{}) }
}

func (c *checker) returnStmt(s *ReturnStmt) stmtFn {
	f := c.fn
	if s.X == nil {
		if f.ret.Kind != KindVoid {
			c.diag.errorf(s.Line, "return", "non-void function must return a value")
			return nil
		}
		return func() ctrl { return ctrlReturn }
	}
	x := c.expr(s.X)
	if x == nil {
		return nil
	}
	if f.ret.Kind == KindVoid {
		c.diag.errorf(s.Line, "return", "void function cannot return a value")
		return nil
	}
	x = c.coerce(x, f.ret)
	if x == nil {
		c.diag.errorf(s.Line, "return", "function return is not matching type:")
		return nil
	}
	dst, src := f.retVal, x.eval
	return func() ctrl {
		copy(dst, src())
		return ctrlReturn
	}
}
