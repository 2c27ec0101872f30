package glsl

// Expr is an expression node.
type Expr interface{ pos() int }

type (
	Ident struct {
		Name string
		Line int
	}

	// Literal is a numeric or boolean constant. Text keeps the source
	// spelling for diagnostics.
	Literal struct {
		Type  *Type
		Value float64
		Text  string
		Line  int
	}

	Unary struct {
		Op      string
		X       Expr
		Postfix bool
		Line    int
	}

	Binary struct {
		Op   string
		X, Y Expr
		Line int
	}

	Assign struct {
		Op   string
		L, R Expr
		Line int
	}

	Cond struct {
		C, A, B Expr
		Line    int
	}

	// Call is a function call, a constructor when Ctor is set, or a method
	// call such as a.length() when Recv is set.
	Call struct {
		Name string
		Ctor *TypeSpec
		Recv Expr
		Args []Expr
		Line int
	}

	Index struct {
		X, Index Expr
		Line     int
	}

	Selector struct {
		X    Expr
		Name string
		Line int
	}
)

func (e *Ident) pos() int    { return e.Line }
func (e *Literal) pos() int  { return e.Line }
func (e *Unary) pos() int    { return e.Line }
func (e *Binary) pos() int   { return e.Line }
func (e *Assign) pos() int   { return e.Line }
func (e *Cond) pos() int     { return e.Line }
func (e *Call) pos() int     { return e.Line }
func (e *Index) pos() int    { return e.Line }
func (e *Selector) pos() int { return e.Line }

// TypeSpec is a type as written: a keyword or struct name, or an inline
// struct definition, optionally with array dimensions.
type TypeSpec struct {
	Name      string
	Struct    *StructSpec
	Precision string
	Array     *ArraySpec
	Line      int
}

// ArraySpec is an array dimension. A nil Size means the size comes from the
// initializer.
type ArraySpec struct {
	Size Expr
}

type StructSpec struct {
	Name    string
	Members []*VarDecl
	Line    int
}

// Layout is one layout(...) qualifier entry.
type Layout struct {
	Name  string
	Value int
	Set   bool
}

type Qualifier struct {
	Storage   string
	Interp    string
	Centroid  bool
	Invariant bool
	Precision string
	Layout    []Layout
	Line      int
}

func (q Qualifier) empty() bool {
	return q.Storage == "" && q.Interp == "" && !q.Centroid && !q.Invariant && q.Precision == "" && len(q.Layout) == 0
}

// Decl is a declaration at global or statement level.
type Decl interface{ declPos() int }

type (
	Declarator struct {
		Name  string
		Array *ArraySpec
		Init  Expr
		Line  int
	}

	VarDecl struct {
		Qual Qualifier
		Type *TypeSpec
		Vars []*Declarator
		Line int
	}

	PrecisionDecl struct {
		Precision string
		Type      *TypeSpec
		Line      int
	}

	InvariantDecl struct {
		Names []string
		Line  int
	}

	BlockDecl struct {
		Qual     Qualifier
		Name     string
		Members  []*VarDecl
		Instance string
		Array    *ArraySpec
		Line     int
	}

	Param struct {
		Qual  Qualifier
		Type  *TypeSpec
		Name  string
		Array *ArraySpec
		Line  int
	}

	FuncDecl struct {
		Ret    *TypeSpec
		Name   string
		Params []*Param
		Body   *Block
		Line   int
	}
)

func (d *VarDecl) declPos() int       { return d.Line }
func (d *PrecisionDecl) declPos() int { return d.Line }
func (d *InvariantDecl) declPos() int { return d.Line }
func (d *BlockDecl) declPos() int     { return d.Line }
func (d *FuncDecl) declPos() int      { return d.Line }

// Stmt is a statement node.
type Stmt interface{ stmtPos() int }

type (
	Block struct {
		Stmts []Stmt
		// Scoped is false for function bodies, whose scope is shared with
		// the parameters.
		Scoped bool
		Line   int
		End    int
	}

	DeclStmt struct {
		Decl Decl
	}

	ExprStmt struct {
		X Expr
	}

	IfStmt struct {
		Cond Expr
		Then Stmt
		Else Stmt
		Line int
	}

	// CondInit is a condition that declares a variable, as in
	// while (bool b = f()).
	CondInit struct {
		Type *TypeSpec
		Name string
		Init Expr
		Line int
	}

	ForStmt struct {
		Init     Stmt
		Cond     Expr
		CondDecl *CondInit
		Post     Expr
		Body     Stmt
		Line     int
	}

	WhileStmt struct {
		Cond     Expr
		CondDecl *CondInit
		Body     Stmt
		Line     int
	}

	DoStmt struct {
		Body Stmt
		Cond Expr
		Line int
	}

	SwitchStmt struct {
		X    Expr
		Body *Block
		Line int
	}

	// CaseStmt is a case label; X is nil for default.
	CaseStmt struct {
		X    Expr
		Line int
	}

	// BranchStmt is break, continue or discard.
	BranchStmt struct {
		Tok  string
		Line int
	}

	ReturnStmt struct {
		X    Expr
		Line int
	}

	EmptyStmt struct {
		Line int
	}
)

func (s *Block) stmtPos() int      { return s.Line }
func (s *DeclStmt) stmtPos() int   { return s.Decl.declPos() }
func (s *ExprStmt) stmtPos() int   { return s.X.pos() }
func (s *IfStmt) stmtPos() int     { return s.Line }
func (s *ForStmt) stmtPos() int    { return s.Line }
func (s *WhileStmt) stmtPos() int  { return s.Line }
func (s *DoStmt) stmtPos() int     { return s.Line }
func (s *SwitchStmt) stmtPos() int { return s.Line }
func (s *CaseStmt) stmtPos() int   { return s.Line }
func (s *BranchStmt) stmtPos() int { return s.Line }
func (s *ReturnStmt) stmtPos() int { return s.Line }
func (s *EmptyStmt) stmtPos() int  { return s.Line }

// Unit is a parsed translation unit.
type Unit struct {
	Decls []Decl
}
