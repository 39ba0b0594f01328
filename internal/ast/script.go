package ast

// Expr is a Typst code expression.
type Expr interface{ expr() }

type Ident struct {
	Name string
}

type NoneLit struct{}

type BoolLit struct {
	Value bool
}

// NumberLit is a numeric literal. Unit is non-empty for lengths, angles,
// ratios and fractions ("pt", "%", "deg", "fr", ...).
type NumberLit struct {
	Value float64
	Int   bool
	Unit  string
	Text  string
}

type StringLit struct {
	Value string
}

type ArrayExpr struct {
	Items []Expr
}

// DictExpr keeps keys in source order.
type DictExpr struct {
	Keys   []string
	Values []Expr
}

type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	Op string
	X  Expr
}

type FieldExpr struct {
	X     Expr
	Field string
}

type Arg struct {
	Name  string
	Value Expr
}

// CallExpr is a function or method call. Trailing content blocks are
// appended to Args as positional ContentExpr values.
type CallExpr struct {
	Callee Expr
	Args   []Arg
	Source string
}

// ContentExpr is a content block [ ... ].
type ContentExpr struct {
	Nodes  []Node
	Source string
}

// CodeExpr is a code block { ... }, kept as source.
type CodeExpr struct {
	Source string
}

// ClosureExpr is an anonymous function, kept as source.
type ClosureExpr struct {
	Params []string
	Source string
}

// SpreadExpr is ..x inside an argument list or array.
type SpreadExpr struct {
	X      Expr
	Source string
}

// LabelExpr is a label literal <key> in code.
type LabelExpr struct {
	Key string
}

// BadExpr is an expression the parser could not read.
type BadExpr struct {
	Source string
}

func (*Ident) expr()       {}
func (*NoneLit) expr()     {}
func (*BoolLit) expr()     {}
func (*NumberLit) expr()   {}
func (*StringLit) expr()   {}
func (*ArrayExpr) expr()   {}
func (*DictExpr) expr()    {}
func (*BinaryExpr) expr()  {}
func (*UnaryExpr) expr()   {}
func (*FieldExpr) expr()   {}
func (*CallExpr) expr()    {}
func (*ContentExpr) expr() {}
func (*CodeExpr) expr()    {}
func (*ClosureExpr) expr() {}
func (*SpreadExpr) expr()  {}
func (*LabelExpr) expr()   {}
func (*BadExpr) expr()     {}

// LetBinding is #let name = value or #let name(params) = value.
// Params is nil for plain bindings.
type LetBinding struct {
	Name   string
	Params []string
	Value  Expr
	Source string
}

// ForLoop is #for pattern in iter body. Pattern has one name, or two for
// (key, value) destructuring.
type ForLoop struct {
	Pattern []string
	Iter    Expr
	Body    Expr
	Source  string
	Block   bool
}

type Branch struct {
	Cond Expr
	Body Expr
}

// Conditional is #if ... else if ... else ...; Else is nil when absent.
type Conditional struct {
	Branches []Branch
	Else     Expr
	Source   string
	Block    bool
}

// Interp is an embedded #expression in markup. Keyword is "set", "show",
// "import" or "include" for rules, "" for plain expressions. Label is a
// <label> written right after the expression.
type Interp struct {
	Keyword string
	Expr    Expr
	Label   string
	Source  string
	Block   bool
}
