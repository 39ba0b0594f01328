package ast

// MathNode is a node of a formula tree.
type MathNode interface{ mathNode() }

// AtomKind classifies a math leaf.
type AtomKind int

const (
	AtomIdent  AtomKind = iota // single-letter variable
	AtomNumber                 // numeric literal
	AtomOp                     // operator or relation written with characters: + - = < ...
	AtomSymbol                 // named symbol: alpha, infinity, arrow.r
	AtomPunct                  // , ; ! and friends
)

type MathAtom struct {
	Kind AtomKind
	Text string
}

// MathCall is a command (LaTeX) or function call (Typst) with arguments.
// Opt is the LaTeX optional argument, nil when absent. Names parallels Args
// for Typst named arguments ("" for positional) and is nil when every
// argument is positional.
type MathCall struct {
	Name   string
	Args   [][]MathNode
	Names  []string
	Opt    []MathNode
	Star   bool
	LossID int
}

// ArgName returns the name of argument i, or "".
func (c *MathCall) ArgName(i int) string {
	if i < len(c.Names) {
		return c.Names[i]
	}
	return ""
}

// MathFrac is a fraction. Slash marks the inline a/b form.
type MathFrac struct {
	Num   []MathNode
	Den   []MathNode
	Slash bool
}

// MathScript attaches sub- and superscripts to Base. Sub and Sup are nil when absent.
type MathScript struct {
	Base MathNode
	Sub  []MathNode
	Sup  []MathNode
}

type MathGroup struct {
	Children []MathNode
}

type MathFenced struct {
	Open  string
	Close string
	Body  []MathNode
}

type MathText struct {
	Text string
}

// MathMatrix is a matrix-like environment: rows of cells of nodes.
type MathMatrix struct {
	Env   string // matrix, pmatrix, bmatrix, Bmatrix, vmatrix, Vmatrix, cases, aligned
	Delim string
	Rows  [][][]MathNode
}

type MathAlign struct{}

type MathNewline struct{}

// MathRaw is source text carried through unconverted.
type MathRaw struct {
	Text   string
	LossID int
}

func (*MathAtom) mathNode()    {}
func (*MathCall) mathNode()    {}
func (*MathFrac) mathNode()    {}
func (*MathScript) mathNode()  {}
func (*MathGroup) mathNode()   {}
func (*MathFenced) mathNode()  {}
func (*MathText) mathNode()    {}
func (*MathMatrix) mathNode()  {}
func (*MathAlign) mathNode()   {}
func (*MathNewline) mathNode() {}
func (*MathRaw) mathNode()     {}

// Sym is shorthand for a named-symbol atom.
func Sym(name string) *MathAtom { return &MathAtom{Kind: AtomSymbol, Text: name} }

// IsSimpleOperand reports whether nodes form a single visual unit that can sit
// on either side of an inline slash without parentheses.
func IsSimpleOperand(nodes []MathNode) bool {
	if len(nodes) != 1 {
		return false
	}
	switch n := nodes[0].(type) {
	case *MathAtom:
		return n.Kind == AtomIdent || n.Kind == AtomNumber || n.Kind == AtomSymbol
	case *MathScript:
		base, ok := n.Base.(*MathAtom)
		if !ok || base.Kind == AtomOp || base.Kind == AtomPunct {
			return false
		}
		return scriptSimple(n.Sub) && scriptSimple(n.Sup)
	case *MathGroup:
		return IsSimpleOperand(n.Children)
	}
	return false
}

func scriptSimple(nodes []MathNode) bool {
	if nodes == nil {
		return true
	}
	if len(nodes) != 1 {
		return false
	}
	a, ok := nodes[0].(*MathAtom)
	return ok && a.Kind != AtomOp && a.Kind != AtomPunct
}
