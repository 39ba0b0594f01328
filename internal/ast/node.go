// Package ast defines the document tree shared by the LaTeX and Typst front
// ends. Node, MathNode and Expr are closed sums: only this package declares
// implementations, so a type switch over them is exhaustive.
package ast

import "texbridge/internal/types"

// Node is a block or inline document node.
type Node interface{ node() }

// Meta holds document-level metadata. Each field is inline content, nil when absent.
type Meta struct {
	Title  []Node
	Author []Node
	Date   []Node

	// Abstract and Keywords come from template arguments. They are not part
	// of the title block.
	Abstract []Node
	Keywords []string
}

// Empty reports whether no title block field is set.
func (m Meta) Empty() bool {
	return m.Title == nil && m.Author == nil && m.Date == nil
}

type Document struct {
	Meta     Meta
	Layout   *Layout // nil when the source sets no page or text options
	Children []Node
}

// Layout is the page and text setup of a document: Typst set rules and
// templates on one side, the document class and preamble packages on the
// other. Lengths keep their source spelling, e.g. "2.5cm".
type Layout struct {
	Class        string // LaTeX document class
	ClassOptions []string
	Template     string // Typst template function applied with #show: name.with(..)

	Paper    string // Typst paper name: "a4", "us-letter"
	Margin   Margin
	FontSize string
	Font     string
	Columns  int

	Ragged    bool
	ParIndent string

	// EquationWithin restarts equation numbers per "section" or "subsection".
	EquationWithin string
	BibStyle       string
	Natbib         bool
	Theorems       bool
}

// Margin holds page margins. All applies to sides without their own value.
type Margin struct {
	All, Left, Right, Top, Bottom string
}

// Empty reports whether no margin is set.
func (m Margin) Empty() bool {
	return m == Margin{}
}

type Heading struct {
	Level    int
	Numbered bool
	Label    string
	Content  []Node
}

type Paragraph struct {
	Content []Node
}

type List struct {
	Ordered bool
	Items   []*ListItem
	// Closed lists are the whole output of one loop and never merge with a
	// neighboring list.
	Closed bool
}

// ListItem may only appear inside List.Items.
type ListItem struct {
	Term     []Node // description lists only
	Children []Node
}

type Quote struct {
	Children []Node
}

type CodeBlock struct {
	Lang string
	Text string
}

// Math is an inline or display formula. Env names the source environment
// (equation, align, ...) when there was one.
type Math struct {
	Display  bool
	Env      string
	Numbered bool
	Label    string
	Body     []MathNode
}

type Figure struct {
	Body      []Node
	Caption   []Node
	Label     string
	Placement string
}

// Image width/height are normalized lengths: "50%" for relative widths,
// absolute lengths keep their unit ("3cm").
type Image struct {
	Path   string
	Width  string
	Height string
}

type Ref struct {
	Key  string
	Kind string // ref, eqref, autoref, cref, pageref
}

type Cite struct {
	Keys []string
	Mode string // "", "p", "t" or "n" (listed, not cited)
}

type Label struct {
	Key string
}

type BibEntry struct {
	Key     string
	Content []Node
}

// Bibliography is either a reference to bibliography files or an inline
// list of entries.
type Bibliography struct {
	Files   []string
	Style   string
	Entries []*BibEntry
}

// Raw is target-language text emitted verbatim.
type Raw struct {
	Lang  types.Lang
	Text  string
	Block bool
}

// Opaque is a source construct the pipeline could not resolve. LossID is
// non-zero when a loss was already recorded for it.
type Opaque struct {
	Kind   string
	Lang   types.Lang
	Source string
	Reason string
	Block  bool
	LossID int
}

type Text struct {
	Value string
}

type Strong struct {
	Content []Node
}

type Emph struct {
	Content []Node
}

type Underline struct {
	Content []Node
}

type Code struct {
	Text string
}

type Link struct {
	URL     string
	Content []Node
}

type Footnote struct {
	Content []Node
}

type LineBreak struct{}

// Space is explicit spacing: \vspace/\hspace, #v/#h.
type Space struct {
	Vertical bool
	Length   string
}

type PageBreak struct{}

// Graphic holds a drawing in a graphics sub-language (TikZ or CeTZ).
type Graphic struct {
	Lang   types.Lang
	Source string
}

// Command is a LaTeX command the parser has no structural meaning for.
type Command struct {
	Name   string
	Opt    []Node
	Args   [][]Node
	Source string
	LossID int
}

// Environment is a LaTeX environment the parser has no structural meaning for.
type Environment struct {
	Name     string
	Args     []string
	Children []Node
	LossID   int
}

var theorems = map[string]bool{
	"theorem": true, "lemma": true, "corollary": true, "proposition": true,
	"definition": true, "example": true, "remark": true, "proof": true,
	"claim": true, "axiom": true,
}

// IsTheorem reports whether name is a theorem-like environment, proof included.
func IsTheorem(name string) bool { return theorems[name] }

func (*Document) node()     {}
func (*Heading) node()      {}
func (*Paragraph) node()    {}
func (*List) node()         {}
func (*ListItem) node()     {}
func (*Quote) node()        {}
func (*CodeBlock) node()    {}
func (*Math) node()         {}
func (*Table) node()        {}
func (*Figure) node()       {}
func (*Image) node()        {}
func (*Ref) node()          {}
func (*Cite) node()         {}
func (*Label) node()        {}
func (*BibEntry) node()     {}
func (*Bibliography) node() {}
func (*Raw) node()          {}
func (*Opaque) node()       {}
func (*Text) node()         {}
func (*Strong) node()       {}
func (*Emph) node()         {}
func (*Underline) node()    {}
func (*Code) node()         {}
func (*Link) node()         {}
func (*Footnote) node()     {}
func (*LineBreak) node()    {}
func (*Space) node()        {}
func (*PageBreak) node()    {}
func (*Graphic) node()      {}
func (*Command) node()      {}
func (*Environment) node()  {}
func (*LetBinding) node()   {}
func (*ForLoop) node()      {}
func (*Conditional) node()  {}
func (*Interp) node()       {}

// IsBlock reports whether n is laid out as a block rather than inline.
func IsBlock(n Node) bool {
	switch n := n.(type) {
	case *Heading, *Paragraph, *List, *ListItem, *Quote, *CodeBlock, *Table,
		*Figure, *Bibliography, *BibEntry, *PageBreak, *Graphic, *Environment, *LetBinding:
		return true
	case *Math:
		return n.Display
	case *Space:
		return n.Vertical
	case *Raw:
		return n.Block
	case *Opaque:
		return n.Block
	case *ForLoop:
		return n.Block
	case *Conditional:
		return n.Block
	case *Interp:
		return n.Block
	}
	return false
}
