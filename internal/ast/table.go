package ast

type Align int

const (
	AlignDefault Align = iota
	AlignLeft
	AlignCenter
	AlignRight
)

func (a Align) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	}
	return "default"
}

// BorderStyle is the rule idiom of a whole table.
type BorderStyle int

const (
	BorderNone   BorderStyle = iota
	BorderRuled              // booktabs top/mid/bottom rules, no vertical rules
	BorderGrid               // full horizontal and vertical rules
	BorderCustom             // any other mix of full and partial rules
)

func (b BorderStyle) String() string {
	switch b {
	case BorderRuled:
		return "ruled"
	case BorderGrid:
		return "grid"
	case BorderCustom:
		return "custom"
	}
	return "none"
}

type RuleKind int

const (
	RuleFull RuleKind = iota
	RuleTop
	RuleMid
	RuleBottom
	RulePartial
)

// Rule is a horizontal rule. From and To are 1-based inclusive columns and
// only meaningful for RulePartial.
type Rule struct {
	Kind RuleKind
	From int
	To   int
	// Approx is set when the source rule had no faithful equivalent, such
	// as a Typst stroke weight outside the booktabs idiom.
	Approx bool
}

type TableCell struct {
	Content []Node
	Colspan int
	Rowspan int
	Align   Align
	Fill    string
}

// Span returns the cell's colspan and rowspan, treating zero as one.
func (c *TableCell) Span() (cols, rows int) {
	cols, rows = c.Colspan, c.Rowspan
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// TableRow holds the cells that start in this row. Grid positions covered by
// a rowspan from an earlier row have no cell here.
type TableRow struct {
	Cells      []*TableCell
	RulesAbove []Rule
	Header     bool
}

// Table is row/cell geometry plus border semantics. VRules lists column
// boundaries (0..Columns) that carry a vertical rule.
type Table struct {
	Columns    int
	ColAlign   []Align
	VRules     []int
	Border     BorderStyle
	Rows       []*TableRow
	RulesBelow []Rule
	LossID     int
}
