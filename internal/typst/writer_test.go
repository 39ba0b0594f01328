package typst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
)

func text(s string) []ast.Node { return []ast.Node{&ast.Text{Value: s}} }

func para(s string) ast.Node { return &ast.Paragraph{Content: text(s)} }

func TestWriteBlocks(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{
		&ast.Heading{Level: 1, Numbered: true, Label: "sec:a", Content: text("Intro")},
		&ast.Paragraph{Content: []ast.Node{
			&ast.Text{Value: "Cost: 50% #1 "},
			&ast.Strong{Content: text("bold")},
		}},
		&ast.List{Items: []*ast.ListItem{
			{Children: []ast.Node{para("one")}},
			{Children: []ast.Node{para("two")}},
		}},
	}}
	want := `#set heading(numbering: "1.")

= Intro <sec:a>

Cost: 50% \#1 *bold*

- one
- two
`
	assert.Equal(t, want, Write(doc, WriteOptions{}))
}

func TestWriteUnnumberedHeadingAmongNumbered(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{
		&ast.Heading{Level: 1, Numbered: true, Content: text("A")},
		&ast.Heading{Level: 2, Content: text("B")},
	}}
	got := Write(doc, WriteOptions{})
	assert.Contains(t, got, "= A\n")
	assert.Contains(t, got, "#heading(level: 2, numbering: none)[B]")
}

func TestWriteEmphasisInsideWord(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{
		&ast.Text{Value: "un"},
		&ast.Emph{Content: text("believ")},
		&ast.Text{Value: "able"},
	}}}}
	assert.Equal(t, "un#emph[believ]able\n", Write(doc, WriteOptions{}))
}

func TestWriteReferences(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{
		&ast.Text{Value: "See "},
		&ast.Ref{Key: "fig:a"},
		&ast.Text{Value: "b and "},
		&ast.Cite{Keys: []string{"knuth"}, Mode: "t"},
	}}}}
	assert.Equal(t, "See #ref(<fig:a>)b and #cite(<knuth>, form: \"prose\")\n", Write(doc, WriteOptions{}))
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a_b *c* #1 $", `a\_b \*c\* \#1 \$`},
		{"see @x", `see \@x`},
		{"a < b", "a < b"},
		{"1 // 2", `1 \// 2`},
		{"a\u00a0b", "a~b"},
		{"[x]", `\[x\]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeText(tt.in), tt.in)
	}
}

func TestWriteLineStartMarkers(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{para("= not a heading"), para("1. not a list")}}
	assert.Equal(t, "\\= not a heading\n\n1\\. not a list\n", Write(doc, WriteOptions{}))

	again := Parse(Write(doc, WriteOptions{}), ParseOptions{})
	require.Len(t, again.Children, 2)
	assert.IsType(t, &ast.Paragraph{}, again.Children[0])
	assert.Equal(t, "1. not a list", ast.PlainText(again.Children[1].(*ast.Paragraph).Content))
}

func TestMathString(t *testing.T) {
	x := &ast.MathAtom{Kind: ast.AtomIdent, Text: "x"}
	tests := []struct {
		name string
		in   []ast.MathNode
		want string
	}{
		{
			name: "complex fraction",
			in: []ast.MathNode{&ast.MathFrac{
				Num: []ast.MathNode{x, &ast.MathAtom{Kind: ast.AtomOp, Text: "+"}, &ast.MathAtom{Kind: ast.AtomNumber, Text: "1"}},
				Den: []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "2"}},
			}},
			want: "frac(x + 1, 2)",
		},
		{
			name: "simple fraction",
			in: []ast.MathNode{&ast.MathFrac{
				Num: []ast.MathNode{x},
				Den: []ast.MathNode{ast.Sym("pi")},
			}},
			want: "x/pi",
		},
		{
			name: "bars",
			in:   []ast.MathNode{&ast.MathFenced{Open: "|", Close: "|", Body: []ast.MathNode{x}}},
			want: "lr(| x |)",
		},
		{
			name: "open right side",
			in:   []ast.MathNode{&ast.MathFenced{Close: "|", Body: []ast.MathNode{x}}},
			want: "lr(x |)",
		},
		{
			name: "bracket matrix",
			in: []ast.MathNode{&ast.MathMatrix{Delim: "[", Rows: [][][]ast.MathNode{
				{{&ast.MathAtom{Kind: ast.AtomNumber, Text: "1"}}, {&ast.MathAtom{Kind: ast.AtomNumber, Text: "2"}}},
			}}},
			want: `mat(delim: "[", 1, 2)`,
		},
		{
			name: "aligned rows",
			in: []ast.MathNode{&ast.MathMatrix{Env: "aligned", Rows: [][][]ast.MathNode{
				{{x}, {&ast.MathAtom{Kind: ast.AtomOp, Text: "="}, &ast.MathAtom{Kind: ast.AtomNumber, Text: "1"}}},
				{{&ast.MathAtom{Kind: ast.AtomIdent, Text: "y"}}, {&ast.MathAtom{Kind: ast.AtomOp, Text: "="}, &ast.MathAtom{Kind: ast.AtomNumber, Text: "2"}}},
			}}},
			want: `x & = 1 \ y & = 2`,
		},
		{
			name: "comma inside call",
			in: []ast.MathNode{&ast.MathCall{Name: "f", Args: [][]ast.MathNode{
				{x, &ast.MathAtom{Kind: ast.AtomPunct, Text: ","}, &ast.MathAtom{Kind: ast.AtomIdent, Text: "y"}},
			}}},
			want: `f(x\, y)`,
		},
		{
			name: "empty base",
			in: []ast.MathNode{&ast.MathScript{
				Base: &ast.MathGroup{},
				Sup:  []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "2"}},
			}},
			want: `""^2`,
		},
		{
			name: "escaped operator",
			in:   []ast.MathNode{x, &ast.MathAtom{Kind: ast.AtomOp, Text: "#"}},
			want: `x \#`,
		},
		{
			name: "multi-letter identifier",
			in:   []ast.MathNode{&ast.MathAtom{Kind: ast.AtomIdent, Text: "id"}},
			want: `"id"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MathString(tt.in))
		})
	}
}

func TestMathRoundTrip(t *testing.T) {
	for _, src := range []string{
		"1/2 + alpha_i^2",
		"mat(1, 2; 3, 4)",
		`cases(x & "if" x > 0, 0 & "else")`,
		"frac(a + b, c)",
		"(a + b)^2",
		"x_(i j)",
		"sum_(i = 1)^n i",
		"a arrow.r b",
	} {
		assert.Equal(t, src, MathString(ParseMath(src)), src)
	}
}

func TestWriteTable(t *testing.T) {
	cell := func(s string) *ast.TableCell { return &ast.TableCell{Content: text(s)} }
	tbl := &ast.Table{
		Columns:  2,
		ColAlign: []ast.Align{ast.AlignLeft, ast.AlignRight},
		Border:   ast.BorderRuled,
		Rows: []*ast.TableRow{
			{Header: true, RulesAbove: []ast.Rule{{Kind: ast.RuleTop}}, Cells: []*ast.TableCell{cell("A"), cell("B")}},
			{RulesAbove: []ast.Rule{{Kind: ast.RuleMid}}, Cells: []*ast.TableCell{cell("1"), cell("2")}},
		},
		RulesBelow: []ast.Rule{{Kind: ast.RuleBottom}},
	}
	want := `#table(
  columns: 2,
  align: (left, right),
  stroke: none,
  table.hline(stroke: 0.08em),
  table.header([A], [B]),
  table.hline(stroke: 0.05em),
  [1], [2],
  table.hline(stroke: 0.08em),
)
`
	assert.Equal(t, want, Write(&ast.Document{Children: []ast.Node{tbl}}, WriteOptions{}))
}

func TestWriteGridTableSpans(t *testing.T) {
	tbl := &ast.Table{
		Columns: 2,
		Border:  ast.BorderGrid,
		Rows: []*ast.TableRow{
			{Cells: []*ast.TableCell{{Content: text("wide"), Colspan: 2, Fill: "gray"}}},
			{Cells: []*ast.TableCell{{Content: text("a")}, {Content: text("b")}}},
		},
	}
	got := Write(&ast.Document{Children: []ast.Node{tbl}}, WriteOptions{})
	assert.NotContains(t, got, "stroke")
	assert.Contains(t, got, "table.cell(colspan: 2, fill: gray)[wide]")
	assert.Contains(t, got, "[a], [b]")
}

func TestWriteFigure(t *testing.T) {
	fig := &ast.Figure{
		Body:    []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Image{Path: "a.png", Width: "50%"}}}},
		Caption: text("A cat"),
		Label:   "fig:cat",
	}
	want := `#figure(
  image("a.png", width: 50%),
  caption: [A cat],
) <fig:cat>
`
	assert.Equal(t, want, Write(&ast.Document{Children: []ast.Node{fig}}, WriteOptions{}))
}

func TestWriteEquationNumbering(t *testing.T) {
	x := []ast.MathNode{&ast.MathAtom{Kind: ast.AtomIdent, Text: "x"}}
	doc := &ast.Document{Children: []ast.Node{
		&ast.Math{Display: true, Numbered: true, Label: "eq:a", Body: x},
		&ast.Math{Display: true, Body: x},
	}}
	want := `#set math.equation(numbering: "(1)")

$ x $ <eq:a>

#math.equation(block: true, numbering: none, $ x $)
`
	assert.Equal(t, want, Write(doc, WriteOptions{}))
}

func TestWriteMeta(t *testing.T) {
	doc := &ast.Document{Meta: ast.Meta{Title: text("T"), Author: text("A")}}
	want := `#set document(title: "T", author: "A")

#align(center)[
  #text(1.6em)[*T*] \
  A
]
`
	assert.Equal(t, want, Write(doc, WriteOptions{}))
}

func TestWriteMathOnly(t *testing.T) {
	doc := Parse("$ x^2 $", ParseOptions{MathOnly: true})
	assert.Equal(t, "x^2", Write(doc, WriteOptions{MathOnly: true}))
}

func TestWriteRoundTripStructure(t *testing.T) {
	src := "= A <sec:a>\n\nText with $x^2$ and _emph_#footnote[note].\n\n$ a = b $ <eq:1>\n\n- item\n"
	first := parse(src)
	second := parse(Write(first, WriteOptions{}))
	assert.Equal(t, counts(first), counts(second))
}

func counts(doc *ast.Document) map[string]int {
	c := map[string]int{}
	ast.Walk(doc, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Heading:
			c["heading"]++
		case *ast.Math:
			c["math"]++
			if n.Label != "" {
				c["label"]++
			}
		case *ast.Emph:
			c["emph"]++
		case *ast.Interp:
			c["interp"]++
		case *ast.List:
			c["list"]++
		}
		return true
	})
	return c
}

func TestWriteLayoutRules(t *testing.T) {
	doc := &ast.Document{
		Layout: &ast.Layout{
			Class:          "article",
			Paper:          "a4",
			Margin:         ast.Margin{Left: "1in", Right: "1in"},
			Columns:        2,
			FontSize:       "11pt",
			Ragged:         true,
			EquationWithin: "section",
		},
		Children: []ast.Node{
			&ast.Math{Display: true, Numbered: true, Body: []ast.MathNode{&ast.MathAtom{Kind: ast.AtomIdent, Text: "x"}}},
		},
	}
	got := Write(doc, WriteOptions{})
	assert.Contains(t, got, `#set math.equation(numbering: "(1.1)")`)
	assert.Contains(t, got, "#set page(paper: \"a4\", margin: (left: 1in, right: 1in), columns: 2)\n")
	assert.Contains(t, got, "#set text(size: 11pt)\n")
	assert.Contains(t, got, "#set par(justify: false)")

	plain := Write(&ast.Document{Layout: &ast.Layout{Class: "article"}, Children: []ast.Node{para("x")}}, WriteOptions{})
	assert.Equal(t, "x\n", plain)
	assert.Equal(t, "2cm", margin(ast.Margin{All: "2cm"}))
}
