package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
	"texbridge/internal/types"
)

func TestPageSetupRules(t *testing.T) {
	src := `#set page(paper: "a4", margin: (x: 2cm, top: 3cm), columns: 2)
#set text(size: 11pt, font: "Libertinus Serif", lang: "en")
#set par(justify: false, first-line-indent: 1em)
#set math.equation(numbering: "(1.1)")
#set bibliography(style: "apa")

Hello
`
	doc, tracker := resolve(t, src, 0)

	require.Len(t, doc.Children, 1)
	assert.Equal(t, "Hello", ast.PlainText(doc.Children))
	assert.Equal(t, 0, tracker.Len())

	require.NotNil(t, doc.Layout)
	l := doc.Layout
	assert.Equal(t, "a4", l.Paper)
	assert.Equal(t, ast.Margin{Left: "2cm", Right: "2cm", Top: "3cm"}, l.Margin)
	assert.Equal(t, 2, l.Columns)
	assert.Equal(t, "11pt", l.FontSize)
	assert.Equal(t, "Libertinus Serif", l.Font)
	assert.True(t, l.Ragged)
	assert.Equal(t, "1em", l.ParIndent)
	assert.Equal(t, "section", l.EquationWithin)
	assert.Equal(t, "apa", l.BibStyle)
	assert.True(t, l.Natbib)
}

func TestPageRuleWithUnknownArgumentStaysOpaque(t *testing.T) {
	doc, _ := resolve(t, "#set page(margin: 2cm, header: [H])\nBody\n", 0)

	require.Len(t, doc.Children, 2)
	o := doc.Children[0].(*ast.Opaque)
	assert.Equal(t, OpaqueSet, o.Kind)
	require.NotNil(t, doc.Layout)
	assert.Equal(t, "2cm", doc.Layout.Margin.All, "understood arguments still apply")
}

func TestNestedSetRuleLeavesLayoutAlone(t *testing.T) {
	doc, _ := resolve(t, "#[#set text(size: 8pt)\nsmall]\n", 0)
	assert.Nil(t, doc.Layout)
}

func TestTemplateShowRule(t *testing.T) {
	src := `#show: ieee.with(
  title: [A Study],
  authors: ((name: "Ada"), (name: "Alan")),
  abstract: [We study things.],
  index-terms: ("graphs", "trees"),
  paper-size: "a4",
)

= Intro
`
	tracker := newTracker()
	doc := resolveWith(t, src, tracker)

	require.Len(t, doc.Children, 1)
	assert.IsType(t, &ast.Heading{}, doc.Children[0])
	assert.Equal(t, "A Study", ast.PlainText(doc.Meta.Title))
	assert.Equal(t, "Ada, Alan", ast.PlainText(doc.Meta.Author))
	assert.Equal(t, "We study things.", ast.PlainText(doc.Meta.Abstract))
	assert.Equal(t, []string{"graphs", "trees"}, doc.Meta.Keywords)
	require.NotNil(t, doc.Layout)
	assert.Equal(t, "ieee", doc.Layout.Template)

	assert.Equal(t, 0, tracker.Len())
	assert.Equal(t, []string{"template ieee: arguments ignored: paper-size"},
		tracker.Report(types.LangTypst, types.LangLaTeX).Warnings)
}

func TestSelectorShowRuleStaysOpaque(t *testing.T) {
	doc, _ := resolve(t, "#show heading: set text(red)\n= A\n", 0)

	require.Len(t, doc.Children, 2)
	o := doc.Children[0].(*ast.Opaque)
	assert.Equal(t, OpaqueShow, o.Kind)
	assert.Nil(t, doc.Layout)
}

func TestTheoremCalls(t *testing.T) {
	doc, tracker := resolve(t, "#theorem[Every tree is a graph.]\n#proof[Trivial.]\n", 0)

	require.Len(t, doc.Children, 2)
	thm := doc.Children[0].(*ast.Environment)
	assert.Equal(t, "theorem", thm.Name)
	assert.Equal(t, "Every tree is a graph.", ast.PlainText(thm.Children))
	assert.Equal(t, "proof", doc.Children[1].(*ast.Environment).Name)
	require.NotNil(t, doc.Layout)
	assert.True(t, doc.Layout.Theorems)
	assert.Equal(t, 0, tracker.Len())
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, keywords(String("a, b c,")))
	assert.Equal(t, []string{"x"}, keywords(Array{String("x"), String(" ")}))
	assert.Nil(t, keywords(Bool(true)))
}
