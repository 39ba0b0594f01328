package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
	"texbridge/internal/latex"
	"texbridge/internal/loss"
	"texbridge/internal/symbols"
	"texbridge/internal/table"
	"texbridge/internal/types"
	"texbridge/internal/typst"
)

func newConverter(dir types.Direction, comments bool) (*Converter, *loss.Tracker) {
	tr := loss.NewTracker()
	return New(symbols.Default(), tr, Options{Direction: dir, Features: AllFeatures(), LossComments: comments}), tr
}

func latexFormula(t *testing.T, src string, comments bool) (string, *loss.Tracker) {
	t.Helper()
	doc := latex.Parse(latex.Tokenize(src), latex.ParseOptions{MathOnly: true})
	c, tr := newConverter(types.LaTeXToTypst, comments)
	out, err := c.Convert(doc)
	require.NoError(t, err)
	return typst.Write(out, typst.WriteOptions{MathOnly: true}), tr
}

func typstFormula(t *testing.T, src string) (string, *loss.Tracker) {
	t.Helper()
	doc := &ast.Document{Children: []ast.Node{&ast.Math{Body: typst.ParseMath(src)}}}
	c, tr := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(doc)
	require.NoError(t, err)
	return latex.Write(out, latex.WriteOptions{MathOnly: true}), tr
}

func TestFractionAndSymbol(t *testing.T) {
	got, tr := latexFormula(t, `\frac{1}{2} + \alpha`, false)
	assert.Equal(t, "1/2 + alpha", got)
	assert.Equal(t, 0, tr.Len())
}

func TestUnknownMathCommand(t *testing.T) {
	got, tr := latexFormula(t, `\unknowncmd{a} + b`, true)
	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.UnknownCommand, r.Kind)
	assert.Equal(t, `\unknowncmd`, r.Name)
	assert.Contains(t, got, `/* texbridge:loss:1 unknown-command \unknowncmd */ "\\unknowncmd{a}"`)
	assert.Equal(t, 1, loss.CountMarkers(got))
}

func TestTypstMathToLaTeX(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"frac(a, b) + RR", `\frac{a}{b} + \mathbb{R}`},
		{"abs(x)", `\left\lvert x \right\rvert`},
		{"root(3, x)", `\sqrt[3]{x}`},
		{"alpha <= oo", `\alpha \leq \infty`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, tr := typstFormula(t, tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, tr.Len())
		})
	}
}

func TestUnknownTypstSymbol(t *testing.T) {
	got, tr := typstFormula(t, "x + foo")
	assert.Equal(t, `x + \mathrm{foo}`, got)
	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.UnknownCommand, r.Kind)
}

func TestMultilineDisplayMath(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{&ast.Math{
		Display: true,
		Body:    []ast.MathNode{&ast.MathAtom{Kind: ast.AtomIdent, Text: "a"}, &ast.MathAlign{}, &ast.MathNewline{}},
	}}}
	c, _ := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(doc)
	require.NoError(t, err)
	assert.Equal(t, "align", out.Children[0].(*ast.Math).Env)
}

func spanTable(fill string) *ast.Table {
	return &ast.Table{
		Columns:  2,
		ColAlign: []ast.Align{ast.AlignLeft, ast.AlignRight},
		Border:   ast.BorderRuled,
		Rows: []*ast.TableRow{
			{
				Header:     true,
				RulesAbove: []ast.Rule{{Kind: ast.RuleTop}},
				Cells:      []*ast.TableCell{{Colspan: 2, Fill: fill, Content: []ast.Node{&ast.Text{Value: "Head"}}}},
			},
			{
				RulesAbove: []ast.Rule{{Kind: ast.RuleMid}},
				Cells: []*ast.TableCell{
					{Content: []ast.Node{&ast.Text{Value: "a"}}},
					{Content: []ast.Node{&ast.Text{Value: "b"}}},
				},
			},
		},
		RulesBelow: []ast.Rule{{Kind: ast.RuleBottom}},
	}
}

func TestTableSpanAndFill(t *testing.T) {
	c, tr := newConverter(types.LaTeXToTypst, false)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{spanTable("gray!20")}})
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())

	tb := out.Children[0].(*ast.Table)
	head := tb.Rows[0].Cells[0]
	assert.Equal(t, 2, head.Colspan)
	assert.Equal(t, "gray.lighten(80%)", head.Fill)

	cov := c.Coverage()
	assert.Equal(t, 1, cov.Tables)
	assert.Equal(t, table.Count{Mapped: 1}, cov.Get(table.FeatureSpan))
	assert.Equal(t, table.Count{Mapped: 1}, cov.Get(table.FeatureFill))
	assert.Equal(t, table.Count{Mapped: 3}, cov.Get(table.FeatureRule))
	assert.Equal(t, table.Count{Mapped: 2}, cov.Get(table.FeatureAlign))
	assert.Equal(t, 1.0, cov.Confidence())
}

func TestTableFillApproximated(t *testing.T) {
	c, tr := newConverter(types.LaTeXToTypst, true)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{spanTable("MyBlue")}})
	require.NoError(t, err)

	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.TableApproximation, r.Kind)
	assert.Equal(t, "2x2 table", r.Snippet)

	require.Len(t, out.Children, 2)
	marker := out.Children[0].(*ast.Raw)
	assert.Equal(t, "/* texbridge:loss:1 table-approximation table */", marker.Text)
	tb := out.Children[1].(*ast.Table)
	assert.Equal(t, 1, tb.LossID)
	assert.Empty(t, tb.Rows[0].Cells[0].Fill)
	assert.Equal(t, table.Count{Approximated: 1}, c.Coverage().Get(table.FeatureFill))
}

func TestTypstFillToLaTeX(t *testing.T) {
	c, _ := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{spanTable("red.lighten(60%)")}})
	require.NoError(t, err)
	assert.Equal(t, "red!40", out.Children[0].(*ast.Table).Rows[0].Cells[0].Fill)
}

func TestTablesDisabled(t *testing.T) {
	tr := loss.NewTracker()
	c := New(nil, tr, Options{Direction: types.LaTeXToTypst})
	out, err := c.Convert(&ast.Document{Children: []ast.Node{spanTable("")}})
	require.NoError(t, err)

	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.UnsupportedFeature, r.Kind)
	code := out.Children[0].(*ast.CodeBlock)
	assert.Equal(t, "latex", code.Lang)
	assert.Contains(t, code.Text, `\begin{tabular}`)
	assert.Equal(t, 0, c.Coverage().Tables)
}

func TestGraphicToCeTZ(t *testing.T) {
	src := `\begin{tikzpicture}
\draw (0,0) -- (1,0);
\draw (0,0) grid (1,1);
\end{tikzpicture}`
	c, tr := newConverter(types.LaTeXToTypst, true)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{&ast.Graphic{Lang: types.LangLaTeX, Source: src}}})
	require.NoError(t, err)

	g := out.Children[0].(*ast.Graphic)
	assert.Equal(t, types.LangTypst, g.Lang)
	assert.Contains(t, g.Source, "line((0, 0), (1, 0))")
	assert.Contains(t, g.Source, "// texbridge:loss:1 graphics-primitive")

	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.GraphicsPrimitive, r.Kind)
}

func TestGraphicToTikZ(t *testing.T) {
	src := "#cetz.canvas({\n  import cetz.draw: *\n  circle((0, 0), radius: 2)\n})"
	c, tr := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{&ast.Graphic{Lang: types.LangTypst, Source: src}}})
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())
	g := out.Children[0].(*ast.Graphic)
	assert.Equal(t, "\\begin{tikzpicture}\n  \\draw (0,0) circle (2);\n\\end{tikzpicture}", g.Source)
}

func TestInvalidTrees(t *testing.T) {
	tests := []struct {
		name string
		dir  types.Direction
		node ast.Node
	}{
		{"stray list item", types.LaTeXToTypst, &ast.ListItem{}},
		{"nested document", types.TypstToLaTeX, &ast.Document{}},
		{"script in latex tree", types.LaTeXToTypst, &ast.LetBinding{Name: "x", Source: "#let x = 1"}},
		{"command in typst tree", types.TypstToLaTeX, &ast.Command{Name: "foo"}},
		{"environment in typst tree", types.TypstToLaTeX, &ast.Environment{Name: "foo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newConverter(tt.dir, false)
			_, err := c.Convert(&ast.Document{Children: []ast.Node{tt.node}})
			assert.ErrorIs(t, err, ErrInvalidTree)
		})
	}
}

func TestTypstReferences(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{
		&ast.Math{Display: true, Numbered: true, Label: "eq:a", Body: []ast.MathNode{&ast.MathAtom{Kind: ast.AtomIdent, Text: "x"}}},
		&ast.Heading{Level: 1, Label: "sec:b", Content: []ast.Node{&ast.Text{Value: "B"}}},
		&ast.Paragraph{Content: []ast.Node{&ast.Ref{Key: "eq:a"}, &ast.Ref{Key: "sec:b"}, &ast.Ref{Key: "knuth"}}},
		&ast.Bibliography{Files: []string{"refs.bib"}, Style: "ieee"},
	}}
	c, tr := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(doc)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())

	para := out.Children[2].(*ast.Paragraph)
	assert.Equal(t, &ast.Ref{Key: "eq:a", Kind: "eqref"}, para.Content[0])
	assert.Equal(t, &ast.Ref{Key: "sec:b", Kind: "ref"}, para.Content[1])
	assert.Equal(t, &ast.Cite{Keys: []string{"knuth"}}, para.Content[2])
	assert.Equal(t, &ast.Bibliography{Files: []string{"refs"}, Style: "ieeetr"}, out.Children[3])
}

func TestLaTeXBibliography(t *testing.T) {
	c, tr := newConverter(types.LaTeXToTypst, false)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{
		&ast.Bibliography{Files: []string{"refs"}, Style: "siam"},
	}})
	require.NoError(t, err)
	assert.Equal(t, &ast.Bibliography{Files: []string{"refs.bib"}}, out.Children[0])
	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.UnsupportedValue, r.Kind)
}

func TestReferencesDisabled(t *testing.T) {
	tr := loss.NewTracker()
	c := New(nil, tr, Options{Direction: types.LaTeXToTypst, Features: Features{Tables: true}})
	out, err := c.Convert(&ast.Document{Children: []ast.Node{
		&ast.Paragraph{Content: []ast.Node{&ast.Ref{Key: "x", Kind: "ref"}}},
	}})
	require.NoError(t, err)
	para := out.Children[0].(*ast.Paragraph)
	assert.Equal(t, []ast.Node{&ast.Code{Text: `\ref{x}`}}, para.Content)
	assert.Equal(t, 1, tr.Len())
}

func TestOpaquePassthrough(t *testing.T) {
	c, tr := newConverter(types.LaTeXToTypst, true)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{
		&ast.Opaque{Kind: "conditional", Lang: types.LangLaTeX, Source: `\ifx\a\b x\fi`, Block: true},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, tr.Len())
	r, _ := tr.Get(1)
	assert.Equal(t, loss.UnresolvedConditional, r.Kind)

	require.Len(t, out.Children, 2)
	assert.Equal(t, &ast.CodeBlock{Lang: "latex", Text: `\ifx\a\b x\fi`}, out.Children[1])
}

func TestTypstScriptPassthrough(t *testing.T) {
	c, tr := newConverter(types.TypstToLaTeX, true)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{
		&ast.LetBinding{Name: "f", Source: "#let f(x) = x\n"},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, tr.Len())
	raw := out.Children[0].(*ast.Raw)
	assert.Equal(t, "% texbridge:loss:1 code-block\n% #let f(x) = x", raw.Text)
}

func TestUnknownEnvironmentKeepsContent(t *testing.T) {
	c, tr := newConverter(types.LaTeXToTypst, false)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{
		&ast.Environment{Name: "theorem", Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "T"}}}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "T"}}}}, out.Children)
	r, _ := tr.Get(1)
	assert.Equal(t, loss.UnknownEnvironment, r.Kind)
}

func TestTypstTheoremKept(t *testing.T) {
	c, tr := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(&ast.Document{Children: []ast.Node{
		&ast.Environment{Name: "lemma", Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "L"}}}}},
	}})
	require.NoError(t, err)
	require.Len(t, out.Children, 1)
	env := out.Children[0].(*ast.Environment)
	assert.Equal(t, "lemma", env.Name)
	assert.Equal(t, 0, tr.Len())
}

func TestLayoutCarriesAcross(t *testing.T) {
	in := &ast.Document{
		Meta: ast.Meta{
			Abstract: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "A"}}}},
			Keywords: []string{"k"},
		},
		Layout: &ast.Layout{Template: "project", Margin: ast.Margin{All: "2.5cm", Top: "10%"}, FontSize: "11pt"},
	}
	c, tr := newConverter(types.TypstToLaTeX, false)
	out, err := c.Convert(in)
	require.NoError(t, err)

	require.NotNil(t, out.Layout)
	assert.NotSame(t, in.Layout, out.Layout)
	assert.Equal(t, ast.Margin{All: "2.5cm"}, out.Layout.Margin)
	assert.Equal(t, "11pt", out.Layout.FontSize)
	assert.Equal(t, "A", ast.PlainText(out.Meta.Abstract))
	assert.Equal(t, []string{"k"}, out.Meta.Keywords)
	assert.Equal(t, "10%", in.Layout.Margin.Top)

	report := tr.Report(types.LangTypst, types.LangLaTeX)
	assert.Contains(t, report.Warnings, `top margin "10%" dropped: not a plain length`)
	assert.Contains(t, report.Warnings, "template project has no LaTeX class; article is used")

	c, tr = newConverter(types.LaTeXToTypst, false)
	out, err = c.Convert(&ast.Document{Layout: &ast.Layout{Class: "IEEEtran", Columns: 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Layout.Columns)
	assert.Equal(t, []string{"document class IEEEtran has no Typst template; only its page setup is kept"},
		tr.Report(types.LangLaTeX, types.LangTypst).Warnings)
}

func TestPlacement(t *testing.T) {
	tests := map[string]string{"htbp": "auto", "t": "top", "!b": "bottom", "h": "", "": "", "H": ""}
	for in, want := range tests {
		assert.Equal(t, want, typstPlacement(in), in)
	}
	assert.Equal(t, "t", latexPlacement("top"))
	assert.Equal(t, "", latexPlacement(""))
}

func TestLengths(t *testing.T) {
	v, ok := typstLength(`0.5\textwidth`)
	assert.True(t, ok)
	assert.Equal(t, "50%", v)
	v, _ = typstLength(`\fill`)
	assert.Equal(t, "1fr", v)
	_, ok = typstLength("3ex")
	assert.False(t, ok)

	v, _ = latexLength("1fr")
	assert.Equal(t, `\fill`, v)
	v, _ = latexLength("50%")
	assert.Equal(t, `0.5\linewidth`, v)
	_, ok = latexLength("2fr")
	assert.False(t, ok)
}

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures(nil)
	require.NoError(t, err)
	assert.Equal(t, AllFeatures(), f)

	f, err = ParseFeatures([]string{"tables", "refs"})
	require.NoError(t, err)
	assert.Equal(t, Features{Tables: true, References: true}, f)

	_, err = ParseFeatures([]string{"fonts"})
	assert.Error(t, err)
}

func TestInputNotModified(t *testing.T) {
	tb := spanTable("gray!20")
	c, _ := newConverter(types.LaTeXToTypst, false)
	_, err := c.Convert(&ast.Document{Children: []ast.Node{tb}})
	require.NoError(t, err)
	assert.Equal(t, "gray!20", tb.Rows[0].Cells[0].Fill)
}
