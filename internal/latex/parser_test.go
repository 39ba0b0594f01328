package latex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
)

func parse(src string) *ast.Document {
	return Parse(Tokenize(src), ParseOptions{Source: src})
}

func TestParseHeadings(t *testing.T) {
	doc := parse(`\section{Intro}\label{sec:intro}
Hello \textbf{world}.

\subsection*{Details}`)
	require.Len(t, doc.Children, 3)

	h, ok := doc.Children[0].(*ast.Heading)
	require.True(t, ok)
	assert.Equal(t, 1, h.Level)
	assert.True(t, h.Numbered)
	assert.Equal(t, "sec:intro", h.Label)
	assert.Equal(t, "Intro", ast.PlainText(h.Content))

	p, ok := doc.Children[1].(*ast.Paragraph)
	require.True(t, ok)
	require.Len(t, p.Content, 3)
	assert.Equal(t, "Hello ", p.Content[0].(*ast.Text).Value)
	assert.IsType(t, &ast.Strong{}, p.Content[1])

	h2 := doc.Children[2].(*ast.Heading)
	assert.Equal(t, 2, h2.Level)
	assert.False(t, h2.Numbered)
}

func TestParseDocumentMeta(t *testing.T) {
	doc := parse(`\documentclass{article}
\usepackage{amsmath}
\title{A Study}
\author{Ada \and Alan}
\begin{document}
\maketitle
Body text.
\end{document}`)
	assert.Equal(t, "A Study", ast.PlainText(doc.Meta.Title))
	assert.Equal(t, "Ada , Alan", ast.PlainText(doc.Meta.Author))
	assert.Nil(t, doc.Meta.Date)
	require.Len(t, doc.Children, 1)
	assert.Equal(t, "Body text.", ast.PlainText(doc.Children[0].(*ast.Paragraph).Content))
}

func TestParseLists(t *testing.T) {
	doc := parse(`\begin{enumerate}
\item First
\item Second \emph{one}
\end{enumerate}
\begin{description}
\item[Term] Meaning
\end{description}`)
	require.Len(t, doc.Children, 2)

	l := doc.Children[0].(*ast.List)
	assert.True(t, l.Ordered)
	require.Len(t, l.Items, 2)
	assert.Equal(t, "First", ast.PlainText(l.Items[0].Children))

	d := doc.Children[1].(*ast.List)
	assert.False(t, d.Ordered)
	assert.Equal(t, "Term", ast.PlainText(d.Items[0].Term))
	assert.Equal(t, "Meaning", ast.PlainText(d.Items[0].Children))
}

func TestParseInlineMath(t *testing.T) {
	doc := parse(`$\frac{1}{2} + \alpha$`)
	p := doc.Children[0].(*ast.Paragraph)
	m := p.Content[0].(*ast.Math)
	assert.False(t, m.Display)
	require.Len(t, m.Body, 3)

	frac := m.Body[0].(*ast.MathCall)
	assert.Equal(t, "frac", frac.Name)
	require.Len(t, frac.Args, 2)
	assert.Equal(t, &ast.MathAtom{Kind: ast.AtomNumber, Text: "1"}, frac.Args[0][0])
	assert.Equal(t, &ast.MathAtom{Kind: ast.AtomOp, Text: "+"}, m.Body[1])
	assert.Equal(t, ast.Sym("alpha"), m.Body[2])
}

func TestParseEquation(t *testing.T) {
	doc := parse(`\begin{equation}
E = mc^2 \label{eq:energy}
\end{equation}
\begin{align*}
a &= b \\
c &= d
\end{align*}`)
	require.Len(t, doc.Children, 2)

	eq := doc.Children[0].(*ast.Math)
	assert.True(t, eq.Display)
	assert.True(t, eq.Numbered)
	assert.Equal(t, "equation", eq.Env)
	assert.Equal(t, "eq:energy", eq.Label)
	last := eq.Body[len(eq.Body)-1].(*ast.MathScript)
	assert.Equal(t, &ast.MathAtom{Kind: ast.AtomIdent, Text: "c"}, last.Base)

	al := doc.Children[1].(*ast.Math)
	assert.False(t, al.Numbered)
	var aligns, newlines int
	ast.WalkMath(al.Body, func(n ast.MathNode) {
		switch n.(type) {
		case *ast.MathAlign:
			aligns++
		case *ast.MathNewline:
			newlines++
		}
	})
	assert.Equal(t, 2, aligns)
	assert.Equal(t, 1, newlines)
}

func TestParseMathStructures(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, body []ast.MathNode)
	}{
		{
			name: "scripts",
			src:  `x_i^2`,
			check: func(t *testing.T, body []ast.MathNode) {
				require.Len(t, body, 1)
				s := body[0].(*ast.MathScript)
				assert.Len(t, s.Sub, 1)
				assert.Len(t, s.Sup, 1)
			},
		},
		{
			name: "fenced",
			src:  `\left( \frac{a}{b} \right]`,
			check: func(t *testing.T, body []ast.MathNode) {
				require.Len(t, body, 1)
				f := body[0].(*ast.MathFenced)
				assert.Equal(t, "(", f.Open)
				assert.Equal(t, "]", f.Close)
				assert.Len(t, f.Body, 1)
			},
		},
		{
			name: "nested fences",
			src:  `\left( \left| x \right| \right)`,
			check: func(t *testing.T, body []ast.MathNode) {
				require.Len(t, body, 1)
				outer := body[0].(*ast.MathFenced)
				assert.Equal(t, ")", outer.Close)
				require.Len(t, outer.Body, 1)
				assert.Equal(t, "|", outer.Body[0].(*ast.MathFenced).Close)
			},
		},
		{
			name: "pmatrix",
			src:  `\begin{pmatrix} 1 & 2 \\ 3 & 4 \end{pmatrix}`,
			check: func(t *testing.T, body []ast.MathNode) {
				require.Len(t, body, 1)
				m := body[0].(*ast.MathMatrix)
				assert.Equal(t, "(", m.Delim)
				require.Len(t, m.Rows, 2)
				assert.Len(t, m.Rows[1], 2)
			},
		},
		{
			name: "sqrt with index",
			src:  `\sqrt[3]{x}`,
			check: func(t *testing.T, body []ast.MathNode) {
				c := body[0].(*ast.MathCall)
				assert.Equal(t, "sqrt", c.Name)
				assert.Len(t, c.Opt, 1)
				assert.Len(t, c.Args, 1)
			},
		},
		{
			name: "text",
			src:  `x \text{if } y`,
			check: func(t *testing.T, body []ast.MathNode) {
				assert.Equal(t, &ast.MathText{Text: "if "}, body[1])
			},
		},
		{
			name: "decimal number",
			src:  `3.14`,
			check: func(t *testing.T, body []ast.MathNode) {
				assert.Equal(t, []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "3.14"}}, body)
			},
		},
		{
			name: "unknown command keeps arguments",
			src:  `\foo{a}{b}`,
			check: func(t *testing.T, body []ast.MathNode) {
				c := body[0].(*ast.MathCall)
				assert.Equal(t, "foo", c.Name)
				assert.Len(t, c.Args, 2)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(Tokenize(tt.src), ParseOptions{MathOnly: true})
			m := doc.Children[0].(*ast.Math)
			tt.check(t, m.Body)
		})
	}
}

func TestParseFigure(t *testing.T) {
	doc := parse(`\begin{figure}[ht]
\centering
\includegraphics[width=0.5\textwidth]{plot.png}
\caption{A plot}
\label{fig:plot}
\end{figure}`)
	require.Len(t, doc.Children, 1)
	fig := doc.Children[0].(*ast.Figure)
	assert.Equal(t, "ht", fig.Placement)
	assert.Equal(t, "fig:plot", fig.Label)
	assert.Equal(t, "A plot", ast.PlainText(fig.Caption))

	var img *ast.Image
	for _, n := range fig.Body {
		if i, ok := n.(*ast.Image); ok {
			img = i
		}
	}
	require.NotNil(t, img)
	assert.Equal(t, "plot.png", img.Path)
	assert.Equal(t, "50%", img.Width)
}

func TestParseBooktabsTable(t *testing.T) {
	doc := parse(`\begin{tabular}{lcr}
\toprule
\multicolumn{2}{c}{Group} & C \\
\midrule
a & b & c \\
d & e & f \\
\bottomrule
\end{tabular}`)
	tbl := doc.Children[0].(*ast.Table)
	assert.Equal(t, 3, tbl.Columns)
	assert.Equal(t, ast.BorderRuled, tbl.Border)
	require.Len(t, tbl.Rows, 3)
	assert.True(t, tbl.Rows[0].Header)
	assert.False(t, tbl.Rows[1].Header)
	assert.Equal(t, 2, tbl.Rows[0].Cells[0].Colspan)
	assert.Equal(t, ast.AlignCenter, tbl.Rows[0].Cells[0].Align)
	assert.Equal(t, []ast.Rule{{Kind: ast.RuleBottom}}, tbl.RulesBelow)
	assert.Equal(t, []ast.Align{ast.AlignLeft, ast.AlignCenter, ast.AlignRight}, tbl.ColAlign)
}

func TestParseGridTableWithRowspan(t *testing.T) {
	doc := parse(`\begin{tabular}{|c|c|}
\hline
\multirow{2}{*}{A} & B \\
\hline
 & C \\
\hline
\end{tabular}`)
	tbl := doc.Children[0].(*ast.Table)
	assert.Equal(t, ast.BorderGrid, tbl.Border)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 2, tbl.Rows[0].Cells[0].Rowspan)
	require.Len(t, tbl.Rows[1].Cells, 1)
	assert.Equal(t, "C", ast.PlainText(tbl.Rows[1].Cells[0].Content))
}

func TestParseCode(t *testing.T) {
	doc := parse("Use \\verb|x := 1| here.\n\n\\begin{lstlisting}[language=Go]\nfmt.Println(1)\n\\end{lstlisting}")
	require.Len(t, doc.Children, 2)
	p := doc.Children[0].(*ast.Paragraph)
	assert.Equal(t, &ast.Code{Text: "x := 1"}, p.Content[1])

	cb := doc.Children[1].(*ast.CodeBlock)
	assert.Equal(t, "go", cb.Lang)
	assert.Equal(t, "fmt.Println(1)", cb.Text)
}

func TestParseReferences(t *testing.T) {
	doc := parse(`See \ref{fig:a}, \eqref{eq:b} and \citep{knuth84,lamport94}.
\bibliographystyle{plain}
\bibliography{refs}`)
	var refs []*ast.Ref
	var cites []*ast.Cite
	var bib *ast.Bibliography
	ast.Walk(doc, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Ref:
			refs = append(refs, n)
		case *ast.Cite:
			cites = append(cites, n)
		case *ast.Bibliography:
			bib = n
		}
		return true
	})
	require.Len(t, refs, 2)
	assert.Equal(t, "eqref", refs[1].Kind)
	require.Len(t, cites, 1)
	assert.Equal(t, []string{"knuth84", "lamport94"}, cites[0].Keys)
	assert.Equal(t, "p", cites[0].Mode)
	require.NotNil(t, bib)
	assert.Equal(t, []string{"refs"}, bib.Files)
	assert.Equal(t, "plain", bib.Style)
}

func TestParseUnknownCommand(t *testing.T) {
	toks := Tokenize(`Some \widget[big]{x}{y} text`)
	for i := range toks {
		if toks[i].Is("widget") {
			toks[i].LossID = 7
		}
	}
	doc := Parse(toks, ParseOptions{})
	p := doc.Children[0].(*ast.Paragraph)
	c := p.Content[1].(*ast.Command)
	assert.Equal(t, "widget", c.Name)
	assert.Equal(t, 7, c.LossID)
	assert.Len(t, c.Args, 2)
	assert.Equal(t, "big", ast.PlainText(c.Opt))
	assert.Equal(t, `\widget[big]{x}{y}`, c.Source)
}

func TestParseUnresolvedConditional(t *testing.T) {
	toks := []Token{
		{Kind: Char, Text: "a"},
		{Kind: Verbatim, Name: "if", Text: `\ifx\a\b yes\fi`, LossID: 3},
		{Kind: Char, Text: "b"},
	}
	doc := Parse(toks, ParseOptions{})
	p := doc.Children[0].(*ast.Paragraph)
	require.Len(t, p.Content, 3)
	op := p.Content[1].(*ast.Opaque)
	assert.Equal(t, "conditional", op.Kind)
	assert.Equal(t, 3, op.LossID)
}

func TestParseTikzGraphic(t *testing.T) {
	doc := parse(`\begin{tikzpicture}
\draw (0,0) -- (1,1);
\end{tikzpicture}`)
	g := doc.Children[0].(*ast.Graphic)
	assert.Equal(t, "\\begin{tikzpicture}\n\\draw (0,0) -- (1,1);\n\\end{tikzpicture}", g.Source)

	// without the source text the body is rebuilt from tokens
	toks := Tokenize(`\begin{tikzpicture}\draw (0,0);\end{tikzpicture}`)
	g = Parse(toks, ParseOptions{}).Children[0].(*ast.Graphic)
	assert.Contains(t, g.Source, `(0,0);`)
}

func TestRawBodyAfterExpansion(t *testing.T) {
	src := "\\begin{tikzpicture}\n\\draw (0,0);\n\\end{tikzpicture}"
	toks := Tokenize(src)
	for i := range toks {
		if toks[i].Is("draw") {
			toks[i].Text = "path"
		}
	}
	g := Parse(toks, ParseOptions{Source: src}).Children[0].(*ast.Graphic)
	assert.Contains(t, g.Source, `\path`)
	assert.NotContains(t, g.Source, `\draw`)
}

func TestParseGroupDeclaration(t *testing.T) {
	doc := parse(`a {\bfseries bold} b`)
	p := doc.Children[0].(*ast.Paragraph)
	require.Len(t, p.Content, 3)
	assert.Equal(t, "bold", ast.PlainText(p.Content[1].(*ast.Strong).Content))
}

func TestNormalizeLength(t *testing.T) {
	assert.Equal(t, "50%", NormalizeLength(`0.5\textwidth`))
	assert.Equal(t, "100%", NormalizeLength(`\linewidth`))
	assert.Equal(t, "3cm", NormalizeLength(`3cm`))
	assert.Equal(t, "25%", NormalizeLength(` 0.25\columnwidth `))
}
