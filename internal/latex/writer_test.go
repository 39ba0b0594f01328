package latex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texbridge/internal/ast"
	"texbridge/internal/table"
)

func TestWriteFragment(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{
		&ast.Heading{Level: 1, Numbered: true, Label: "sec:a", Content: []ast.Node{&ast.Text{Value: "Intro"}}},
		&ast.Paragraph{Content: []ast.Node{
			&ast.Text{Value: "Cost: 50% & more "},
			&ast.Strong{Content: []ast.Node{&ast.Text{Value: "bold"}}},
			&ast.Text{Value: " "},
			&ast.Ref{Key: "fig:x", Kind: "ref"},
		}},
		&ast.List{Items: []*ast.ListItem{
			{Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "one"}}}}},
			{Children: []ast.Node{&ast.Paragraph{Content: []ast.Node{&ast.Text{Value: "two"}}}}},
		}},
	}}
	got := Write(doc, WriteOptions{Fragment: true})
	want := `\section{Intro}\label{sec:a}

Cost: 50\% \& more \textbf{bold} \ref{fig:x}

\begin{itemize}
  \item one
  \item two
\end{itemize}
`
	assert.Equal(t, want, got)
}

func TestWriteFullDocument(t *testing.T) {
	doc := &ast.Document{
		Meta: ast.Meta{Title: []ast.Node{&ast.Text{Value: "T"}}},
		Children: []ast.Node{
			&ast.Paragraph{Content: []ast.Node{&ast.Image{Path: "a.png", Width: "50%"}}},
		},
	}
	got := Write(doc, WriteOptions{})
	assert.True(t, strings.HasPrefix(got, "\\documentclass{article}\n"))
	assert.Contains(t, got, `\usepackage{graphicx}`)
	assert.Contains(t, got, "\\title{T}\n")
	assert.Contains(t, got, "\\begin{document}\n\\maketitle\n")
	assert.Contains(t, got, `\includegraphics[width=0.5\linewidth]{a.png}`)
	assert.True(t, strings.HasSuffix(got, "\\end{document}\n"))
}

func TestMathString(t *testing.T) {
	tests := []struct {
		name string
		in   []ast.MathNode
		want string
	}{
		{
			name: "frac and symbol",
			in: []ast.MathNode{
				&ast.MathFrac{Num: []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "1"}}, Den: []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "2"}}},
				&ast.MathAtom{Kind: ast.AtomOp, Text: "+"},
				ast.Sym("alpha"),
			},
			want: `\frac{1}{2} + \alpha`,
		},
		{
			name: "symbol before letter",
			in:   []ast.MathNode{ast.Sym("alpha"), &ast.MathAtom{Kind: ast.AtomIdent, Text: "x"}},
			want: `\alpha x`,
		},
		{
			name: "scripts",
			in: []ast.MathNode{&ast.MathScript{
				Base: &ast.MathAtom{Kind: ast.AtomIdent, Text: "x"},
				Sub:  []ast.MathNode{&ast.MathAtom{Kind: ast.AtomIdent, Text: "i"}},
				Sup:  []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "10"}},
			}},
			want: `x_i^{10}`,
		},
		{
			name: "fenced",
			in: []ast.MathNode{&ast.MathFenced{Open: "(", Close: ")", Body: []ast.MathNode{
				&ast.MathAtom{Kind: ast.AtomIdent, Text: "x"},
			}}},
			want: `\left( x \right)`,
		},
		{
			name: "call with optional",
			in: []ast.MathNode{&ast.MathCall{
				Name: "sqrt",
				Opt:  []ast.MathNode{&ast.MathAtom{Kind: ast.AtomNumber, Text: "3"}},
				Args: [][]ast.MathNode{{&ast.MathAtom{Kind: ast.AtomIdent, Text: "x"}}},
			}},
			want: `\sqrt[3]{x}`,
		},
		{
			name: "matrix",
			in: []ast.MathNode{&ast.MathMatrix{Delim: "(", Rows: [][][]ast.MathNode{
				{{&ast.MathAtom{Kind: ast.AtomNumber, Text: "1"}}, {&ast.MathAtom{Kind: ast.AtomNumber, Text: "2"}}},
			}}},
			want: "\\begin{pmatrix}\n  1 & 2\n\\end{pmatrix}",
		},
		{
			name: "parens stay tight",
			in: []ast.MathNode{
				&ast.MathAtom{Kind: ast.AtomIdent, Text: "f"},
				&ast.MathAtom{Kind: ast.AtomOp, Text: "("},
				&ast.MathAtom{Kind: ast.AtomIdent, Text: "x"},
				&ast.MathAtom{Kind: ast.AtomOp, Text: ")"},
			},
			want: `f (x)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MathString(tt.in))
		})
	}
}

func TestWriteTableRoundTrip(t *testing.T) {
	src := `\begin{tabular}{lcr}
\toprule
\multicolumn{2}{c}{Group} & C \\
\midrule
\multirow{2}{*}{a} & b & c \\
 & e & f \\
\bottomrule
\end{tabular}`
	first := parse(src).Children[0].(*ast.Table)
	out := Write(&ast.Document{Children: []ast.Node{first}}, WriteOptions{Fragment: true})

	again := parse(out)
	require.Len(t, again.Children, 1)
	second := again.Children[0].(*ast.Table)

	r1, c1, s1 := table.Shape(first)
	r2, c2, s2 := table.Shape(second)
	assert.Equal(t, r1, r2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, first.Border, second.Border)
	assert.Contains(t, out, `\multirow{2}{*}{a}`)
}

func TestWriteRoundTripStructure(t *testing.T) {
	src := `\section{A}\label{sec:a}
Text with $x^2$ and \emph{emphasis}\footnote{note}.

\begin{equation}
a = b \label{eq:1}
\end{equation}

\begin{figure}
\includegraphics[width=0.5\textwidth]{img.png}
\caption{Cap}\label{fig:1}
\end{figure}
`
	first := parse(src)
	second := parse(Write(first, WriteOptions{Fragment: true}))
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
		case *ast.Figure:
			c["figure"]++
		case *ast.Footnote:
			c["footnote"]++
		case *ast.Emph:
			c["emph"]++
		case *ast.Image:
			c["image"]++
		}
		return true
	})
	return c
}

func TestEscapeText(t *testing.T) {
	assert.Equal(t, `a\_b \{c\} \#1 \$`, EscapeText("a_b {c} #1 $"))
	assert.Equal(t, `\textbackslash{}`, EscapeText(`\`))
}
