package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"texbridge/internal/ast"
	"texbridge/internal/loss"
	"texbridge/internal/types"
)

func TestMeasureLaTeX(t *testing.T) {
	src := `\section{Intro}\label{sec:intro}
See \ref{sec:intro} and \citep{knuth84}.
\begin{equation}
E = mc^2 \label{eq:e}
\end{equation}
\begin{itemize}
\item one
\item two
\end{itemize}
% texbridge:loss:1 unknown-command \foo
`
	m := Measure(types.LangLaTeX, src)
	assert.Equal(t, loss.Metrics{
		Headings:    1,
		Equations:   1,
		Cites:       1,
		Refs:        1,
		Labels:      2,
		ListItems:   2,
		LossMarkers: 1,
	}, m)
}

func TestMeasureTypst(t *testing.T) {
	src := "= Intro <sec:intro>\n\nSee @sec:intro.\n\n$ x $ <eq:a>\n\n- one\n- two\n"
	m := Measure(types.LangTypst, src)
	assert.Equal(t, 1, m.Headings)
	assert.Equal(t, 1, m.Equations)
	assert.Equal(t, 1, m.Refs)
	assert.Equal(t, 2, m.Labels)
	assert.Equal(t, 2, m.ListItems)
	assert.Zero(t, m.ParseErrors)
}

func TestMeasureCountsParseErrors(t *testing.T) {
	m := Measure(types.LangTypst, "#text(fill: red")
	assert.Equal(t, 1, m.ParseErrors)

	m = Measure(types.LangLaTeX, `\textbf{a`)
	assert.Equal(t, 1, m.ParseErrors)
}

func TestCollect(t *testing.T) {
	doc := &ast.Document{Children: []ast.Node{
		&ast.Figure{Label: "fig:a", Body: []ast.Node{&ast.Table{Columns: 1}}},
		&ast.Paragraph{Content: []ast.Node{
			&ast.Math{Body: []ast.MathNode{ast.Sym("x")}},
			&ast.Cite{Keys: []string{"a", "b"}},
			&ast.Label{Key: "p"},
		}},
	}}
	m := Collect(doc)
	assert.Equal(t, 1, m.Figures)
	assert.Equal(t, 1, m.Tables)
	assert.Equal(t, 0, m.Equations, "inline math is not an equation")
	assert.Equal(t, 1, m.Cites)
	assert.Equal(t, 2, m.Labels)

	assert.Equal(t, loss.Metrics{}, Collect(nil))
}
